// Package console is the operator side of the bridge: it connects to the hub,
// shows the instrument directory and relays typed SCPI commands.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danmuck/scpibridge/internal/dispatch"
	"github.com/danmuck/scpibridge/internal/protocol/session"
	"github.com/danmuck/scpibridge/internal/transport"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("console: not connected")

const usage = "In order to send a SCPI Command, write <Sr No.> <SCPI Command>\n" +
	"Separate several commands with ';'\n" +
	"To QUIT, press 'Q' or 'q'"

// Config configures the operator console.
//
// The hub works through queued Sets before it answers a Query, so the wait
// for a reply is Session.ReplyTimeout plus SetDelay for every Set sent since
// the last reply. DirectoryTimeout bounds the wait for the announcement while
// the hub identifies its instruments; zero waits until cancelled.
type Config struct {
	Transport          transport.Config
	Session            session.Config
	MaxConnectAttempts int
	SetDelay           time.Duration
	DirectoryTimeout   time.Duration
}

func DefaultConfig() Config {
	timing := dispatch.DefaultTiming()
	return Config{
		Transport:          transport.Config{Kind: transport.KindRFCOMM, Channel: 4},
		Session:            session.DefaultConfig(),
		MaxConnectAttempts: 5,
		SetDelay:           timing.SetPreDelay + timing.SetPostDelay,
	}
}

// Console drives one operator session over in and out.
type Console struct {
	cfg    Config
	in     *bufio.Reader
	out    io.Writer
	styles styles

	conn      *session.Conn
	unwatch   func() bool
	directory []session.Instrument

	// pendingSets counts Sets sent since the last reply.
	pendingSets int
}

func New(cfg Config, in io.Reader, out io.Writer) *Console {
	cfg.Session = cfg.Session.WithDefaults()
	if cfg.MaxConnectAttempts <= 0 {
		cfg.MaxConnectAttempts = 1
	}
	return &Console{
		cfg:    cfg,
		in:     bufio.NewReader(in),
		out:    out,
		styles: newStyles(),
	}
}

// Run connects, shows the directory and processes input until quit, end of
// input, cancellation or a transport failure.
func (c *Console) Run(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer c.Close()

	c.ShowDirectory()
	fmt.Fprintf(c.out, "\n%s\n\n", c.styles.help.Render(usage))

	done := make(chan struct{})
	defer close(done)
	lines := c.readLines(done)

	for {
		fmt.Fprint(c.out, c.styles.prompt.Render("Command: "))
		var in inputLine
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out, "\nConnection Closed.")
			return nil
		case in = <-lines:
		}
		if in.err != nil && !errors.Is(in.err, io.EOF) {
			return in.err
		}
		eof := in.err != nil
		if IsQuit(in.text) || (eof && strings.TrimSpace(in.text) == "") {
			fmt.Fprintln(c.out, "Connection Closed.")
			return nil
		}
		if err := c.Execute(in.text); err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(c.out, "\nConnection Closed.")
				return nil
			}
			return err
		}
		if eof {
			fmt.Fprintln(c.out, "Connection Closed.")
			return nil
		}
	}
}

type inputLine struct {
	text string
	err  error
}

// readLines feeds input lines to Run so a blocked read never holds up
// cancellation. It stops after the first read error or once done closes.
func (c *Console) readLines(done <-chan struct{}) <-chan inputLine {
	lines := make(chan inputLine)
	go func() {
		for {
			text, err := c.in.ReadString('\n')
			select {
			case lines <- inputLine{text: text, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return lines
}

// Connect dials the hub with backoff and reads the directory announcement.
func (c *Console) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxConnectAttempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Session.ConnectTimeout)
		raw, err := transport.Dial(dialCtx, c.cfg.Transport)
		cancel()
		if err == nil {
			c.conn = session.NewConn(raw, c.cfg.Session)
			c.unwatch = context.AfterFunc(ctx, func() { _ = raw.Close() })
			c.pendingSets = 0
			fmt.Fprintf(c.out, "Connected to server at: %s\n\n", c.cfg.Transport.Address)
			dir, err := c.conn.ReadDirectoryWithin(c.cfg.DirectoryTimeout)
			if err != nil {
				_ = c.Close()
				return fmt.Errorf("console: read directory: %w", err)
			}
			c.directory = dir
			log.Debug().Int("instruments", len(dir)).Msg("console.Connect directory received")
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Msg("console.Connect dial failed")
		if attempt == c.cfg.MaxConnectAttempts {
			break
		}
		if err := session.WaitBackoff(ctx, c.cfg.Session.Backoff, attempt, nil); err != nil {
			return err
		}
	}
	return fmt.Errorf("console: connect %s after %d attempts: %w", c.cfg.Transport.Address, c.cfg.MaxConnectAttempts, lastErr)
}

// ShowDirectory prints the 1-based instrument list.
func (c *Console) ShowDirectory() {
	fmt.Fprintln(c.out, c.styles.title.Render("Connected Devices:"))
	for i, inst := range c.directory {
		fmt.Fprintf(c.out, "%s %s, %s\n",
			c.styles.index.Render(fmt.Sprintf("%d.Device:", i+1)),
			inst.Name+"-"+inst.Manufacturer,
			c.styles.address.Render("Address: "+inst.Address),
		)
	}
}

// Address resolves a 1-based directory index.
func (c *Console) Address(index int) (string, bool) {
	if index < 1 || index > len(c.directory) {
		return "", false
	}
	return c.directory[index-1].Address, true
}

// Execute sends every instruction on line. Bad instructions are reported and
// skipped; only a transport failure is returned.
func (c *Console) Execute(line string) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	for _, instr := range ParseLine(line) {
		if instr.Err != nil {
			c.printError(instr.Err)
			continue
		}
		address, ok := c.Address(instr.Index)
		if !ok {
			c.printError(fmt.Errorf("%w %d", ErrUnknownIndex, instr.Index))
			continue
		}
		id, err := c.conn.SendCommand(session.Command{Address: address, Command: instr.Command})
		if err != nil {
			return fmt.Errorf("console: send: %w", err)
		}
		if dispatch.Classify(instr.Command) != dispatch.Query {
			c.pendingSets++
			continue
		}
		reply, err := c.conn.ReadReplyWithin(id, c.replyBudget())
		if err != nil {
			return fmt.Errorf("console: read reply: %w", err)
		}
		c.pendingSets = 0
		if reply.IsError {
			fmt.Fprintf(c.out, "Response: %s\n", c.styles.err.Render(reply.Text))
			continue
		}
		fmt.Fprintf(c.out, "Response: %s\n", c.styles.reply.Render(strings.TrimSpace(reply.Text)))
	}
	return nil
}

// replyBudget is how long the next Query may take to answer.
func (c *Console) replyBudget() time.Duration {
	return c.cfg.Session.ReplyTimeout + time.Duration(c.pendingSets)*c.cfg.SetDelay
}

func (c *Console) printError(err error) {
	fmt.Fprintln(c.out, c.styles.err.Render("Error: "+err.Error()))
}

func (c *Console) Close() error {
	if c.conn == nil {
		return nil
	}
	if c.unwatch != nil {
		c.unwatch()
		c.unwatch = nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
