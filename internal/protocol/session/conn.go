package session

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/danmuck/scpibridge/internal/protocol/frame"
)

var ErrReplyMismatch = errors.New("session: reply does not match command")

// Conn is one framed hub<->console stream. It is not safe for concurrent
// readers or concurrent writers; each side drives it from a single loop.
type Conn struct {
	conn   net.Conn
	r      *bufio.Reader
	cfg    Config
	limits frame.Limits
	seq    atomic.Uint64
}

func NewConn(conn net.Conn, cfg Config) *Conn {
	return &Conn{
		conn:   conn,
		r:      bufio.NewReader(conn),
		cfg:    cfg.WithDefaults(),
		limits: frame.DefaultLimits(),
	}
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// NextMessageID returns the next per-connection message id, starting at 1.
func (c *Conn) NextMessageID() uint64 {
	return c.seq.Add(1)
}

func (c *Conn) readFrame(timeout time.Duration) (frame.Frame, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return frame.Frame{}, err
	}
	return frame.ReadFrame(c.r, c.limits)
}

func (c *Conn) writeFrame(f frame.Frame) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return frame.WriteFrame(c.conn, f, c.limits)
}

func (c *Conn) SendDirectory(instruments []Instrument) error {
	f, err := EncodeDirectory(c.NextMessageID(), instruments)
	if err != nil {
		return err
	}
	return c.writeFrame(f)
}

func (c *Conn) ReadDirectory() ([]Instrument, error) {
	return c.ReadDirectoryWithin(c.cfg.ReplyTimeout)
}

// ReadDirectoryWithin waits up to timeout for the directory; zero waits until
// the connection closes.
func (c *Conn) ReadDirectoryWithin(timeout time.Duration) ([]Instrument, error) {
	f, err := c.readFrame(timeout)
	if err != nil {
		return nil, err
	}
	return DecodeDirectory(f)
}

// SendCommand writes cmd and returns the message id a reply will echo.
func (c *Conn) SendCommand(cmd Command) (uint64, error) {
	id := c.NextMessageID()
	f, err := EncodeCommand(id, cmd)
	if err != nil {
		return 0, err
	}
	return id, c.writeFrame(f)
}

// ReadCommand blocks for the next command envelope, bounded by ReadTimeout
// when one is configured.
func (c *Conn) ReadCommand() (uint64, Command, error) {
	f, err := c.readFrame(c.cfg.ReadTimeout)
	if err != nil {
		return 0, Command{}, err
	}
	cmd, err := DecodeCommand(f)
	if err != nil {
		return 0, Command{}, err
	}
	return f.Header.MessageID, cmd, nil
}

func (c *Conn) SendReply(messageID uint64, reply Reply) error {
	return c.writeFrame(EncodeReply(messageID, reply))
}

// ReadReply waits for the reply to the command sent as messageID.
func (c *Conn) ReadReply(messageID uint64) (Reply, error) {
	return c.ReadReplyWithin(messageID, c.cfg.ReplyTimeout)
}

// ReadReplyWithin is ReadReply with an explicit budget; zero is unbounded.
func (c *Conn) ReadReplyWithin(messageID uint64, timeout time.Duration) (Reply, error) {
	f, err := c.readFrame(timeout)
	if err != nil {
		return Reply{}, err
	}
	reply, err := DecodeReply(f)
	if err != nil {
		return Reply{}, err
	}
	if f.Header.MessageID != messageID {
		return Reply{}, fmt.Errorf("%w: got message_id=%d want %d", ErrReplyMismatch, f.Header.MessageID, messageID)
	}
	return reply, nil
}
