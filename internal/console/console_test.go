package console

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/scpibridge/internal/dispatch"
	"github.com/danmuck/scpibridge/internal/hub"
	"github.com/danmuck/scpibridge/internal/protocol/session"
	"github.com/danmuck/scpibridge/internal/testutil/fakevisa"
	"github.com/danmuck/scpibridge/internal/testutil/testlog"
	"github.com/danmuck/scpibridge/internal/transport"
)

const (
	dmmAddr = "TCPIP0::10.0.0.5::5025::SOCKET"
	psuAddr = "ASRL/dev/ttyUSB0::INSTR"
)

func testSessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.ConnectTimeout = time.Second
	cfg.WriteTimeout = time.Second
	cfg.ReplyTimeout = 2 * time.Second
	cfg.Backoff = session.BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 1}
	return cfg
}

func startHub(t *testing.T, rm *fakevisa.Manager) int {
	t.Helper()
	return startHubWithTiming(t, rm, dispatch.Timing{ReadTimeout: time.Second})
}

func startHubWithTiming(t *testing.T, rm *fakevisa.Manager, timing dispatch.Timing) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	loop := hub.NewLoop(rm, hub.LoopConfig{
		Session:           testSessionConfig(),
		Timing:            timing,
		ValidateAddresses: true,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = loop.Run(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().(*net.TCPAddr).Port
}

func consoleConfig(port int) Config {
	return Config{
		Transport:          transport.Config{Kind: transport.KindTCP, Address: "127.0.0.1", Channel: port},
		Session:            testSessionConfig(),
		MaxConnectAttempts: 2,
	}
}

func TestConsoleSessionAgainstHub(t *testing.T) {
	testlog.Start(t)
	rm := fakevisa.New().
		Add(dmmAddr, fakevisa.Instrument{
			IDN:     "Keysight Technologies,34461A,MY53212345,A.02.14",
			Replies: map[string]string{"MEAS:VOLT?": "1.234"},
		}).
		Add(psuAddr, fakevisa.Instrument{IDN: "RIGOL TECHNOLOGIES,DP832,DP8C1234,00.01.14"})
	port := startHub(t, rm)

	input := strings.NewReader("1 MEAS:VOLT?; 2 OUTP ON; 9 *IDN?; bogus\n2 SYST:ERR?\nq\n")
	var out bytes.Buffer
	c := New(consoleConfig(port), input, &out)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v\n%s", err, out.String())
	}

	text := out.String()
	for _, want := range []string{
		"Connected to server at: 127.0.0.1",
		"Connected Devices:",
		"1.Device:",
		"34461A-Keysight Technologies",
		"Address: " + dmmAddr,
		"2.Device:",
		"DP832-RIGOL TECHNOLOGIES",
		"Response: ",
		"1.234",
		"no instrument at index 9",
		"expected <index> <command>",
		hub.ErrorReplyPrefix,
		"Connection Closed.",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
	if strings.Count(text, "Response: ") != 2 {
		t.Fatalf("only queries should print a response:\n%s", text)
	}
	writes := rm.Calls(psuAddr).Writes
	if len(writes) != 3 || writes[1] != "OUTP ON" || writes[2] != "SYST:ERR?" {
		t.Fatalf("unexpected supply writes %v", writes)
	}
}

func TestConsoleEndOfInputCloses(t *testing.T) {
	testlog.Start(t)
	port := startHub(t, fakevisa.New())

	var out bytes.Buffer
	c := New(consoleConfig(port), strings.NewReader(""), &out)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Connection Closed.") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestConsoleConnectGivesUp(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	c := New(consoleConfig(port), strings.NewReader(""), &bytes.Buffer{})
	err = c.Connect(context.Background())
	if err == nil || !strings.Contains(err.Error(), "after 2 attempts") {
		t.Fatalf("expected bounded connect failure, got %v", err)
	}
}

func TestExecuteRequiresConnection(t *testing.T) {
	testlog.Start(t)
	c := New(DefaultConfig(), strings.NewReader(""), &bytes.Buffer{})
	if err := c.Execute("1 *IDN?"); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestQueryWaitsBehindQueuedSets(t *testing.T) {
	testlog.Start(t)
	rm := fakevisa.New().
		Add(dmmAddr, fakevisa.Instrument{
			IDN:     "Keysight Technologies,34461A,MY53212345,A.02.14",
			Replies: map[string]string{"MEAS:VOLT?": "1.234"},
		}).
		Add(psuAddr, fakevisa.Instrument{IDN: "RIGOL TECHNOLOGIES,DP832,DP8C1234,00.01.14"})
	port := startHubWithTiming(t, rm, dispatch.Timing{
		QuerySettle:  100 * time.Millisecond,
		SetPreDelay:  20 * time.Millisecond,
		SetPostDelay: 20 * time.Millisecond,
		ReadTimeout:  time.Second,
	})

	cfg := consoleConfig(port)
	cfg.Session.ReplyTimeout = 600 * time.Millisecond
	cfg.SetDelay = 50 * time.Millisecond
	line := strings.Repeat("2 OUTP ON;", 14) + "1 MEAS:VOLT?\nq\n"

	var out bytes.Buffer
	if err := New(cfg, strings.NewReader(line), &out).Run(context.Background()); err != nil {
		t.Fatalf("run: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "1.234") {
		t.Fatalf("query reply missing:\n%s", out.String())
	}
	if writes := rm.Calls(psuAddr).Writes; len(writes) != 15 {
		t.Fatalf("expected identify plus 14 sets, got %d writes", len(writes))
	}
}

func TestReplyBudgetGrowsWithPendingSets(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.Session.ReplyTimeout = time.Second
	cfg.SetDelay = 4 * time.Second
	c := New(cfg, strings.NewReader(""), &bytes.Buffer{})
	if got := c.replyBudget(); got != time.Second {
		t.Fatalf("budget with no sets: %v", got)
	}
	c.pendingSets = 3
	if got := c.replyBudget(); got != 13*time.Second {
		t.Fatalf("budget with 3 sets: %v", got)
	}
}

func TestCancelUnblocksIdleConsole(t *testing.T) {
	testlog.Start(t)
	port := startHub(t, testRMWithMeter())

	input, writer := io.Pipe()
	defer writer.Close()
	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	errCh := make(chan error, 1)
	c := New(consoleConfig(port), input, &out)
	go func() { errCh <- c.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("cancelled run should end cleanly: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run stayed blocked on input after cancel")
	}
	if !strings.Contains(out.String(), "Connection Closed.") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestCancelUnblocksPendingReply(t *testing.T) {
	testlog.Start(t)
	port := startHubWithTiming(t, testRMWithMeter(), dispatch.Timing{
		QuerySettle: 5 * time.Second,
		ReadTimeout: time.Second,
	})

	cfg := consoleConfig(port)
	cfg.Session.ReplyTimeout = 10 * time.Second
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	c := New(cfg, strings.NewReader("1 MEAS:VOLT?\n"), &bytes.Buffer{})
	go func() { errCh <- c.Run(ctx) }()

	time.Sleep(300 * time.Millisecond)
	start := time.Now()
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("cancelled run should end cleanly: %v", err)
		}
		if waited := time.Since(start); waited > time.Second {
			t.Fatalf("run waited %v for the reply after cancel", waited)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("run stayed blocked on the reply after cancel")
	}
}

func testRMWithMeter() *fakevisa.Manager {
	return fakevisa.New().Add(dmmAddr, fakevisa.Instrument{
		IDN:     "Keysight Technologies,34461A,MY53212345,A.02.14",
		Replies: map[string]string{"MEAS:VOLT?": "1.234"},
	})
}
