// Package transport opens the point-to-point stream between hub and
// operator: Bluetooth RFCOMM on Linux, or plain TCP.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	KindRFCOMM = "rfcomm"
	KindTCP    = "tcp"
)

var (
	ErrUnknownKind    = errors.New("transport: unknown kind")
	ErrInvalidAddr    = errors.New("transport: invalid address")
	ErrUnsupported    = errors.New("transport: not supported on this platform")
	ErrInvalidChannel = errors.New("transport: invalid channel")
)

// Config names one endpoint. For listeners Address is the local adapter
// (RFCOMM) or bind host (TCP); for dialers it is the hub. Channel is the
// RFCOMM channel or TCP port.
type Config struct {
	Kind    string
	Address string
	Channel int
}

func (c Config) kind() string {
	kind := strings.ToLower(strings.TrimSpace(c.Kind))
	if kind == "" {
		return KindRFCOMM
	}
	return kind
}

// Listen binds the endpoint. RFCOMM listeners, and TCP listeners on Linux,
// have a kernel backlog of one.
func Listen(cfg Config) (net.Listener, error) {
	switch cfg.kind() {
	case KindRFCOMM:
		ch, err := rfcommChannel(cfg.Channel)
		if err != nil {
			return nil, err
		}
		return listenRFCOMM(strings.TrimSpace(cfg.Address), ch)
	case KindTCP:
		addr, err := tcpAddress(cfg)
		if err != nil {
			return nil, err
		}
		return listenTCP(addr)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// Dial connects to the hub.
func Dial(ctx context.Context, cfg Config) (net.Conn, error) {
	switch cfg.kind() {
	case KindRFCOMM:
		ch, err := rfcommChannel(cfg.Channel)
		if err != nil {
			return nil, err
		}
		return dialRFCOMM(ctx, strings.TrimSpace(cfg.Address), ch)
	case KindTCP:
		addr, err := tcpAddress(cfg)
		if err != nil {
			return nil, err
		}
		var dialer net.Dialer
		return dialer.DialContext(ctx, "tcp", addr)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

func tcpAddress(cfg Config) (string, error) {
	if cfg.Channel < 0 || cfg.Channel > 65535 {
		return "", fmt.Errorf("%w: tcp port %d", ErrInvalidChannel, cfg.Channel)
	}
	return net.JoinHostPort(strings.TrimSpace(cfg.Address), strconv.Itoa(cfg.Channel)), nil
}

func rfcommChannel(ch int) (uint8, error) {
	if ch < 1 || ch > 30 {
		return 0, fmt.Errorf("%w: rfcomm channel %d", ErrInvalidChannel, ch)
	}
	return uint8(ch), nil
}
