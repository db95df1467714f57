//go:build !linux

package transport

import (
	"context"
	"net"
)

func listenRFCOMM(string, uint8) (net.Listener, error) {
	return nil, ErrUnsupported
}

func dialRFCOMM(context.Context, string, uint8) (net.Conn, error) {
	return nil, ErrUnsupported
}
