package visa

import (
	"context"
	"net"
	"time"
)

// socketOpener dials TCPIP::host::port::SOCKET resources.
type socketOpener struct {
	dialTimeout time.Duration
}

func (o socketOpener) Open(ctx context.Context, addr Address, opts OpenOptions) (Resource, error) {
	endpoint, err := addr.socketEndpoint()
	if err != nil {
		return nil, err
	}
	dialer := net.Dialer{Timeout: o.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, err
	}
	res, err := newLineResource(addr.Raw, conn, opts)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	res.setReadDeadline = conn.SetReadDeadline
	return res, nil
}
