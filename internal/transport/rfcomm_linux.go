//go:build linux

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func listenRFCOMM(adapter string, channel uint8) (net.Listener, error) {
	local, err := ParseBDAddr(adapter)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("transport: rfcomm socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrRFCOMM{Addr: local.wire(), Channel: channel}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("transport: rfcomm bind %s/%d: %w", local, channel, err)
	}
	if err := unix.Listen(fd, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("transport: rfcomm listen: %w", err)
	}
	f, rc, err := pollable(fd, "rfcomm-listener")
	if err != nil {
		return nil, err
	}
	return &rfcommListener{f: f, rc: rc, addr: rfcommAddr{addr: local, channel: channel}}, nil
}

func dialRFCOMM(ctx context.Context, hub string, channel uint8) (net.Conn, error) {
	remote, err := ParseBDAddr(hub)
	if err != nil {
		return nil, err
	}
	if remote == (BDAddr{}) {
		return nil, fmt.Errorf("%w: hub address required", ErrInvalidAddr)
	}
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("transport: rfcomm socket: %w", err)
	}
	err = unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: remote.wire(), Channel: channel})
	if err != nil && !errors.Is(err, unix.EINPROGRESS) {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("transport: rfcomm connect %s/%d: %w", remote, channel, err)
	}
	f, rc, err := pollable(fd, "rfcomm-conn")
	if err != nil {
		return nil, err
	}

	if d, ok := ctx.Deadline(); ok {
		_ = f.SetWriteDeadline(d)
	}
	stop := context.AfterFunc(ctx, func() { _ = f.SetWriteDeadline(time.Now()) })
	defer stop()

	var connectErr error
	waitErr := rc.Write(func(fd uintptr) bool {
		soErr, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			connectErr = err
			return true
		}
		if soErr != 0 {
			connectErr = syscall.Errno(soErr)
			return true
		}
		if _, err := unix.Getpeername(int(fd)); err != nil {
			return false
		}
		return true
	})
	if waitErr == nil {
		waitErr = connectErr
	}
	if waitErr != nil {
		_ = f.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("transport: rfcomm connect %s/%d: %w", remote, channel, waitErr)
	}
	_ = f.SetWriteDeadline(time.Time{})

	return &rfcommConn{
		File:   f,
		rc:     rc,
		local:  rfcommAddr{},
		remote: rfcommAddr{addr: remote, channel: channel},
	}, nil
}

// pollable hands fd to the runtime poller so deadlines and Close unblock
// pending I/O.
func pollable(fd int, name string) (*os.File, syscall.RawConn, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, nil, err
	}
	f := os.NewFile(uintptr(fd), name)
	rc, err := f.SyscallConn()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return f, rc, nil
}

type rfcommListener struct {
	f    *os.File
	rc   syscall.RawConn
	addr rfcommAddr
}

func (l *rfcommListener) Accept() (net.Conn, error) {
	var (
		nfd       int
		sa        unix.Sockaddr
		acceptErr error
	)
	err := l.rc.Read(func(fd uintptr) bool {
		nfd, sa, acceptErr = unix.Accept4(int(fd), unix.SOCK_CLOEXEC)
		return !errors.Is(acceptErr, unix.EAGAIN)
	})
	if err != nil {
		if errors.Is(err, os.ErrClosed) {
			return nil, net.ErrClosed
		}
		return nil, err
	}
	if acceptErr != nil {
		return nil, fmt.Errorf("transport: rfcomm accept: %w", acceptErr)
	}

	remote := rfcommAddr{}
	if peer, ok := sa.(*unix.SockaddrRFCOMM); ok {
		remote = rfcommAddr{addr: bdAddrFromWire(peer.Addr), channel: peer.Channel}
	}
	f, rc, err := pollable(nfd, "rfcomm-conn")
	if err != nil {
		return nil, err
	}
	return &rfcommConn{File: f, rc: rc, local: l.addr, remote: remote}, nil
}

func (l *rfcommListener) Close() error {
	return l.f.Close()
}

func (l *rfcommListener) Addr() net.Addr {
	return l.addr
}

// rfcommConn is a net.Conn over a connected RFCOMM socket.
type rfcommConn struct {
	*os.File
	rc     syscall.RawConn
	local  rfcommAddr
	remote rfcommAddr
}

func (c *rfcommConn) Close() error {
	_ = c.rc.Control(func(fd uintptr) {
		_ = unix.Shutdown(int(fd), unix.SHUT_RDWR)
	})
	return c.File.Close()
}

func (c *rfcommConn) LocalAddr() net.Addr  { return c.local }
func (c *rfcommConn) RemoteAddr() net.Addr { return c.remote }
