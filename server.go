package onering

import (
	"sync"
	"syscall"

	"github.com/oneringio/onering/ops"
	"github.com/oneringio/onering/sched"
	"github.com/oneringio/onering/streams"
)

const defaultBacklog = 128

// Server is a listening TCP socket.
type Server struct {
	fd int

	closeOnce sync.Once
	closeErr  error
}

// CreateServer opens, binds and listens on host:port. It takes IPv4
// addresses only; IPv6 is not supported.
func CreateServer(y *sched.Yield, host [4]byte, port uint16) (*Server, error) {
	res, err := y.DoIO(&ops.SocketCreate{Domain: ops.AFInet, Type: ops.SockStream})
	if err != nil {
		return nil, err
	}
	fd := res.(ops.FDResult).FD
	if err := ops.SetSockOpt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		return nil, err
	}
	if _, err := y.DoIO(&ops.SocketBind{FD: fd, Host: host, Port: port}); err != nil {
		return nil, err
	}
	if _, err := y.DoIO(&ops.SocketListen{FD: fd, Backlog: defaultBacklog}); err != nil {
		return nil, err
	}
	return &Server{fd: fd}, nil
}

// Accept blocks until a connection arrives and returns it.
func (s *Server) Accept(y *sched.Yield) (*streams.Connection, error) {
	res, err := y.DoIO(&ops.SocketAccept{FD: s.fd})
	if err != nil {
		return nil, err
	}
	return streams.NewConnection(res.(ops.FDResult).FD), nil
}

// Close closes the listening socket. Safe to call more than once.
func (s *Server) Close(y *sched.Yield) error {
	s.closeOnce.Do(func() {
		_, s.closeErr = y.DoIO(&ops.FileClose{FD: s.fd})
	})
	return s.closeErr
}

// Connect opens a TCP connection to host:port.
func Connect(y *sched.Yield, host [4]byte, port uint16) (*streams.Connection, error) {
	res, err := y.DoIO(&ops.SocketCreate{Domain: ops.AFInet, Type: ops.SockStream})
	if err != nil {
		return nil, err
	}
	fd := res.(ops.FDResult).FD
	if _, err := y.DoIO(&ops.SocketConnect{FD: fd, Host: host, Port: port}); err != nil {
		return nil, err
	}
	return streams.NewConnection(fd), nil
}
