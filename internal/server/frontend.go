package server

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"sync/atomic"

	"github.com/mvantor/ragol/internal/dialect"
)

// Frontend is one listening port bound to a dialect. It accepts
// connections and spins off a session goroutine per client.
type Frontend struct {
	State   *State
	Dialect dialect.Dialect
	Port    int

	connections int64
}

// StartListening opens the TCP socket and blocks accepting clients until
// the context is canceled.
func (f *Frontend) StartListening(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", f.State.Config.Hostname, f.Port)
	listenConfig := &net.ListenConfig{}
	socket, err := listenConfig.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listening on %s: %w", addr, err)
	}

	f.State.Logger.Infof("waiting for %s connections on %s", f.Dialect, addr)

	go func() {
		<-ctx.Done()
		_ = socket.Close()
	}()

	for {
		connection, err := socket.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			f.State.Logger.Warnf("failed to accept connection: %v", err)
			continue
		}

		if max := f.State.Config.MaxConnections; max > 0 &&
			atomic.LoadInt64(&f.connections) >= int64(max) {
			f.State.Logger.Infof("rejecting %v: connection limit reached", connection.RemoteAddr())
			_ = connection.Close()
			continue
		}

		atomic.AddInt64(&f.connections, 1)
		go f.acceptClient(connection)
	}
}

func (f *Frontend) acceptClient(connection net.Conn) {
	defer atomic.AddInt64(&f.connections, -1)
	defer func() {
		if r := recover(); r != nil {
			f.State.Logger.Errorf("error in client communication: %v: %v\n%s",
				connection.RemoteAddr(), r, debug.Stack())
			_ = connection.Close()
		}
	}()

	f.State.Logger.Infof("accepted %s connection from %v", f.Dialect, connection.RemoteAddr())

	session := NewSession(f.State, connection, f.Dialect)
	if err := session.Start(); err != nil {
		f.State.Logger.Errorf("handshake failed for %v: %v", connection.RemoteAddr(), err)
		_ = connection.Close()
		return
	}
	session.Run()
}
