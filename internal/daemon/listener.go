package daemon

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// readTimeout bounds how long a connection may take to deliver its command.
const readTimeout = 5 * time.Second

// Address returns the loopback address the daemon listens on.
func Address(port int) string {
	return net.JoinHostPort("127.0.0.1", fmt.Sprint(port))
}

// Listen binds the daemon's loopback socket.
func Listen(port int) (net.Listener, error) {
	ln, err := net.Listen("tcp", Address(port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", Address(port), err)
	}
	return ln, nil
}

// listen accepts connections until ln is closed. Each connection carries one
// command, which is forwarded to the core loop in accept order.
func (d *Daemon) listen(ln net.Listener) {
	logger := d.logger.With().Str("component", "listener").Logger()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-d.done:
				return
			default:
			}
			logger.Warn().Err(err).Msg("Accept failed")
			time.Sleep(10 * time.Millisecond)
			continue
		}

		cmd, err := d.receive(conn)
		if err != nil {
			logger.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("Dropping connection")
			continue
		}

		if !d.Send(cmd) {
			return
		}
	}
}

func (d *Daemon) receive(conn net.Conn) (Command, error) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return Command{}, err
	}
	return Decode(conn)
}
