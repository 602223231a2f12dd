//go:build !linux

package ws

import (
	"net"
	"sync"
)

// Poller is a goroutine-per-connection fallback for non-Linux platforms so
// the server can be developed and tested on macOS/Windows. The Linux build
// replaces it with real epoll.
type Poller struct {
	mu      sync.RWMutex
	conns   map[net.Conn]struct{}
	readyCh chan net.Conn
	done    chan struct{}
}

// NewPoller creates the fallback poller.
func NewPoller() (*Poller, error) {
	return &Poller{
		conns:   make(map[net.Conn]struct{}),
		readyCh: make(chan net.Conn, 128),
		done:    make(chan struct{}),
	}, nil
}

// Watch spawns a goroutine that blocks on a 1-byte read to detect pending
// data, then signals readiness through the channel consumed by WaitReady.
func (p *Poller) Watch(conn net.Conn) error {
	p.mu.Lock()
	p.conns[conn] = struct{}{}
	p.mu.Unlock()

	go p.monitor(conn)
	return nil
}

func (p *Poller) monitor(conn net.Conn) {
	buf := make([]byte, 1)
	for {
		_, err := conn.Read(buf)
		if err != nil {
			// Closed or errored: signal readiness so the read path sees the
			// closure and cleans up.
			select {
			case p.readyCh <- conn:
			case <-p.done:
			}
			return
		}

		// One byte was consumed here; the server re-reads the frame. The
		// Linux epoll path never consumes bytes, the fallback tolerates it.
		select {
		case p.readyCh <- conn:
		case <-p.done:
			return
		}
	}
}

// Unwatch removes the connection from the fallback's registry.
func (p *Poller) Unwatch(conn net.Conn) error {
	p.mu.Lock()
	delete(p.conns, conn)
	p.mu.Unlock()
	return nil
}

// WaitReady blocks for the first ready connection and drains any others that
// are ready without blocking.
func (p *Poller) WaitReady() ([]net.Conn, error) {
	first, ok := <-p.readyCh
	if !ok {
		return nil, net.ErrClosed
	}

	ready := []net.Conn{first}
	for {
		select {
		case conn := <-p.readyCh:
			ready = append(ready, conn)
		default:
			return ready, nil
		}
	}
}

// Close shuts the fallback poller down.
func (p *Poller) Close() error {
	close(p.done)
	p.mu.Lock()
	p.conns = nil
	p.mu.Unlock()
	return nil
}

// socketFD has no meaning without epoll; connections are tracked by value.
func socketFD(conn net.Conn) int {
	return -1
}
