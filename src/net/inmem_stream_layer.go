package net

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

var (
	// ErrLayerClosed is returned by Accept once the layer is closed.
	ErrLayerClosed = errors.New("stream layer closed")

	errNoListener = errors.New("connection refused")
)

// InmemNetwork connects InmemStreamLayers with in-memory pipes. Every layer
// has a TCP-style address, so code that inspects remote addresses behaves as
// it would over sockets.
type InmemNetwork struct {
	sync.Mutex
	layers    map[string]*InmemStreamLayer
	nextPorts map[string]int
}

// NewInmemNetwork returns an empty network.
func NewInmemNetwork() *InmemNetwork {
	return &InmemNetwork{
		layers:    make(map[string]*InmemStreamLayer),
		nextPorts: make(map[string]int),
	}
}

// Listen registers a layer reachable at addr, an "ip:port" string.
func (n *InmemNetwork) Listen(addr string) (*InmemStreamLayer, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}

	n.Lock()
	defer n.Unlock()

	if _, ok := n.layers[addr]; ok {
		return nil, fmt.Errorf("address %s already in use", addr)
	}
	l := &InmemStreamLayer{
		network:  n,
		addr:     tcpAddr,
		acceptCh: make(chan net.Conn, 16),
		closeCh:  make(chan struct{}),
	}
	n.layers[addr] = l
	return l, nil
}

func (n *InmemNetwork) remove(l *InmemStreamLayer) {
	n.Lock()
	defer n.Unlock()

	if n.layers[l.addr.String()] == l {
		delete(n.layers, l.addr.String())
	}
}

// ephemeral returns a fresh source address on the host of from.
func (n *InmemNetwork) ephemeral(from *net.TCPAddr) *net.TCPAddr {
	n.Lock()
	defer n.Unlock()

	host := from.IP.String()
	port := n.nextPorts[host]
	if port == 0 {
		port = 49152
	}
	n.nextPorts[host] = port + 1
	return &net.TCPAddr{IP: from.IP, Port: port}
}

// InmemStreamLayer implements StreamLayer on an InmemNetwork.
type InmemStreamLayer struct {
	network  *InmemNetwork
	addr     *net.TCPAddr
	acceptCh chan net.Conn

	closeOnce sync.Once
	closeCh   chan struct{}
}

// Dial implements the StreamLayer interface.
func (l *InmemStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	l.network.Lock()
	target, ok := l.network.layers[address]
	l.network.Unlock()
	if !ok {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errNoListener}
	}

	local := l.network.ephemeral(l.addr)
	client, server := net.Pipe()
	clientConn := &inmemConn{Conn: client, local: local, remote: target.addr}
	serverConn := &inmemConn{Conn: server, local: target.addr, remote: local}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case target.acceptCh <- serverConn:
		return clientConn, nil
	case <-target.closeCh:
		client.Close()
		server.Close()
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errNoListener}
	case <-timeoutCh:
		client.Close()
		server.Close()
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("i/o timeout")}
	}
}

// Accept implements the net.Listener interface.
func (l *InmemStreamLayer) Accept() (net.Conn, error) {
	select {
	case conn := <-l.acceptCh:
		return conn, nil
	case <-l.closeCh:
		return nil, ErrLayerClosed
	}
}

// Close implements the net.Listener interface.
func (l *InmemStreamLayer) Close() error {
	l.closeOnce.Do(func() {
		close(l.closeCh)
		l.network.remove(l)
	})
	return nil
}

// Addr implements the net.Listener interface.
func (l *InmemStreamLayer) Addr() net.Addr {
	return l.addr
}

// AdvertiseAddr implements the StreamLayer interface.
func (l *InmemStreamLayer) AdvertiseAddr() string {
	return net.JoinHostPort(l.addr.IP.String(), strconv.Itoa(l.addr.Port))
}

// inmemConn reports TCP addresses for a pipe.
type inmemConn struct {
	net.Conn
	local, remote *net.TCPAddr
}

func (c *inmemConn) LocalAddr() net.Addr  { return c.local }
func (c *inmemConn) RemoteAddr() net.Addr { return c.remote }
