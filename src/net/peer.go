package net

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/sharechain/src/common"
	"github.com/mosaicnetworks/sharechain/src/wire"
	"github.com/sirupsen/logrus"
)

// Connection defaults.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultIdleTimeout      = 100 * time.Second
	DefaultPingInterval     = 100 * time.Second
	DefaultAddrInterval     = 100 * time.Second
	DefaultAddrBase         = time.Second
	DefaultWriteTimeout     = 30 * time.Second
	DefaultSendQueue        = 64

	// HandshakeMode is the mode announced in handshakes.
	HandshakeMode int32 = 1
)

var (
	// ErrPeerClosed is returned by Send once the connection is closed.
	ErrPeerClosed = errors.New("peer closed")

	// ErrSelfConnect closes connections whose remote end announced our own
	// nonce.
	ErrSelfConnect = errors.New("connected to self")

	// ErrSendQueueBusy is returned by TrySend when the send queue is more
	// than half full.
	ErrSendQueueBusy = errors.New("send queue busy")

	errSendQueueFull = errors.New("send queue full")
)

// State is the lifecycle stage of a Peer.
type State int32

const (
	// Connecting is the state of a Peer that has not been started yet.
	Connecting State = iota
	// AwaitingHandshake means our handshake is sent and theirs is pending.
	AwaitingHandshake
	// Established means both handshakes were exchanged.
	Established
	// Closed is terminal.
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case AwaitingHandshake:
		return "AwaitingHandshake"
	case Established:
		return "Established"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Config holds the parameters shared by every connection of a node.
type Config struct {
	Codec      *wire.Codec
	Nonce      uint64
	SubVersion string
	Services   uint64

	// ListenPort is advertised with addrme messages. Zero disables addrme.
	ListenPort uint16

	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
	WriteTimeout     time.Duration

	// PingInterval is the mean keepalive interval. Zero disables pings.
	PingInterval time.Duration

	// AddrInterval is multiplied by PeerCount and added to AddrBase to
	// obtain the mean addrme interval of each connection.
	AddrInterval time.Duration
	AddrBase     time.Duration

	SendQueue int

	// PeerCount returns the number of established connections.
	PeerCount func() int

	// BestShare returns the hash announced in our handshake, or nil.
	BestShare func() *chainhash.Hash
}

// DefaultConfig returns a Config with the protocol timeouts filled in.
func DefaultConfig(codec *wire.Codec, nonce uint64) *Config {
	return &Config{
		Codec:            codec,
		Nonce:            nonce,
		HandshakeTimeout: DefaultHandshakeTimeout,
		IdleTimeout:      DefaultIdleTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		PingInterval:     DefaultPingInterval,
		AddrInterval:     DefaultAddrInterval,
		AddrBase:         DefaultAddrBase,
		SendQueue:        DefaultSendQueue,
	}
}

// Handler receives the events of a Peer. All calls for one Peer come from its
// read goroutine, in arrival order.
type Handler interface {
	// OnHandshake is called with the remote handshake once it passed the
	// local checks. Returning an error closes the connection with it.
	OnHandshake(p *Peer, msg *wire.MsgHandshake) error

	// OnMessage is called for every message after the handshake.
	OnMessage(p *Peer, msg wire.Message)

	// OnClose is called exactly once, after the connection is torn down.
	OnClose(p *Peer, err error)
}

// Peer is one connection of the share network. A single goroutine reads and
// dispatches messages; writes are queued and drained by a writer goroutine so
// senders never block on a slow socket.
type Peer struct {
	conn     net.Conn
	incoming bool
	conf     *Config
	handler  Handler
	logger   *logrus.Entry

	remote    *net.TCPAddr
	connected time.Time

	state       int32
	remoteNonce uint64
	subVersion  string
	services    uint64

	sendCh    chan []byte
	closeOnce sync.Once
	closeCh   chan struct{}
	closeErr  error
	wg        sync.WaitGroup
}

// NewPeer wraps conn. Run must be called to start the protocol.
func NewPeer(conn net.Conn, incoming bool, conf *Config, handler Handler, logger *logrus.Entry) *Peer {
	remote, _ := conn.RemoteAddr().(*net.TCPAddr)
	if remote == nil {
		remote = &net.TCPAddr{}
	}
	queue := conf.SendQueue
	if queue <= 0 {
		queue = DefaultSendQueue
	}
	return &Peer{
		conn:      conn,
		incoming:  incoming,
		conf:      conf,
		handler:   handler,
		remote:    remote,
		connected: time.Now(),
		logger: logger.WithFields(logrus.Fields{
			"peer":     conn.RemoteAddr().String(),
			"incoming": incoming,
		}),
		sendCh:  make(chan []byte, queue),
		closeCh: make(chan struct{}),
	}
}

// Addr returns the remote socket address.
func (p *Peer) Addr() *net.TCPAddr { return p.remote }

// Incoming is true for accepted connections.
func (p *Peer) Incoming() bool { return p.incoming }

// Nonce returns the nonce announced by the remote node. It is zero until the
// handshake is received.
func (p *Peer) Nonce() uint64 { return atomic.LoadUint64(&p.remoteNonce) }

// SubVersion returns the software string announced by the remote node.
func (p *Peer) SubVersion() string { return p.subVersion }

// Services returns the service bits announced by the remote node.
func (p *Peer) Services() uint64 { return p.services }

// ConnectedAt returns when the Peer was created.
func (p *Peer) ConnectedAt() time.Time { return p.connected }

// State returns the current lifecycle stage.
func (p *Peer) State() State { return State(atomic.LoadInt32(&p.state)) }

func (p *Peer) setState(s State) { atomic.StoreInt32(&p.state, int32(s)) }

// Done is closed when the connection closes.
func (p *Peer) Done() <-chan struct{} { return p.closeCh }

// Err returns the reason the connection closed, once it has.
func (p *Peer) Err() error {
	select {
	case <-p.closeCh:
		return p.closeErr
	default:
		return nil
	}
}

func (p *Peer) String() string {
	return fmt.Sprintf("%s(%x)", p.remote, p.Nonce())
}

// Logger returns the entry carrying this peer's fields.
func (p *Peer) Logger() *logrus.Entry { return p.logger }

// Run sends our handshake and processes the connection until it closes. It
// returns the reason for closing.
func (p *Peer) Run() error {
	p.setState(AwaitingHandshake)

	p.wg.Add(1)
	go p.writeLoop()

	err := p.Send(p.handshake())
	if err == nil {
		err = p.readLoop()
	}
	p.close(err)
	p.wg.Wait()

	p.logger.WithError(p.closeErr).Debug("Connection closed")
	p.handler.OnClose(p, p.closeErr)
	return p.closeErr
}

// Close tears the connection down. Run returns shortly after.
func (p *Peer) Close(err error) {
	if err == nil {
		err = ErrPeerClosed
	}
	p.close(err)
}

func (p *Peer) close(err error) {
	p.closeOnce.Do(func() {
		p.closeErr = err
		p.setState(Closed)
		close(p.closeCh)
		p.conn.Close()
	})
}

func (p *Peer) handshake() *wire.MsgHandshake {
	local, _ := p.conn.LocalAddr().(*net.TCPAddr)
	if local == nil {
		local = &net.TCPAddr{}
	}
	from := &net.TCPAddr{IP: local.IP, Port: int(p.conf.ListenPort)}

	msg := &wire.MsgHandshake{
		Version:    wire.ProtocolVersion,
		Services:   p.conf.Services,
		AddrTo:     wire.NewNetAddress(p.remote, 0),
		AddrFrom:   wire.NewNetAddress(from, p.conf.Services),
		Nonce:      p.conf.Nonce,
		SubVersion: p.conf.SubVersion,
		Mode:       HandshakeMode,
	}
	if p.conf.BestShare != nil {
		msg.BestShareHash = p.conf.BestShare()
	}
	return msg
}

func (p *Peer) readLoop() error {
	p.conn.SetReadDeadline(p.connected.Add(p.conf.HandshakeTimeout))
	msg, err := p.read("handshake")
	if err != nil {
		return err
	}
	hs, ok := msg.(*wire.MsgHandshake)
	if !ok {
		return common.Failuref(common.ProtocolViolation, "expected handshake, got %s", msg.Command())
	}
	switch {
	case hs.Nonce == p.conf.Nonce:
		return common.NewFailure(common.ProtocolViolation, ErrSelfConnect)
	case hs.Nonce == 0:
		return common.Failuref(common.ProtocolViolation, "zero nonce")
	case hs.Version < wire.MinProtocolVersion:
		return common.Failuref(common.ProtocolViolation, "protocol version %d too old", hs.Version)
	case hs.Mode != HandshakeMode:
		return common.Failuref(common.ProtocolViolation, "unsupported mode %d", hs.Mode)
	}
	atomic.StoreUint64(&p.remoteNonce, hs.Nonce)
	p.subVersion = hs.SubVersion
	p.services = hs.Services

	if err := p.handler.OnHandshake(p, hs); err != nil {
		return err
	}
	p.setState(Established)
	p.logger.WithFields(logrus.Fields{
		"nonce":       fmt.Sprintf("%x", hs.Nonce),
		"sub_version": hs.SubVersion,
	}).Debug("Handshake complete")

	p.wg.Add(1)
	go p.timers()

	for {
		p.conn.SetReadDeadline(time.Now().Add(p.conf.IdleTimeout))
		msg, err := p.read("idle")
		if err != nil {
			return err
		}
		if _, ok := msg.(*wire.MsgHandshake); ok {
			return common.Failuref(common.ProtocolViolation, "more than one handshake")
		}
		p.handler.OnMessage(p, msg)
	}
}

func (p *Peer) read(stage string) (wire.Message, error) {
	msg, err := p.conf.Codec.ReadMessage(p.conn)
	if err == nil {
		return msg, nil
	}
	if closed := p.Err(); closed != nil {
		return nil, closed
	}
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return nil, common.Failuref(common.ConnectivityFailure, "%s timeout", stage)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return nil, common.Failuref(common.ConnectivityFailure, "connection closed by remote")
	case common.IsFailure(err, common.ProtocolViolation):
		return nil, err
	default:
		return nil, common.NewFailure(common.ConnectivityFailure, err)
	}
}

func (p *Peer) writeLoop() {
	defer p.wg.Done()
	for {
		select {
		case frame := <-p.sendCh:
			if p.conf.WriteTimeout > 0 {
				p.conn.SetWriteDeadline(time.Now().Add(p.conf.WriteTimeout))
			}
			if _, err := p.conn.Write(frame); err != nil {
				p.close(common.NewFailure(common.ConnectivityFailure, err))
				return
			}
		case <-p.closeCh:
			return
		}
	}
}

// Send queues msg. A connection that cannot keep up with its queue is closed.
func (p *Peer) Send(msg wire.Message) error {
	frame, err := p.conf.Codec.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return p.enqueue(frame)
}

// TrySend queues msg only while the send queue is at most half full, and
// returns ErrSendQueueBusy otherwise. It never closes the connection.
func (p *Peer) TrySend(msg wire.Message) error {
	if len(p.sendCh) > cap(p.sendCh)/2 {
		return ErrSendQueueBusy
	}
	return p.Send(msg)
}

func (p *Peer) enqueue(frame []byte) error {
	select {
	case <-p.closeCh:
		return ErrPeerClosed
	default:
	}
	select {
	case p.sendCh <- frame:
		return nil
	default:
		p.close(common.NewFailure(common.ResourceExhaustion, errSendQueueFull))
		return ErrPeerClosed
	}
}

// SendShares sends shares in as few messages as the payload limit allows,
// halving a batch until it fits. A single share too large for any message is
// dropped.
func (p *Peer) SendShares(shares []*wire.RawShare) error {
	if len(shares) == 0 {
		return nil
	}
	frame, err := p.conf.Codec.EncodeMessage(&wire.MsgShares{Shares: shares})
	if errors.Is(err, wire.ErrPayloadTooLarge) {
		if len(shares) == 1 {
			p.logger.Warn("Dropping share larger than the payload limit")
			return nil
		}
		half := len(shares) / 2
		if err := p.SendShares(shares[:half]); err != nil {
			return err
		}
		return p.SendShares(shares[half:])
	}
	if err != nil {
		return err
	}
	return p.enqueue(frame)
}

func (p *Peer) timers() {
	defer p.wg.Done()

	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(p.Nonce())))

	pingC, stopPing := p.timer(rng, p.conf.PingInterval)
	defer func() { stopPing() }()

	var addrC <-chan time.Time
	stopAddr := func() {}
	if p.conf.ListenPort != 0 {
		addrC, stopAddr = p.timer(rng, p.addrMean())
	}
	defer func() { stopAddr() }()

	for {
		select {
		case <-pingC:
			if p.Send(&wire.MsgPing{}) != nil {
				return
			}
			stopPing()
			pingC, stopPing = p.timer(rng, p.conf.PingInterval)
		case <-addrC:
			if p.Send(&wire.MsgAddrMe{Port: p.conf.ListenPort}) != nil {
				return
			}
			stopAddr()
			addrC, stopAddr = p.timer(rng, p.addrMean())
		case <-p.closeCh:
			return
		}
	}
}

// addrMean grows with the number of peers so the node as a whole advertises
// itself at a constant rate.
func (p *Peer) addrMean() time.Duration {
	peers := 1
	if p.conf.PeerCount != nil {
		peers = p.conf.PeerCount()
	}
	return p.conf.AddrInterval*time.Duration(peers) + p.conf.AddrBase
}

func (p *Peer) timer(rng *rand.Rand, mean time.Duration) (<-chan time.Time, func()) {
	if mean <= 0 {
		return nil, func() {}
	}
	t := time.NewTimer(expInterval(rng, mean))
	return t.C, func() { t.Stop() }
}
