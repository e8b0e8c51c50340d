package node

import (
	"context"
	"errors"
	"math/rand"
	stdnet "net"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mosaicnetworks/sharechain/src/blocksource"
	"github.com/mosaicnetworks/sharechain/src/common"
	"github.com/mosaicnetworks/sharechain/src/net"
	"github.com/mosaicnetworks/sharechain/src/params"
	"github.com/mosaicnetworks/sharechain/src/peers"
	"github.com/mosaicnetworks/sharechain/src/share"
	"github.com/mosaicnetworks/sharechain/src/store"
	"github.com/mosaicnetworks/sharechain/src/tracker"
	"github.com/mosaicnetworks/sharechain/src/wire"
	"github.com/sirupsen/logrus"
)

// ErrShutdown is returned by calls made after, or cut short by, Shutdown.
var ErrShutdown = errors.New("node is shut down")

// LayerFactory binds the stream layer of the node.
type LayerFactory func() (net.StreamLayer, error)

// Node is a share-chain peer. A single event-loop goroutine owns the tracker,
// the peer set and the dialing state; connections and API calls talk to it
// over channels.
type Node struct {
	state

	conf   *Config
	params *params.Params
	logger *logrus.Entry

	nonce    uint64
	peerConf *net.Config

	newLayer LayerFactory
	layer    net.StreamLayer

	tracker *tracker.Tracker
	book    *peers.AddressBook
	store   store.Store
	source  blocksource.Source
	heights *blocksource.HeightCache

	// Owned by the event loop.
	peers    PeerSelector
	conns    map[*net.Peer]struct{}
	outgoing map[*net.Peer]peers.Addr
	dialing  map[peers.Addr]struct{}
	attempts map[peers.Addr]int
	banned   map[string]struct{}
	incoming int
	relayed  *lru.Cache[relayKey, struct{}]
	desired  *expirable.LRU[chainhash.Hash, struct{}]
	rng      *rand.Rand

	bestShare   atomic.Pointer[chainhash.Hash]
	established int32

	netCh      chan net.RPC
	connCh     chan connEvent
	actionCh   chan func()
	shutdownCh chan struct{}
	cancel     context.CancelFunc

	controlTimer *ControlTimer
	metrics      *metrics
	start        time.Time
}

type relayKey struct {
	peer  uint64
	share chainhash.Hash
}

// connEvent reports the outcome of an accept or a dial.
type connEvent struct {
	conn     stdnet.Conn
	addr     peers.Addr
	incoming bool
	err      error
}

// peerClosed is raised by a connection once it is torn down.
type peerClosed struct {
	err error
}

// NewNode returns a node for network p. store may be nil for a node that
// does not persist anything.
func NewNode(conf *Config,
	p *params.Params,
	newLayer LayerFactory,
	st store.Store,
	source blocksource.Source,
) (*Node, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if st == nil {
		st = store.NewInmemStore()
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nonce := rng.Uint64()
	for nonce == 0 {
		// peers refuse a zero nonce
		nonce = rng.Uint64()
	}
	logger := conf.Logger.WithFields(logrus.Fields{
		"prefix": "node",
		"nonce":  nonce,
	})

	heights, err := blocksource.NewHeightCache(source, conf.CacheSize, logger.WithField("prefix", "heights"))
	if err != nil {
		return nil, err
	}
	relayed, err := lru.New[relayKey, struct{}](conf.CacheSize)
	if err != nil {
		return nil, err
	}

	n := &Node{
		conf:         conf,
		params:       p,
		logger:       logger,
		nonce:        nonce,
		newLayer:     newLayer,
		tracker:      tracker.NewTracker(p, logger.WithField("prefix", "tracker")),
		book:         peers.NewAddressBook(conf.MaxAddresses),
		store:        st,
		source:       source,
		heights:      heights,
		peers:        NewRandomPeerSelector(rng),
		conns:        make(map[*net.Peer]struct{}),
		outgoing:     make(map[*net.Peer]peers.Addr),
		dialing:      make(map[peers.Addr]struct{}),
		attempts:     make(map[peers.Addr]int),
		banned:       make(map[string]struct{}),
		relayed:      relayed,
		desired:      expirable.NewLRU[chainhash.Hash, struct{}](conf.CacheSize, nil, conf.DesiredTTL),
		rng:          rng,
		netCh:        make(chan net.RPC, 64),
		connCh:       make(chan connEvent, 16),
		actionCh:     make(chan func()),
		shutdownCh:   make(chan struct{}),
		controlTimer: NewRandomControlTimer(),
		metrics:      newMetrics(),
	}

	n.peerConf = &net.Config{
		Codec:            wire.NewCodec(p.Magic),
		Nonce:            nonce,
		SubVersion:       conf.SubVersion,
		ListenPort:       conf.ListenPort,
		HandshakeTimeout: net.DefaultHandshakeTimeout,
		IdleTimeout:      net.DefaultIdleTimeout,
		WriteTimeout:     net.DefaultWriteTimeout,
		PingInterval:     conf.PingInterval,
		AddrInterval:     conf.AddrInterval,
		AddrBase:         conf.AddrBase,
		SendQueue:        net.DefaultSendQueue,
		PeerCount:        func() int { return int(atomic.LoadInt32(&n.established)) },
		BestShare:        n.BestShare,
	}
	return n, nil
}

// Init restores the address book and the shares saved by a previous run.
func (n *Node) Init() error {
	entries, err := n.store.LoadAddressBook()
	if err != nil {
		return err
	}
	n.book.Load(entries)

	shares, err := n.store.LoadShares()
	if err != nil {
		return err
	}
	for _, s := range shares {
		if err := s.CheckWork(n.params); err != nil {
			n.logger.WithError(err).WithField("share", s.Hash()).Warn("Dropping stored share")
			continue
		}
		if _, err := n.tracker.Add(s, tracker.LocalPeer); err != nil {
			n.logger.WithError(err).WithField("share", s.Hash()).Warn("Dropping stored share")
		}
	}
	n.logger.WithFields(logrus.Fields{
		"addresses": n.book.Len(),
		"shares":    len(shares),
	}).Debug("Init")
	return nil
}

// Nonce returns the random identifier of this node on the network.
func (n *Node) Nonce() uint64 {
	return n.nonce
}

// BestShare returns the current best verified head, or nil.
func (n *Node) BestShare() *chainhash.Hash {
	return n.bestShare.Load()
}

// RunAsync calls Run in a new goroutine.
func (n *Node) RunAsync() {
	go n.Run()
}

// Run binds the listener, retrying on a fixed delay, then runs the event loop
// until Shutdown.
func (n *Node) Run() {
	n.wg.Add(1)
	defer n.wg.Done()
	n.start = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.goFunc(func() { n.heights.Run(ctx, n.conf.HeightPoll) })

	for n.layer == nil {
		layer, err := n.newLayer()
		if err == nil {
			n.layer = layer
			break
		}
		n.logger.WithError(err).Error("Binding listener")
		select {
		case <-time.After(n.conf.BindRetry):
		case <-n.shutdownCh:
			return
		}
	}
	n.setState(Running)
	n.logger.WithField("addr", n.layer.AdvertiseAddr()).Info("Listening")

	n.goFunc(n.listen)
	n.goFunc(func() { n.controlTimer.Run(n.conf.DialInterval) })

	n.loop()
}

func (n *Node) loop() {
	think := time.NewTicker(n.conf.ThinkInterval)
	defer think.Stop()
	persist := time.NewTicker(n.conf.PersistInterval)
	defer persist.Stop()

	n.think()

	for {
		select {
		case rpc := <-n.netCh:
			n.processRPC(rpc)
		case ev := <-n.connCh:
			n.processConn(ev)
		case f := <-n.actionCh:
			f()
		case <-n.controlTimer.tickCh:
			n.dialMore()
			n.controlTimer.Reset(n.conf.DialInterval)
		case <-think.C:
			n.think()
			n.solicitAddrs()
		case <-persist.C:
			n.persist()
			n.logStats()
		case <-n.shutdownCh:
			n.closeAll()
			return
		}
	}
}

// do runs f on the event loop and waits for it.
func (n *Node) do(f func()) error {
	done := make(chan struct{})
	select {
	case n.actionCh <- func() { f(); close(done) }:
	case <-n.shutdownCh:
		return ErrShutdown
	}
	select {
	case <-done:
		return nil
	case <-n.shutdownCh:
		return ErrShutdown
	}
}

func (n *Node) processRPC(rpc net.RPC) {
	p := rpc.Peer
	switch cmd := rpc.Command.(type) {
	case *wire.MsgHandshake:
		rpc.Respond(nil, n.onHandshake(p, cmd))
	case peerClosed:
		n.onClosed(p, cmd.err)
	case *wire.MsgPing:
	case *wire.MsgAddrMe:
		n.onAddrMe(p, cmd)
	case *wire.MsgAddrs:
		n.onAddrs(p, cmd)
	case *wire.MsgGetAddrs:
		n.onGetAddrs(p, cmd)
	case *wire.MsgGetShares:
		n.onGetShares(p, cmd)
	case *wire.MsgShares:
		n.onShares(p, cmd)
	default:
		n.logger.WithField("peer", p).Warnf("Unexpected RPC command type %T", rpc.Command)
	}
}

// Shutdown closes every connection, waits for the node goroutines, saves the
// state and closes the store.
func (n *Node) Shutdown() {
	if n.getState() == Shutdown {
		return
	}
	n.logger.Debug("Shutdown")
	n.setState(Shutdown)

	close(n.shutdownCh)
	if n.cancel != nil {
		n.cancel()
	}
	if n.layer != nil {
		n.layer.Close()
	}
	n.controlTimer.Shutdown()

	n.waitRoutines()

	// the loop is gone, so the tracker is ours now
	n.save(n.tracker.VerifiedShares(), n.book.Entries())
	if err := n.store.Close(); err != nil {
		n.logger.WithError(err).Error("Closing store")
	}
}

func (n *Node) closeAll() {
	for p := range n.conns {
		p.Close(ErrShutdown)
	}
	for _, ev := range n.drainConns() {
		if ev.conn != nil {
			ev.conn.Close()
		}
	}
}

func (n *Node) drainConns() []connEvent {
	var res []connEvent
	for {
		select {
		case ev := <-n.connCh:
			res = append(res, ev)
		default:
			return res
		}
	}
}

func (n *Node) persist() {
	shares := n.tracker.VerifiedShares()
	entries := n.book.Entries()
	n.goFunc(func() { n.save(shares, entries) })
}

func (n *Node) save(shares []*share.Share, entries []peers.Entry) {
	if err := n.store.SaveShares(shares); err != nil {
		n.logger.WithError(err).Error("Saving shares")
	}
	if err := n.store.SaveAddressBook(entries); err != nil {
		n.logger.WithError(err).Error("Saving address book")
	}
}

// ban refuses further connections with the host of p for this session.
// Loopback hosts are never banned since they usually carry several nodes.
func (n *Node) ban(p *net.Peer) {
	if p.Addr().IP.IsLoopback() {
		return
	}
	n.banned[p.Addr().IP.String()] = struct{}{}
}

func isViolation(err error) bool {
	return common.IsFailure(err, common.ProtocolViolation)
}
