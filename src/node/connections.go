package node

import (
	"errors"
	stdnet "net"
	"sync/atomic"
	"time"

	"github.com/mosaicnetworks/sharechain/src/common"
	"github.com/mosaicnetworks/sharechain/src/net"
	"github.com/mosaicnetworks/sharechain/src/peers"
	"github.com/mosaicnetworks/sharechain/src/tracker"
	"github.com/mosaicnetworks/sharechain/src/wire"
	"github.com/sirupsen/logrus"
)

var errDuplicate = errors.New("already connected to this node")

// peerHandler forwards connection events to the event loop.
type peerHandler struct {
	n *Node
}

func (h peerHandler) OnHandshake(p *net.Peer, msg *wire.MsgHandshake) error {
	rpc, respCh := net.NewRPC(p, msg)
	select {
	case h.n.netCh <- rpc:
	case <-h.n.shutdownCh:
		return ErrShutdown
	}
	select {
	case resp := <-respCh:
		return resp.Error
	case <-h.n.shutdownCh:
		return ErrShutdown
	}
}

func (h peerHandler) OnMessage(p *net.Peer, msg wire.Message) {
	select {
	case h.n.netCh <- net.RPC{Peer: p, Command: msg}:
	case <-h.n.shutdownCh:
	}
}

func (h peerHandler) OnClose(p *net.Peer, err error) {
	select {
	case h.n.netCh <- net.RPC{Peer: p, Command: peerClosed{err: err}}:
	case <-h.n.shutdownCh:
	}
}

func (n *Node) listen() {
	for {
		conn, err := n.layer.Accept()
		if err != nil {
			if n.getState() == Shutdown {
				return
			}
			if errors.Is(err, net.ErrLayerClosed) {
				return
			}
			n.logger.WithError(err).Warn("Accepting connection")
			time.Sleep(10 * time.Millisecond)
			continue
		}
		select {
		case n.connCh <- connEvent{conn: conn, incoming: true}:
		case <-n.shutdownCh:
			conn.Close()
			return
		}
	}
}

func (n *Node) processConn(ev connEvent) {
	if !ev.incoming {
		delete(n.dialing, ev.addr)
		if ev.err != nil {
			n.metrics.dialFailures.Inc()
			failures := n.book.RecordFailure(ev.addr)
			n.logger.WithError(ev.err).WithFields(logrus.Fields{
				"addr":     ev.addr,
				"failures": failures,
			}).Debug("Dial failed")
			return
		}
		p := n.startPeer(ev)
		n.outgoing[p] = ev.addr
		return
	}

	remote := ev.conn.RemoteAddr().String()
	if host := hostOf(ev.conn.RemoteAddr()); n.isBanned(host) {
		n.logger.WithField("remote", remote).Debug("Refusing banned host")
		n.metrics.refused.Inc()
		ev.conn.Close()
		return
	}
	if n.incoming >= n.conf.MaxIncoming {
		n.logger.WithFields(logrus.Fields{
			"remote": remote,
			"error":  common.Failuref(common.ResourceExhaustion, "%d incoming connections", n.incoming),
		}).Debug("Refusing connection")
		n.metrics.refused.Inc()
		ev.conn.Close()
		return
	}
	n.incoming++
	n.startPeer(ev)
}

func (n *Node) startPeer(ev connEvent) *net.Peer {
	p := net.NewPeer(ev.conn, ev.incoming, n.peerConf, peerHandler{n}, n.logger)
	n.conns[p] = struct{}{}
	n.goFunc(func() { p.Run() })
	return p
}

func (n *Node) onHandshake(p *net.Peer, msg *wire.MsgHandshake) error {
	if _, ok := n.conns[p]; !ok {
		return ErrShutdown
	}
	if n.peers.Get(p.Nonce()) != nil {
		return common.NewFailure(common.ProtocolViolation, errDuplicate)
	}
	n.peers.Add(p)
	atomic.StoreInt32(&n.established, int32(n.peers.Len()))
	n.metrics.peers.WithLabelValues(direction(p)).Inc()

	if addr, ok := n.outgoing[p]; ok {
		n.book.RecordSuccess(addr)
		delete(n.attempts, addr)
	}

	n.logger.WithFields(logrus.Fields{
		"peer":        p,
		"sub_version": msg.SubVersion,
		"incoming":    p.Incoming(),
	}).Info("Peer connected")

	if msg.BestShareHash != nil && !n.tracker.Has(*msg.BestShareHash) {
		n.requestShares([]tracker.Desired{{Peer: tracker.PeerID(p.Nonce()), Hash: *msg.BestShareHash}})
	}
	return nil
}

func (n *Node) onClosed(p *net.Peer, err error) {
	if _, ok := n.conns[p]; !ok {
		return
	}
	delete(n.conns, p)

	if n.peers.Get(p.Nonce()) == p {
		n.peers.Remove(p)
		atomic.StoreInt32(&n.established, int32(n.peers.Len()))
		n.metrics.peers.WithLabelValues(direction(p)).Dec()
	}
	if p.Incoming() {
		n.incoming--
	}
	addr, outgoing := n.outgoing[p]
	delete(n.outgoing, p)

	fields := logrus.Fields{"peer": p}
	switch {
	case errors.Is(err, net.ErrSelfConnect):
		if outgoing {
			n.attempts[addr] = n.conf.MaxDialAttempts
		}
		n.logger.WithFields(fields).Debug("Dropped connection to self")
	case isViolation(err):
		n.metrics.violations.Inc()
		if !errors.Is(err, errDuplicate) {
			n.ban(p)
		}
		n.logger.WithError(err).WithFields(fields).Info("Peer misbehaved")
	case outgoing && p.Nonce() == 0 && common.IsFailure(err, common.ConnectivityFailure):
		// never got a handshake out of it
		n.book.RecordFailure(addr)
		n.logger.WithError(err).WithFields(fields).Debug("Peer lost before handshake")
	default:
		n.logger.WithError(err).WithFields(fields).Debug("Peer disconnected")
	}
}

func direction(p *net.Peer) string {
	if p.Incoming() {
		return "in"
	}
	return "out"
}

// dialMore starts dials until the desired number of outgoing connections is
// connected or pending.
func (n *Node) dialMore() {
	need := n.conf.DesiredOutgoing - len(n.outgoing) - len(n.dialing)
	if need <= 0 {
		return
	}
	now := time.Now()
	for _, addr := range n.dialCandidates(now) {
		if need == 0 {
			break
		}
		need--
		n.dial(addr, now)
	}
}

func (n *Node) dialCandidates(now time.Time) []peers.Addr {
	connected := make(map[peers.Addr]struct{}, len(n.outgoing))
	for _, a := range n.outgoing {
		connected[a] = struct{}{}
	}
	self := n.layer.AdvertiseAddr()

	usable := func(e peers.Entry) bool {
		if _, ok := connected[e.Addr]; ok {
			return false
		}
		if _, ok := n.dialing[e.Addr]; ok {
			return false
		}
		if e.Addr.String() == self || n.isBanned(e.Addr.Host) {
			return false
		}
		if n.attempts[e.Addr] >= n.conf.MaxDialAttempts {
			return false
		}
		return !now.Before(e.LastAttempt.Add(n.backoff(e.Failures)))
	}

	var res []peers.Addr
	for _, e := range n.book.Sample(n.book.Len(), n.rng) {
		if usable(e) {
			res = append(res, e.Addr)
		}
	}
	if len(res) > 0 {
		return res
	}

	// fall back to the seeds, which go through the book so their failures
	// are counted like any other address
	seeds, err := peers.ParseAddrs(n.params.SeedAddrs)
	if err != nil {
		n.logger.WithError(err).Warn("Bad network seeds")
	}
	seeds = append(seeds, n.conf.Seeds...)
	for _, a := range seeds {
		if n.book.Record(a, 0, time.Time{}) {
			n.logger.WithField("addr", a).Debug("Added seed")
		}
		if e, ok := n.book.Get(a); ok && usable(e) {
			res = append(res, a)
		}
	}
	return res
}

// backoff grows exponentially with the failures of an address, with up to
// 50% random jitter.
func (n *Node) backoff(failures int) time.Duration {
	if failures == 0 {
		return 0
	}
	d := n.conf.DialBackoff
	for i := 1; i < failures && d < n.conf.MaxDialBackoff; i++ {
		d *= 2
	}
	if d > n.conf.MaxDialBackoff {
		d = n.conf.MaxDialBackoff
	}
	return d + time.Duration(n.rng.Int63n(int64(d)/2+1))
}

func (n *Node) dial(addr peers.Addr, now time.Time) {
	n.dialing[addr] = struct{}{}
	n.attempts[addr]++
	n.book.RecordAttempt(addr, now)

	layer := n.layer
	timeout := n.conf.DialTimeout
	n.goFunc(func() {
		conn, err := layer.Dial(addr.String(), timeout)
		if err != nil {
			err = common.NewFailure(common.ConnectivityFailure, err)
		}
		select {
		case n.connCh <- connEvent{conn: conn, addr: addr, err: err}:
		case <-n.shutdownCh:
			if conn != nil {
				conn.Close()
			}
		}
	})
}

func hostOf(a stdnet.Addr) string {
	if tcp, ok := a.(*stdnet.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := stdnet.SplitHostPort(a.String())
	if err != nil {
		return a.String()
	}
	return host
}

func (n *Node) isBanned(host string) bool {
	_, ok := n.banned[host]
	return ok
}
