package net

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/mosaicnetworks/sharechain/src/common"
	"github.com/mosaicnetworks/sharechain/src/wire"
)

var testMagic = [wire.MagicSize]byte{'t', 'e', 's', 't', 'n', 'e', 't', 0}

type recordingHandler struct {
	sync.Mutex
	handshakes []*wire.MsgHandshake
	messages   []wire.Message
	closeErr   error
	reject     error

	established chan struct{}
	received    chan wire.Message
	closed      chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		established: make(chan struct{}, 1),
		received:    make(chan wire.Message, 16),
		closed:      make(chan struct{}),
	}
}

func (h *recordingHandler) OnHandshake(p *Peer, msg *wire.MsgHandshake) error {
	h.Lock()
	h.handshakes = append(h.handshakes, msg)
	h.Unlock()
	if h.reject != nil {
		return h.reject
	}
	h.established <- struct{}{}
	return nil
}

func (h *recordingHandler) OnMessage(p *Peer, msg wire.Message) {
	h.Lock()
	h.messages = append(h.messages, msg)
	h.Unlock()
	h.received <- msg
}

func (h *recordingHandler) OnClose(p *Peer, err error) {
	h.Lock()
	h.closeErr = err
	h.Unlock()
	close(h.closed)
}

func (h *recordingHandler) wait(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for %s", what)
	}
}

func testConfig(nonce uint64) *Config {
	conf := DefaultConfig(wire.NewCodec(testMagic), nonce)
	conf.PingInterval = 0
	conf.ListenPort = 0
	return conf
}

// pipePair returns two connected conns with TCP addresses.
func pipePair(t *testing.T) (net.Conn, net.Conn) {
	network := NewInmemNetwork()
	server, err := network.Listen("10.0.0.1:9333")
	if err != nil {
		t.Fatal(err)
	}
	client, err := network.Listen("10.0.0.2:9333")
	if err != nil {
		t.Fatal(err)
	}

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := server.Accept()
		if err == nil {
			accepted <- c
		}
	}()
	out, err := client.Dial(server.AdvertiseAddr(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return out, <-accepted
}

func TestPeerHandshake(t *testing.T) {
	out, in := pipePair(t)
	logger := common.NewTestEntry(t, "peer")

	best := chainhash.DoubleHashH([]byte("best"))
	confA := testConfig(1)
	confA.SubVersion = "a"
	confA.BestShare = func() *chainhash.Hash { return &best }
	confB := testConfig(2)
	confB.SubVersion = "b"

	hA, hB := newRecordingHandler(), newRecordingHandler()
	pA := NewPeer(out, false, confA, hA, logger)
	pB := NewPeer(in, true, confB, hB, logger)

	if pA.State() != Connecting {
		t.Fatalf("new peer state is %s", pA.State())
	}

	go pA.Run()
	go pB.Run()

	hA.wait(t, hA.established, "A handshake")
	hB.wait(t, hB.established, "B handshake")

	if pA.Nonce() != 2 || pB.Nonce() != 1 {
		t.Fatalf("nonces: A sees %d, B sees %d", pA.Nonce(), pB.Nonce())
	}
	if pB.SubVersion() != "a" {
		t.Fatalf("sub version: %q", pB.SubVersion())
	}
	hB.Lock()
	got := hB.handshakes[0].BestShareHash
	hB.Unlock()
	if got == nil || *got != best {
		t.Fatalf("best share hash not announced: %v", got)
	}
	if pB.Addr().String() != "10.0.0.2:49152" {
		t.Fatalf("remote address of incoming peer: %s", pB.Addr())
	}

	if err := pA.Send(&wire.MsgGetAddrs{Count: 7}); err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-hB.received:
		ga, ok := msg.(*wire.MsgGetAddrs)
		if !ok || ga.Count != 7 {
			t.Fatalf("unexpected message %#v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}

	pA.Close(nil)
	hA.wait(t, hA.closed, "A close")
	hB.wait(t, hB.closed, "B close")
	if pA.State() != Closed {
		t.Fatalf("closed peer state is %s", pA.State())
	}
	if !common.IsFailure(hB.closeErr, common.ConnectivityFailure) {
		t.Fatalf("remote close should be a connectivity failure: %v", hB.closeErr)
	}
	if err := pA.Send(&wire.MsgPing{}); err != ErrPeerClosed {
		t.Fatalf("send after close: %v", err)
	}
}

func TestPeerFirstMessageMustBeHandshake(t *testing.T) {
	out, in := pipePair(t)
	codec := wire.NewCodec(testMagic)

	h := newRecordingHandler()
	p := NewPeer(in, true, testConfig(1), h, common.NewTestEntry(t, "peer"))
	go p.Run()

	// drain our handshake so the pipe does not block
	go codec.ReadMessage(out)
	if err := codec.WriteMessage(out, &wire.MsgPing{}); err != nil {
		t.Fatal(err)
	}

	h.wait(t, h.closed, "close")
	if !common.IsFailure(h.closeErr, common.ProtocolViolation) {
		t.Fatalf("expected protocol violation, got %v", h.closeErr)
	}
	if len(h.handshakes) != 0 {
		t.Fatal("handler saw a handshake")
	}
}

func TestPeerSecondHandshake(t *testing.T) {
	out, in := pipePair(t)
	codec := wire.NewCodec(testMagic)

	h := newRecordingHandler()
	p := NewPeer(in, true, testConfig(1), h, common.NewTestEntry(t, "peer"))
	go p.Run()

	go func() {
		for {
			if _, err := codec.ReadMessage(out); err != nil {
				return
			}
		}
	}()
	hs := &wire.MsgHandshake{Version: wire.ProtocolVersion, Mode: HandshakeMode, Nonce: 9}
	codec.WriteMessage(out, hs)
	h.wait(t, h.established, "handshake")
	codec.WriteMessage(out, hs)

	h.wait(t, h.closed, "close")
	if !common.IsFailure(h.closeErr, common.ProtocolViolation) {
		t.Fatalf("expected protocol violation, got %v", h.closeErr)
	}
}

func TestPeerSelfConnect(t *testing.T) {
	out, in := pipePair(t)
	logger := common.NewTestEntry(t, "peer")

	hA, hB := newRecordingHandler(), newRecordingHandler()
	go NewPeer(out, false, testConfig(5), hA, logger).Run()
	go NewPeer(in, true, testConfig(5), hB, logger).Run()

	hA.wait(t, hA.closed, "A close")
	hB.wait(t, hB.closed, "B close")
	if len(hA.handshakes)+len(hB.handshakes) != 0 {
		t.Fatal("self connection reached the handler")
	}
	if !common.IsFailure(hA.closeErr, common.ProtocolViolation) &&
		!common.IsFailure(hB.closeErr, common.ProtocolViolation) {
		t.Fatalf("no side saw a protocol violation: %v / %v", hA.closeErr, hB.closeErr)
	}
}

func TestPeerHandshakeRejected(t *testing.T) {
	out, in := pipePair(t)
	logger := common.NewTestEntry(t, "peer")

	dup := common.Failuref(common.ProtocolViolation, "duplicate")
	hA, hB := newRecordingHandler(), newRecordingHandler()
	hB.reject = dup
	go NewPeer(out, false, testConfig(1), hA, logger).Run()
	go NewPeer(in, true, testConfig(2), hB, logger).Run()

	hB.wait(t, hB.closed, "B close")
	if hB.closeErr != dup {
		t.Fatalf("close reason: %v", hB.closeErr)
	}
}

func TestPeerHandshakeTimeout(t *testing.T) {
	_, in := pipePair(t)

	conf := testConfig(1)
	conf.HandshakeTimeout = 50 * time.Millisecond
	h := newRecordingHandler()
	go NewPeer(in, true, conf, h, common.NewTestEntry(t, "peer")).Run()

	h.wait(t, h.closed, "close")
	if !common.IsFailure(h.closeErr, common.ConnectivityFailure) {
		t.Fatalf("expected connectivity failure, got %v", h.closeErr)
	}
}

func TestPeerIdleTimeout(t *testing.T) {
	out, in := pipePair(t)
	codec := wire.NewCodec(testMagic)

	conf := testConfig(1)
	conf.IdleTimeout = 100 * time.Millisecond
	h := newRecordingHandler()
	go NewPeer(in, true, conf, h, common.NewTestEntry(t, "peer")).Run()

	go func() {
		for {
			if _, err := codec.ReadMessage(out); err != nil {
				return
			}
		}
	}()
	codec.WriteMessage(out, &wire.MsgHandshake{Version: wire.ProtocolVersion, Mode: HandshakeMode, Nonce: 2})
	h.wait(t, h.established, "handshake")

	// pings keep the connection open past one idle period
	for i := 0; i < 3; i++ {
		time.Sleep(50 * time.Millisecond)
		codec.WriteMessage(out, &wire.MsgPing{})
	}
	select {
	case <-h.closed:
		t.Fatalf("closed while active: %v", h.closeErr)
	default:
	}

	h.wait(t, h.closed, "idle close")
	if !common.IsFailure(h.closeErr, common.ConnectivityFailure) {
		t.Fatalf("expected connectivity failure, got %v", h.closeErr)
	}
}

func TestSendSharesSplits(t *testing.T) {
	out, in := pipePair(t)

	conf := testConfig(1)
	conf.Codec.MaxPayload = 500
	h := newRecordingHandler()
	p := NewPeer(in, true, conf, h, common.NewTestEntry(t, "peer"))
	go p.Run()
	defer p.Close(nil)

	reader := wire.NewCodec(testMagic)
	if _, err := reader.ReadMessage(out); err != nil {
		t.Fatal(err)
	}
	reader.WriteMessage(out, &wire.MsgHandshake{Version: wire.ProtocolVersion, Mode: HandshakeMode, Nonce: 2})
	h.wait(t, h.established, "handshake")

	shares := make([]*wire.RawShare, 5)
	for i := range shares {
		shares[i] = testShare(uint32(i))
	}
	if err := p.SendShares(shares); err != nil {
		t.Fatal(err)
	}

	var nonces []uint32
	for messages := 0; len(nonces) < len(shares); messages++ {
		if messages == 5 {
			t.Fatal("too many messages")
		}
		msg, err := reader.ReadMessage(out)
		if err != nil {
			t.Fatal(err)
		}
		batch, ok := msg.(*wire.MsgShares)
		if !ok {
			t.Fatalf("unexpected %s", msg.Command())
		}
		if len(batch.Shares) > 2 {
			t.Fatalf("batch of %d shares exceeds the payload limit", len(batch.Shares))
		}
		for _, s := range batch.Shares {
			nonces = append(nonces, s.Header.Nonce)
		}
	}
	for i, n := range nonces {
		if n != uint32(i) {
			t.Fatalf("shares out of order: %v", nonces)
		}
	}
}

func testShare(nonce uint32) *wire.RawShare {
	prev := chainhash.DoubleHashH([]byte("prev"))
	return &wire.RawShare{
		Header: btcwire.BlockHeader{
			Version:   2,
			Timestamp: time.Unix(1700000000, 0),
			Bits:      0x1d00ffff,
			Nonce:     nonce,
		},
		Info: wire.ShareInfo{
			PreviousShareHash: &prev,
			Target2:           0x207fffff,
		},
		NewScript:    []byte{0x51},
		Subsidy:      5000000000,
		MerkleBranch: []chainhash.Hash{chainhash.DoubleHashH([]byte("sibling"))},
	}
}

func TestExpInterval(t *testing.T) {
	if d := expInterval(nil, 0); d != 0 {
		t.Fatalf("zero mean gave %s", d)
	}
}

func TestPeerTimers(t *testing.T) {
	out, in := pipePair(t)
	codec := wire.NewCodec(testMagic)

	conf := testConfig(1)
	conf.ListenPort = 9333
	conf.PingInterval = 5 * time.Millisecond
	conf.AddrInterval = 0
	conf.AddrBase = 5 * time.Millisecond
	conf.PeerCount = func() int { return 1 }
	h := newRecordingHandler()
	p := NewPeer(in, true, conf, h, common.NewTestEntry(t, "peer"))
	go p.Run()
	defer p.Close(nil)

	if _, err := codec.ReadMessage(out); err != nil {
		t.Fatal(err)
	}
	codec.WriteMessage(out, &wire.MsgHandshake{Version: wire.ProtocolVersion, Mode: HandshakeMode, Nonce: 2})

	var pings, addrmes int
	deadline := time.After(5 * time.Second)
	for pings == 0 || addrmes == 0 {
		select {
		case <-deadline:
			t.Fatalf("got %d pings and %d addrme", pings, addrmes)
		default:
		}
		msg, err := codec.ReadMessage(out)
		if err != nil {
			t.Fatal(err)
		}
		switch m := msg.(type) {
		case *wire.MsgPing:
			pings++
		case *wire.MsgAddrMe:
			if m.Port != 9333 {
				t.Fatalf("advertised port %d", m.Port)
			}
			addrmes++
		default:
			t.Fatalf("unexpected %s", msg.Command())
		}
	}
}

func TestPeerHandshakeChecks(t *testing.T) {
	cases := []struct {
		name string
		hs   *wire.MsgHandshake
	}{
		{"zero nonce", &wire.MsgHandshake{Version: wire.ProtocolVersion, Mode: HandshakeMode}},
		{"old version", &wire.MsgHandshake{Version: wire.MinProtocolVersion - 1, Mode: HandshakeMode, Nonce: 2}},
		{"unknown mode", &wire.MsgHandshake{Version: wire.ProtocolVersion, Mode: HandshakeMode + 1, Nonce: 2}},
	}

	for _, tc := range cases {
		out, in := pipePair(t)
		codec := wire.NewCodec(testMagic)

		h := newRecordingHandler()
		go NewPeer(in, true, testConfig(1), h, common.NewTestEntry(t, "peer")).Run()
		go codec.ReadMessage(out)
		codec.WriteMessage(out, tc.hs)

		h.wait(t, h.closed, tc.name)
		if !common.IsFailure(h.closeErr, common.ProtocolViolation) {
			t.Fatalf("%s: expected protocol violation, got %v", tc.name, h.closeErr)
		}
		if len(h.handshakes) != 0 {
			t.Fatalf("%s: handler saw the handshake", tc.name)
		}
	}
}

func TestTrySendKeepsPeerOpen(t *testing.T) {
	_, in := pipePair(t)

	// never run, so nothing drains the queue
	p := NewPeer(in, true, testConfig(1), newRecordingHandler(), common.NewTestEntry(t, "peer"))

	sent := 0
	for ; sent < DefaultSendQueue; sent++ {
		if err := p.TrySend(&wire.MsgPing{}); err != nil {
			if err != ErrSendQueueBusy {
				t.Fatalf("TrySend: %v", err)
			}
			break
		}
	}
	if sent != DefaultSendQueue/2+1 {
		t.Fatalf("queued %d messages before the queue was busy", sent)
	}
	if err := p.Err(); err != nil {
		t.Fatalf("peer closed: %v", err)
	}

	// Send still has room
	if err := p.Send(&wire.MsgPing{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
}
