package wire

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()
	c := NewCodec(testMagic)

	var buf bytes.Buffer
	require.NoError(t, c.WriteMessage(&buf, msg))

	got, err := c.ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, msg.Command(), got.Command())
	require.Zero(t, buf.Len())
	return got
}

func TestHandshakeMessage(t *testing.T) {
	best := chainhash.DoubleHashH([]byte("best"))
	msg := &MsgHandshake{
		Version:  ProtocolVersion,
		Services: 1,
		AddrTo: NetAddress{
			Services: 1,
			IP:       net.ParseIP("10.0.0.2"),
			Port:     9333,
		},
		AddrFrom: NetAddress{
			IP:   net.ParseIP("2001:db8::1"),
			Port: 19333,
		},
		Nonce:         0xdeadbeefcafe,
		SubVersion:    "sharechain/0.1",
		Mode:          1,
		BestShareHash: &best,
	}

	got := roundTrip(t, msg).(*MsgHandshake)
	require.Equal(t, msg.Nonce, got.Nonce)
	require.Equal(t, msg.SubVersion, got.SubVersion)
	require.Equal(t, best, *got.BestShareHash)
	require.True(t, got.AddrTo.IP.Equal(msg.AddrTo.IP))
	require.Equal(t, uint16(9333), got.AddrTo.Port)
	require.True(t, got.AddrFrom.IP.Equal(msg.AddrFrom.IP))

	msg.BestShareHash = nil
	got = roundTrip(t, msg).(*MsgHandshake)
	require.Nil(t, got.BestShareHash)
}

func TestAddressPortIsBigEndian(t *testing.T) {
	var buf bytes.Buffer
	a := NetAddress{IP: net.ParseIP("1.2.3.4"), Port: 0x1234}
	require.NoError(t, a.Encode(&buf))

	raw := buf.Bytes()
	require.Len(t, raw, 8+16+2)
	require.Equal(t, []byte{0x12, 0x34}, raw[24:])
	// v4 mapped
	require.Equal(t, []byte{0xff, 0xff, 1, 2, 3, 4}, raw[18:24])
}

func TestGetSharesMessage(t *testing.T) {
	msg := &MsgGetShares{
		Hashes:  []chainhash.Hash{chainhash.DoubleHashH([]byte("h"))},
		Parents: 300,
		Stops:   []chainhash.Hash{},
	}
	got := roundTrip(t, msg).(*MsgGetShares)
	require.Equal(t, msg.Hashes, got.Hashes)
	require.Equal(t, uint64(300), got.Parents)
	require.Empty(t, got.Stops)
}

func TestAddrsMessage(t *testing.T) {
	msg := &MsgAddrs{Addrs: []AddrRecord{{
		Timestamp: 1700000000,
		Address:   NetAddress{Services: 3, IP: net.ParseIP("192.168.1.7"), Port: 9333},
	}}}
	got := roundTrip(t, msg).(*MsgAddrs)
	require.Len(t, got.Addrs, 1)
	require.Equal(t, uint64(1700000000), got.Addrs[0].Timestamp)
	require.True(t, got.Addrs[0].Address.IP.Equal(net.ParseIP("192.168.1.7")))
}

func testRawShare() *RawShare {
	prev := chainhash.DoubleHashH([]byte("prev"))
	return &RawShare{
		Header: btcwire.BlockHeader{
			Version:   2,
			PrevBlock: chainhash.DoubleHashH([]byte("block")),
			Timestamp: time.Unix(1700000000, 0),
			Bits:      0x1d00ffff,
			Nonce:     42,
		},
		Info: ShareInfo{
			PreviousShareHash:  &prev,
			PreviousSharesHash: chainhash.DoubleHashH([]byte("list")),
			Target2:            0x207fffff,
			Nonce:              []byte{1, 2, 3},
		},
		NewScript:    []byte{0x51},
		Subsidy:      5000000000,
		MerkleBranch: []chainhash.Hash{chainhash.DoubleHashH([]byte("sibling"))},
	}
}

func TestSharesMessage(t *testing.T) {
	branch := testRawShare()

	full := testRawShare()
	full.MerkleBranch = nil
	tx := btcwire.NewMsgTx(1)
	tx.AddTxOut(btcwire.NewTxOut(1000, []byte{0x51}))
	full.OtherTxs = []*btcwire.MsgTx{tx}

	got := roundTrip(t, &MsgShares{Shares: []*RawShare{branch, full}}).(*MsgShares)
	require.Len(t, got.Shares, 2)

	require.Equal(t, branch.Header.BlockHash(), got.Shares[0].Header.BlockHash())
	require.Equal(t, branch.MerkleBranch, got.Shares[0].MerkleBranch)
	require.Nil(t, got.Shares[0].OtherTxs)
	require.Equal(t, *branch.Info.PreviousShareHash, *got.Shares[0].Info.PreviousShareHash)

	require.Len(t, got.Shares[1].OtherTxs, 1)
	require.Equal(t, tx.TxHash(), got.Shares[1].OtherTxs[0].TxHash())
}

func TestShareLimits(t *testing.T) {
	s := testRawShare()
	s.NewScript = make([]byte, MaxNewScriptLen+1)
	require.Error(t, s.Encode(&bytes.Buffer{}))

	s = testRawShare()
	s.Info.Nonce = make([]byte, MaxShareNonceLen+1)
	require.Error(t, s.Encode(&bytes.Buffer{}))

	s = testRawShare()
	s.MerkleBranch = make([]chainhash.Hash, MaxMerkleBranch+1)
	require.Error(t, s.Encode(&bytes.Buffer{}))

	// A branch that is too long on the wire is rejected by the decoder.
	var buf bytes.Buffer
	s = testRawShare()
	s.MerkleBranch = nil
	require.NoError(t, s.Header.Serialize(&buf))
	require.NoError(t, s.Info.Encode(&buf))
	require.NoError(t, WriteVarBytes(&buf, s.NewScript))
	require.NoError(t, writeUint64(&buf, s.Subsidy))
	buf.WriteByte(proofBranch)
	require.NoError(t, WriteHashList(&buf, make([]chainhash.Hash, MaxMerkleBranch+1)))
	require.Error(t, (&RawShare{}).Decode(&buf))
}
