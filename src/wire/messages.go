package wire

import (
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// ProtocolVersion is the version announced in handshakes.
	ProtocolVersion int32 = 1

	// MinProtocolVersion is the oldest version accepted from peers.
	MinProtocolVersion int32 = 1

	// MaxSubVersionLen bounds the sub-version string.
	MaxSubVersionLen = 256

	// MaxGetAddrs is the largest count honoured by a getaddrs request.
	MaxGetAddrs = 100

	// MaxGetSharesHashes bounds both hash lists of a getshares request.
	MaxGetSharesHashes = 1000
)

// MsgHandshake is the first message on every connection.
type MsgHandshake struct {
	Version       int32
	Services      uint64
	AddrTo        NetAddress
	AddrFrom      NetAddress
	Nonce         uint64
	SubVersion    string
	Mode          int32
	BestShareHash *chainhash.Hash
}

// Command implements Message.
func (m *MsgHandshake) Command() string { return CmdHandshake }

// Encode implements Message.
func (m *MsgHandshake) Encode(w io.Writer) error {
	if err := writeInt32(w, m.Version); err != nil {
		return err
	}
	if err := writeUint64(w, m.Services); err != nil {
		return err
	}
	if err := m.AddrTo.Encode(w); err != nil {
		return err
	}
	if err := m.AddrFrom.Encode(w); err != nil {
		return err
	}
	if err := writeUint64(w, m.Nonce); err != nil {
		return err
	}
	if err := WriteVarBytes(w, []byte(m.SubVersion)); err != nil {
		return err
	}
	if err := writeInt32(w, m.Mode); err != nil {
		return err
	}
	return WritePossiblyNoneHash(w, m.BestShareHash)
}

// Decode implements Message.
func (m *MsgHandshake) Decode(r io.Reader) error {
	var err error
	if m.Version, err = readInt32(r); err != nil {
		return err
	}
	if m.Services, err = readUint64(r); err != nil {
		return err
	}
	if err = m.AddrTo.Decode(r); err != nil {
		return err
	}
	if err = m.AddrFrom.Decode(r); err != nil {
		return err
	}
	if m.Nonce, err = readUint64(r); err != nil {
		return err
	}
	sub, err := ReadVarBytes(r, MaxSubVersionLen, "sub_version")
	if err != nil {
		return err
	}
	m.SubVersion = string(sub)
	if m.Mode, err = readInt32(r); err != nil {
		return err
	}
	m.BestShareHash, err = ReadPossiblyNoneHash(r)
	return err
}

// MsgPing keeps a connection alive. It has no payload and needs no reply.
type MsgPing struct{}

// Command implements Message.
func (m *MsgPing) Command() string { return CmdPing }

// Encode implements Message.
func (m *MsgPing) Encode(w io.Writer) error { return nil }

// Decode implements Message.
func (m *MsgPing) Decode(r io.Reader) error { return nil }

// MsgAddrMe advertises the sender's listening port. The host is taken from
// the socket.
type MsgAddrMe struct {
	Port uint16
}

// Command implements Message.
func (m *MsgAddrMe) Command() string { return CmdAddrMe }

// Encode implements Message.
func (m *MsgAddrMe) Encode(w io.Writer) error {
	return writeUint16LE(w, m.Port)
}

// Decode implements Message.
func (m *MsgAddrMe) Decode(r io.Reader) (err error) {
	m.Port, err = readUint16LE(r)
	return err
}

// AddrRecord is an address together with the time it was last seen.
type AddrRecord struct {
	Timestamp uint64
	Address   NetAddress
}

// MsgAddrs carries known peer addresses.
type MsgAddrs struct {
	Addrs []AddrRecord
}

// Command implements Message.
func (m *MsgAddrs) Command() string { return CmdAddrs }

// Encode implements Message.
func (m *MsgAddrs) Encode(w io.Writer) error {
	if err := WriteVarInt(w, uint64(len(m.Addrs))); err != nil {
		return err
	}
	for i := range m.Addrs {
		if err := writeUint64(w, m.Addrs[i].Timestamp); err != nil {
			return err
		}
		if err := m.Addrs[i].Address.Encode(w); err != nil {
			return err
		}
	}
	return nil
}

// Decode implements Message.
func (m *MsgAddrs) Decode(r io.Reader) error {
	n, err := readCount(r, maxListCount/34)
	if err != nil {
		return err
	}
	m.Addrs = make([]AddrRecord, n)
	for i := range m.Addrs {
		if m.Addrs[i].Timestamp, err = readUint64(r); err != nil {
			return err
		}
		if err = m.Addrs[i].Address.Decode(r); err != nil {
			return err
		}
	}
	return nil
}

// MsgGetAddrs asks for up to Count addresses.
type MsgGetAddrs struct {
	Count uint32
}

// Command implements Message.
func (m *MsgGetAddrs) Command() string { return CmdGetAddrs }

// Encode implements Message.
func (m *MsgGetAddrs) Encode(w io.Writer) error {
	return writeUint32(w, m.Count)
}

// Decode implements Message.
func (m *MsgGetAddrs) Decode(r io.Reader) (err error) {
	m.Count, err = readUint32(r)
	return err
}

// MsgGetShares asks for the shares identified by Hashes together with up to
// Parents of their ancestors each, stopping at any hash in Stops.
type MsgGetShares struct {
	Hashes  []chainhash.Hash
	Parents uint64
	Stops   []chainhash.Hash
}

// Command implements Message.
func (m *MsgGetShares) Command() string { return CmdGetShares }

// Encode implements Message.
func (m *MsgGetShares) Encode(w io.Writer) error {
	if err := WriteHashList(w, m.Hashes); err != nil {
		return err
	}
	if err := WriteVarInt(w, m.Parents); err != nil {
		return err
	}
	return WriteHashList(w, m.Stops)
}

// Decode implements Message.
func (m *MsgGetShares) Decode(r io.Reader) error {
	var err error
	if m.Hashes, err = ReadHashList(r, MaxGetSharesHashes); err != nil {
		return err
	}
	if m.Parents, err = ReadVarInt(r); err != nil {
		return err
	}
	m.Stops, err = ReadHashList(r, MaxGetSharesHashes)
	return err
}

// MsgShares carries shares in wire form.
type MsgShares struct {
	Shares []*RawShare
}

// Command implements Message.
func (m *MsgShares) Command() string { return CmdShares }

// Encode implements Message.
func (m *MsgShares) Encode(w io.Writer) error {
	if err := WriteVarInt(w, uint64(len(m.Shares))); err != nil {
		return err
	}
	for _, s := range m.Shares {
		if err := s.Encode(w); err != nil {
			return err
		}
	}
	return nil
}

// Decode implements Message.
func (m *MsgShares) Decode(r io.Reader) error {
	n, err := readCount(r, maxListCount/rawShareMinSize)
	if err != nil {
		return err
	}
	m.Shares = make([]*RawShare, n)
	for i := range m.Shares {
		s := &RawShare{}
		if err := s.Decode(r); err != nil {
			return err
		}
		m.Shares[i] = s
	}
	return nil
}
