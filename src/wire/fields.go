package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
)

// pver is passed to the btcd var-int helpers, which ignore it.
const pver = 0

// maxListCount bounds every counted list before anything is allocated. No
// list element is smaller than one byte.
const maxListCount = DefaultMaxPayload

var errListTooLong = errors.New("list count exceeds limit")

func writeUint16LE(w io.Writer, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint16LE(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func writeUint16BE(w io.Writer, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint16BE(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func writeInt32(w io.Writer, v int32) error {
	return writeUint32(w, uint32(v))
}

func readInt32(r io.Reader) (int32, error) {
	v, err := readUint32(r)
	return int32(v), err
}

// WriteVarInt writes a bitcoin style variable length integer.
func WriteVarInt(w io.Writer, v uint64) error {
	return btcwire.WriteVarInt(w, pver, v)
}

// ReadVarInt reads a bitcoin style variable length integer.
func ReadVarInt(r io.Reader) (uint64, error) {
	return btcwire.ReadVarInt(r, pver)
}

// WriteVarBytes writes a var-int length followed by b.
func WriteVarBytes(w io.Writer, b []byte) error {
	return btcwire.WriteVarBytes(w, pver, b)
}

// ReadVarBytes reads a var-int prefixed byte string of at most max bytes.
func ReadVarBytes(r io.Reader, max uint32, field string) ([]byte, error) {
	return btcwire.ReadVarBytes(r, pver, max, field)
}

// readCount reads a list count and checks it against max.
func readCount(r io.Reader, max uint64) (uint64, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return 0, err
	}
	if n > max {
		return 0, fmt.Errorf("%w: %d > %d", errListTooLong, n, max)
	}
	return n, nil
}

// WriteHash writes a 256-bit hash in internal byte order.
func WriteHash(w io.Writer, h *chainhash.Hash) error {
	_, err := w.Write(h[:])
	return err
}

// ReadHash reads a 256-bit hash.
func ReadHash(r io.Reader) (chainhash.Hash, error) {
	var h chainhash.Hash
	_, err := io.ReadFull(r, h[:])
	return h, err
}

// WritePossiblyNoneHash writes h, or 32 zero bytes when h is nil.
func WritePossiblyNoneHash(w io.Writer, h *chainhash.Hash) error {
	if h == nil {
		return WriteHash(w, &chainhash.Hash{})
	}
	return WriteHash(w, h)
}

// ReadPossiblyNoneHash reads a hash where all zeros means none.
func ReadPossiblyNoneHash(r io.Reader) (*chainhash.Hash, error) {
	h, err := ReadHash(r)
	if err != nil {
		return nil, err
	}
	if h == (chainhash.Hash{}) {
		return nil, nil
	}
	return &h, nil
}

// WriteHashList writes a counted list of hashes.
func WriteHashList(w io.Writer, hashes []chainhash.Hash) error {
	if err := WriteVarInt(w, uint64(len(hashes))); err != nil {
		return err
	}
	for i := range hashes {
		if err := WriteHash(w, &hashes[i]); err != nil {
			return err
		}
	}
	return nil
}

// ReadHashList reads a counted list of at most max hashes.
func ReadHashList(r io.Reader, max uint64) ([]chainhash.Hash, error) {
	n, err := readCount(r, max)
	if err != nil {
		return nil, err
	}
	hashes := make([]chainhash.Hash, n)
	for i := range hashes {
		if hashes[i], err = ReadHash(r); err != nil {
			return nil, err
		}
	}
	return hashes, nil
}

// WriteCompressedHashes writes hashes as a table of distinct values followed
// by one var-int index per element.
func WriteCompressedHashes(w io.Writer, hashes []chainhash.Hash) error {
	index := make(map[chainhash.Hash]uint64, len(hashes))
	var table []chainhash.Hash
	refs := make([]uint64, len(hashes))
	for i, h := range hashes {
		j, ok := index[h]
		if !ok {
			j = uint64(len(table))
			index[h] = j
			table = append(table, h)
		}
		refs[i] = j
	}

	if err := WriteHashList(w, table); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(refs))); err != nil {
		return err
	}
	for _, j := range refs {
		if err := WriteVarInt(w, j); err != nil {
			return err
		}
	}
	return nil
}

// ReadCompressedHashes reverses WriteCompressedHashes. Indices must point
// into the value table.
func ReadCompressedHashes(r io.Reader, max uint64) ([]chainhash.Hash, error) {
	table, err := ReadHashList(r, max)
	if err != nil {
		return nil, err
	}
	n, err := readCount(r, max)
	if err != nil {
		return nil, err
	}
	hashes := make([]chainhash.Hash, n)
	for i := range hashes {
		j, err := ReadVarInt(r)
		if err != nil {
			return nil, err
		}
		if j >= uint64(len(table)) {
			return nil, fmt.Errorf("compressed list index %d out of range %d", j, len(table))
		}
		hashes[i] = table[j]
	}
	return hashes, nil
}

// NetAddress is the address record used by handshake and addrs messages.
type NetAddress struct {
	Services uint64
	IP       net.IP
	Port     uint16
}

// NewNetAddress builds a NetAddress from a TCP address.
func NewNetAddress(addr *net.TCPAddr, services uint64) NetAddress {
	if addr == nil {
		return NetAddress{Services: services, IP: net.IPv6zero}
	}
	return NetAddress{
		Services: services,
		IP:       addr.IP,
		Port:     uint16(addr.Port),
	}
}

// Encode writes services (LE), the 16-byte IP (v4 mapped) and the port (BE).
func (a *NetAddress) Encode(w io.Writer) error {
	if err := writeUint64(w, a.Services); err != nil {
		return err
	}
	var ip [16]byte
	if a.IP != nil {
		copy(ip[:], a.IP.To16())
	}
	if _, err := w.Write(ip[:]); err != nil {
		return err
	}
	return writeUint16BE(w, a.Port)
}

// Decode reads a NetAddress.
func (a *NetAddress) Decode(r io.Reader) error {
	var err error
	if a.Services, err = readUint64(r); err != nil {
		return err
	}
	ip := make([]byte, 16)
	if _, err := io.ReadFull(r, ip); err != nil {
		return err
	}
	a.IP = net.IP(ip)
	a.Port, err = readUint16BE(r)
	return err
}
