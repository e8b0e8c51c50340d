package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/sharechain/src/common"
)

const (
	// MagicSize is the length of the network prefix.
	MagicSize = 8

	// CommandSize is the fixed length of the command field.
	CommandSize = 12

	// ChecksumSize is the length of the payload checksum.
	ChecksumSize = 4

	// HeaderSize is the length of everything in a frame before the payload.
	HeaderSize = MagicSize + CommandSize + 4 + ChecksumSize

	// DefaultMaxPayload is the largest payload accepted unless configured
	// otherwise.
	DefaultMaxPayload = 1000000
)

var (
	// ErrNeedMoreData is returned by DecodeFrame when the buffer does not
	// hold a complete frame yet. The caller appends more bytes and retries.
	ErrNeedMoreData = errors.New("need more data")

	// ErrChecksum is returned when the payload does not match the checksum.
	ErrChecksum = errors.New("payload checksum mismatch")

	// ErrPayloadTooLarge is returned when the announced or encoded payload
	// exceeds the codec maximum.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrBadMagic is returned when a frame does not start with the network
	// prefix.
	ErrBadMagic = errors.New("bad magic prefix")

	// ErrBadCommand is returned for malformed command fields.
	ErrBadCommand = errors.New("malformed command")
)

// Codec frames and unframes messages for one network.
type Codec struct {
	Magic      [MagicSize]byte
	MaxPayload uint32
}

// NewCodec returns a Codec for the given network prefix with the default
// payload limit.
func NewCodec(magic [MagicSize]byte) *Codec {
	return &Codec{
		Magic:      magic,
		MaxPayload: DefaultMaxPayload,
	}
}

func checksum(payload []byte) [ChecksumSize]byte {
	var sum [ChecksumSize]byte
	copy(sum[:], chainhash.DoubleHashB(payload)[:ChecksumSize])
	return sum
}

func encodeCommand(cmd string) ([CommandSize]byte, error) {
	var field [CommandSize]byte
	if len(cmd) == 0 || len(cmd) > CommandSize {
		return field, fmt.Errorf("%w: %q", ErrBadCommand, cmd)
	}
	for i := 0; i < len(cmd); i++ {
		if cmd[i] < 0x21 || cmd[i] > 0x7e {
			return field, fmt.Errorf("%w: %q", ErrBadCommand, cmd)
		}
	}
	copy(field[:], cmd)
	return field, nil
}

func decodeCommand(field []byte) (string, error) {
	end := bytes.IndexByte(field, 0)
	if end < 0 {
		end = len(field)
	}
	for _, b := range field[end:] {
		if b != 0 {
			return "", ErrBadCommand
		}
	}
	cmd := string(field[:end])
	if _, err := encodeCommand(cmd); err != nil {
		return "", err
	}
	return cmd, nil
}

// EncodeFrame wraps payload in a frame.
func (c *Codec) EncodeFrame(cmd string, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > uint64(c.MaxPayload) {
		return nil, ErrPayloadTooLarge
	}
	cmdField, err := encodeCommand(cmd)
	if err != nil {
		return nil, err
	}
	sum := checksum(payload)

	frame := make([]byte, 0, HeaderSize+len(payload))
	frame = append(frame, c.Magic[:]...)
	frame = append(frame, cmdField[:]...)
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(payload)))
	frame = append(frame, sum[:]...)
	frame = append(frame, payload...)
	return frame, nil
}

type frameHeader struct {
	cmd    string
	length uint32
	sum    [ChecksumSize]byte
}

func (c *Codec) parseHeader(hdr []byte) (frameHeader, error) {
	var h frameHeader
	if !bytes.Equal(hdr[:MagicSize], c.Magic[:]) {
		return h, ErrBadMagic
	}
	cmd, err := decodeCommand(hdr[MagicSize : MagicSize+CommandSize])
	if err != nil {
		return h, err
	}
	h.cmd = cmd
	h.length = binary.LittleEndian.Uint32(hdr[MagicSize+CommandSize:])
	if h.length > c.MaxPayload {
		return h, ErrPayloadTooLarge
	}
	copy(h.sum[:], hdr[MagicSize+CommandSize+4:HeaderSize])
	return h, nil
}

// DecodeFrame extracts the first frame from buf. It returns the command, the
// payload (aliasing buf) and the number of bytes consumed. When buf holds a
// partial frame it returns ErrNeedMoreData; the header is validated as soon
// as it is complete, so an oversized length is rejected before its payload
// arrives.
func (c *Codec) DecodeFrame(buf []byte) (string, []byte, int, error) {
	if len(buf) < HeaderSize {
		if len(buf) > 0 {
			n := len(buf)
			if n > MagicSize {
				n = MagicSize
			}
			if !bytes.Equal(buf[:n], c.Magic[:n]) {
				return "", nil, 0, ErrBadMagic
			}
		}
		return "", nil, 0, ErrNeedMoreData
	}
	h, err := c.parseHeader(buf[:HeaderSize])
	if err != nil {
		return "", nil, 0, err
	}
	end := HeaderSize + int(h.length)
	if len(buf) < end {
		return "", nil, 0, ErrNeedMoreData
	}
	payload := buf[HeaderSize:end]
	if checksum(payload) != h.sum {
		return "", nil, 0, ErrChecksum
	}
	return h.cmd, payload, end, nil
}

// ReadFrame reads exactly one frame from r. Framing errors are wrapped as
// protocol violations; I/O errors are returned as they are.
func (c *Codec) ReadFrame(r io.Reader) (string, []byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", nil, err
	}
	h, err := c.parseHeader(hdr[:])
	if err != nil {
		return "", nil, common.NewFailure(common.ProtocolViolation, err)
	}
	payload := make([]byte, h.length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", nil, err
	}
	if checksum(payload) != h.sum {
		return "", nil, common.NewFailure(common.ProtocolViolation, ErrChecksum)
	}
	return h.cmd, payload, nil
}

// EncodeMessage serializes and frames msg.
func (c *Codec) EncodeMessage(msg Message) ([]byte, error) {
	var payload bytes.Buffer
	if err := msg.Encode(&payload); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", msg.Command(), err)
	}
	return c.EncodeFrame(msg.Command(), payload.Bytes())
}

// WriteMessage frames msg and writes it to w in a single call.
func (c *Codec) WriteMessage(w io.Writer, msg Message) error {
	frame, err := c.EncodeMessage(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadMessage reads one frame from r and decodes its payload.
func (c *Codec) ReadMessage(r io.Reader) (Message, error) {
	cmd, payload, err := c.ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return DecodeMessage(cmd, payload)
}

// DecodeMessage decodes a payload received under cmd. Unknown commands,
// malformed payloads and trailing bytes are protocol violations.
func DecodeMessage(cmd string, payload []byte) (Message, error) {
	msg, err := MakeEmptyMessage(cmd)
	if err != nil {
		return nil, common.NewFailure(common.ProtocolViolation, err)
	}
	r := bytes.NewReader(payload)
	if err := msg.Decode(r); err != nil {
		return nil, common.Failuref(common.ProtocolViolation, "decoding %s: %w", cmd, err)
	}
	if r.Len() != 0 {
		return nil, common.Failuref(common.ProtocolViolation, "%d trailing bytes after %s", r.Len(), cmd)
	}
	return msg, nil
}
