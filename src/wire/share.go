package wire

import (
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
)

const (
	// MaxMerkleBranch is the longest merkle branch a share may carry.
	MaxMerkleBranch = 16

	// MaxNewScriptLen bounds the payout script of a share.
	MaxNewScriptLen = 100

	// MaxShareNonceLen bounds the share nonce.
	MaxShareNonceLen = 20

	// MaxOtherTxs bounds the transaction list of a full-proof share.
	MaxOtherTxs = 10000

	proofBranch byte = 0
	proofTxs    byte = 1

	// header + two hashes + target + empty nonce + empty script + subsidy +
	// proof kind + empty list
	rawShareMinSize = btcwire.MaxBlockHeaderPayload + 32 + 32 + 4 + 1 + 1 + 8 + 1 + 1
)

// ShareInfo is the share metadata committed to by the generation transaction.
type ShareInfo struct {
	// PreviousShareHash is nil for the first share of a chain.
	PreviousShareHash  *chainhash.Hash
	PreviousSharesHash chainhash.Hash
	Target2            uint32
	Nonce              []byte
}

// Encode writes the share info. The same bytes follow the network identifier
// in the generation transaction's coinbase script.
func (i *ShareInfo) Encode(w io.Writer) error {
	if len(i.Nonce) > MaxShareNonceLen {
		return fmt.Errorf("share nonce of %d bytes exceeds %d", len(i.Nonce), MaxShareNonceLen)
	}
	if err := WritePossiblyNoneHash(w, i.PreviousShareHash); err != nil {
		return err
	}
	if err := WriteHash(w, &i.PreviousSharesHash); err != nil {
		return err
	}
	if err := writeUint32(w, i.Target2); err != nil {
		return err
	}
	return WriteVarBytes(w, i.Nonce)
}

// Decode reads the share info.
func (i *ShareInfo) Decode(r io.Reader) error {
	var err error
	if i.PreviousShareHash, err = ReadPossiblyNoneHash(r); err != nil {
		return err
	}
	if i.PreviousSharesHash, err = ReadHash(r); err != nil {
		return err
	}
	if i.Target2, err = readUint32(r); err != nil {
		return err
	}
	i.Nonce, err = ReadVarBytes(r, MaxShareNonceLen, "share nonce")
	return err
}

// RawShare is a share as it travels on the wire. Exactly one of MerkleBranch
// and OtherTxs is meaningful: a non-nil OtherTxs selects the full transaction
// proof.
type RawShare struct {
	Header       btcwire.BlockHeader
	Info         ShareInfo
	NewScript    []byte
	Subsidy      uint64
	MerkleBranch []chainhash.Hash
	OtherTxs     []*btcwire.MsgTx
}

// Encode implements the share encoding used inside shares messages.
func (s *RawShare) Encode(w io.Writer) error {
	if len(s.NewScript) > MaxNewScriptLen {
		return fmt.Errorf("new script of %d bytes exceeds %d", len(s.NewScript), MaxNewScriptLen)
	}
	if s.OtherTxs == nil && len(s.MerkleBranch) > MaxMerkleBranch {
		return fmt.Errorf("merkle branch of %d hashes exceeds %d", len(s.MerkleBranch), MaxMerkleBranch)
	}
	if err := s.Header.Serialize(w); err != nil {
		return err
	}
	if err := s.Info.Encode(w); err != nil {
		return err
	}
	if err := WriteVarBytes(w, s.NewScript); err != nil {
		return err
	}
	if err := writeUint64(w, s.Subsidy); err != nil {
		return err
	}

	if s.OtherTxs == nil {
		if _, err := w.Write([]byte{proofBranch}); err != nil {
			return err
		}
		return WriteHashList(w, s.MerkleBranch)
	}

	if _, err := w.Write([]byte{proofTxs}); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(s.OtherTxs))); err != nil {
		return err
	}
	for _, tx := range s.OtherTxs {
		if err := tx.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads a share and enforces the field limits.
func (s *RawShare) Decode(r io.Reader) error {
	if err := s.Header.Deserialize(r); err != nil {
		return err
	}
	if err := s.Info.Decode(r); err != nil {
		return err
	}
	var err error
	if s.NewScript, err = ReadVarBytes(r, MaxNewScriptLen, "new script"); err != nil {
		return err
	}
	if s.Subsidy, err = readUint64(r); err != nil {
		return err
	}

	var kind [1]byte
	if _, err := io.ReadFull(r, kind[:]); err != nil {
		return err
	}
	switch kind[0] {
	case proofBranch:
		s.MerkleBranch, err = ReadHashList(r, MaxMerkleBranch)
		return err

	case proofTxs:
		n, err := readCount(r, MaxOtherTxs)
		if err != nil {
			return err
		}
		s.OtherTxs = make([]*btcwire.MsgTx, n)
		for i := range s.OtherTxs {
			tx := &btcwire.MsgTx{}
			if err := tx.Deserialize(r); err != nil {
				return err
			}
			s.OtherTxs[i] = tx
		}
		return nil

	default:
		return fmt.Errorf("unknown share proof kind %d", kind[0])
	}
}
