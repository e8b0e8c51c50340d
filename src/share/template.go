package share

import (
	"errors"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/mosaicnetworks/sharechain/src/common"
	"github.com/mosaicnetworks/sharechain/src/params"
	"github.com/mosaicnetworks/sharechain/src/wire"
)

// ErrNotSolved is returned by Solve when no nonce in range met the target.
var ErrNotSolved = errors.New("no solution found")

// TemplateRequest carries what the block source and the miner contribute to
// a new share.
type TemplateRequest struct {
	PreviousShare *chainhash.Hash
	NewScript     []byte
	Subsidy       int64
	Nonce         []byte

	BlockVersion  int32
	PreviousBlock chainhash.Hash
	BlockBits     uint32
	Transactions  []*btcwire.MsgTx

	Timestamp time.Time
}

// Template is an unsolved share: everything is fixed except the header nonce.
type Template struct {
	Header       btcwire.BlockHeader
	Info         wire.ShareInfo
	NewScript    []byte
	Subsidy      int64
	Generation   *btcwire.MsgTx
	Transactions []*btcwire.MsgTx
	MerkleBranch []chainhash.Hash
}

// NewTemplate builds the generation transaction and the block header for a
// share on top of req.PreviousShare.
func NewTemplate(chain Chain, p *params.Params, req *TemplateRequest) (*Template, error) {
	if len(req.NewScript) > wire.MaxNewScriptLen {
		return nil, common.Failuref(common.ValidationFailure, "new script of %d bytes", len(req.NewScript))
	}
	if len(req.Nonce) > wire.MaxShareNonceLen {
		return nil, common.Failuref(common.ValidationFailure, "share nonce of %d bytes", len(req.Nonce))
	}
	if req.PreviousShare != nil && chain.Get(*req.PreviousShare) == nil {
		return nil, common.Failuref(common.ValidationFailure, "unknown previous share %s", req.PreviousShare)
	}

	info := wire.ShareInfo{
		PreviousShareHash:  req.PreviousShare,
		PreviousSharesHash: PreviousSharesHash(chain, req.PreviousShare, PayoutWindow(chain, req.PreviousShare, p)),
		Target2:            NextTarget(chain, req.PreviousShare, p),
		Nonce:              req.Nonce,
	}

	gentx, err := GenerationTx(chain, &info, req.NewScript, req.Subsidy, req.BlockBits, p)
	if err != nil {
		return nil, err
	}

	txs := make([]*btcwire.MsgTx, 0, len(req.Transactions)+1)
	txs = append(txs, gentx)
	txs = append(txs, req.Transactions...)

	ts := req.Timestamp.Truncate(time.Second)
	if earliest := MinTimestamp(chain, req.PreviousShare); ts.Before(earliest) {
		ts = earliest
	}

	return &Template{
		Header: btcwire.BlockHeader{
			Version:    req.BlockVersion,
			PrevBlock:  req.PreviousBlock,
			MerkleRoot: MerkleRoot(txs),
			Timestamp:  ts,
			Bits:       req.BlockBits,
		},
		Info:         info,
		NewScript:    req.NewScript,
		Subsidy:      req.Subsidy,
		Generation:   gentx,
		Transactions: req.Transactions,
		MerkleBranch: MerkleBranch(txs),
	}, nil
}

// Share returns the share for the current header nonce, whether or not it
// meets the target.
func (t *Template) Share() *Share {
	s := &Share{
		Header:       t.Header,
		Info:         t.Info,
		NewScript:    t.NewScript,
		Subsidy:      t.Subsidy,
		MerkleBranch: t.MerkleBranch,
	}
	s.hash = s.Header.BlockHash()
	return s
}

// Solve grinds the header nonce, starting from its current value, until the
// header hash meets target2. It gives up after maxTries attempts.
func (t *Template) Solve(maxTries uint32) (*Share, error) {
	for i := uint32(0); i < maxTries; i++ {
		if s := t.Share(); s.MeetsShareTarget() {
			return s, nil
		}
		t.Header.Nonce++
	}
	return nil, ErrNotSolved
}

// Block assembles the parent-chain block for a solved share.
func (t *Template) Block(s *Share) *btcwire.MsgBlock {
	block := btcwire.NewMsgBlock(&s.Header)
	block.AddTransaction(t.Generation)
	for _, tx := range t.Transactions {
		block.AddTransaction(tx)
	}
	return block
}
