package tracker

import (
	"math/big"
	"sort"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/sharechain/src/share"
	"github.com/sirupsen/logrus"
)

// scoreSkip is the number of newest shares ignored by the secondary score,
// so a head cannot win by stacking fresh shares on an old block.
const scoreSkip = 5

// BlockHeights maps parent-chain block hashes to heights. Unknown blocks
// report 0.
type BlockHeights interface {
	Height(block chainhash.Hash) int64
	BestHeight() int64
}

// Desired is a share the tracker wants, and the peer expected to have it.
type Desired struct {
	Peer PeerID
	Hash chainhash.Hash
}

// Result is the outcome of a Think step.
type Result struct {
	// Best is the head to build on, nil when nothing is verified.
	Best *chainhash.Hash
	// Desired lists missing ancestors, one entry per hash, in hash order.
	Desired []Desired
	// Verified lists the shares verified by this step, parents before
	// children within each chain.
	Verified []chainhash.Hash
}

// Think verifies what can be verified, collects the ancestors worth asking
// for, picks the best verified head and prunes what is no longer needed.
func (t *Tracker) Think(heights BlockHeights, now time.Time) Result {
	var res Result
	desired := make(map[chainhash.Hash]PeerID)
	want := func(h chainhash.Hash, from PeerID) {
		if _, ok := desired[h]; !ok {
			desired[h] = from
		}
	}

	for _, head := range t.Heads() {
		verified, missing := t.verifyFrom(head, now)
		res.Verified = append(res.Verified, verified...)
		if missing != nil {
			want(missing.Hash, missing.Peer)
		}
	}

	for _, head := range t.VerifiedHeads() {
		verified, missing := t.backfill(head, now)
		res.Verified = append(res.Verified, verified...)
		if missing != nil {
			want(missing.Hash, missing.Peer)
		}
	}

	for h, p := range desired {
		res.Desired = append(res.Desired, Desired{Peer: p, Hash: h})
	}
	sort.Slice(res.Desired, func(i, j int) bool {
		return lessHash(res.Desired[i].Hash, res.Desired[j].Hash)
	})
	res.Best = t.best(heights)
	if res.Best != nil {
		t.dropTail(*res.Best)
	}
	t.eatHeads(res.Best, now)
	return res
}

// backfill extends a verified head with fewer than ChainLength verified
// ancestors down into the known shares behind it. A known share is only
// verified when ChainLength known shares stand behind it, unless the run
// reaches the first share of the chain. The parent missing below the run is
// returned as desired.
func (t *Tracker) backfill(head chainhash.Hash, now time.Time) ([]chainhash.Hash, *Desired) {
	cl := t.params.ChainLength
	vh, last, tail := t.follow(head, cl, hasStatus(Verified))
	if vh >= cl || last == nil {
		return nil, nil
	}
	e, ok := t.entries[*last]
	if !ok {
		return nil, &Desired{Peer: tail.from, Hash: *last}
	}
	if e.status != Known {
		return nil, nil
	}

	want := cl - vh
	limit := want + cl + 1
	known, lastLast, oldest := t.follow(*last, limit, hasStatus(Known))
	get := want
	if known < limit {
		can := known
		if lastLast != nil {
			can = known - 1 - cl
		}
		if can < get {
			get = can
		}
	}

	var verified []chainhash.Hash
	for cur := last; len(verified) < get; {
		e := t.entries[*cur]
		if err := e.share.Check(t, t.params, now); err != nil {
			t.logger.WithError(err).WithFields(logrus.Fields{
				"share": e.share.Hash(),
				"from":  e.from,
			}).Debug("Ancestor failed verification")
			break
		}
		t.markVerified(e)
		verified = append(verified, *cur)
		cur = e.share.PreviousHash()
	}
	// parents first
	for i, j := 0, len(verified)-1; i < j; i, j = i+1, j-1 {
		verified[i], verified[j] = verified[j], verified[i]
	}

	if lastLast == nil || known == limit || t.Has(*lastLast) {
		return verified, nil
	}
	return verified, &Desired{Peer: oldest.from, Hash: *lastLast}
}

// verifyFrom walks back from head over unverified shares. The walk ends on a
// verified share, the first share of the chain, an invalid share or a
// missing parent, which is returned as desired. Pending shares are then
// checked oldest first.
func (t *Tracker) verifyFrom(head chainhash.Hash, now time.Time) ([]chainhash.Hash, *Desired) {
	var pending []*entry
	var missing *Desired
	custody := false

	for cur := &head; ; {
		e, ok := t.entries[*cur]
		if !ok {
			missing = &Desired{Peer: pending[len(pending)-1].from, Hash: *cur}
			break
		}
		if e.status == Verified {
			custody = true
			break
		}
		if e.status == Invalid {
			t.invalidate(pending)
			return nil, nil
		}
		pending = append(pending, e)
		if len(pending) > len(t.entries) {
			// cannot happen with Add refusing cycles
			return nil, nil
		}
		cur = e.share.PreviousHash()
		if cur == nil {
			custody = true
			break
		}
	}

	if !custody {
		// The oldest share with ChainLength known ancestors anchors the
		// chain; older ones stay unverified.
		anchor := len(pending) - 1 - t.params.ChainLength
		if anchor < 0 {
			return nil, missing
		}
		pending = pending[:anchor+1]
	}

	var verified []chainhash.Hash
	for i := len(pending) - 1; i >= 0; i-- {
		e := pending[i]
		if err := e.share.Check(t, t.params, now); err != nil {
			t.logger.WithError(err).WithFields(logrus.Fields{
				"share": e.share.Hash(),
				"from":  e.from,
			}).Warn("Share failed verification")
			t.invalidate(pending[:i+1])
			return verified, missing
		}
		t.markVerified(e)
		verified = append(verified, e.share.Hash())
	}
	return verified, missing
}

func (t *Tracker) markVerified(e *entry) {
	e.status = Verified
	h := e.share.Hash()
	if prev := e.share.PreviousHash(); prev != nil {
		delete(t.verifiedHeads, *prev)
	}
	if !t.hasVerifiedChild(h) {
		t.verifiedHeads[h] = struct{}{}
	}
}

func (t *Tracker) invalidate(es []*entry) {
	for _, e := range es {
		e.status = Invalid
	}
}

// Score ranks a verified head.
type Score struct {
	// Height is the known chain length, capped at ChainLength.
	Height int
	// Work is the best ratio of accumulated attempts to the number of
	// parent-chain blocks they span, over the trailing window.
	Work *big.Int
}

// Cmp compares two scores, Height first.
func (s Score) Cmp(o Score) int {
	if s.Height != o.Height {
		if s.Height < o.Height {
			return -1
		}
		return 1
	}
	return s.Work.Cmp(o.Work)
}

// Score computes the score of head. The newest scoreSkip shares are not
// counted in Work. The window of TargetLookbehind shares is then read newest
// first, so each candidate ratio covers the most recent shares.
func (t *Tracker) Score(head chainhash.Hash, heights BlockHeights) Score {
	height, start, _ := t.follow(head, scoreSkip, anyStatus)
	res := Score{Work: new(big.Int)}

	n, _, _ := t.follow(head, t.params.ChainLength, anyStatus)
	res.Height = n
	if height < scoreSkip {
		return res
	}
	window := share.Walk(t, start, t.params.TargetLookbehind)

	best := heights.BestHeight()
	attempts := new(big.Int)
	minBlock := best
	for _, s := range window {
		if bh := heights.Height(s.Header.PrevBlock); bh < minBlock {
			minBlock = bh
		}
		attempts.Add(attempts, s.Attempts())

		span := best - minBlock + 1
		if span < 1 {
			span = 1
		}
		if this := new(big.Int).Div(attempts, big.NewInt(span)); this.Cmp(res.Work) > 0 {
			res.Work = this
		}
	}
	return res
}

// best picks the highest scoring verified head. Equal scores go to the
// lower hash.
func (t *Tracker) best(heights BlockHeights) *chainhash.Hash {
	var bestHash *chainhash.Hash
	var bestScore Score
	for _, h := range t.VerifiedHeads() {
		h := h
		sc := t.Score(h, heights)
		if bestHash == nil || sc.Cmp(bestScore) > 0 {
			bestHash, bestScore = &h, sc
		}
	}
	return bestHash
}
