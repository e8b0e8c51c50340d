// Package tracker holds the graph of known shares and decides which of them
// are verified and which head the node builds on.
//
// A Tracker is not safe for concurrent use. The node owns it from a single
// goroutine and peers reach it by message passing.
package tracker

import (
	"errors"
	"sort"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mosaicnetworks/sharechain/src/params"
	"github.com/mosaicnetworks/sharechain/src/share"
	"github.com/sirupsen/logrus"
)

var (
	// ErrCycle is returned by Add for a share that would be its own
	// ancestor.
	ErrCycle = errors.New("share would be its own ancestor")

	// ErrDropped is returned by Add for a share recently dropped from the
	// tail of the best chain.
	ErrDropped = errors.New("share too far behind the best chain")
)

// droppedMemory is how many dropped shares Add keeps refusing.
const droppedMemory = 10000

// Status is the verification state of a share in the tracker.
type Status int

const (
	// Known shares are stored but not verified yet.
	Known Status = iota
	// Verified shares passed Check and descend from a verified share, the
	// first share of the chain, or a trust anchor.
	Verified
	// Invalid shares failed Check or descend from one that did.
	Invalid
)

func (s Status) String() string {
	switch s {
	case Known:
		return "Known"
	case Verified:
		return "Verified"
	case Invalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// PeerID identifies the connection a share came from. LocalPeer marks shares
// produced or loaded locally.
type PeerID uint64

// LocalPeer is the PeerID of shares that did not come from the network.
const LocalPeer PeerID = 0

type entry struct {
	share  *share.Share
	status Status
	from   PeerID
	seen   time.Time
}

type hashSet map[chainhash.Hash]struct{}

// Tracker is the share graph.
type Tracker struct {
	params *params.Params

	entries       map[chainhash.Hash]*entry
	children      map[chainhash.Hash]hashSet
	heads         hashSet
	verifiedHeads hashSet
	dropped       *lru.Cache[chainhash.Hash, struct{}]

	clock  func() time.Time
	logger *logrus.Entry
}

// NewTracker returns an empty Tracker for the given network.
func NewTracker(p *params.Params, logger *logrus.Entry) *Tracker {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}
	// the size is positive, New cannot fail
	dropped, _ := lru.New[chainhash.Hash, struct{}](droppedMemory)
	return &Tracker{
		params:        p,
		entries:       make(map[chainhash.Hash]*entry),
		children:      make(map[chainhash.Hash]hashSet),
		heads:         make(hashSet),
		verifiedHeads: make(hashSet),
		dropped:       dropped,
		clock:         time.Now,
		logger:        logger,
	}
}

// Add inserts s as Known. Adding a share twice is a no-op and returns false.
func (t *Tracker) Add(s *share.Share, from PeerID) (bool, error) {
	h := s.Hash()
	if _, ok := t.entries[h]; ok {
		return false, nil
	}
	if t.dropped.Contains(h) {
		return false, ErrDropped
	}

	prev := s.PreviousHash()
	if prev != nil {
		if *prev == h {
			return false, ErrCycle
		}
		// Only a share that something already points to can close a loop.
		if len(t.children[h]) > 0 && t.reaches(*prev, h) {
			return false, ErrCycle
		}
	}

	t.entries[h] = &entry{share: s, status: Known, from: from, seen: t.clock()}

	if prev != nil {
		kids, ok := t.children[*prev]
		if !ok {
			kids = make(hashSet)
			t.children[*prev] = kids
		}
		kids[h] = struct{}{}
		delete(t.heads, *prev)
	}
	if len(t.children[h]) == 0 {
		t.heads[h] = struct{}{}
	}
	return true, nil
}

// reaches reports whether target is start or one of its known ancestors.
func (t *Tracker) reaches(start, target chainhash.Hash) bool {
	seen := make(hashSet)
	for cur := &start; cur != nil; {
		if *cur == target {
			return true
		}
		if _, ok := seen[*cur]; ok {
			return false
		}
		seen[*cur] = struct{}{}
		e, ok := t.entries[*cur]
		if !ok {
			return false
		}
		cur = e.share.PreviousHash()
	}
	return false
}

// Get implements share.Chain.
func (t *Tracker) Get(h chainhash.Hash) *share.Share {
	if e, ok := t.entries[h]; ok {
		return e.share
	}
	return nil
}

// Has reports whether h is known.
func (t *Tracker) Has(h chainhash.Hash) bool {
	_, ok := t.entries[h]
	return ok
}

// Status returns the status of h.
func (t *Tracker) Status(h chainhash.Hash) (Status, bool) {
	e, ok := t.entries[h]
	if !ok {
		return Known, false
	}
	return e.status, true
}

// From returns the peer a share was received from.
func (t *Tracker) From(h chainhash.Hash) (PeerID, bool) {
	e, ok := t.entries[h]
	if !ok {
		return LocalPeer, false
	}
	return e.from, true
}

// HeightAndLast implements share.Chain. The walk is bounded by the number of
// known shares.
func (t *Tracker) HeightAndLast(h chainhash.Hash) (int, *chainhash.Hash) {
	limit := len(t.entries) + 1
	height, last, _ := t.follow(h, limit, anyStatus)
	if height == limit {
		return height, nil
	}
	return height, last
}

func anyStatus(*entry) bool { return true }

func hasStatus(st Status) func(*entry) bool {
	return func(e *entry) bool { return e.status == st }
}

// follow walks back from h over at most limit known shares accepted by ok.
// It returns how many it passed, the first hash it did not pass (nil at the
// first share of the chain) and the oldest entry passed.
func (t *Tracker) follow(h chainhash.Hash, limit int, ok func(*entry) bool) (int, *chainhash.Hash, *entry) {
	var tail *entry
	n := 0
	cur := &h
	for cur != nil && n < limit {
		e, found := t.entries[*cur]
		if !found || !ok(e) {
			break
		}
		n++
		tail = e
		cur = e.share.PreviousHash()
	}
	return n, cur, tail
}

// nth returns the hash n parents behind h, or nil when the chain is shorter.
func (t *Tracker) nth(h chainhash.Hash, n int) *chainhash.Hash {
	passed, cur, _ := t.follow(h, n, anyStatus)
	if passed < n {
		return nil
	}
	return cur
}

// Len returns the number of known shares.
func (t *Tracker) Len() int {
	return len(t.entries)
}

// Counts returns the number of shares per status.
func (t *Tracker) Counts() map[Status]int {
	res := make(map[Status]int, 3)
	for _, e := range t.entries {
		res[e.status]++
	}
	return res
}

// Heads returns the shares without known children, in hash order.
func (t *Tracker) Heads() []chainhash.Hash {
	return sortedHashes(t.heads)
}

// VerifiedHeads returns the verified shares without verified children, in
// hash order.
func (t *Tracker) VerifiedHeads() []chainhash.Hash {
	return sortedHashes(t.verifiedHeads)
}

// VerifiedShares returns the verified shares, parents before children.
func (t *Tracker) VerifiedShares() []*share.Share {
	var res []*share.Share
	for _, h := range t.VerifiedHeads() {
		var chain []*share.Share
		for cur := &h; cur != nil; {
			e, ok := t.entries[*cur]
			if !ok || e.status != Verified {
				break
			}
			chain = append(chain, e.share)
			cur = e.share.PreviousHash()
		}
		for i := len(chain) - 1; i >= 0; i-- {
			res = append(res, chain[i])
		}
	}
	return dedupe(res)
}

func dedupe(shares []*share.Share) []*share.Share {
	seen := make(hashSet, len(shares))
	res := shares[:0]
	for _, s := range shares {
		if _, ok := seen[s.Hash()]; ok {
			continue
		}
		seen[s.Hash()] = struct{}{}
		res = append(res, s)
	}
	return res
}

func sortedHashes(set hashSet) []chainhash.Hash {
	res := make([]chainhash.Hash, 0, len(set))
	for h := range set {
		res = append(res, h)
	}
	sort.Slice(res, func(i, j int) bool {
		return lessHash(res[i], res[j])
	})
	return res
}

func lessHash(a, b chainhash.Hash) bool {
	for i := chainhash.HashSize - 1; i >= 0; i-- {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
