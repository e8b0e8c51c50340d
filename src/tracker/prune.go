package tracker

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/sirupsen/logrus"
)

const (
	// HeadTTL is how long a head other than the best may go without
	// children before it is removed.
	HeadTTL = 5 * time.Minute

	// maxEaten bounds the heads removed by one Think step.
	maxEaten = 1000

	// tailSlack is kept behind the best head on top of twice ChainLength.
	tailSlack = 10
)

// dropTail removes the shares more than 2*ChainLength+tailSlack behind best,
// along with every fork branching off them. Add refuses them afterwards, so
// peers cannot feed the old history back in.
func (t *Tracker) dropTail(best chainhash.Hash) int {
	keep := t.nth(best, 2*t.params.ChainLength+tailSlack-1)
	if keep == nil {
		return 0
	}
	e, ok := t.entries[*keep]
	if !ok {
		return 0
	}

	var run []chainhash.Hash
	for cur := e.share.PreviousHash(); cur != nil; {
		e, ok := t.entries[*cur]
		if !ok {
			break
		}
		run = append(run, *cur)
		cur = e.share.PreviousHash()
	}
	if len(run) == 0 {
		return 0
	}

	dropped := 0
	above := *keep
	for _, h := range run {
		for _, kid := range sortedHashes(t.children[h]) {
			if kid != above {
				dropped += t.removeTree(kid)
			}
		}
		above = h
	}
	for _, h := range run {
		t.remove(h)
		t.dropped.Add(h, struct{}{})
		dropped++
	}
	t.logger.WithFields(logrus.Fields{
		"below":   keep,
		"dropped": dropped,
	}).Debug("Dropped old shares")
	return dropped
}

// eatHeads removes heads, other than best, that were added more than HeadTTL
// before now. A removed head may expose its parent as a head, which the next
// round removes in turn, so stale forks shrink back to where they branched.
func (t *Tracker) eatHeads(best *chainhash.Hash, now time.Time) int {
	eaten := 0
	for eaten < maxEaten {
		var stale []chainhash.Hash
		for _, h := range t.Heads() {
			if best != nil && h == *best {
				continue
			}
			if now.Sub(t.entries[h].seen) < HeadTTL {
				continue
			}
			stale = append(stale, h)
		}
		if len(stale) == 0 {
			break
		}
		for _, h := range stale {
			if eaten == maxEaten {
				break
			}
			t.remove(h)
			eaten++
		}
	}
	if eaten > 0 {
		t.logger.WithField("eaten", eaten).Debug("Removed stale heads")
	}
	return eaten
}

// removeTree removes root and all its known descendants, children first.
// They are remembered as dropped.
func (t *Tracker) removeTree(root chainhash.Hash) int {
	var order []chainhash.Hash
	stack := []chainhash.Hash{root}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := t.entries[h]; !ok {
			continue
		}
		order = append(order, h)
		for kid := range t.children[h] {
			stack = append(stack, kid)
		}
	}
	for i := len(order) - 1; i >= 0; i-- {
		t.remove(order[i])
		t.dropped.Add(order[i], struct{}{})
	}
	return len(order)
}

// remove deletes h from the graph. The parent becomes a head when h was its
// last child, and a verified head when h was its last verified child. The
// children of h keep pointing at it.
func (t *Tracker) remove(h chainhash.Hash) {
	e, ok := t.entries[h]
	if !ok {
		return
	}
	delete(t.entries, h)
	delete(t.heads, h)
	delete(t.verifiedHeads, h)
	if len(t.children[h]) == 0 {
		delete(t.children, h)
	}

	prev := e.share.PreviousHash()
	if prev == nil {
		return
	}
	kids := t.children[*prev]
	delete(kids, h)
	if len(kids) == 0 {
		delete(t.children, *prev)
	}
	parent, ok := t.entries[*prev]
	if !ok {
		return
	}
	if len(kids) == 0 {
		t.heads[*prev] = struct{}{}
	}
	if parent.status == Verified && !t.hasVerifiedChild(*prev) {
		t.verifiedHeads[*prev] = struct{}{}
	}
}

func (t *Tracker) hasVerifiedChild(h chainhash.Hash) bool {
	for kid := range t.children[h] {
		if k, ok := t.entries[kid]; ok && k.status == Verified {
			return true
		}
	}
	return false
}
