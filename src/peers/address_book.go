package peers

import (
	"math/rand"
	"sort"
	"sync"
	"time"
)

// AddressBook maps addresses to entries. It is safe for concurrent use.
type AddressBook struct {
	sync.RWMutex
	entries map[Addr]*Entry

	// maxEntries bounds the book; 0 means unbounded. When full, the entry
	// seen least recently is evicted.
	maxEntries int
}

// NewAddressBook returns an empty book holding at most maxEntries entries.
func NewAddressBook(maxEntries int) *AddressBook {
	return &AddressBook{
		entries:    make(map[Addr]*Entry),
		maxEntries: maxEntries,
	}
}

// Record notes a sighting of addr at seen. It returns true when the address
// was new. Existing entries keep their first_seen, and last_seen only moves
// forward.
func (b *AddressBook) Record(addr Addr, services uint64, seen time.Time) bool {
	b.Lock()
	defer b.Unlock()

	if e, ok := b.entries[addr]; ok {
		e.Services = services
		if seen.After(e.LastSeen) {
			e.LastSeen = seen
		}
		return false
	}

	if b.maxEntries > 0 && len(b.entries) >= b.maxEntries {
		b.evictOldest()
	}
	b.entries[addr] = &Entry{
		Addr:      addr,
		Services:  services,
		FirstSeen: seen,
		LastSeen:  seen,
	}
	return true
}

func (b *AddressBook) evictOldest() {
	var oldest *Entry
	for _, e := range b.entries {
		if oldest == nil || e.LastSeen.Before(oldest.LastSeen) {
			oldest = e
		}
	}
	if oldest != nil {
		delete(b.entries, oldest.Addr)
	}
}

// Load replaces the content of the book with entries, as read from a store.
func (b *AddressBook) Load(entries []Entry) {
	b.Lock()
	defer b.Unlock()

	b.entries = make(map[Addr]*Entry, len(entries))
	for i := range entries {
		e := entries[i]
		b.entries[e.Addr] = &e
	}
}

// Get returns a copy of the entry for addr.
func (b *AddressBook) Get(addr Addr) (Entry, bool) {
	b.RLock()
	defer b.RUnlock()

	e, ok := b.entries[addr]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of entries.
func (b *AddressBook) Len() int {
	b.RLock()
	defer b.RUnlock()

	return len(b.entries)
}

// Entries returns a copy of all entries, ordered by address.
func (b *AddressBook) Entries() []Entry {
	b.RLock()
	defer b.RUnlock()

	res := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		res = append(res, *e)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Addr.String() < res[j].Addr.String()
	})
	return res
}

// Sample returns up to n entries chosen at random.
func (b *AddressBook) Sample(n int, rng *rand.Rand) []Entry {
	all := b.Entries()
	rng.Shuffle(len(all), func(i, j int) {
		all[i], all[j] = all[j], all[i]
	})
	if n < len(all) {
		all = all[:n]
	}
	return all
}

// RecordAttempt notes that a dial to addr started at now.
func (b *AddressBook) RecordAttempt(addr Addr, now time.Time) {
	b.Lock()
	defer b.Unlock()

	if e, ok := b.entries[addr]; ok {
		e.LastAttempt = now
	}
}

// RecordFailure counts a failed dial against addr.
func (b *AddressBook) RecordFailure(addr Addr) int {
	b.Lock()
	defer b.Unlock()

	e, ok := b.entries[addr]
	if !ok {
		return 0
	}
	e.Failures++
	return e.Failures
}

// RecordSuccess clears the failures of addr.
func (b *AddressBook) RecordSuccess(addr Addr) {
	b.Lock()
	defer b.Unlock()

	if e, ok := b.entries[addr]; ok {
		e.Failures = 0
	}
}
