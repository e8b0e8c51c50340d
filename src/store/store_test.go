package store

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/mosaicnetworks/sharechain/src/common"
	"github.com/mosaicnetworks/sharechain/src/peers"
	"github.com/mosaicnetworks/sharechain/src/share"
	"github.com/mosaicnetworks/sharechain/src/wire"
)

func testShares(t *testing.T, n int) []*share.Share {
	var res []*share.Share
	var prev *chainhash.Hash
	for i := 0; i < n; i++ {
		raw := &wire.RawShare{
			Header: btcwire.BlockHeader{
				Version:   2,
				Timestamp: time.Unix(1700000000+int64(i), 0),
				Bits:      0x207fffff,
				Nonce:     uint32(i),
			},
			Info: wire.ShareInfo{
				PreviousShareHash: prev,
				Target2:           0x207fffff,
				Nonce:             []byte{byte(i)},
			},
			NewScript:    []byte{0x51},
			Subsidy:      5000,
			MerkleBranch: []chainhash.Hash{{byte(i)}},
		}
		s, err := share.FromWire(raw)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		h := s.Hash()
		prev = &h
		res = append(res, s)
	}
	return res
}

func testEntries() []peers.Entry {
	t0 := time.Unix(1700000000, 0)
	return []peers.Entry{
		{
			Addr:      peers.Addr{Host: "10.0.0.1", Port: 9333},
			Services:  1,
			FirstSeen: t0,
			LastSeen:  t0.Add(time.Hour),
		},
		{
			Addr:        peers.Addr{Host: "2001:db8::2", Port: 19333},
			FirstSeen:   t0,
			LastSeen:    t0,
			Failures:    2,
			LastAttempt: t0.Add(time.Minute),
		},
	}
}

// exercise runs the same checks against any Store.
func exercise(t *testing.T, s Store) {
	shares := testShares(t, 5)
	if err := s.SaveShares(shares[:3]); err != nil {
		t.Fatalf("err: %v", err)
	}
	// overlapping save
	if err := s.SaveShares(shares[2:]); err != nil {
		t.Fatalf("err: %v", err)
	}

	loaded, err := s.LoadShares()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(loaded) != 5 {
		t.Fatalf("loaded %d shares, want 5", len(loaded))
	}
	got := map[chainhash.Hash]bool{}
	for _, sh := range loaded {
		got[sh.Hash()] = true
	}
	for i, sh := range shares {
		if !got[sh.Hash()] {
			t.Fatalf("share %d missing", i)
		}
	}

	entries := testEntries()
	if err := s.SaveAddressBook(entries); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := s.SaveAddressBook(entries[1:]); err != nil {
		t.Fatalf("err: %v", err)
	}
	book, err := s.LoadAddressBook()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(book) != 1 {
		t.Fatalf("book has %d entries, want 1", len(book))
	}
	e := book[0]
	if e.Addr != entries[1].Addr || e.Failures != 2 || !e.LastAttempt.Equal(entries[1].LastAttempt) ||
		!e.FirstSeen.Equal(entries[1].FirstSeen) {
		t.Fatalf("entry %+v", e)
	}
}

func TestInmemStore(t *testing.T) {
	exercise(t, NewInmemStore())
}

func TestBadgerStore(t *testing.T) {
	dir, err := ioutil.TempDir("", "badger")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	logger := common.NewTestEntry(t, "store")
	store, err := NewBadgerStore(dir, logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	exercise(t, store)

	shares := testShares(t, 2)
	if _, err := store.GetShare(shares[1].Hash().String()); err != nil {
		t.Fatalf("err: %v", err)
	}
	_, err = store.GetShare(chainhash.Hash{7}.String())
	if !common.IsStore(err, common.KeyNotFound) {
		t.Fatalf("expected KeyNotFound, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("err: %v", err)
	}

	// reopen and read back
	store, err = NewBadgerStore(dir, logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer store.Close()

	loaded, err := store.LoadShares()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(loaded) != 5 {
		t.Fatalf("loaded %d shares after reopen", len(loaded))
	}
	book, err := store.LoadAddressBook()
	if err != nil || len(book) != 1 {
		t.Fatalf("book %v, err %v", book, err)
	}
}
