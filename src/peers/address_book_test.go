package peers

import (
	"io/ioutil"
	"math/rand"
	"net"
	"os"
	"testing"
	"time"

	"github.com/mosaicnetworks/sharechain/src/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1700000000, 0)

func TestRecordKeepsFirstSeen(t *testing.T) {
	b := NewAddressBook(0)
	a := Addr{Host: "10.0.0.1", Port: 9333}

	require.True(t, b.Record(a, 1, t0))
	e, ok := b.Get(a)
	require.True(t, ok)
	assert.Equal(t, e.FirstSeen, e.LastSeen)

	require.False(t, b.Record(a, 1, t0.Add(time.Minute)))
	e, _ = b.Get(a)
	assert.Equal(t, t0, e.FirstSeen)
	assert.Equal(t, t0.Add(time.Minute), e.LastSeen)

	// an older sighting never moves last_seen back
	b.Record(a, 3, t0.Add(time.Second))
	e, _ = b.Get(a)
	assert.Equal(t, t0.Add(time.Minute), e.LastSeen)
	assert.Equal(t, uint64(3), e.Services)
	assert.Equal(t, 1, b.Len())
}

func TestEvictsLeastRecentlySeen(t *testing.T) {
	b := NewAddressBook(2)
	b.Record(Addr{Host: "10.0.0.1", Port: 1}, 0, t0.Add(time.Hour))
	b.Record(Addr{Host: "10.0.0.2", Port: 1}, 0, t0)
	b.Record(Addr{Host: "10.0.0.3", Port: 1}, 0, t0.Add(2*time.Hour))

	require.Equal(t, 2, b.Len())
	_, ok := b.Get(Addr{Host: "10.0.0.2", Port: 1})
	require.False(t, ok)
}

func TestFailures(t *testing.T) {
	b := NewAddressBook(0)
	a := Addr{Host: "10.0.0.1", Port: 9333}
	b.Record(a, 0, t0)

	assert.Equal(t, 1, b.RecordFailure(a))
	assert.Equal(t, 2, b.RecordFailure(a))
	b.RecordSuccess(a)
	e, _ := b.Get(a)
	assert.Equal(t, 0, e.Failures)

	assert.Equal(t, 0, b.RecordFailure(Addr{Host: "unknown", Port: 1}))
}

func TestSample(t *testing.T) {
	b := NewAddressBook(0)
	for i := 0; i < 10; i++ {
		b.Record(Addr{Host: "10.0.0.1", Port: uint16(i)}, 0, t0)
	}
	rng := rand.New(rand.NewSource(3))

	got := b.Sample(4, rng)
	require.Len(t, got, 4)
	seen := map[Addr]bool{}
	for _, e := range got {
		require.False(t, seen[e.Addr])
		seen[e.Addr] = true
	}
	require.Len(t, b.Sample(100, rng), 10)
}

func TestAddrConversions(t *testing.T) {
	na := wire.NetAddress{IP: net.ParseIP("192.168.0.9"), Port: 9333}
	a := AddrFromNetAddress(na)
	assert.Equal(t, Addr{Host: "192.168.0.9", Port: 9333}, a)
	assert.Equal(t, "192.168.0.9:9333", a.String())
	assert.True(t, a.NetAddress(0).IP.Equal(na.IP))

	p, err := ParseAddr("[2001:db8::1]:19333")
	require.NoError(t, err)
	assert.Equal(t, Addr{Host: "2001:db8::1", Port: 19333}, p)

	_, err = ParseAddr("example.com:99999")
	require.Error(t, err)
}

func TestJSONSeeds(t *testing.T) {
	dir, err := ioutil.TempDir("", "sharechain")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	store := NewJSONSeeds(dir)

	// Try a read, should get nothing
	if _, err := store.Seeds(); err == nil {
		t.Fatalf("store.Seeds() should generate an error")
	}

	seeds := []Addr{
		{Host: "seed.example.org", Port: 9333},
		{Host: "10.1.2.3", Port: 9334},
	}
	if err := store.Write(seeds); err != nil {
		t.Fatalf("err: %v", err)
	}

	got, err := store.Seeds()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(got) != 2 || got[0] != seeds[0] || got[1] != seeds[1] {
		t.Fatalf("seeds: %v", got)
	}
}
