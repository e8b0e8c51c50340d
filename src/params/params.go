// Package params defines the per-network constants of the share chain.
//
// A Params value is read-only once constructed. The named instances MainNet,
// TestNet and RegTest can coexist in one process; code that needs network
// constants receives a *Params explicitly rather than reading globals.
package params

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg"
)

// Fraction is an exact ratio, used where the payout and retarget rules need
// integer arithmetic.
type Fraction struct {
	Num   int64
	Denom int64
}

// Params holds the constants of one share network.
type Params struct {
	// Name identifies the network on the command line.
	Name string

	// Magic prefixes every frame on the wire.
	Magic [8]byte

	// Identifier is embedded in every generation transaction so shares of
	// different networks can never validate against each other.
	Identifier [8]byte

	// DefaultPort is the P2P listening port.
	DefaultPort uint16

	// SharePeriod is the target time between shares.
	SharePeriod time.Duration

	// ChainLength is the number of shares considered for payouts and the
	// number of verified ancestors the tracker wants behind every head.
	ChainLength int

	// TargetLookbehind is the number of shares used to estimate the pool hash
	// rate for retargeting.
	TargetLookbehind int

	// Spread is the number of blocks' worth of attempts the payout window
	// may cover.
	Spread int64

	// RetargetClip bounds the change of target2 relative to the parent.
	RetargetClip Fraction

	// PoolFee is the part of the subsidy reserved for PoolScript. Rounding
	// remainders go to PoolScript as well.
	PoolFee Fraction

	// PoolScript receives the pool fee and any rounding remainder.
	PoolScript []byte

	// MaxTargetBits is the easiest share target, in compact form. It is used
	// as the default target while the chain is shorter than
	// TargetLookbehind and as the absolute clip of the retarget rule.
	MaxTargetBits uint32

	// SeedAddrs are host:port pairs dialled when the address book is empty.
	SeedAddrs []string

	// ChainParams are the parameters of the parent block chain.
	ChainParams *chaincfg.Params
}

// MaxTarget returns MaxTargetBits expanded to an integer.
func (p *Params) MaxTarget() *big.Int {
	return blockchain.CompactToBig(p.MaxTargetBits)
}

// Validate checks the internal consistency of the parameter set. An invalid
// set is a fatal configuration error.
func (p *Params) Validate() error {
	switch {
	case p == nil:
		return errors.New("no network parameters")
	case p.Name == "":
		return errors.New("network name is empty")
	case p.Magic == [8]byte{}:
		return fmt.Errorf("%s: magic prefix is zero", p.Name)
	case p.SharePeriod <= 0:
		return fmt.Errorf("%s: share period must be positive", p.Name)
	case p.ChainLength < 11:
		return fmt.Errorf("%s: chain length %d is shorter than the timestamp window", p.Name, p.ChainLength)
	case p.TargetLookbehind < 2 || p.TargetLookbehind > p.ChainLength:
		return fmt.Errorf("%s: target lookbehind %d outside [2, %d]", p.Name, p.TargetLookbehind, p.ChainLength)
	case p.Spread <= 0:
		return fmt.Errorf("%s: spread must be positive", p.Name)
	case p.RetargetClip.Denom <= 0 || p.RetargetClip.Num < 0 || p.RetargetClip.Num >= p.RetargetClip.Denom:
		return fmt.Errorf("%s: invalid retarget clip %d/%d", p.Name, p.RetargetClip.Num, p.RetargetClip.Denom)
	case p.PoolFee.Denom <= 0 || p.PoolFee.Num < 0 || p.PoolFee.Num > p.PoolFee.Denom:
		return fmt.Errorf("%s: invalid pool fee %d/%d", p.Name, p.PoolFee.Num, p.PoolFee.Denom)
	case len(p.PoolScript) == 0:
		return fmt.Errorf("%s: pool script is empty", p.Name)
	case p.MaxTarget().Sign() <= 0:
		return fmt.Errorf("%s: max target is not positive", p.Name)
	case p.ChainParams == nil:
		return fmt.Errorf("%s: no parent chain parameters", p.Name)
	}
	return nil
}

// poolScript pays to the key hash 0x20...20 with a standard P2PKH script.
var poolScript = []byte{
	0x76, 0xa9, 0x14,
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
	0x88, 0xac,
}

// MainNet is the production share network on top of bitcoin mainnet.
var MainNet = Params{
	Name:             "mainnet",
	Magic:            [8]byte{0x2f, 0xc6, 0x28, 0x01, 0x33, 0x11, 0x73, 0xd7},
	Identifier:       [8]byte{0xfc, 0x70, 0x03, 0x5c, 0x7a, 0x81, 0xbc, 0x6f},
	DefaultPort:      9333,
	SharePeriod:      10 * time.Second,
	ChainLength:      24 * 60 * 60 / 10,
	TargetLookbehind: 200,
	Spread:           3,
	RetargetClip:     Fraction{Num: 1, Denom: 10},
	PoolFee:          Fraction{Num: 1, Denom: 200},
	PoolScript:       poolScript,
	MaxTargetBits:    0x1d00ffff,
	SeedAddrs:        []string{"p2pool.forre.st:9333"},
	ChainParams:      &chaincfg.MainNetParams,
}

// TestNet runs on bitcoin testnet3 with a shorter chain.
var TestNet = Params{
	Name:             "testnet",
	Magic:            [8]byte{0x5f, 0xc2, 0xbe, 0x2d, 0x4f, 0x07, 0x08, 0x11},
	Identifier:       [8]byte{0x1a, 0xe3, 0x47, 0x9e, 0x4e, 0xb6, 0x70, 0x0a},
	DefaultPort:      19333,
	SharePeriod:      10 * time.Second,
	ChainLength:      24 * 60 * 60 / 10 / 4,
	TargetLookbehind: 200,
	Spread:           3,
	RetargetClip:     Fraction{Num: 1, Denom: 10},
	PoolFee:          Fraction{Num: 1, Denom: 200},
	PoolScript:       poolScript,
	MaxTargetBits:    0x1d00ffff,
	ChainParams:      &chaincfg.TestNet3Params,
}

// RegTest is a local network with a trivial share target, for development and
// tests. Roughly every other header hash meets its easiest target.
var RegTest = Params{
	Name:             "regtest",
	Magic:            [8]byte{0x72, 0x65, 0x67, 0x74, 0x65, 0x73, 0x74, 0x01},
	Identifier:       [8]byte{0x72, 0x65, 0x67, 0x73, 0x68, 0x61, 0x72, 0x65},
	DefaultPort:      29333,
	SharePeriod:      time.Second,
	ChainLength:      32,
	TargetLookbehind: 16,
	Spread:           3,
	RetargetClip:     Fraction{Num: 1, Denom: 10},
	PoolFee:          Fraction{Num: 1, Denom: 200},
	PoolScript:       poolScript,
	MaxTargetBits:    0x207fffff,
	ChainParams:      &chaincfg.RegressionNetParams,
}

var byName = map[string]*Params{
	MainNet.Name: &MainNet,
	TestNet.Name: &TestNet,
	RegTest.Name: &RegTest,
}

// ByName returns the named parameter set.
func ByName(name string) (*Params, error) {
	p, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown network %q", name)
	}
	return p, nil
}
