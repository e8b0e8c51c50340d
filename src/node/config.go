package node

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/sharechain/src/common"
	"github.com/mosaicnetworks/sharechain/src/peers"
	"github.com/sirupsen/logrus"
)

// Default node settings.
const (
	DefaultDesiredOutgoing   = 6
	DefaultMaxIncoming       = 40
	DefaultMaxDialAttempts   = 5
	DefaultDialInterval      = time.Second
	DefaultDialTimeout       = 5 * time.Second
	DefaultDialBackoff       = 10 * time.Second
	DefaultMaxDialBackoff    = 10 * time.Minute
	DefaultBindRetry         = 10 * time.Second
	DefaultThinkInterval     = 5 * time.Second
	DefaultPersistInterval   = time.Minute
	DefaultDesiredTTL        = 10 * time.Second
	DefaultHeightPoll        = 15 * time.Second
	DefaultMaxAddresses      = 1000
	DefaultMinAddresses      = 5
	DefaultGossipProbability = 0.8
	DefaultCacheSize         = 10000
)

// Config holds the settings of the peer manager.
type Config struct {
	// ListenPort is advertised to peers. Zero disables addrme gossip.
	ListenPort uint16 `mapstructure:"listen-port"`

	DesiredOutgoing int           `mapstructure:"outgoing"`
	MaxIncoming     int           `mapstructure:"max-incoming"`
	MaxDialAttempts int           `mapstructure:"max-dial-attempts"`
	DialInterval    time.Duration `mapstructure:"dial-interval"`
	DialTimeout     time.Duration `mapstructure:"dial-timeout"`
	DialBackoff     time.Duration `mapstructure:"dial-backoff"`
	MaxDialBackoff  time.Duration `mapstructure:"max-dial-backoff"`

	// BindRetry is the delay between attempts to bind the listener.
	BindRetry time.Duration `mapstructure:"bind-retry"`

	ThinkInterval   time.Duration `mapstructure:"think-interval"`
	PersistInterval time.Duration `mapstructure:"persist-interval"`

	// DesiredTTL is how long a getshares request for a hash suppresses
	// another one.
	DesiredTTL time.Duration `mapstructure:"desired-ttl"`

	// HeightPoll is the interval of parent chain height refreshes.
	HeightPoll time.Duration `mapstructure:"height-poll"`

	// MaxAddresses bounds the address book. Below MinAddresses the node asks
	// peers for more.
	MaxAddresses int `mapstructure:"max-addresses"`
	MinAddresses int `mapstructure:"min-addresses"`

	// GossipProbability is the chance that a received address is forwarded
	// to a random peer.
	GossipProbability float64 `mapstructure:"gossip-probability"`

	CacheSize int `mapstructure:"cache-size"`

	SubVersion string `mapstructure:"-"`

	// Seeds are dialled, on top of the network's seeds, while the address
	// book has no better candidates.
	Seeds []peers.Addr `mapstructure:"-"`

	// AddrInterval and AddrBase set the mean addrme interval of a connection
	// to AddrInterval * peers + AddrBase.
	AddrInterval time.Duration `mapstructure:"-"`
	AddrBase     time.Duration `mapstructure:"-"`
	PingInterval time.Duration `mapstructure:"-"`

	Logger *logrus.Logger `mapstructure:"-"`
}

// DefaultConfig returns the default settings with a debug logger.
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		DesiredOutgoing:   DefaultDesiredOutgoing,
		MaxIncoming:       DefaultMaxIncoming,
		MaxDialAttempts:   DefaultMaxDialAttempts,
		DialInterval:      DefaultDialInterval,
		DialTimeout:       DefaultDialTimeout,
		DialBackoff:       DefaultDialBackoff,
		MaxDialBackoff:    DefaultMaxDialBackoff,
		BindRetry:         DefaultBindRetry,
		ThinkInterval:     DefaultThinkInterval,
		PersistInterval:   DefaultPersistInterval,
		DesiredTTL:        DefaultDesiredTTL,
		HeightPoll:        DefaultHeightPoll,
		MaxAddresses:      DefaultMaxAddresses,
		MinAddresses:      DefaultMinAddresses,
		GossipProbability: DefaultGossipProbability,
		CacheSize:         DefaultCacheSize,
		AddrInterval:      100 * time.Second,
		AddrBase:          time.Second,
		PingInterval:      100 * time.Second,
		Logger:            logger,
	}
}

// TestConfig returns settings with short intervals and a logger that writes
// through t.
func TestConfig(t testing.TB) *Config {
	conf := DefaultConfig()
	conf.DialInterval = 20 * time.Millisecond
	conf.DialBackoff = 50 * time.Millisecond
	conf.MaxDialBackoff = 200 * time.Millisecond
	conf.DialTimeout = time.Second
	conf.BindRetry = 50 * time.Millisecond
	conf.ThinkInterval = 50 * time.Millisecond
	conf.PersistInterval = time.Hour
	conf.HeightPoll = 50 * time.Millisecond
	conf.AddrInterval = time.Hour
	conf.AddrBase = time.Hour
	conf.PingInterval = 0
	conf.Logger = common.NewTestLogger(t)
	return conf
}
