package config

import (
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/mosaicnetworks/sharechain/src/blocksource"
	"github.com/mosaicnetworks/sharechain/src/common"
	snet "github.com/mosaicnetworks/sharechain/src/net"
	"github.com/mosaicnetworks/sharechain/src/node"
	"github.com/mosaicnetworks/sharechain/src/params"
	"github.com/mosaicnetworks/sharechain/src/peers"
	"github.com/mosaicnetworks/sharechain/src/share"
	"github.com/mosaicnetworks/sharechain/src/store"
	"github.com/mosaicnetworks/sharechain/src/version"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel    = "debug"
	DefaultNetwork     = "mainnet"
	DefaultBindAddr    = "0.0.0.0:9333"
	DefaultServiceAddr = "127.0.0.1:9332"
	DefaultRPCHost     = "127.0.0.1:8332"
	DefaultStore       = false
)

// Config contains all the configuration properties of a share-chain node.
type Config struct {
	// DataDir is the top-level directory containing the configuration file,
	// the seed list and the database.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of the info and higher entries.
	LogFile string `mapstructure:"log-file"`

	// Network selects the parameter set: mainnet, testnet or regtest.
	Network string `mapstructure:"network"`

	// BindAddr is the local address:port where the node accepts peers. An
	// empty port uses the default port of the network.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Seeds are extra host:port addresses to bootstrap from. They are merged
	// with the seeds.json file of the data directory.
	Seeds []string `mapstructure:"seeds"`

	// PayoutAddress receives the rewards of locally mined shares.
	PayoutAddress string `mapstructure:"payout-address"`

	// Mine runs a CPU miner on top of the node.
	Mine bool `mapstructure:"mine"`

	// RPC access to the parent chain daemon.
	RPCHost string `mapstructure:"rpc-host"`
	RPCUser string `mapstructure:"rpc-user"`
	RPCPass string `mapstructure:"rpc-pass"`

	// Store activates persistent storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// Node holds the peer manager settings.
	Node node.Config `mapstructure:",squash"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:     DefaultDataDir(),
		LogLevel:    DefaultLogLevel,
		Network:     DefaultNetwork,
		BindAddr:    DefaultBindAddr,
		ServiceAddr: DefaultServiceAddr,
		RPCHost:     DefaultRPCHost,
		Store:       DefaultStore,
		DatabaseDir: DefaultDatabaseDir(),
		Node:        *node.DefaultConfig(),
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.Network = params.RegTest.Name
	config.DataDir = t.TempDir()
	config.DatabaseDir = filepath.Join(config.DataDir, DefaultBadgerFile)
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Params returns the parameter set of the configured network.
func (c *Config) Params() (*params.Params, error) {
	p, err := params.ByName(c.Network)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ListenAddr returns BindAddr with the default port of p filled in.
func (c *Config) ListenAddr(p *params.Params) (string, error) {
	host, port, err := net.SplitHostPort(c.BindAddr)
	if err != nil {
		return "", err
	}
	if port == "" || port == "0" {
		port = strconv.Itoa(int(p.DefaultPort))
	}
	return net.JoinHostPort(host, port), nil
}

// NodeConfig derives the peer manager settings.
func (c *Config) NodeConfig(p *params.Params) (*node.Config, error) {
	conf := c.Node
	conf.SubVersion = "sharechain/" + version.Version
	conf.Logger = c.baseLogger()

	listen, err := c.ListenAddr(p)
	if err != nil {
		return nil, err
	}
	advertise := listen
	if c.AdvertiseAddr != "" {
		advertise = c.AdvertiseAddr
	}
	_, port, err := net.SplitHostPort(advertise)
	if err != nil {
		return nil, err
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("advertised port %q: %v", port, err)
	}
	conf.ListenPort = uint16(portNum)

	seeds, err := peers.ParseAddrs(c.Seeds)
	if err != nil {
		return nil, err
	}
	fromFile, err := peers.NewJSONSeeds(c.DataDir).Seeds()
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	conf.Seeds = append(seeds, fromFile...)

	return &conf, nil
}

// LayerFactory returns the TCP stream layer factory of the node.
func (c *Config) LayerFactory(p *params.Params) (node.LayerFactory, error) {
	listen, err := c.ListenAddr(p)
	if err != nil {
		return nil, err
	}
	advertise := c.AdvertiseAddr
	return func() (snet.StreamLayer, error) {
		l, err := snet.NewTCPStreamLayer(listen, advertise)
		if err != nil {
			return nil, err
		}
		return l, nil
	}, nil
}

// NewStore opens the Badger database when Store is set, and returns an
// in-memory store otherwise.
func (c *Config) NewStore() (store.Store, error) {
	if !c.Store {
		return store.NewInmemStore(), nil
	}
	return store.NewBadgerStore(c.DatabaseDir, c.Logger().WithField("prefix", "store"))
}

// NewBlockSource connects to the parent chain daemon.
func (c *Config) NewBlockSource() (*blocksource.RPCSource, error) {
	return blocksource.NewRPCSource(blocksource.RPCConfig{
		Host: c.RPCHost,
		User: c.RPCUser,
		Pass: c.RPCPass,
	}, c.Logger().WithField("prefix", "rpc"))
}

// PayoutScript returns the output script of PayoutAddress on the parent
// chain of p.
func (c *Config) PayoutScript(p *params.Params) ([]byte, error) {
	if c.PayoutAddress == "" {
		return nil, fmt.Errorf("no payout address")
	}
	return share.ScriptForAddress(c.PayoutAddress, p.ChainParams)
}

func (c *Config) baseLogger() *logrus.Logger {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
		if c.LogFile != "" {
			c.logger.Hooks.Add(fileHook(c.LogFile))
		}
	}
	return c.logger
}

// fileHook writes info and higher entries to path.
func fileHook(path string) logrus.Hook {
	levels := lfshook.PathMap{}
	for _, l := range []logrus.Level{
		logrus.InfoLevel,
		logrus.WarnLevel,
		logrus.ErrorLevel,
		logrus.FatalLevel,
		logrus.PanicLevel,
	} {
		levels[l] = path
	}
	return lfshook.NewHook(levels, &logrus.TextFormatter{})
}

// Logger returns a formatted logrus Entry, with prefix set to "sharechain".
func (c *Config) Logger() *logrus.Entry {
	return c.baseLogger().WithField("prefix", "sharechain")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Sharechain")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Sharechain")
		} else {
			return filepath.Join(home, ".sharechain")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
