package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/sharechain/src/config"
	"github.com/mosaicnetworks/sharechain/src/node"
	"github.com/mosaicnetworks/sharechain/src/service"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a share-chain node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runNode,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runNode(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	p, err := _config.Params()
	if err != nil {
		return err
	}

	nodeConf, err := _config.NodeConfig(p)
	if err != nil {
		return err
	}

	layer, err := _config.LayerFactory(p)
	if err != nil {
		return err
	}

	st, err := _config.NewStore()
	if err != nil {
		logger.Error("Cannot open store:", err)
		return err
	}

	source, err := _config.NewBlockSource()
	if err != nil {
		logger.Error("Cannot create block source:", err)
		return err
	}
	defer source.Close()

	var script []byte
	if _config.Mine {
		if script, err = _config.PayoutScript(p); err != nil {
			return err
		}
	}

	n, err := node.NewNode(nodeConf, p, layer, st, source)
	if err != nil {
		return err
	}

	if err := n.Init(); err != nil {
		logger.Error("Cannot initialize node:", err)
		return err
	}

	if !_config.NoService {
		serviceServer := service.NewService(_config.ServiceAddr, n, logger.WithField("prefix", "service"))
		go serviceServer.Serve()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n.RunAsync()

	if _config.Mine {
		go mine(ctx, n, script, logger.WithField("prefix", "miner"))
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	<-signalCh

	logger.Info("Stopping")
	cancel()
	n.Shutdown()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Also write info and higher logs to this file")
	cmd.Flags().String("network", _config.Network, "mainnet, testnet or regtest")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for the node")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Advertise IP:Port for the node")
	cmd.Flags().StringSlice("seeds", _config.Seeds, "Extra IP:Port addresses to bootstrap from")
	cmd.Flags().Int("outgoing", _config.Node.DesiredOutgoing, "Number of outgoing connections to keep")
	cmd.Flags().Int("max-incoming", _config.Node.MaxIncoming, "Max number of incoming connections")
	cmd.Flags().Duration("dial-timeout", _config.Node.DialTimeout, "Dial timeout")

	// Parent chain
	cmd.Flags().String("rpc-host", _config.RPCHost, "IP:Port of the parent chain daemon RPC")
	cmd.Flags().String("rpc-user", _config.RPCUser, "RPC user")
	cmd.Flags().String("rpc-pass", _config.RPCPass, "RPC password")

	// Mining
	cmd.Flags().Bool("mine", _config.Mine, "Run a CPU miner")
	cmd.Flags().String("payout-address", _config.PayoutAddress, "Parent chain address receiving rewards")

	// Service
	cmd.Flags().Bool("no-service", _config.NoService, "Disable the HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Int("cache-size", _config.Node.CacheSize, "Number of items in LRU caches")

	// Node configuration
	cmd.Flags().Duration("think-interval", _config.Node.ThinkInterval, "Time between tracker runs")
	cmd.Flags().Duration("persist-interval", _config.Node.PersistInterval, "Time between saves of the shares and addresses")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	// the config file may have changed the level of the logger created while
	// reading it
	_config.Logger().Logger.Level = config.LogLevel(_config.LogLevel)

	logFields := logrus.Fields{
		"DataDir":         _config.DataDir,
		"Network":         _config.Network,
		"BindAddr":        _config.BindAddr,
		"AdvertiseAddr":   _config.AdvertiseAddr,
		"Seeds":           _config.Seeds,
		"ServiceAddr":     _config.ServiceAddr,
		"NoService":       _config.NoService,
		"RPCHost":         _config.RPCHost,
		"Mine":            _config.Mine,
		"PayoutAddress":   _config.PayoutAddress,
		"Store":           _config.Store,
		"LogLevel":        _config.LogLevel,
		"DesiredOutgoing": _config.Node.DesiredOutgoing,
		"MaxIncoming":     _config.Node.MaxIncoming,
		"CacheSize":       _config.Node.CacheSize,
		"ThinkInterval":   _config.Node.ThinkInterval,
	}

	if _config.Store {
		logFields["DatabaseDir"] = _config.DatabaseDir
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/sharechain.toml (.json, .yaml also work)
	viper.SetConfigName("sharechain") // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
