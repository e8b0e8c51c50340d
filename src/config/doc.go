// Package config defines the configuration for a share-chain node.
//
// Regardless of how the node is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// options, the node relies on a data directory, defined by Config.DataDir,
// where it looks for a few additional files:
//
//  sharechain.toml // (optional) the configuration file read by the CLI.
//  seeds.json // (optional) a JSON array of host:port addresses to bootstrap from.
//  badger_db/ // the share database, when Store is set.
package config
