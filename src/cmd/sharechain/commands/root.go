package commands

import (
	"github.com/mosaicnetworks/sharechain/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for sharechain
var RootCmd = &cobra.Command{
	Use:              "sharechain",
	Short:            "sharechain mining pool node",
	TraverseChildren: true,
}
