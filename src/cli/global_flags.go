package cli

import (
	"github.com/spf13/cobra"
)

// addGlobalFlags adds persistent flags to the root command.
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("dry-run", false, "Show planned actions without invoking btrfs, tarsnap, or mail")
}
