package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"btrsnap/src/backup"
	"btrsnap/src/config"
	"btrsnap/src/tarsnap"
)

var detectTarsnap = tarsnap.Detect

// NewRootCmd returns the root cobra command for the btrsnap CLI.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cfg := config.FromEnv()
	cmd := &cobra.Command{
		Use:   "btrsnap <subvolume> [<subvolume> ...]",
		Short: "Consistent btrfs subvolume backups with tarsnap",
		Long: "Snapshot each btrfs subvolume read-only, archive the snapshot with\n" +
			"tarsnap, delete the snapshot, and report failures via the system\n" +
			"journal and mail.\n\n" +
			"Environment variables (current values):\n" + cfg.EnvUsage(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Usage()
				return fmt.Errorf("at least one subvolume path is required")
			}
			dryRun, _ := cmd.Root().PersistentFlags().GetBool("dry-run")

			bin := tarsnap.BinaryInfo{Path: "tarsnap"}
			if !dryRun {
				var err error
				bin, err = detectTarsnap(cmd.Context())
				if err != nil {
					return err
				}
			}

			runner := backup.NewRunner(cfg, bin, dryRun, stdout)
			results := runner.Run(cmd.Context(), args)
			failed := 0
			for _, res := range results {
				if res.Failed() {
					failed++
					fmt.Fprintf(stderr, "%s: %v\n", res.Path, res.Err)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d subvolumes failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	addGlobalFlags(cmd)

	cmd.AddCommand(newVersionCmd(stdout))

	return cmd
}

// Execute runs the CLI with the process stdio.
func Execute() int {
	root := NewRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// SetDetectForTest stubs out tarsnap binary detection.
func SetDetectForTest(fn func(context.Context) (tarsnap.BinaryInfo, error)) func() {
	prev := detectTarsnap
	detectTarsnap = fn
	return func() { detectTarsnap = prev }
}
