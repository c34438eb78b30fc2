package cli

// cmd/cli/root.go — root of the trisync command tree. Each subsystem file
// registers its commands here; binaries call Execute.

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trisync",
	Short: "trisync — client tools for the relational sync engine",
}

func init() {
	// Each subsystem tree has its own PersistentPreRunE; traversing the hooks
	// runs the root's log-level hook before them.
	cobra.EnableTraverseRunHooks = true
	rootCmd.PersistentFlags().String("log-level", "info", "logrus level (trace..panic)")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		lvl, _ := cmd.Flags().GetString("log-level")
		if parsed, err := logrus.ParseLevel(lvl); err == nil {
			logrus.SetLevel(parsed)
		}
	}
	RegisterSchema(rootCmd)
	RegisterDB(rootCmd)
	RegisterNet(rootCmd)
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
