package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/sendtap/internal/config"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	Long:  "Creates ~/.sendtap/config.yaml (or the --config path) with the built-in defaults.",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	out := cmd.OutOrStdout()

	if !initForce {
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(out, "%s already exists (use --force to overwrite).\n", path)
			return nil
		}
	}
	if err := config.Save(path, config.DefaultConfig()); err != nil {
		return err
	}

	fmt.Fprintln(out, "sendtap init complete.")
	fmt.Fprintf(out, "Created:\n  %s\n\n", path)
	fmt.Fprintln(out, "Try it:")
	fmt.Fprintln(out, "  sendtap demo")
	return nil
}
