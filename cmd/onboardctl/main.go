package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	envFile    string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "onboardctl",
		Short:         "Operate the CareerHub onboarding notification sequence",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration directory or file")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file loaded before configuration")
	rootCmd.PersistentFlags().BoolVarP(&opts.jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(sweepCmd(opts))
	rootCmd.AddCommand(claimCmd(opts))
	rootCmd.AddCommand(statusCmd(opts))
	rootCmd.AddCommand(cancelCmd(opts))
	rootCmd.AddCommand(deleteUserCmd(opts))

	return rootCmd
}
