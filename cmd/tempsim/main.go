// Command tempsim discovers, configures and polls the temperature simulator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1) //nolint:gocritic
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "tempsim",
		Short: "Drive a temperature simulator over Modbus RTU",
		Long: `tempsim talks to a temperature-simulation instrument over a serial line.

It finds the port the instrument is attached to, reads its firmware version,
writes the output configuration and reads back the input and ambient values.

Use --demo to run every command against an in-memory instrument.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "Log level: debug|info|warn|error")
	pf.BoolVar(&flags.demo, "demo", false, "Use a simulated instrument instead of serial ports")
	pf.StringVar(&flags.port, "port", "", "Bind to this port without discovery")
	pf.StringVar(&flags.policy, "policy", "", "Request ordering: queue|stack (overrides the config file)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newPortsCmd(flags))
	rootCmd.AddCommand(newDiscoverCmd(flags))
	rootCmd.AddCommand(newFirmwareCmd(flags))
	rootCmd.AddCommand(newConfigureCmd(flags))
	rootCmd.AddCommand(newReadCmd(flags))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tempsim %s (%s)\n", version, commit)
		},
	}
}
