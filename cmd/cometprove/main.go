package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/giuliop/cometprove/config"
	"github.com/giuliop/cometprove/logging"
)

var (
	logLevelStr string
	envFile     string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "cometprove",
		Short:             "Submit comet proofs to an Observatory verifier",
		Long:              `Submit comet proofs to an Observatory verifier and report whether the comet is proven`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: configureLogging,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&logLevelStr, "log-level", "l", logging.DefaultLogLevel.String(), "Set logging level [debug|info|warn|error]")
	flags.BoolVarP(&logging.LogJSON, "log-json", "j", false, "Print logs in JSON format")
	flags.StringVar(&envFile, "env-file", config.DefaultEnvFile, "Dotenv file with the settings")
	flags.String("network", config.NetworkEVM, "Network of the verifier [evm|avm]")
	flags.String("rpc-url", config.DefaultRPCURL, "Node endpoint")
	flags.String("rpc-token", "", "Algod API token")
	flags.Uint64("chain-id", 0, "EVM chain id, 0 to ask the node")
	flags.String("verifier-version", config.DefaultVerifierVersion, "Version of the deployed verifier, selects the proveComet call shape")
	flags.String("aux-tag", config.DefaultAuxTag, "Auxiliary tag passed to verifiers that take one (hex)")
	flags.Duration("timeout", 0, "Give up after this long, 0 to wait until the submission settles")

	rootCmd.AddCommand(newProveCometCmd())
	return rootCmd
}

func configureLogging(*cobra.Command, []string) error {
	level, err := logging.ParseLogLevel(logLevelStr)
	if err != nil {
		return err
	}
	logging.LogLevel = level
	logging.ConfigureLogger()
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
