package main

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	cp "github.com/giuliop/cometprove"
	"github.com/giuliop/cometprove/avm"
	"github.com/giuliop/cometprove/config"
	"github.com/giuliop/cometprove/evm"
)

// verifierFactory binds the verifier at observatory on the configured network.
// The returned function releases it.
type verifierFactory func(ctx context.Context, conf *config.Config, observatory string) (cp.Verifier, func(), error)

var newVerifier verifierFactory = dialVerifier

type proveCometFlags struct {
	observatory string
	path        string
}

func newProveCometCmd() *cobra.Command {
	var flags proveCometFlags
	cmd := &cobra.Command{
		Use:   "prove-comet",
		Short: "Submit a comet proof and report whether the comet is proven",
		Long: `Submit the proof file to the Observatory verifier, wait until the submission
settles, then query the verifier and print "Comet is proven!" or
"Comet is not proven yet".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return proveComet(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.observatory, "observatory", "", "Observatory address (evm) or application id (avm)")
	cmd.Flags().StringVar(&flags.path, "path", "", "Path of the proof file")
	_ = cmd.MarkFlagRequired("observatory")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.NewViper()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	if err := config.ReadEnvFile(v, envFile, cmd.Flags().Changed("env-file")); err != nil {
		return nil, err
	}
	return config.Load(v)
}

func proveComet(cmd *cobra.Command, flags proveCometFlags) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	options, err := conf.SubmitOptions()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if conf.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, conf.Timeout)
		defer cancel()
	}

	// the proof is checked before anything is dialed
	artifact, err := cp.LoadArtifact(flags.path)
	if err != nil {
		return cp.AtPhase(err, cp.Idle)
	}

	verifier, release, err := newVerifier(ctx, conf, flags.observatory)
	if err != nil {
		return err
	}
	defer release()

	outcome, err := cp.ProveArtifact(ctx, verifier, artifact, options...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), outcome.Message())
	return err
}

func dialVerifier(ctx context.Context, conf *config.Config, observatory string) (cp.Verifier, func(), error) {
	switch conf.Network {
	case config.NetworkEVM:
		key, err := conf.ECDSAKey()
		if err != nil {
			return nil, nil, err
		}
		var chainID *big.Int
		if conf.ChainID != 0 {
			chainID = new(big.Int).SetUint64(conf.ChainID)
		}
		client, err := evm.Dial(ctx, conf.RPCURL, observatory, key, chainID)
		if err != nil {
			return nil, nil, err
		}
		return client, func() { _ = client.Close() }, nil

	case config.NetworkAVM:
		appId, err := strconv.ParseUint(observatory, 10, 64)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "invalid observatory application id %q", observatory)
		}
		account, err := avm.AccountFromMnemonic(conf.Mnemonic)
		if err != nil {
			return nil, nil, err
		}
		algodClient, err := avm.NewAlgodClient(conf.RPCURL, conf.RPCToken)
		if err != nil {
			return nil, nil, err
		}
		client, err := avm.NewClient(algodClient, appId, account)
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	}
	return nil, nil, errors.Errorf("unknown network %q", conf.Network)
}
