// Package evm binds the Observatory verifier deployed on an EVM chain.
package evm

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"embed"
	"log/slog"
	"math/big"
	"path"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	cp "github.com/giuliop/cometprove"
)

const (
	proveCometMethod = "proveComet"
	isProvenMethod   = "isProven"
)

//go:embed abi/*.json
var abiFiles embed.FS

// ObservatoryABI returns the Observatory ABI. Version 0 takes the proof only,
// version 1 takes the proof and a tag.
func ObservatoryABI(version int) (abi.ABI, error) {
	name := path.Join("abi", "observatory_v0.json")
	if version > 0 {
		name = path.Join("abi", "observatory_v1.json")
	}
	data, err := abiFiles.ReadFile(name)
	if err != nil {
		return abi.ABI{}, errors.Wrapf(err, "failed to read %s", name)
	}
	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return abi.ABI{}, errors.Wrapf(err, "failed to parse %s", name)
	}
	return parsed, nil
}

// Backend is what the client needs from a chain connection;
// *ethclient.Client implements it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Client is a cometprove.Verifier for an Observatory contract
type Client struct {
	address common.Address
	backend Backend
	auth    *bind.TransactOpts

	// proof only, and proof with tag
	untagged *bind.BoundContract
	tagged   *bind.BoundContract

	closer func()
}

var _ cp.Verifier = (*Client)(nil)

// NewClient binds the Observatory at address through backend. auth signs
// the proveComet transactions.
func NewClient(address common.Address, backend Backend, auth *bind.TransactOpts) (*Client, error) {
	if auth == nil || auth.Signer == nil {
		return nil, errors.New("transaction signer is required")
	}
	v0, err := ObservatoryABI(0)
	if err != nil {
		return nil, err
	}
	v1, err := ObservatoryABI(1)
	if err != nil {
		return nil, err
	}
	return &Client{
		address:  address,
		backend:  backend,
		auth:     auth,
		untagged: bind.NewBoundContract(address, v0, backend, backend, backend),
		tagged:   bind.NewBoundContract(address, v1, backend, backend, backend),
	}, nil
}

// Dial connects to the node at rawURL and binds the Observatory at address,
// signing with key. A nil chainID is fetched from the node.
func Dial(ctx context.Context, rawURL string, address string, key *ecdsa.PrivateKey,
	chainID *big.Int) (*Client, error) {
	if !common.IsHexAddress(address) {
		return nil, errors.Errorf("invalid observatory address %q", address)
	}
	if key == nil {
		return nil, errors.New("private key is required")
	}
	ethClient, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, cp.Classify(ctx, errors.Wrapf(err, "failed to connect to %s", rawURL),
			cp.ChannelUnavailable)
	}
	if chainID == nil {
		chainID, err = ethClient.ChainID(ctx)
		if err != nil {
			ethClient.Close()
			return nil, cp.Classify(ctx, errors.Wrapf(err, "failed to get chain id from %s", rawURL),
				cp.ChannelUnavailable)
		}
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		ethClient.Close()
		return nil, errors.Wrap(err, "failed to create transactor")
	}
	c, err := NewClient(common.HexToAddress(address), ethClient, auth)
	if err != nil {
		ethClient.Close()
		return nil, err
	}
	c.closer = ethClient.Close
	slog.Debug("Connected to EVM node",
		slog.String("url", rawURL),
		slog.String("observatory", c.address.Hex()),
		slog.String("chain-id", chainID.String()),
		slog.String("sender", auth.From.Hex()),
	)
	return c, nil
}

// Address returns the address of the bound Observatory
func (c *Client) Address() common.Address {
	return c.address
}

// SubmitProof sends one proveComet transaction carrying the artifact, which
// must decode as a SharesProof. An artifact that does not fails with
// SubmissionRejected before anything is sent.
func (c *Client) SubmitProof(ctx context.Context, artifact *cp.Artifact,
	options ...cp.SubmitOption) (cp.Receipt, error) {
	opts := cp.NewSubmitOptions(options...)

	var proof SharesProof
	if err := artifact.Decode(&proof); err != nil {
		return nil, cp.NewError(cp.SubmissionRejected,
			errors.Wrap(err, "proof artifact is not a SharesProof"))
	}
	abiProof, err := proof.toABI()
	if err != nil {
		return nil, cp.NewError(cp.SubmissionRejected,
			errors.Wrap(err, "failed to encode proof"))
	}

	contract, params := c.untagged, []any{abiProof}
	if opts.HasAuxTag() {
		contract, params = c.tagged, append(params, opts.AuxTag)
	}

	auth := *c.auth
	auth.Context = ctx
	tx, err := contract.Transact(&auth, proveCometMethod, params...)
	if err != nil {
		return nil, cp.Classify(ctx, errors.Wrap(err, "failed to send proveComet transaction"),
			cp.SubmissionRejected)
	}
	slog.Debug("Sent proveComet transaction",
		slog.String("tx", tx.Hash().Hex()),
		slog.Bool("tagged", opts.HasAuxTag()),
		slog.Uint64("nonce", tx.Nonce()),
	)
	return &receipt{backend: c.backend, tx: tx}, nil
}

// IsProven calls isProven on the Observatory
func (c *Client) IsProven(ctx context.Context) (bool, error) {
	var out []any
	err := c.untagged.Call(&bind.CallOpts{Context: ctx}, &out, isProvenMethod)
	if err != nil {
		return false, cp.Classify(ctx, errors.Wrap(err, "failed to call isProven"),
			cp.ChannelUnavailable)
	}
	if len(out) != 1 {
		return false, cp.NewError(cp.ChannelUnavailable,
			errors.Errorf("isProven returned %d values", len(out)))
	}
	proven, ok := out[0].(bool)
	if !ok {
		return false, cp.NewError(cp.ChannelUnavailable,
			errors.Errorf("isProven returned %T, not bool", out[0]))
	}
	return proven, nil
}

// Close releases the node connection opened by Dial
func (c *Client) Close() error {
	if c.closer != nil {
		c.closer()
	}
	return nil
}

type receipt struct {
	backend bind.DeployBackend
	tx      *types.Transaction
}

func (r *receipt) ID() string {
	return r.tx.Hash().Hex()
}

// Wait polls for the transaction receipt until it is mined or ctx is done
func (r *receipt) Wait(ctx context.Context) error {
	mined, err := bind.WaitMined(ctx, r.backend, r.tx)
	if err != nil {
		return cp.Classify(ctx, errors.Wrapf(err, "failed waiting for transaction %s", r.ID()),
			cp.ChannelUnavailable)
	}
	if mined.Status != types.ReceiptStatusSuccessful {
		return cp.NewError(cp.SubmissionRejected,
			errors.Errorf("transaction %s reverted in block %v", r.ID(), mined.BlockNumber))
	}
	slog.Debug("proveComet transaction mined",
		slog.String("tx", r.ID()),
		slog.Any("block", mined.BlockNumber),
		slog.Uint64("gas-used", mined.GasUsed),
	)
	return nil
}
