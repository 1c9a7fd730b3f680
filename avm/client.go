package avm

import (
	"context"
	"log/slog"

	"github.com/algorand/go-algorand-sdk/v2/abi"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/pkg/errors"

	cp "github.com/giuliop/cometprove"
)

// ARC4 methods of the Observatory application
const (
	ProveCometSignature       = "prove_comet(byte[])void"
	ProveCometTaggedSignature = "prove_comet(byte[],byte[])void"
	IsProvenSignature         = "is_proven()bool"
)

// maxAppArgsSize is the protocol limit on the total size of the application
// arguments of a transaction
const maxAppArgsSize = 2048

// Client is a cometprove.Verifier for an Observatory application
type Client struct {
	algod   *algod.Client
	appId   uint64
	account crypto.Account

	proveComet       abi.Method
	proveCometTagged abi.Method
	isProven         abi.Method
}

var _ cp.Verifier = (*Client)(nil)

// NewClient binds the Observatory application appId, sending transactions
// from account
func NewClient(algodClient *algod.Client, appId uint64, account crypto.Account) (*Client, error) {
	if appId == 0 {
		return nil, errors.New("application id must not be zero")
	}
	c := &Client{algod: algodClient, appId: appId, account: account}
	var err error
	for _, m := range []struct {
		signature string
		method    *abi.Method
	}{
		{ProveCometSignature, &c.proveComet},
		{ProveCometTaggedSignature, &c.proveCometTagged},
		{IsProvenSignature, &c.isProven},
	} {
		if *m.method, err = abi.MethodFromSignature(m.signature); err != nil {
			return nil, errors.Wrapf(err, "failed to parse method %s", m.signature)
		}
	}
	return c, nil
}

// AppId returns the id of the bound application
func (c *Client) AppId() uint64 {
	return c.appId
}

// methodCallParams builds the parameters to add a method call to an atomic
// transaction composer
func (c *Client) methodCallParams(method abi.Method, args []interface{},
	sp types.SuggestedParams) transaction.AddMethodCallParams {
	return transaction.AddMethodCallParams{
		AppID:           c.appId,
		Sender:          c.account.Address,
		SuggestedParams: sp,
		OnComplete:      types.NoOpOC,
		Signer:          transaction.BasicAccountTransactionSigner{Account: c.account},
		Method:          method,
		MethodArgs:      args,
	}
}

// submitCall selects the method and arguments for the call shape in opts
func (c *Client) submitCall(proof []byte, opts cp.SubmitOptions) (abi.Method, []interface{}, error) {
	method, args := c.proveComet, []interface{}{proof}
	if opts.HasAuxTag() {
		method, args = c.proveCometTagged, append(args, opts.AuxTag)
	}
	// selector, then a 2 bytes length prefix for each byte[] argument
	size := 4
	for _, arg := range args {
		size += 2 + len(arg.([]byte))
	}
	if size > maxAppArgsSize {
		return method, nil, errors.Errorf("application arguments are %d bytes, "+
			"more than the %d allowed", size, maxAppArgsSize)
	}
	return method, args, nil
}

// SubmitProof sends the canonical JSON form of the artifact to prove_comet
// and returns without waiting for confirmation
func (c *Client) SubmitProof(ctx context.Context, artifact *cp.Artifact,
	options ...cp.SubmitOption) (cp.Receipt, error) {
	proof, err := artifact.Canonical()
	if err != nil {
		return nil, cp.NewError(cp.SubmissionRejected, err)
	}
	method, args, err := c.submitCall(proof, cp.NewSubmitOptions(options...))
	if err != nil {
		return nil, cp.NewError(cp.SubmissionRejected, err)
	}

	sp, err := c.algod.SuggestedParams().Do(ctx)
	if err != nil {
		return nil, cp.Classify(ctx, errors.Wrap(err, "failed to get suggested params"),
			cp.ChannelUnavailable)
	}
	var atc = transaction.AtomicTransactionComposer{}
	if err := atc.AddMethodCall(c.methodCallParams(method, args, sp)); err != nil {
		return nil, cp.NewError(cp.SubmissionRejected,
			errors.Wrap(err, "failed to add method call"))
	}
	txIds, err := atc.Submit(c.algod, ctx)
	if err != nil {
		return nil, cp.Classify(ctx, errors.Wrap(err, "failed to send prove_comet transaction"),
			cp.SubmissionRejected)
	}
	if len(txIds) != 1 {
		return nil, cp.NewError(cp.SubmissionRejected,
			errors.Errorf("expected one transaction, sent %d", len(txIds)))
	}
	slog.Debug("Sent prove_comet transaction",
		slog.String("txid", txIds[0]),
		slog.Uint64("app-id", c.appId),
		slog.String("method", method.GetSignature()),
	)
	return &receipt{
		algod:      c.algod,
		txId:       txIds[0],
		waitRounds: uint64(sp.LastRoundValid - sp.FirstRoundValid),
	}, nil
}

// IsProven simulates a call to is_proven
func (c *Client) IsProven(ctx context.Context) (bool, error) {
	sp, err := c.algod.SuggestedParams().Do(ctx)
	if err != nil {
		return false, cp.Classify(ctx, errors.Wrap(err, "failed to get suggested params"),
			cp.ChannelUnavailable)
	}
	var atc = transaction.AtomicTransactionComposer{}
	if err := atc.AddMethodCall(c.methodCallParams(c.isProven, nil, sp)); err != nil {
		return false, cp.NewError(cp.ChannelUnavailable,
			errors.Wrap(err, "failed to add method call"))
	}
	simRes, err := atc.Simulate(ctx, c.algod, models.SimulateRequest{})
	if err != nil {
		return false, cp.Classify(ctx, errors.Wrap(err, "failed to simulate is_proven"),
			cp.ChannelUnavailable)
	}
	return isProvenResult(simRes)
}

func isProvenResult(simRes transaction.SimulateResult) (bool, error) {
	if len(simRes.SimulateResponse.TxnGroups) > 0 {
		if msg := simRes.SimulateResponse.TxnGroups[0].FailureMessage; msg != "" {
			return false, cp.NewError(cp.ChannelUnavailable,
				errors.Errorf("is_proven failed: %s", msg))
		}
	}
	if len(simRes.MethodResults) == 0 {
		return false, cp.NewError(cp.ChannelUnavailable,
			errors.New("is_proven returned no result"))
	}
	result := simRes.MethodResults[len(simRes.MethodResults)-1]
	if result.DecodeError != nil {
		return false, cp.NewError(cp.ChannelUnavailable,
			errors.Wrap(result.DecodeError, "failed to decode is_proven result"))
	}
	proven, ok := result.ReturnValue.(bool)
	if !ok {
		return false, cp.NewError(cp.ChannelUnavailable,
			errors.Errorf("is_proven returned %T, not bool", result.ReturnValue))
	}
	return proven, nil
}

type receipt struct {
	algod      *algod.Client
	txId       string
	waitRounds uint64
}

func (r *receipt) ID() string {
	return r.txId
}

// Wait waits for confirmation for as long as the transaction is valid: a
// transaction not confirmed by then can no longer be.
func (r *receipt) Wait(ctx context.Context) error {
	confirmedTxn, err := transaction.WaitForConfirmation(r.algod, r.txId, r.waitRounds, ctx)
	if err != nil {
		return cp.Classify(ctx, errors.Wrapf(err, "error waiting for confirmation of %s", r.txId),
			cp.SubmissionRejected)
	}
	slog.Debug("prove_comet transaction confirmed",
		slog.String("txid", r.txId),
		slog.Uint64("round", confirmedTxn.ConfirmedRound),
	)
	return nil
}
