package cometprove

import (
	"bytes"
	"context"
)

// Verifier is a binding to a deployed Observatory verifier.
//
// The verifier is assumed to record a single proven flag rather than the
// identity of the proof that set it: concurrent runs against the same
// verifier race on which proof ends up recorded.
type Verifier interface {
	// SubmitProof sends the artifact to the verifier with one state-changing
	// call and returns as soon as the call is accepted. The returned receipt
	// must be waited on before the effect of the call can be observed.
	SubmitProof(ctx context.Context, artifact *Artifact, options ...SubmitOption) (Receipt, error)

	// IsProven queries the verifier state. It has no side effects.
	IsProven(ctx context.Context) (bool, error)
}

// Receipt tracks a submission accepted by the verifier's ledger
type Receipt interface {
	// ID identifies the submission on the ledger, e.g. a transaction hash
	ID() string

	// Wait blocks until the submission is settled. It fails with
	// SubmissionRejected if the ledger reverts or drops it. Cancelling ctx only
	// stops the wait: the submission may still settle afterward.
	Wait(ctx context.Context) error
}

// SubmitOptions are the resolved options of a SubmitProof call
type SubmitOptions struct {
	// AuxTag is the secondary argument of the two-argument call shape. A nil
	// AuxTag selects the single-argument shape.
	AuxTag []byte
}

// SubmitOption configures a SubmitProof call
type SubmitOption interface {
	apply(*SubmitOptions)
}

type submitOptionFunc func(*SubmitOptions)

func (f submitOptionFunc) apply(o *SubmitOptions) {
	f(o)
}

// WithAuxTag submits the proof with tag as secondary argument, as expected by
// verifiers that take one. An empty tag is still sent as an empty byte string.
func WithAuxTag(tag []byte) SubmitOption {
	return submitOptionFunc(func(o *SubmitOptions) {
		if tag == nil {
			tag = []byte{}
		}
		o.AuxTag = bytes.Clone(tag)
	})
}

// NewSubmitOptions resolves options
func NewSubmitOptions(options ...SubmitOption) SubmitOptions {
	o := SubmitOptions{}
	for _, opt := range options {
		opt.apply(&o)
	}
	return o
}

// HasAuxTag reports whether the two-argument call shape is selected
func (o SubmitOptions) HasAuxTag() bool {
	return o.AuxTag != nil
}
