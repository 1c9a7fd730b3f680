package cometprove

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	ProvenMessage    = "Comet is proven!"
	NotProvenMessage = "Comet is not proven yet"
)

// State is the position of a run in the prove workflow.
// A run moves Idle -> Loaded -> Submitted -> Settled -> Reported, or to
// Failed from any state.
type State int

const (
	Idle State = iota + 1
	Loaded
	Submitted
	Settled
	Reported
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Loaded:
		return "Loaded"
	case Submitted:
		return "Submitted"
	case Settled:
		return "Settled"
	case Reported:
		return "Reported"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// step names the operation that leaves the state
func (s State) step() string {
	switch s {
	case Idle:
		return "load"
	case Loaded:
		return "submit"
	case Submitted:
		return "settle"
	case Settled:
		return "query"
	}
	return "report"
}

// Outcome summarizes a run, successful or not
type Outcome struct {
	RunID     string
	State     State
	Source    string
	Digest    string
	ReceiptID string
	Proven    bool
}

// Message is the human readable verdict of a reported run
func (o *Outcome) Message() string {
	if o.Proven {
		return ProvenMessage
	}
	return NotProvenMessage
}

// Run is a single, one-shot execution of the prove workflow
type Run struct {
	id       string
	verifier Verifier
	options  []SubmitOption
	state    State
	log      *slog.Logger
}

// NewRun prepares a run submitting through verifier with the given options
func NewRun(verifier Verifier, options ...SubmitOption) *Run {
	id := uuid.NewString()
	return &Run{
		id:       id,
		verifier: verifier,
		options:  options,
		state:    Idle,
		log:      slog.With(slog.String("run-id", id)),
	}
}

// Prove loads the artifact at path and drives the verifier with it.
// See Run.Prove.
func Prove(ctx context.Context, verifier Verifier, path string, options ...SubmitOption) (*Outcome, error) {
	return NewRun(verifier, options...).Prove(ctx, path)
}

// ProveArtifact drives the verifier with an artifact loaded beforehand.
// See Run.ProveArtifact.
func ProveArtifact(ctx context.Context, verifier Verifier, artifact *Artifact,
	options ...SubmitOption) (*Outcome, error) {
	return NewRun(verifier, options...).ProveArtifact(ctx, artifact)
}

func (r *Run) ID() string {
	return r.id
}

func (r *Run) State() State {
	return r.state
}

// Prove executes the run. The returned outcome is never nil; on failure its
// state is Failed and the error is an *Error naming the failed step.
//
// The verifier state is queried only after the submission settled. There is
// no timeout besides ctx: without a deadline the run blocks until the ledger
// settles the submission.
func (r *Run) Prove(ctx context.Context, path string) (*Outcome, error) {
	out := &Outcome{RunID: r.id, State: r.state, Source: path}
	if r.state != Idle {
		return out, errors.Errorf("run %s already executed, it is in state %s", r.id, r.state)
	}

	if err := ctx.Err(); err != nil {
		return r.fail(out, NewError(Interrupted, err))
	}
	artifact, err := LoadArtifact(path)
	if err != nil {
		return r.fail(out, err)
	}
	return r.proveLoaded(ctx, out, artifact)
}

// ProveArtifact is Prove for an artifact the caller already loaded, so that
// a missing or malformed proof is reported before a verifier is bound.
func (r *Run) ProveArtifact(ctx context.Context, artifact *Artifact) (*Outcome, error) {
	out := &Outcome{RunID: r.id, State: r.state}
	if r.state != Idle {
		return out, errors.Errorf("run %s already executed, it is in state %s", r.id, r.state)
	}
	if artifact == nil {
		return r.fail(out, NewError(MalformedArtifact, errors.New("proof artifact is missing")))
	}
	out.Source = artifact.Source
	return r.proveLoaded(ctx, out, artifact)
}

func (r *Run) proveLoaded(ctx context.Context, out *Outcome, artifact *Artifact) (*Outcome, error) {
	out.Digest = artifact.Digest()
	r.advance(out, Loaded, slog.String("source", out.Source), slog.String("artifact-digest", out.Digest))

	// Nothing has reached the verifier yet, cancelling here is free
	if err := ctx.Err(); err != nil {
		return r.fail(out, NewError(Interrupted, err))
	}
	receipt, err := r.verifier.SubmitProof(ctx, artifact, r.options...)
	if err != nil {
		return r.fail(out, Classify(ctx, err, SubmissionRejected))
	}
	out.ReceiptID = receipt.ID()
	r.advance(out, Submitted, slog.String("receipt", out.ReceiptID))

	if err := receipt.Wait(ctx); err != nil {
		err = Classify(ctx, err, SubmissionRejected)
		if e, ok := err.(*Error); ok && e.Kind == Interrupted {
			err = NewError(Interrupted, errors.Wrapf(e.Err,
				"stopped waiting for submission %s, it may still settle", out.ReceiptID))
		}
		return r.fail(out, err)
	}
	r.advance(out, Settled, slog.String("receipt", out.ReceiptID))

	proven, err := r.verifier.IsProven(ctx)
	if err != nil {
		return r.fail(out, Classify(ctx, err, ChannelUnavailable))
	}
	out.Proven = proven
	r.advance(out, Reported, slog.Bool("proven", proven))
	return out, nil
}

func (r *Run) advance(out *Outcome, state State, attrs ...any) {
	r.state = state
	out.State = state
	r.log.Info("Prove run advanced", append([]any{slog.String("state", state.String())}, attrs...)...)
}

func (r *Run) fail(out *Outcome, err error) (*Outcome, error) {
	failure := AtPhase(err, r.state)

	r.log.Error("Prove run failed",
		slog.String("state", r.state.String()),
		slog.String("kind", failure.Kind.String()),
		slog.String("receipt", out.ReceiptID),
		slog.Any("error", failure.Err),
	)
	r.state = Failed
	out.State = Failed
	return out, failure
}
