package cometprove

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"

	"github.com/pkg/errors"
)

// Kind classifies why a run failed
type Kind int

const (
	// ResourceNotFound: the proof artifact could not be read
	ResourceNotFound Kind = iota + 1
	// MalformedArtifact: the proof artifact is not a structured object
	MalformedArtifact
	// SubmissionRejected: the verifier refused the submission, synchronously
	// or when it settled
	SubmissionRejected
	// ChannelUnavailable: the verifier endpoint could not be reached
	ChannelUnavailable
	// Interrupted: the caller cancelled the run or its deadline expired
	Interrupted
)

func (k Kind) String() string {
	switch k {
	case ResourceNotFound:
		return "ResourceNotFound"
	case MalformedArtifact:
		return "MalformedArtifact"
	case SubmissionRejected:
		return "SubmissionRejected"
	case ChannelUnavailable:
		return "ChannelUnavailable"
	case Interrupted:
		return "Interrupted"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the error returned by every failing step of a run
type Error struct {
	Kind Kind
	// Phase is the state the run was leaving when it failed. Backends leave it
	// unset, the workflow fills it in.
	Phase State
	Err   error
}

// NewError returns an *Error of kind wrapping err
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Phase == 0 {
		return fmt.Sprintf("[%s] %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s failed [%s]: %v", e.Phase.step(), e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AtPhase returns err as an *Error failed while leaving phase. The kind of
// an *Error in err's chain is kept.
func AtPhase(err error, phase State) *Error {
	var failure *Error
	if e, ok := err.(*Error); ok {
		copied := *e
		failure = &copied
	} else {
		kind, _ := KindOf(err)
		failure = &Error{Kind: kind, Err: err}
	}
	failure.Phase = phase
	return failure
}

// KindOf returns the kind of the first *Error found in err's chain
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Classify turns a transport error into an *Error. Errors already carrying a
// kind are returned as they are, cancellation of ctx maps to Interrupted and
// network failures to ChannelUnavailable. Anything else gets the fallback kind.
func Classify(ctx context.Context, err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	if _, ok := KindOf(err); ok {
		return err
	}
	switch {
	case ctx.Err() != nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return NewError(Interrupted, err)
	case IsConnectivityError(err):
		return NewError(ChannelUnavailable, err)
	}
	return NewError(fallback, err)
}

// IsConnectivityError reports whether err means the remote endpoint could
// not be reached, as opposed to the endpoint answering with a refusal.
func IsConnectivityError(err error) bool {
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.As(err, &urlErr),
		errors.As(err, &netErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	return false
}
