package testutils

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	cp "github.com/giuliop/cometprove"
)

// Events recorded by MockVerifier
const (
	EventSubmit = "submit"
	EventSettle = "settle"
	EventQuery  = "query"
)

// MockVerifier is a cometprove.Verifier driven by testify expectations.
// It records the order in which submissions, settlements and queries happen
// so tests can check that the verifier state is never queried before the
// submission settled.
//
// SubmitProof is called with the decoded artifact and the resolved submit
// options:
//
//	m.On("SubmitProof", mock.Anything, mock.Anything).Return(testutils.NewMockReceipt("0x1", nil), nil)
//	m.On("IsProven").Return(true, nil)
type MockVerifier struct {
	mock.Mock

	mu               sync.Mutex
	events           []string
	settled          bool
	queriedUnsettled bool
}

func NewMockVerifier() *MockVerifier {
	return &MockVerifier{}
}

func (m *MockVerifier) SubmitProof(_ context.Context, artifact *cp.Artifact,
	options ...cp.SubmitOption) (cp.Receipt, error) {
	var decoded map[string]any
	if err := artifact.Decode(&decoded); err != nil {
		panic(err)
	}
	m.record(EventSubmit)
	args := m.MethodCalled("SubmitProof", decoded, cp.NewSubmitOptions(options...))
	if err := args.Error(1); err != nil {
		return nil, err
	}
	receipt, ok := args.Get(0).(*MockReceipt)
	if !ok {
		panic("cast failed")
	}
	receipt.verifier = m
	return receipt, nil
}

func (m *MockVerifier) IsProven(_ context.Context) (bool, error) {
	m.mu.Lock()
	if !m.settled {
		m.queriedUnsettled = true
	}
	m.events = append(m.events, EventQuery)
	m.mu.Unlock()

	args := m.MethodCalled("IsProven")
	return args.Bool(0), args.Error(1)
}

// Events returns the recorded event sequence
func (m *MockVerifier) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

// QueriedBeforeSettlement reports whether IsProven ran before any
// submission settled
func (m *MockVerifier) QueriedBeforeSettlement() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queriedUnsettled
}

func (m *MockVerifier) record(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event == EventSettle {
		m.settled = true
	}
	m.events = append(m.events, event)
}

// MockReceipt is the receipt returned by MockVerifier
type MockReceipt struct {
	id      string
	waitErr error
	// Block, if not nil, makes Wait block until it is closed or the context
	// is done
	Block chan struct{}

	verifier *MockVerifier
}

// NewMockReceipt returns a receipt with the given id whose Wait returns
// waitErr. A nil waitErr settles the submission.
func NewMockReceipt(id string, waitErr error) *MockReceipt {
	return &MockReceipt{id: id, waitErr: waitErr}
}

func (r *MockReceipt) ID() string {
	return r.id
}

func (r *MockReceipt) Wait(ctx context.Context) error {
	if r.Block != nil {
		select {
		case <-r.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.waitErr != nil {
		return r.waitErr
	}
	if r.verifier != nil {
		r.verifier.record(EventSettle)
	}
	return nil
}
