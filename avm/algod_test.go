package avm

import (
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/json"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/require"
)

var abiReturnPrefix = []byte{0x15, 0x1f, 0x7c, 0x75}

// fakeAlgod is an in-memory algod answering the endpoints the client uses
type fakeAlgod struct {
	mu        sync.Mutex
	lastRound uint64
	sent      []types.SignedTxn
	simulated int
	// sendError makes POST /v2/transactions fail with this message
	sendError string
	// poolError is reported for every pending transaction
	poolError string
	// blockWait makes wait-for-block hang until the request is cancelled
	blockWait bool
	// pendingLookups is the number of pending lookups answered unconfirmed
	pendingLookups int
	proven         bool
	failureMessage string
}

// newFakeAlgod starts f and returns a client bound to app 1001 through it
func newFakeAlgod(t *testing.T, f *fakeAlgod) *Client {
	t.Helper()
	if f.lastRound == 0 {
		f.lastRound = 10
	}
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)

	algodClient, err := NewAlgodClient(server.URL, LocalnetAlgodToken)
	require.NoError(t, err)
	c, err := NewClient(algodClient, 1001, crypto.GenerateAccount())
	require.NoError(t, err)
	return c
}

func (f *fakeAlgod) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case path == "/v2/transactions/params":
		f.writeJSON(w, models.TransactionParametersResponse{
			ConsensusVersion: "future",
			GenesisHash:      make([]byte, 32),
			GenesisId:        "cometprove-test",
			LastRound:        f.lastRound,
			MinFee:           1000,
		})

	case path == "/v2/transactions/simulate":
		f.simulated++
		value := byte(0x00)
		if f.proven {
			value = 0x80
		}
		f.writeJSON(w, models.SimulateResponse{
			Version:   2,
			LastRound: f.lastRound,
			TxnGroups: []models.SimulateTransactionGroupResult{{
				FailureMessage: f.failureMessage,
				TxnResults: []models.SimulateTransactionResult{{
					TxnResult: models.PendingTransactionResponse{
						Logs: [][]byte{append(append([]byte{}, abiReturnPrefix...), value)},
					},
				}},
			}},
		})

	case strings.HasPrefix(path, "/v2/transactions/pending/"):
		info := models.PendingTransactionInfoResponse{PoolError: f.poolError}
		if f.poolError == "" {
			if f.pendingLookups > 0 {
				f.pendingLookups--
			} else {
				info.ConfirmedRound = f.lastRound + 1
			}
		}
		w.Header().Set("Content-Type", "application/msgpack")
		_, _ = w.Write(msgpack.Encode(info))

	case path == "/v2/transactions" && r.Method == http.MethodPost:
		if f.sendError != "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"` + f.sendError + `"}`))
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var stx types.SignedTxn
		if err := msgpack.Decode(body, &stx); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"undecodable transaction"}`))
			return
		}
		f.sent = append(f.sent, stx)
		f.writeJSON(w, models.PostTransactionsResponse{Txid: crypto.GetTxID(stx.Txn)})

	case path == "/v2/status":
		f.writeJSON(w, models.NodeStatus{LastRound: f.lastRound})

	case strings.HasPrefix(path, "/v2/status/wait-for-block-after/"):
		if f.blockWait {
			f.mu.Unlock()
			<-r.Context().Done()
			f.mu.Lock()
			return
		}
		f.lastRound++
		f.writeJSON(w, models.NodeStatus{LastRound: f.lastRound})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAlgod) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(json.Encode(v))
}

func (f *fakeAlgod) sentTxns() []types.SignedTxn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.SignedTxn(nil), f.sent...)
}

func (f *fakeAlgod) simulations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.simulated
}

// decodeBytesArg decodes an ARC4 byte[] application argument
func decodeBytesArg(t *testing.T, arg []byte) []byte {
	t.Helper()
	require.GreaterOrEqual(t, len(arg), 2)
	n := binary.BigEndian.Uint16(arg[:2])
	require.Equal(t, int(n), len(arg)-2)
	return arg[2:]
}
