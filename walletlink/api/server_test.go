package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/push-wallet-link/walletlink/chains/common"
	"github.com/pushchain/push-wallet-link/walletlink/db"
	"github.com/pushchain/push-wallet-link/walletlink/errors"
	"github.com/pushchain/push-wallet-link/walletlink/metrics"
	"github.com/pushchain/push-wallet-link/walletlink/rpcpool"
	"github.com/pushchain/push-wallet-link/walletlink/txstore"
	"github.com/pushchain/push-wallet-link/walletlink/worker"
)

type staticPool struct {
	status *rpcpool.HealthStatus
}

func (p staticPool) PoolStatus() *rpcpool.HealthStatus { return p.status }

type recordingHandler struct {
	got  []worker.Request
	resp worker.Response
}

func (h *recordingHandler) Handle(_ context.Context, req worker.Request) worker.Response {
	h.got = append(h.got, req)
	return h.resp
}

func newTestStore(t *testing.T) *txstore.Store {
	t.Helper()
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return txstore.NewStore(database.Client(), zerolog.Nop())
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.setupRoutes().ServeHTTP(w, req)
	return w
}

func TestSetupRoutes(t *testing.T) {
	server := NewServer(zerolog.New(zerolog.NewTestWriter(t)), 0, Options{})

	testCases := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{name: "Health endpoint", method: http.MethodGet, path: "/health", expectedStatus: http.StatusOK},
		{name: "Metrics endpoint", method: http.MethodGet, path: "/metrics", expectedStatus: http.StatusOK},
		{name: "Transaction without store", method: http.MethodGet, path: "/api/v1/transactions/abc", expectedStatus: http.StatusServiceUnavailable},
		{name: "Pool without provider", method: http.MethodGet, path: "/api/v1/rpc-pool", expectedStatus: http.StatusServiceUnavailable},
		{name: "Requests without handler", method: http.MethodPost, path: "/api/v1/requests", expectedStatus: http.StatusServiceUnavailable},
		{name: "Wrong method", method: http.MethodPost, path: "/health", expectedStatus: http.StatusMethodNotAllowed},
		{name: "Non-existent endpoint", method: http.MethodGet, path: "/api/v1/non-existent", expectedStatus: http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(server, tc.method, tc.path, "")
			assert.Equal(t, tc.expectedStatus, w.Code)
		})
	}
}

func TestHandleHealth(t *testing.T) {
	server := &Server{logger: zerolog.New(zerolog.NewTestWriter(t))}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.handleHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestHandleMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.IncSubmission("ok")

	server := NewServer(zerolog.Nop(), 0, Options{Gatherer: reg})
	w := serve(server, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "submissions_total")
}

func TestHandleTransaction(t *testing.T) {
	txs := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, txs.Create(ctx, "sig-1", []byte{1}, common.BlockHeightBound{Blockhash: "h", LastValidBlockHeight: 42}))
	require.NoError(t, txs.RecordTransition(ctx, "sig-1", common.StatusPolling, ""))
	require.NoError(t, txs.RecordResubmission(ctx, "sig-1"))

	server := NewServer(zerolog.Nop(), 0, Options{Transactions: txs})

	t.Run("found", func(t *testing.T) {
		w := serve(server, http.MethodGet, "/api/v1/transactions/sig-1", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var resp struct {
			Data TransactionView `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "sig-1", resp.Data.Signature)
		assert.Equal(t, string(common.StatusPolling), resp.Data.Status)
		assert.Equal(t, uint64(42), resp.Data.LastValidBlockHeight)
		assert.Equal(t, 1, resp.Data.Resubmissions)
		require.Len(t, resp.Data.History, 1)
		assert.Equal(t, string(common.StatusPending), resp.Data.History[0].From)
		assert.Equal(t, string(common.StatusPolling), resp.Data.History[0].To)
	})

	t.Run("not found", func(t *testing.T) {
		w := serve(server, http.MethodGet, "/api/v1/transactions/missing", "")
		assert.Equal(t, http.StatusNotFound, w.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Error, "missing")
	})
}

func TestHandleRPCPool(t *testing.T) {
	status := &rpcpool.HealthStatus{
		TotalEndpoints: 2,
		HealthyCount:   1,
		DegradedCount:  1,
		Strategy:       "round-robin",
		Endpoints: []rpcpool.EndpointStatus{
			{URL: "https://a", State: "healthy"},
			{URL: "https://b", State: "degraded"},
		},
	}

	server := NewServer(zerolog.Nop(), 0, Options{Pool: staticPool{status: status}})
	w := serve(server, http.MethodGet, "/api/v1/rpc-pool", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data rpcpool.HealthStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.TotalEndpoints)
	assert.Equal(t, 1, resp.Data.HealthyCount)
	assert.Len(t, resp.Data.Endpoints, 2)

	stopped := NewServer(zerolog.Nop(), 0, Options{Pool: staticPool{}})
	assert.Equal(t, http.StatusServiceUnavailable, serve(stopped, http.MethodGet, "/api/v1/rpc-pool", "").Code)
}

func TestHandleRequest(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		resp       worker.Response
		wantStatus int
		wantCalls  int
	}{
		{
			name:       "success",
			body:       `{"id":"1","type":"m_get_info"}`,
			resp:       worker.Response{ID: "1", Type: worker.ResponseGetInfo, Payload: map[string]any{"name": "Solana"}},
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
		{
			name:       "typed failure",
			body:       `{"id":"2","type":"m_push_tx","payload":{"payload":"00"}}`,
			resp:       worker.Response{ID: "2", Type: worker.ResponseError, Error: errors.NewExpiredError("sig", 10)},
			wantStatus: http.StatusUnprocessableEntity,
			wantCalls:  1,
		},
		{
			name:       "undecodable",
			body:       `{"id":"3","type":"m_bogus"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &recordingHandler{resp: tt.resp}
			server := NewServer(zerolog.Nop(), 0, Options{Requests: handler})

			w := serve(server, http.MethodPost, "/api/v1/requests", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Len(t, handler.got, tt.wantCalls)

			var resp worker.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			if tt.resp.Error != nil || tt.wantCalls == 0 {
				require.NotNil(t, resp.Error)
				assert.Equal(t, worker.ResponseError, resp.Type)
			}
		})
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(zerolog.Nop(), 0, Options{})
	require.NoError(t, server.Start())
	require.NoError(t, server.Stop(context.Background()))
}
