package api

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pushchain/push-wallet-link/walletlink/errors"
	"github.com/pushchain/push-wallet-link/walletlink/txstore"
	"github.com/pushchain/push-wallet-link/walletlink/worker"
)

const maxRequestBody = 1 << 20

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleTransaction handles GET /api/v1/transactions/{signature}
func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	if s.txs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "transaction store is not configured")
		return
	}

	signature := mux.Vars(r)["signature"]
	tx, err := s.txs.Get(r.Context(), signature)
	if stderrors.Is(err, txstore.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("transaction %s not found", signature))
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("signature", signature).Msg("failed to load transaction")
		s.writeError(w, http.StatusInternalServerError, "failed to load transaction")
		return
	}

	history, err := s.txs.History(r.Context(), signature)
	if err != nil {
		s.logger.Error().Err(err).Str("signature", signature).Msg("failed to load transaction history")
		s.writeError(w, http.StatusInternalServerError, "failed to load transaction history")
		return
	}

	view := TransactionView{
		Signature:            tx.Signature,
		Status:               tx.Status,
		Blockhash:            tx.Blockhash,
		LastValidBlockHeight: tx.LastValidBlockHeight,
		Resubmissions:        tx.Resubmissions,
		Error:                tx.ErrorMsg,
		SubmittedAt:          tx.CreatedAt,
		History:              make([]TransitionView, 0, len(history)),
	}
	for _, h := range history {
		view.History = append(view.History, TransitionView{From: h.FromStatus, To: h.ToStatus, At: h.CreatedAt})
	}

	s.writeJSON(w, http.StatusOK, QueryResponse{Data: view, QueriedAt: time.Now().UTC()})
}

// handleRPCPool handles GET /api/v1/rpc-pool
func (s *Server) handleRPCPool(w http.ResponseWriter, r *http.Request) {
	if s.pool == nil {
		s.writeError(w, http.StatusServiceUnavailable, "rpc pool is not configured")
		return
	}
	status := s.pool.PoolStatus()
	if status == nil {
		s.writeError(w, http.StatusServiceUnavailable, "rpc pool is not running")
		return
	}
	s.writeJSON(w, http.StatusOK, QueryResponse{Data: status, QueriedAt: time.Now().UTC()})
}

// handleRequest handles POST /api/v1/requests with a worker request envelope
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if s.requests == nil {
		s.writeError(w, http.StatusServiceUnavailable, "request handling is not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	req, err := worker.DecodeRequest(body)
	if err != nil {
		typed := errors.ToTyped(err)
		s.writeJSON(w, http.StatusBadRequest, worker.Response{Type: worker.ResponseError, Error: typed})
		return
	}

	resp := s.requests.Handle(r.Context(), req)
	status := http.StatusOK
	if resp.Error != nil {
		status = statusForCategory(resp.Error.Category)
	}
	s.writeJSON(w, status, resp)
}

func statusForCategory(category errors.Category) int {
	switch category {
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryBroadcast, errors.CategoryExpired, errors.CategoryFailed:
		return http.StatusUnprocessableEntity
	case errors.CategorySubmissionTimeout:
		return http.StatusGatewayTimeout
	case errors.CategoryEstimation, errors.CategoryRPC:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
