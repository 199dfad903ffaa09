package api

import "time"

// QueryResponse represents the standard query response format
type QueryResponse struct {
	Data      interface{} `json:"data"`
	QueriedAt time.Time   `json:"queried_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// TransactionView is the persisted state of one submission
type TransactionView struct {
	Signature            string           `json:"signature"`
	Status               string           `json:"status"`
	Blockhash            string           `json:"blockhash"`
	LastValidBlockHeight uint64           `json:"last_valid_block_height"`
	Resubmissions        int              `json:"resubmissions"`
	Error                string           `json:"error,omitempty"`
	SubmittedAt          time.Time        `json:"submitted_at"`
	History              []TransitionView `json:"history"`
}

// TransitionView is one recorded status change
type TransitionView struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}
