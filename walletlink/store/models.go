// Package store contains GORM-backed SQLite models used by the wallet link.
//
// Database Structure (database file: wallet_link.db):
//
//	data/
//	└── wallet_link.db
//	    ├── submitted_transactions
//	    └── status_transitions
package store

import (
	"gorm.io/gorm"
)

// SubmittedTransaction tracks one signed payload from first broadcast to a
// terminal confirmation status.
type SubmittedTransaction struct {
	gorm.Model
	Signature            string `gorm:"uniqueIndex;not null"` // Base58 signature returned by the node
	RawTx                []byte // Signed bytes, rebroadcast verbatim
	Blockhash            string // Recent blockhash of the validity window
	LastValidBlockHeight uint64 `gorm:"index"`
	Status               string `gorm:"index;not null"` // "PENDING", "POLLING", "CONFIRMED", "FINALIZED", "EXPIRED", "FAILED"
	Resubmissions        int    // Rebroadcast count
	ErrorMsg             string `gorm:"type:text"` // Decoded failure reason
}

// StatusTransition is an append-only history of status changes.
type StatusTransition struct {
	gorm.Model
	Signature  string `gorm:"index;not null"`
	FromStatus string
	ToStatus   string
}
