package txstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pushchain/push-wallet-link/walletlink/chains/common"
	"github.com/pushchain/push-wallet-link/walletlink/store"
)

// ErrNotFound is returned when no row matches a signature.
var ErrNotFound = errors.New("transaction not found")

// Store provides database access for submitted transactions.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewStore creates a new transaction store.
func NewStore(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "tx_store").Logger(),
	}
}

// Create stores a new submission in PENDING. Storing the same signature twice is a no-op.
func (s *Store) Create(ctx context.Context, signature string, raw []byte, bound common.BlockHeightBound) error {
	tx := store.SubmittedTransaction{
		Signature:            signature,
		RawTx:                raw,
		Blockhash:            bound.Blockhash,
		LastValidBlockHeight: bound.LastValidBlockHeight,
		Status:               string(common.StatusPending),
	}
	result := s.db.WithContext(ctx).
		Where(store.SubmittedTransaction{Signature: signature}).
		FirstOrCreate(&tx)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "failed to store transaction %s", signature)
	}
	s.logger.Debug().
		Str("signature", signature).
		Uint64("last_valid_block_height", bound.LastValidBlockHeight).
		Msg("stored submitted transaction")
	return nil
}

// Get retrieves a transaction by signature.
func (s *Store) Get(ctx context.Context, signature string) (*store.SubmittedTransaction, error) {
	var tx store.SubmittedTransaction
	err := s.db.WithContext(ctx).Where("signature = ?", signature).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get transaction %s", signature)
	}
	return &tx, nil
}

// RecordTransition moves a transaction forward and appends to its history.
// Backward moves and moves out of terminal states are rejected.
func (s *Store) RecordTransition(ctx context.Context, signature string, to common.ConfirmationStatus, reason string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current store.SubmittedTransaction
		if err := tx.Where("signature = ?", signature).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return errors.Wrapf(err, "failed to load transaction %s", signature)
		}

		from := common.ConfirmationStatus(current.Status)
		if err := common.ValidateTransition(from, to); err != nil {
			return err
		}

		update := map[string]any{"status": string(to)}
		if reason != "" {
			update["error_msg"] = reason
		}
		result := tx.Model(&store.SubmittedTransaction{}).
			Where("signature = ? AND status = ?", signature, current.Status).
			Updates(update)
		if result.Error != nil {
			return errors.Wrapf(result.Error, "failed to update transaction %s", signature)
		}
		if result.RowsAffected == 0 {
			return errors.Errorf("transaction %s changed concurrently", signature)
		}

		if err := tx.Create(&store.StatusTransition{
			Signature:  signature,
			FromStatus: current.Status,
			ToStatus:   string(to),
		}).Error; err != nil {
			return errors.Wrapf(err, "failed to record transition for %s", signature)
		}
		return nil
	})
}

// RecordResubmission increments the rebroadcast counter.
func (s *Store) RecordResubmission(ctx context.Context, signature string) error {
	result := s.db.WithContext(ctx).Model(&store.SubmittedTransaction{}).
		Where("signature = ?", signature).
		Update("resubmissions", gorm.Expr("resubmissions + ?", 1))
	if result.Error != nil {
		return errors.Wrapf(result.Error, "failed to record resubmission for %s", signature)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// History returns the status transitions of a transaction in order.
func (s *Store) History(ctx context.Context, signature string) ([]store.StatusTransition, error) {
	var transitions []store.StatusTransition
	if err := s.db.WithContext(ctx).
		Where("signature = ?", signature).
		Order("id ASC").
		Find(&transitions).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to query history of %s", signature)
	}
	return transitions, nil
}

// GetNonTerminal returns transactions still awaiting a terminal outcome, oldest first.
func (s *Store) GetNonTerminal(ctx context.Context, limit int) ([]store.SubmittedTransaction, error) {
	terminal := terminalStatuses()
	var txs []store.SubmittedTransaction
	query := s.db.WithContext(ctx).Where("status NOT IN ?", terminal).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&txs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query non-terminal transactions")
	}
	return txs, nil
}

// DeleteTerminalBefore removes terminal transactions last updated before cutoff.
func (s *Store) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	terminal := terminalStatuses()
	result := s.db.WithContext(ctx).Unscoped().
		Where("status IN ? AND updated_at < ?", terminal, cutoff).
		Delete(&store.SubmittedTransaction{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to delete terminal transactions")
	}
	if result.RowsAffected > 0 {
		s.logger.Info().
			Int64("deleted_count", result.RowsAffected).
			Time("cutoff", cutoff).
			Msg("deleted terminal transactions")
	}
	return result.RowsAffected, nil
}

func terminalStatuses() []string {
	out := make([]string, 0, len(common.TerminalStatuses))
	for _, st := range common.TerminalStatuses {
		out = append(out, string(st))
	}
	return out
}
