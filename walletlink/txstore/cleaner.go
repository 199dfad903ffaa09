package txstore

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Cleaner periodically prunes terminal transactions older than the retention period.
type Cleaner struct {
	store           *Store
	db              *gorm.DB
	clock           clock.Clock
	logger          zerolog.Logger
	cleanupInterval time.Duration
	retentionPeriod time.Duration
	stopCh          chan struct{}
	done            chan struct{}
}

// NewCleaner creates a cleaner for s. A nil clk uses the wall clock.
func NewCleaner(s *Store, clk clock.Clock, cleanupInterval, retentionPeriod time.Duration, logger zerolog.Logger) *Cleaner {
	if clk == nil {
		clk = clock.New()
	}
	return &Cleaner{
		store:           s,
		db:              s.db,
		clock:           clk,
		logger:          logger.With().Str("component", "transaction_cleaner").Logger(),
		cleanupInterval: cleanupInterval,
		retentionPeriod: retentionPeriod,
		stopCh:          make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Start performs one cleanup and then repeats it every cleanup interval.
func (c *Cleaner) Start(ctx context.Context) {
	c.logger.Info().
		Dur("cleanup_interval", c.cleanupInterval).
		Dur("retention_period", c.retentionPeriod).
		Msg("starting transaction cleaner")

	if _, err := c.Cleanup(ctx); err != nil {
		c.logger.Error().Err(err).Msg("failed to perform initial cleanup")
	}

	ticker := c.clock.Ticker(c.cleanupInterval)
	go func() {
		defer close(c.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				if _, err := c.Cleanup(ctx); err != nil {
					c.logger.Error().Err(err).Msg("failed to perform scheduled cleanup")
				}
			}
		}
	}()
}

// Stop ends the cleanup loop and waits for it to exit.
func (c *Cleaner) Stop() {
	close(c.stopCh)
	<-c.done
}

// Cleanup deletes terminal transactions not updated within the retention period.
func (c *Cleaner) Cleanup(ctx context.Context) (int64, error) {
	cutoff := c.clock.Now().Add(-c.retentionPeriod)
	deleted, err := c.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		c.checkpointWAL()
	}
	return deleted, nil
}

// checkpointWAL truncates the WAL after deletions
func (c *Cleaner) checkpointWAL() {
	if err := c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)").Error; err != nil {
		c.logger.Warn().Err(err).Msg("failed to checkpoint WAL")
	}
}
