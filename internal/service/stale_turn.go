package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xiaot623/gogo/medassist/internal/domain"
	"github.com/xiaot623/gogo/medassist/internal/logger"
)

// DefaultStaleTurnInterval is how often RunStaleTurnMonitor sweeps.
const DefaultStaleTurnInterval = 30 * time.Second

// RunStaleTurnMonitor marks turns left RUNNING past the turn timeout as
// FAILED, e.g. after a crash. It returns when ctx is done.
func (s *Service) RunStaleTurnMonitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultStaleTurnInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepStaleTurns(ctx)
		}
	}
}

func (s *Service) sweepStaleTurns(ctx context.Context) int {
	sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	limit := s.config.TurnTimeout + leaseSlack
	stale, err := s.store.ListStaleTurns(sweepCtx, limit.Milliseconds(), 100)
	if err != nil {
		logger.Warn("stale turn sweep failed", "err", err)
		return 0
	}

	swept := 0
	for _, turn := range stale {
		payload := domain.ErrorPayload{Code: domain.ErrorCodeTimeout, Message: "turn did not complete"}
		errData, _ := json.Marshal(payload)

		updated, err := s.store.UpdateTurnCompleted(sweepCtx, turn.TurnID, domain.TurnStatusFailed, errData)
		if err != nil {
			logger.Warn("failed to mark stale turn", "turn_id", turn.TurnID, "err", err)
			continue
		}
		if !updated {
			continue
		}
		swept++
		s.recordEvent(sweepCtx, logger.With("turn_id", turn.TurnID), turn.TurnID, domain.EventTypeTurnFailed, payload)
	}
	if swept > 0 {
		logger.Info("stale turns marked failed", "count", swept)
	}
	return swept
}
