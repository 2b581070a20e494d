package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/xiaot623/gogo/medassist/internal/domain"
)

// recordEvent appends an entry to a turn's event log. Event rows are
// diagnostics only: a failed write is logged and never fails the turn.
func (s *Service) recordEvent(ctx context.Context, l *log.Logger, turnID string, eventType domain.EventType, payload any) {
	raw, err := json.Marshal(payload)
	if err == nil {
		err = s.store.CreateEvent(ctx, &domain.Event{
			EventID: "evt_" + uuid.NewString(),
			TurnID:  turnID,
			Ts:      time.Now().UnixMilli(),
			Type:    eventType,
			Payload: raw,
		})
	}
	if err != nil {
		l.Warn("failed to record turn event", "type", eventType, "err", err)
	}
}
