package calendar

import (
	"context"
	"log"
	"time"

	"reup-planner-backend/internal/domain"
)

type busySource interface {
	BusyTimes(ctx context.Context, userID int, start, end time.Time) ([]domain.BusyPeriod, error)
}

// BusyProvider applies the fail policy on top of the raw free/busy lookup.
// Fail-open reports a degraded, empty result (risk: double booking);
// fail-closed surfaces the error so no slot is offered.
type BusyProvider struct {
	source   busySource
	failOpen bool
}

func NewBusyProvider(source busySource, failOpen bool) *BusyProvider {
	return &BusyProvider{source: source, failOpen: failOpen}
}

func (p *BusyProvider) BusyTimes(ctx context.Context, userID int, start, end time.Time) (domain.Availability, error) {
	busy, err := p.source.BusyTimes(ctx, userID, start, end)
	if err == nil {
		return domain.Availability{Busy: busy}, nil
	}
	if !p.failOpen {
		return domain.Availability{Degraded: true}, err
	}
	log.Printf("[WARN] busy times unavailable, assuming free user_id=%d: %v", userID, err)
	return domain.Availability{Degraded: true}, nil
}
