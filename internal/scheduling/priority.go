package scheduling

import (
	"math"
	"time"
)

const day = 24 * time.Hour

const (
	MaxPriority    = 4
	MaxEnergyLevel = 3
)

// PriorityScore combines task priority (0..4), energy level (0..3) and the
// proximity of the deadline into a single urgency number.
func PriorityScore(priority, energyLevel int, deadline *time.Time, now time.Time) int {
	score := priority*2 + energyLevel
	if deadline == nil {
		return score
	}

	switch days := daysUntil(*deadline, now); {
	case days <= 1:
		score += 5
	case days <= 3:
		score += 3
	case days <= 7:
		score += 1
	}
	return score
}

// daysUntil rounds up, so anything due within the next 24h counts as one day.
func daysUntil(deadline, now time.Time) int {
	return int(math.Ceil(float64(deadline.Sub(now)) / float64(day)))
}

type band int

const (
	bandMorning band = iota
	bandAfternoon
	bandEvening
)

func targetBand(score int) band {
	switch {
	case score >= 6:
		return bandMorning
	case score >= 3:
		return bandAfternoon
	default:
		return bandEvening
	}
}
