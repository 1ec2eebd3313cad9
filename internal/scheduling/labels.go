package scheduling

import (
	"fmt"
	"time"
)

var frWeekdays = [...]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"}

var frMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// Label renders a slot start relative to now, in the slot's location:
// "Aujourd'hui 08:00", "Demain 14:30" or "vendredi 16 octobre 09:00".
func Label(start, now time.Time) string {
	now = now.In(start.Location())
	hm := start.Format("15:04")

	switch {
	case sameDay(start, now):
		return "Aujourd'hui " + hm
	case sameDay(start, now.AddDate(0, 0, 1)):
		return "Demain " + hm
	}
	return fmt.Sprintf("%s %d %s %s", frWeekdays[start.Weekday()], start.Day(), frMonths[start.Month()-1], hm)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
