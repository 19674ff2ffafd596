package domain

import "github.com/jonboulle/clockwork"

// clock stamps the validAt of newly observed station locations.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used by Merge and NewLatestState. Pass nil
// to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
