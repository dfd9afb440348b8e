package notify

import "time"

// Clock abstracts time so aggregation is deterministic under test.
//
// Known gap: "since last visit" comparisons mix this clock (ledger
// stamps) with server-assigned row timestamps; there is no skew
// correction between the two.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}
