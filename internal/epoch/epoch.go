// Package epoch classifies funding epochs by upstream data presence and
// computes their calendar windows.
package epoch

import "time"

// State describes how far an epoch has progressed, derived from which
// upstream collections exist. NoAllocations and NotFinalized are retry-later
// states; Completed is the only state from which applications are built.
type State string

const (
	StateNoAllocations State = "no_allocations"
	StateNotFinalized  State = "not_finalized"
	StateCompleted     State = "completed"
)

// Concluded reports whether applications may be aggregated for this state.
func (s State) Concluded() bool { return s == StateCompleted }

// Note is the human-readable explanation attached to placeholder documents
// for epochs that have not concluded.
func (s State) Note() string {
	switch s {
	case StateNoAllocations:
		return "This epoch has no allocations yet or has not been concluded"
	case StateNotFinalized:
		return "This epoch has allocations but has not been finalized yet (no rewards/merkle data available)"
	default:
		return "This epoch has not been concluded yet"
	}
}

// Resolve classifies an epoch from the presence of its three upstream
// collections. Absent allocations dominate; allocations without both a
// rewards set and a committed merkle tree mean the epoch is not finalized.
func Resolve(hasAllocations, hasRewards, hasMerkle bool) State {
	switch {
	case !hasAllocations:
		return StateNoAllocations
	case !hasRewards || !hasMerkle:
		return StateNotFinalized
	default:
		return StateCompleted
	}
}

// Octant epochs run 90 days, anchored at the platform launch.
const windowDays = 90

var anchor = time.Date(2023, time.October, 1, 0, 0, 0, 0, time.UTC)

// Window returns the start and end of an epoch's 90-day funding period.
func Window(epoch int) (start, end time.Time) {
	start = anchor.AddDate(0, 0, epoch*windowDays)
	return start, start.AddDate(0, 0, windowDays)
}

// RateDate returns the date used to look up the historical exchange rate for
// an epoch, in the DD-MM-YYYY form the rate provider expects.
func RateDate(epoch int) string {
	end := anchor.AddDate(0, 0, (epoch+1)*windowDays)
	return end.Format("02-01-2006")
}
