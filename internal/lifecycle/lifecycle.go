// Package lifecycle defines the retention state machine for memory items.
// Transition is pure and total: every input maps to exactly one output.
package lifecycle

import "fmt"

// State is an item's position in the retention lifecycle.
type State int

const (
	Active State = iota
	Stable
	Dormant
	Archived
	Purged
)

var stateNames = map[State]string{
	Active:   "active",
	Stable:   "stable",
	Dormant:  "dormant",
	Archived: "archived",
	Purged:   "purged",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState converts a stored state name back to a State.
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return Active, fmt.Errorf("unknown lifecycle state %q", name)
}

// States lists all states in lifecycle order.
func States() []State {
	return []State{Active, Stable, Dormant, Archived, Purged}
}

// ReactivationOrigin reports which cold state an access event revived an
// item from. Archived reactivations are rarer and worth alerting on
// separately from dormant ones.
type ReactivationOrigin int

const (
	NoReactivation ReactivationOrigin = iota
	FromDormant
	FromArchived
)

// Thresholds are the score bands that place an item in a state, checked in
// descending order. They come from config.LifecycleConfig verbatim.
type Thresholds struct {
	ActiveMinScore        float64
	StableMinScore        float64
	DormantMinScore       float64
	ArchivePurgeAfterDays float64
}

// Decision is the outcome of one transition.
type Decision struct {
	State       State
	Reactivated ReactivationOrigin
}

// Transition maps the current state plus the latest decay score and access
// information to the next state.
//
// Rules, in order:
//   - Purged is terminal.
//   - An access event since the last run moves any live item to Active;
//     coming from Dormant or Archived this counts as a reactivation.
//   - An Archived item past the purge age is promoted to Purged.
//   - Otherwise the decay score bands decide: active, stable, dormant, or
//     archived as the floor.
func Transition(current State, decayScore float64, hadAccess bool, daysSinceArchived float64, th Thresholds) Decision {
	if current == Purged {
		return Decision{State: Purged}
	}

	if hadAccess {
		d := Decision{State: Active}
		switch current {
		case Dormant:
			d.Reactivated = FromDormant
		case Archived:
			d.Reactivated = FromArchived
		}
		return d
	}

	if current == Archived && daysSinceArchived >= th.ArchivePurgeAfterDays {
		return Decision{State: Purged}
	}

	switch {
	case decayScore >= th.ActiveMinScore:
		return Decision{State: Active}
	case decayScore >= th.StableMinScore:
		return Decision{State: Stable}
	case decayScore >= th.DormantMinScore:
		return Decision{State: Dormant}
	default:
		return Decision{State: Archived}
	}
}
