package token

import "fmt"

// State is the lifecycle state of a Token.
type State int

const (
	// Unrequested is the state before the cache was read or a flow ran.
	Unrequested State = iota
	// CachedValid is a cache record whose expiry has not passed.
	CachedValid
	// CachedExpired is a cache record whose expiry has passed.
	CachedExpired
	// Refreshing is set while a refresh or re-authentication runs.
	Refreshing
	// Valid is a freshly acquired or refreshed token.
	Valid
	// Invalid is terminal: the record is gone and the token cannot be used.
	Invalid
)

func (s State) String() string {
	switch s {
	case Unrequested:
		return "unrequested"
	case CachedValid:
		return "cached-valid"
	case CachedExpired:
		return "cached-expired"
	case Refreshing:
		return "refreshing"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the legal successors of each state.
var transitions = map[State][]State{
	Unrequested:   {CachedValid, CachedExpired, Valid, Invalid},
	CachedValid:   {Refreshing, Invalid},
	CachedExpired: {Refreshing, Invalid},
	Refreshing:    {Valid, Invalid},
	Valid:         {Refreshing, Invalid},
	Invalid:       nil,
}

// next returns to if it is a legal successor of s.
func (s State) next(to State) (State, error) {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return to, nil
		}
	}
	return s, fmt.Errorf("illegal token state transition %s -> %s", s, to)
}
