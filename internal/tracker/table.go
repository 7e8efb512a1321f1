package tracker

import "github.com/lumra/lumra-backend/internal/events"

type phase uint8

const (
	phaseUnknown phase = iota
	phaseInside
	phaseOutside
)

func (p phase) String() string {
	switch p {
	case phaseInside:
		return "INSIDE"
	case phaseOutside:
		return "OUTSIDE"
	default:
		return "UNKNOWN"
	}
}

func phaseOf(inside bool) phase {
	if inside {
		return phaseInside
	}
	return phaseOutside
}

type action uint8

const (
	// actAdopt takes the raw reading as the confirmed state, without an event.
	actAdopt action = iota
	// actHold keeps the state and clears the disagreement streak.
	actHold
	// actCount extends the disagreement streak; at the threshold the state
	// flips to next and emit is fired.
	actCount
)

type rule struct {
	action action
	next   phase
	emit   events.Kind
}

type transitionKey struct {
	from phase
	raw  bool
}

// transitions is the whole debouncing state machine.
var transitions = map[transitionKey]rule{
	{phaseUnknown, true}:  {action: actAdopt, next: phaseInside},
	{phaseUnknown, false}: {action: actAdopt, next: phaseOutside},
	{phaseInside, true}:   {action: actHold},
	{phaseInside, false}:  {action: actCount, next: phaseOutside, emit: events.KindExit},
	{phaseOutside, false}: {action: actHold},
	{phaseOutside, true}:  {action: actCount, next: phaseInside, emit: events.KindEnter},
}
