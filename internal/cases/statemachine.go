package cases

import "fmt"

// Event is a lifecycle transition trigger.
type Event string

const (
	EventBeginPlanning Event = "begin_planning"
	EventAssignToSlot  Event = "assign_to_slot"
	EventConfirm       Event = "confirm_booking"
	EventComplete      Event = "mark_completed"
	EventCancel        Event = "cancel"
)

// InvalidTransitionError is returned when an event is not legal from the
// case's current status. The status is left unchanged.
type InvalidTransitionError struct {
	From  Status
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("event %s not allowed from status %s", e.Event, e.From)
}

// transitions maps each event to the statuses it may fire from and the
// resulting status. Cancel is deliberately absent from draft: a draft case
// has nothing to roll back. Completed is terminal.
var transitions = map[Event]struct {
	from map[Status]bool
	to   Status
}{
	EventBeginPlanning: {from: map[Status]bool{StatusDraft: true}, to: StatusPlanning},
	EventAssignToSlot:  {from: map[Status]bool{StatusPlanning: true}, to: StatusScheduled},
	EventConfirm:       {from: map[Status]bool{StatusScheduled: true}, to: StatusConfirmed},
	EventComplete:      {from: map[Status]bool{StatusConfirmed: true}, to: StatusCompleted},
	EventCancel: {
		from: map[Status]bool{StatusPlanning: true, StatusScheduled: true, StatusConfirmed: true},
		to:   StatusDraft,
	},
}

// Next returns the status resulting from applying event to current. It
// returns an InvalidTransitionError when the event is unknown or not legal
// from the current status.
func Next(current Status, event Event) (Status, error) {
	t, ok := transitions[event]
	if !ok || !t.from[current] {
		return current, &InvalidTransitionError{From: current, Event: event}
	}
	return t.to, nil
}

// Events lists every defined transition event.
func Events() []Event {
	return []Event{EventBeginPlanning, EventAssignToSlot, EventConfirm, EventComplete, EventCancel}
}
