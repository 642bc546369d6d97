package cases

import (
	"errors"
	"testing"
)

func TestNext_AllowedTransitions(t *testing.T) {
	tests := []struct {
		from  Status
		event Event
		want  Status
	}{
		{StatusDraft, EventBeginPlanning, StatusPlanning},
		{StatusPlanning, EventAssignToSlot, StatusScheduled},
		{StatusScheduled, EventConfirm, StatusConfirmed},
		{StatusConfirmed, EventComplete, StatusCompleted},
		{StatusPlanning, EventCancel, StatusDraft},
		{StatusScheduled, EventCancel, StatusDraft},
		{StatusConfirmed, EventCancel, StatusDraft},
	}
	for _, tt := range tests {
		got, err := Next(tt.from, tt.event)
		if err != nil {
			t.Errorf("Next(%s, %s) errored: %v", tt.from, tt.event, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Next(%s, %s) = %s, want %s", tt.from, tt.event, got, tt.want)
		}
	}
}

// Every state/event pair not in the transition table must fail and leave the
// state unchanged.
func TestNext_Closure(t *testing.T) {
	allowed := map[Status]map[Event]bool{
		StatusDraft:     {EventBeginPlanning: true},
		StatusPlanning:  {EventAssignToSlot: true, EventCancel: true},
		StatusScheduled: {EventConfirm: true, EventCancel: true},
		StatusConfirmed: {EventComplete: true, EventCancel: true},
		StatusCompleted: {},
	}

	for state := range validStatuses {
		for _, event := range Events() {
			if allowed[state][event] {
				continue
			}
			got, err := Next(state, event)
			var invalid *InvalidTransitionError
			if !errors.As(err, &invalid) {
				t.Errorf("Next(%s, %s): err = %v, want InvalidTransitionError", state, event, err)
			}
			if got != state {
				t.Errorf("Next(%s, %s) changed state to %s on failure", state, event, got)
			}
		}
	}
}

func TestNext_CancelFromDraftIllegal(t *testing.T) {
	_, err := Next(StatusDraft, EventCancel)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("cancel from draft: err = %v, want InvalidTransitionError", err)
	}
	if invalid.From != StatusDraft || invalid.Event != EventCancel {
		t.Errorf("error carries %s/%s, want draft/cancel", invalid.From, invalid.Event)
	}
}

func TestNext_CompletedIsTerminal(t *testing.T) {
	for _, event := range Events() {
		if _, err := Next(StatusCompleted, event); err == nil {
			t.Errorf("event %s allowed out of completed", event)
		}
	}
}

func TestNext_UnknownEvent(t *testing.T) {
	if _, err := Next(StatusDraft, Event("reopen")); err == nil {
		t.Error("unknown event accepted")
	}
}
