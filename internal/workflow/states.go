package workflow

import "errors"

type State string

const (
	StateCollecting    State = "collecting-address-info"
	StateFetchingSlots State = "fetching-slots"
	StateSlotsReady    State = "slots-ready"
	StateSlotSelected  State = "slot-selected"
	StateSubmitting    State = "submitting"
	StateSucceeded     State = "succeeded"
	StateFailed        State = "failed"
)

type Action string

const (
	ActionEdit         Action = "edit"
	ActionFetch        Action = "fetch_slots"
	ActionSlotsLoaded  Action = "slots_loaded"
	ActionFetchFailed  Action = "fetch_failed"
	ActionSelectSlot   Action = "select_slot"
	ActionSubmit       Action = "submit"
	ActionSubmitOK     Action = "submit_ok"
	ActionSubmitFailed Action = "submit_failed"
)

var (
	ErrPincodeRequired   = errors.New("pincode is required to fetch slots")
	ErrDateRequired      = errors.New("date is required to fetch slots")
	ErrPastDate          = errors.New("date is in the past")
	ErrNoSlots           = errors.New("no slots available for this date and pincode")
	ErrTimeSlotRequired  = errors.New("select a time slot before submitting")
	ErrUnknownSlot       = errors.New("time slot is not in the fetched list")
	ErrFieldReadOnly     = errors.New("field is filled from the selected clinic")
	ErrCenterRequired    = errors.New("select a clinic first")
	ErrInvalidAge        = errors.New("age must be a whole number between 1 and 120")
	ErrInvalidLocation   = errors.New("location must be Home or Clinic")
	ErrInvalidTransition = errors.New("action not allowed in current state")
	ErrRejected          = errors.New("backend rejected the request")
)

// editable states are those where the form accepts input.
var editable = []State{StateCollecting, StateSlotsReady, StateSlotSelected, StateFailed}

var transitionMap = map[Action][]State{
	ActionEdit:         editable,
	ActionFetch:        editable,
	ActionSlotsLoaded:  {StateFetchingSlots},
	ActionFetchFailed:  {StateFetchingSlots},
	ActionSelectSlot:   {StateSlotsReady, StateSlotSelected, StateFailed},
	ActionSubmit:       {StateSlotSelected, StateFailed},
	ActionSubmitOK:     {StateSubmitting},
	ActionSubmitFailed: {StateSubmitting},
}

// ValidTransition reports whether action may run from the given state.
func ValidTransition(action Action, from State) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == from {
			return true
		}
	}
	return false
}

// Terminal reports whether no further action is accepted.
func (s State) Terminal() bool {
	return s == StateSucceeded
}

func knownState(s State) bool {
	switch s {
	case StateCollecting, StateFetchingSlots, StateSlotsReady, StateSlotSelected,
		StateSubmitting, StateSucceeded, StateFailed:
		return true
	}
	return false
}
