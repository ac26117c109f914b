package dialogue

// State is one named step of the conversation. A session is in exactly one
// state at a time.
type State string

const (
	StateGreeting                   State = "greeting"
	StateCollectIdentity            State = "collect_identity"
	StateCollectFeelings            State = "collect_feelings"
	StateOfferTrustedAdultChannel   State = "offer_trusted_adult_channel"
	StateWaitingForEmailText        State = "waiting_for_email_text"
	StateCollectNarrative           State = "collect_narrative"
	StateCollectChannel             State = "collect_channel"
	StateCollectSenderType          State = "collect_sender_type"
	StateCollectExtraContext        State = "collect_extra_context"
	StateSubmitting                 State = "submitting"
	StateAwaitingVerdict            State = "awaiting_verdict"
	StatePresentingVerdict          State = "presenting_verdict"
	StateOfferSupportChoice         State = "offer_support_choice"
	StatePresentingSupportResources State = "presenting_support_resources"
	StateToneSelection              State = "tone_selection"
	StatePresentingChosenReply      State = "presenting_chosen_reply"
	StateContinuationPrompt         State = "continuation_prompt"
	StateReportsHistory             State = "reports_history"
	StateEnded                      State = "ended"
	StateFailed                     State = "failed"
)

// AllStates lists every state in flow order.
var AllStates = []State{
	StateGreeting,
	StateCollectIdentity,
	StateCollectFeelings,
	StateOfferTrustedAdultChannel,
	StateWaitingForEmailText,
	StateCollectNarrative,
	StateCollectChannel,
	StateCollectSenderType,
	StateCollectExtraContext,
	StateSubmitting,
	StateAwaitingVerdict,
	StatePresentingVerdict,
	StateOfferSupportChoice,
	StatePresentingSupportResources,
	StateToneSelection,
	StatePresentingChosenReply,
	StateContinuationPrompt,
	StateReportsHistory,
	StateEnded,
	StateFailed,
}

// InputMode is how a state accepts input. ModeNone states are passed through
// without input, ModeMultiChoice accepts toggles until an explicit done, and
// ModeText rejects empty text while ModeOptionalText accepts it (and skip).
type InputMode string

const (
	ModeNone         InputMode = "none"
	ModeSingleChoice InputMode = "single_choice"
	ModeMultiChoice  InputMode = "multi_choice"
	ModeText         InputMode = "text"
	ModeOptionalText InputMode = "optional_text"
)

func (s State) Mode() InputMode {
	switch s {
	case StateGreeting, StateOfferTrustedAdultChannel, StateCollectChannel, StateCollectSenderType,
		StateOfferSupportChoice, StateToneSelection, StateContinuationPrompt:
		return ModeSingleChoice
	case StateCollectFeelings:
		return ModeMultiChoice
	case StateCollectIdentity, StateWaitingForEmailText, StateCollectNarrative:
		return ModeText
	case StateCollectExtraContext:
		return ModeOptionalText
	}
	return ModeNone
}

// Terminal states accept no further events.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateFailed
}

// Interactive reports whether the state waits for input from the person.
func (s State) Interactive() bool {
	return s.Mode() != ModeNone
}

// Flags is the presentation view of a state: what a front end shows.
// Every field is derived from the single State value.
type Flags struct {
	ShowChips           bool `json:"showChips"`
	MultiSelect         bool `json:"multiSelect"`
	ShowTextInput       bool `json:"showTextInput"`
	CanSkip             bool `json:"canSkip"`
	WaitingForEmail     bool `json:"waitingForEmail"`
	SupportChoicePrompt bool `json:"supportChoicePrompt"`
	ToneSelection       bool `json:"toneSelection"`
	ContinuationPrompt  bool `json:"continuationPrompt"`
	Pending             bool `json:"pending"`
	Closed              bool `json:"closed"`
}

func (s State) Flags() Flags {
	mode := s.Mode()
	return Flags{
		ShowChips:           mode == ModeSingleChoice || mode == ModeMultiChoice,
		MultiSelect:         mode == ModeMultiChoice,
		ShowTextInput:       mode == ModeText || mode == ModeOptionalText,
		CanSkip:             mode == ModeOptionalText,
		WaitingForEmail:     s == StateWaitingForEmailText,
		SupportChoicePrompt: s == StateOfferSupportChoice,
		ToneSelection:       s == StateToneSelection,
		ContinuationPrompt:  s == StateContinuationPrompt,
		Pending:             s == StateSubmitting || s == StateAwaitingVerdict || s == StateReportsHistory,
		Closed:              s.Terminal(),
	}
}

// EventKind is what the person did.
type EventKind string

const (
	EventStart  EventKind = "start"
	EventChoose EventKind = "choose"
	EventToggle EventKind = "toggle"
	EventDone   EventKind = "done"
	EventText   EventKind = "text"
	EventSkip   EventKind = "skip"
)

// Event carries an option key or label for choose/toggle and free text for text.
type Event struct {
	Kind  EventKind `json:"kind"`
	Value string    `json:"value,omitempty"`
}

func Start() Event               { return Event{Kind: EventStart} }
func Choose(option string) Event { return Event{Kind: EventChoose, Value: option} }
func Toggle(option string) Event { return Event{Kind: EventToggle, Value: option} }
func Done() Event                { return Event{Kind: EventDone} }
func Text(text string) Event     { return Event{Kind: EventText, Value: text} }
func Skip() Event                { return Event{Kind: EventSkip} }
