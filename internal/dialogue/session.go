package dialogue

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/besafe/digital-sister/internal/core"
	"github.com/besafe/digital-sister/internal/domain"
	"github.com/besafe/digital-sister/internal/metrics"
)

var (
	ErrInvalidInput  = errors.New("input not accepted in the current step")
	ErrSessionClosed = errors.New("session is closed")
	ErrBusy          = errors.New("session is busy")

	errUnexpected = errors.New("unexpected failure")
)

// InputError is an ErrInvalidInput with a hint that can be shown to the person.
type InputError struct {
	Hint string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidInput, e.Hint)
}

func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func rejectInput(hint string) error {
	return &InputError{Hint: hint}
}

// Submitter is the report surface the dialogue drives.
type Submitter interface {
	Submit(ctx context.Context, in core.SubmitInput) (*core.SubmitResult, error)
	ReportsByNickname(ctx context.Context, nickname string, limit int) (*core.UserReports, error)
}

type MessageKind string

const (
	MessageText       MessageKind = "text"
	MessageEmailBadge MessageKind = "email_badge"
	MessageMusic      MessageKind = "music"
	MessageError      MessageKind = "error"
)

type Message struct {
	Text string      `json:"text"`
	Kind MessageKind `json:"kind"`
}

// Prompt describes the input the session is waiting for.
type Prompt struct {
	State    State     `json:"state"`
	Mode     InputMode `json:"mode"`
	Options  []Option  `json:"options,omitempty"`
	Selected []string  `json:"selected,omitempty"`
}

// Turn is the outcome of one event: the messages to show, every state
// entered on the way, and the prompt for the next event (nil once closed).
type Turn struct {
	State    State     `json:"state"`
	Flags    Flags     `json:"flags"`
	Messages []Message `json:"messages"`
	Prompt   *Prompt   `json:"prompt,omitempty"`
	Visited  []State   `json:"visited"`
}

func (t *Turn) say(text string) {
	t.Messages = append(t.Messages, Message{Text: text, Kind: MessageText})
}

func (t *Turn) sayKind(kind MessageKind, text string) {
	t.Messages = append(t.Messages, Message{Text: text, Kind: kind})
}

// View is a read-only snapshot of a session.
type View struct {
	ID         string    `json:"id"`
	State      State     `json:"state"`
	Flags      Flags     `json:"flags"`
	Prompt     *Prompt   `json:"prompt,omitempty"`
	Transcript []Message `json:"transcript"`
}

type answers struct {
	nickname          string
	feelings          domain.Feelings
	trustedAdultEmail string
	narrative         string
	channel           domain.Channel
	senderType        domain.SenderType
	extraContext      string
}

const defaultHistoryPreview = 3

// Session is one conversation. It owns its answers and its state; nothing is
// shared between sessions except the Submitter.
type Session struct {
	id             string
	submitter      Submitter
	metrics        *metrics.Metrics
	historyPreview int

	mu         sync.Mutex
	state      State
	answers    answers
	result     *core.SubmitResult
	tone       string
	transcript []Message

	view atomic.Pointer[View]
}

type SessionOption func(*Session)

// WithHistoryPreview bounds how many past reports are summarized.
func WithHistoryPreview(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.historyPreview = n
		}
	}
}

func WithSessionMetrics(m *metrics.Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

func NewSession(submitter Submitter, opts ...SessionOption) *Session {
	s := &Session{
		id:             uuid.NewString(),
		submitter:      submitter,
		metrics:        metrics.New(nil),
		historyPreview: defaultHistoryPreview,
		state:          StateGreeting,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics.DialogueSessions.WithLabelValues(metrics.SessionStarted).Inc()
	s.publish()
	return s
}

func (s *Session) ID() string { return s.id }

// View never blocks, including while a submission is pending.
func (s *Session) View() View {
	return *s.view.Load()
}

// Step applies one event. Input that the current state does not accept
// returns an error wrapping ErrInvalidInput and leaves the session unchanged.
// ErrBusy is returned while another event for the session is being handled.
func (s *Session) Step(ctx context.Context, ev Event) (*Turn, error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return nil, ErrSessionClosed
	}

	next, advance, err := s.transition(ev)
	if err != nil {
		return nil, err
	}

	t := &Turn{}
	if advance {
		s.enter(ctx, next, t)
	} else {
		t.Visited = append(t.Visited, s.state)
	}
	s.transcript = append(s.transcript, t.Messages...)
	s.publish()

	t.State = s.state
	t.Flags = s.state.Flags()
	t.Prompt = s.prompt()
	if t.Messages == nil {
		t.Messages = []Message{}
	}
	return t, nil
}

// transition validates ev against the current state and records the answer.
// advance is false when the event is absorbed without leaving the state.
func (s *Session) transition(ev Event) (next State, advance bool, err error) {
	switch s.state {
	case StateGreeting:
		switch ev.Kind {
		case EventStart:
			return StateGreeting, true, nil
		case EventChoose:
			if _, ok := matchOption(s.state, ev.Value); ok {
				return StateCollectIdentity, true, nil
			}
		}

	case StateCollectIdentity:
		if ev.Kind == EventText {
			name := strings.TrimSpace(ev.Value)
			if name == "" {
				return "", false, rejectInput(textEmptyText)
			}
			s.answers.nickname = name
			return StateCollectFeelings, true, nil
		}

	case StateCollectFeelings:
		switch ev.Kind {
		case EventToggle, EventChoose:
			if key, ok := matchOption(s.state, ev.Value); ok {
				s.answers.feelings = s.answers.feelings.Toggle(domain.Feeling(key))
				return s.state, false, nil
			}
		case EventDone:
			if len(s.answers.feelings) == 0 {
				return "", false, rejectInput(textPickAtLeastOneFeeling)
			}
			return StateOfferTrustedAdultChannel, true, nil
		}

	case StateOfferTrustedAdultChannel:
		if ev.Kind == EventChoose {
			switch key, _ := matchOption(s.state, ev.Value); key {
			case optProvideEmail:
				return StateWaitingForEmailText, true, nil
			case optDeclineEmail:
				s.answers.trustedAdultEmail = ""
				return StateCollectNarrative, true, nil
			}
		}

	case StateWaitingForEmailText:
		if ev.Kind == EventText {
			addr, err := mail.ParseAddress(strings.TrimSpace(ev.Value))
			if err != nil {
				return "", false, rejectInput(textInvalidEmail)
			}
			s.answers.trustedAdultEmail = addr.Address
			return StateCollectNarrative, true, nil
		}

	case StateCollectNarrative:
		if ev.Kind == EventText {
			text := strings.TrimSpace(ev.Value)
			if text == "" {
				return "", false, rejectInput(textEmptyText)
			}
			s.answers.narrative = text
			return StateCollectChannel, true, nil
		}

	case StateCollectChannel:
		if ev.Kind == EventChoose {
			if key, ok := matchOption(s.state, ev.Value); ok {
				s.answers.channel = channelByOption[key]
				return StateCollectSenderType, true, nil
			}
		}

	case StateCollectSenderType:
		if ev.Kind == EventChoose {
			if key, ok := matchOption(s.state, ev.Value); ok {
				s.answers.senderType = senderByOption[key]
				return StateCollectExtraContext, true, nil
			}
		}

	case StateCollectExtraContext:
		switch ev.Kind {
		case EventText:
			s.answers.extraContext = strings.TrimSpace(ev.Value)
			return StateSubmitting, true, nil
		case EventSkip:
			s.answers.extraContext = ""
			return StateSubmitting, true, nil
		}

	case StateOfferSupportChoice:
		if ev.Kind == EventChoose {
			switch key, _ := matchOption(s.state, ev.Value); key {
			case optSupportResources:
				return StatePresentingSupportResources, true, nil
			case optSupportReplies:
				return s.afterSupport(), true, nil
			}
		}

	case StateToneSelection:
		if ev.Kind == EventChoose {
			if key, ok := matchOption(s.state, ev.Value); ok {
				s.tone = key
				return StatePresentingChosenReply, true, nil
			}
		}

	case StateContinuationPrompt:
		if ev.Kind == EventChoose {
			switch key, _ := matchOption(s.state, ev.Value); key {
			case optHistory:
				return StateReportsHistory, true, nil
			case optEnd:
				return StateEnded, true, nil
			}
		}
	}

	return "", false, fmt.Errorf("%w: %s does not accept %s %q", ErrInvalidInput, s.state, ev.Kind, ev.Value)
}

// enter moves into next and keeps going through non-interactive states until
// the session waits for input again or closes.
func (s *Session) enter(ctx context.Context, next State, t *Turn) {
	for {
		s.state = next
		t.Visited = append(t.Visited, next)
		s.publish(t.Messages...)
		log.WithFields(log.Fields{"session_id": s.id, "state": next}).Debug("Dialogue state entered")

		switch next {
		case StateGreeting:
			t.say(textGreeting)
			return
		case StateCollectIdentity:
			t.say(textAskIdentity)
			return
		case StateCollectFeelings:
			t.say(fmt.Sprintf(textAskFeelings, s.answers.nickname))
			return
		case StateOfferTrustedAdultChannel:
			t.say(textOfferTrustedAdult)
			return
		case StateWaitingForEmailText:
			t.say(textAskEmail)
			return
		case StateCollectNarrative:
			t.say(textAskNarrative)
			return
		case StateCollectChannel:
			t.say(textAskChannel)
			return
		case StateCollectSenderType:
			t.say(textAskSenderType)
			return
		case StateCollectExtraContext:
			t.say(textAskExtraContext)
			return

		case StateSubmitting:
			t.say(textAnalyzing)
			next = StateAwaitingVerdict
		case StateAwaitingVerdict:
			next = s.awaitVerdict(ctx, t)
		case StatePresentingVerdict:
			next = s.presentVerdict(t)
		case StateOfferSupportChoice:
			t.say(textOfferSupport)
			return
		case StatePresentingSupportResources:
			s.presentResources(t)
			next = s.afterSupport()
		case StateToneSelection:
			t.say(textAskTone)
			return
		case StatePresentingChosenReply:
			s.presentChosenReply(t)
			next = StateContinuationPrompt
		case StateContinuationPrompt:
			s.presentContinuation(t)
			return
		case StateReportsHistory:
			s.presentHistory(ctx, t)
			next = StateEnded

		case StateEnded:
			t.say(textClosing)
			t.sayKind(MessageMusic, fmt.Sprintf(textMusic, MusicFor(s.answers.feelings)))
			s.metrics.DialogueSessions.WithLabelValues(metrics.SessionEnded).Inc()
			return
		case StateFailed:
			s.metrics.DialogueSessions.WithLabelValues(metrics.SessionFailed).Inc()
			return
		default:
			return
		}
	}
}

func (s *Session) awaitVerdict(ctx context.Context, t *Turn) State {
	res, err := s.submit(ctx)
	if err != nil {
		log.WithFields(log.Fields{"session_id": s.id}).WithError(err).Warn("Dialogue submission failed")
		t.sayKind(MessageError, textErrorPrefix+failureText(err))
		return StateFailed
	}
	s.result = res
	return StatePresentingVerdict
}

func (s *Session) submit(ctx context.Context) (res *core.SubmitResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("%w: %v", errUnexpected, p)
		}
	}()
	return s.submitter.Submit(ctx, core.SubmitInput{
		Nickname:    s.answers.nickname,
		MessageText: s.answers.narrative,
		Context: &domain.ConversationContext{
			Channel:    s.answers.channel,
			SenderType: s.answers.senderType,
			Feelings:   s.answers.feelings,
		},
		TrustedAdultEmail: s.answers.trustedAdultEmail,
		ExtraContext:      s.answers.extraContext,
	})
}

func failureText(err error) string {
	switch {
	case errors.Is(err, errUnexpected):
		return textErrorUnexpected
	case errors.Is(err, domain.ErrNoResponse), errors.Is(err, context.DeadlineExceeded):
		return textErrorNoResponse
	default:
		return textErrorRejected
	}
}

// afterSupport is where the flow continues once support lines were offered.
func (s *Session) afterSupport() State {
	if v := s.verdict(); v != nil && v.CanOfferTones() {
		return StateToneSelection
	}
	return StateContinuationPrompt
}

func (s *Session) verdict() *domain.Verdict {
	if s.result == nil {
		return nil
	}
	return s.result.Classification.Verdict
}

func (s *Session) displayName() string {
	if s.answers.nickname != "" {
		return s.answers.nickname
	}
	return textFallbackName
}

func (s *Session) prompt() *Prompt {
	if !s.state.Interactive() {
		return nil
	}
	p := &Prompt{State: s.state, Mode: s.state.Mode(), Options: OptionsFor(s.state)}
	if s.state == StateCollectFeelings {
		p.Selected = make([]string, 0, len(s.answers.feelings))
		for _, f := range s.answers.feelings {
			p.Selected = append(p.Selected, string(f))
		}
	}
	return p
}

// publish stores the snapshot returned by View. pending holds messages of the
// turn in progress that are not yet in the transcript.
func (s *Session) publish(pending ...Message) {
	transcript := make([]Message, 0, len(s.transcript)+len(pending))
	transcript = append(transcript, s.transcript...)
	transcript = append(transcript, pending...)
	s.view.Store(&View{
		ID:         s.id,
		State:      s.state,
		Flags:      s.state.Flags(),
		Prompt:     s.prompt(),
		Transcript: transcript,
	})
}
