package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/besafe/digital-sister/internal/core"
	"github.com/besafe/digital-sister/internal/domain"
	"github.com/besafe/digital-sister/internal/metrics"
)

type fakeSubmitter struct {
	mu      sync.Mutex
	result  *core.SubmitResult
	err     error
	panic   bool
	entered chan struct{}
	release chan struct{}
	inputs  []core.SubmitInput

	history      *core.UserReports
	historyErr   error
	historyCalls []string
}

func (f *fakeSubmitter) Submit(ctx context.Context, in core.SubmitInput) (*core.SubmitResult, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	if f.entered != nil {
		close(f.entered)
	}
	if f.release != nil {
		<-f.release
	}
	if f.panic {
		panic("nil map")
	}
	return f.result, f.err
}

func (f *fakeSubmitter) ReportsByNickname(ctx context.Context, nickname string, limit int) (*core.UserReports, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls = append(f.historyCalls, nickname)
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	if f.history == nil {
		return &core.UserReports{Nickname: nickname, Reports: []domain.Report{}}, nil
	}
	return f.history, nil
}

func (f *fakeSubmitter) lastInput() core.SubmitInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[len(f.inputs)-1]
}

func groomingVerdict(level domain.RiskLevel) domain.Verdict {
	return domain.Verdict{
		RiskLevel:   level,
		Category:    "Grooming",
		Explanation: "The sender asks you to keep secrets.",
		ReplyOptions: domain.ReplyOptions{
			Gentle:    "I'd rather stop here.",
			Assertive: "Stop contacting me.",
			NoReply:   "Block and report the account.",
		},
		SupportLine: "This is not your fault.",
	}
}

func resultFor(v domain.Verdict, feelings domain.Feelings, email *domain.EmailReport) *core.SubmitResult {
	help := core.ProfessionalHelpFor(v.RiskLevel, v.Category, feelings)
	return &core.SubmitResult{
		Classification:   domain.Parsed(v),
		UserID:           "u-1",
		Nickname:         "Maya",
		ReportID:         "r-1",
		CreatedAt:        time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		EmailReport:      email,
		ProfessionalHelp: &help,
		Persisted:        true,
	}
}

func texts(turn *Turn) []string {
	out := make([]string, 0, len(turn.Messages))
	for _, m := range turn.Messages {
		out = append(out, m.Text)
	}
	return out
}

func step(t *testing.T, s *Session, ev Event) *Turn {
	t.Helper()
	turn, err := s.Step(context.Background(), ev)
	require.NoError(t, err, "event %s %q in %s", ev.Kind, ev.Value, s.View().State)
	return turn
}

// collectUpToExtraContext answers every question before the optional one.
func collectUpToExtraContext(t *testing.T, s *Session, email string) {
	t.Helper()
	step(t, s, Start())
	step(t, s, Choose("start"))
	step(t, s, Text("  Maya "))
	step(t, s, Toggle("fear"))
	step(t, s, Done())
	if email != "" {
		step(t, s, Choose("provide"))
		step(t, s, Text(email))
	} else {
		step(t, s, Choose("decline"))
	}
	step(t, s, Text("hey cutie, keep this between us"))
	step(t, s, Choose("private"))
	turn := step(t, s, Choose("stranger"))
	require.Equal(t, StateCollectExtraContext, turn.State)
}

func TestFlagsAreMutuallyExclusive(t *testing.T) {
	for _, st := range AllStates {
		f := st.Flags()
		modes := 0
		for _, on := range []bool{f.WaitingForEmail, f.SupportChoicePrompt, f.ToneSelection, f.ContinuationPrompt, f.Pending, f.Closed} {
			if on {
				modes++
			}
		}
		assert.LessOrEqual(t, modes, 1, "state %s", st)
		assert.False(t, f.ShowChips && f.ShowTextInput, "state %s", st)
		assert.False(t, f.MultiSelect && !f.ShowChips, "state %s", st)
		assert.False(t, f.CanSkip && !f.ShowTextInput, "state %s", st)
		assert.False(t, (f.Pending || f.Closed) && st.Interactive(), "state %s", st)
		assert.False(t, f.ToneSelection && !f.ShowChips, "state %s", st)
		assert.False(t, f.WaitingForEmail && !f.ShowTextInput, "state %s", st)
	}
}

func TestChoiceStatesDeclareOptions(t *testing.T) {
	for _, st := range AllStates {
		switch st.Mode() {
		case ModeSingleChoice, ModeMultiChoice:
			assert.NotEmpty(t, OptionsFor(st), "state %s", st)
		default:
			assert.Empty(t, OptionsFor(st), "state %s", st)
		}
	}
	assert.Len(t, OptionsFor(StateToneSelection), 3)
	assert.Len(t, OptionsFor(StateCollectFeelings), len(domain.AllFeelings))
}

func TestHighRiskScenario(t *testing.T) {
	sub := &fakeSubmitter{
		result: resultFor(groomingVerdict(domain.RiskHigh), domain.Feelings{domain.FeelingFear}, &domain.EmailReport{Sent: true}),
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := NewSession(sub, WithSessionMetrics(m))

	turn := step(t, s, Start())
	assert.Equal(t, []string{textGreeting}, texts(turn))
	assert.Equal(t, ModeSingleChoice, turn.Prompt.Mode)

	turn = step(t, s, Choose("OK, let's start"))
	assert.Equal(t, StateCollectIdentity, turn.State)
	assert.True(t, turn.Flags.ShowTextInput)

	turn = step(t, s, Text("  Maya "))
	assert.Equal(t, StateCollectFeelings, turn.State)
	assert.Contains(t, texts(turn)[0], "Hi Maya,")

	turn = step(t, s, Toggle("fear"))
	assert.Equal(t, StateCollectFeelings, turn.State, "multi-choice never advances on a toggle")
	assert.Empty(t, turn.Messages)
	assert.Equal(t, []string{"fear"}, turn.Prompt.Selected)

	turn = step(t, s, Done())
	assert.Equal(t, StateOfferTrustedAdultChannel, turn.State)

	turn = step(t, s, Choose("provide"))
	assert.Equal(t, StateWaitingForEmailText, turn.State)
	assert.True(t, turn.Flags.WaitingForEmail)

	turn = step(t, s, Text("mom@example.com"))
	assert.Equal(t, StateCollectNarrative, turn.State)

	step(t, s, Text("hey cutie, keep this between us"))
	step(t, s, Choose("private"))
	step(t, s, Choose("stranger"))

	turn = step(t, s, Skip())
	assert.Equal(t, []State{
		StateSubmitting, StateAwaitingVerdict, StatePresentingVerdict, StateOfferSupportChoice,
	}, turn.Visited)
	got := texts(turn)
	assert.Equal(t, textAnalyzing, got[0])
	assert.Equal(t, "I'm here for you, Maya 💗 This is not your fault.", got[1])
	assert.Equal(t, "The sender asks you to keep secrets.", got[2])
	assert.Equal(t, "I identified a high risk level and it looks like Grooming.", got[3])
	assert.Equal(t, MessageEmailBadge, turn.Messages[4].Kind)
	assert.Equal(t, textOfferSupport, got[5])
	assert.True(t, turn.Flags.SupportChoicePrompt)

	in := sub.lastInput()
	assert.Equal(t, "Maya", in.Nickname)
	assert.Equal(t, "hey cutie, keep this between us", in.MessageText)
	assert.Equal(t, domain.ChannelPrivate, in.Context.Channel)
	assert.Equal(t, domain.SenderStranger, in.Context.SenderType)
	assert.Equal(t, domain.Feelings{domain.FeelingFear}, in.Context.Feelings)
	assert.Equal(t, "mom@example.com", in.TrustedAdultEmail)
	assert.Empty(t, in.ExtraContext)

	turn = step(t, s, Choose("resources"))
	assert.Equal(t, []State{StatePresentingSupportResources, StateToneSelection}, turn.Visited)
	got = texts(turn)
	require.Len(t, got, 3)
	assert.Contains(t, got[1], "Hotline 105")
	assert.Contains(t, got[1], "Police")
	assert.Equal(t, textAskTone, got[2])

	turn = step(t, s, Choose("gentle"))
	assert.Equal(t, StateContinuationPrompt, turn.State)
	assert.Equal(t, []string{
		textReplyLeadIn,
		"I'd rather stop here.",
		textGentleHigh,
		textSummaryEmailSent,
		textAskWhatNext,
	}, texts(turn))

	sub.history = &core.UserReports{UserID: "u-1", Nickname: "Maya", Reports: []domain.Report{
		{Analysis: groomingVerdict(domain.RiskHigh), CreatedAt: time.Now()},
	}}
	turn = step(t, s, Choose("history"))
	assert.Equal(t, StateEnded, turn.State)
	assert.Nil(t, turn.Prompt)
	got = texts(turn)
	assert.Equal(t, textHistoryFoundOne, got[0])
	assert.Contains(t, got[1], "I identified a high risk level and it looked like Grooming.")
	assert.Equal(t, "You're not alone, Maya 💗", got[2])
	assert.Equal(t, textClosing, got[3])
	assert.Equal(t, MessageMusic, turn.Messages[4].Kind)
	assert.Contains(t, got[4], musicByFeeling[domain.FeelingFear])
	assert.Equal(t, []string{"Maya"}, sub.historyCalls)

	_, err := s.Step(context.Background(), Choose("end"))
	assert.ErrorIs(t, err, ErrSessionClosed)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DialogueSessions.WithLabelValues(metrics.SessionStarted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DialogueSessions.WithLabelValues(metrics.SessionEnded)))

	view := s.View()
	assert.Equal(t, StateEnded, view.State)
	assert.True(t, view.Flags.Closed)
	assert.Contains(t, view.Transcript, Message{Text: textGreeting, Kind: MessageText})
}

func TestDeclineEmailSkipsEmailStep(t *testing.T) {
	sub := &fakeSubmitter{result: resultFor(groomingVerdict(domain.RiskLow), domain.Feelings{domain.FeelingFear}, nil)}
	s := NewSession(sub)
	step(t, s, Start())
	step(t, s, Choose("start"))
	step(t, s, Text("Maya"))
	step(t, s, Toggle("calm"))
	step(t, s, Done())

	turn := step(t, s, Choose("decline"))
	assert.Equal(t, []State{StateCollectNarrative}, turn.Visited)

	step(t, s, Text("you're so annoying"))
	step(t, s, Choose("Group chat"))
	step(t, s, Choose("Someone I know"))
	turn = step(t, s, Text("   "))
	assert.NotContains(t, turn.Visited, StateOfferSupportChoice)
	assert.Equal(t, StateToneSelection, turn.State)

	turn = step(t, s, Choose("noReply"))
	assert.Equal(t, []string{
		textNoReplyAck,
		"Block and report the account.",
		textNoReplyCoping,
		textAskWhatNext,
	}, texts(turn))

	in := sub.lastInput()
	assert.Empty(t, in.TrustedAdultEmail)
	assert.Equal(t, domain.ChannelGroup, in.Context.Channel)
	assert.Equal(t, domain.SenderKnown, in.Context.SenderType)

	turn = step(t, s, Choose("end"))
	assert.Equal(t, []State{StateEnded}, turn.Visited)
	assert.Equal(t, textClosing, texts(turn)[0])
	assert.Contains(t, texts(turn)[1], defaultMusic)
}

func TestSocialNetworkCountsAsGroup(t *testing.T) {
	sub := &fakeSubmitter{result: resultFor(groomingVerdict(domain.RiskLow), nil, nil)}
	s := NewSession(sub)
	step(t, s, Choose("start"))
	step(t, s, Text("Noa"))
	step(t, s, Toggle("other"))
	step(t, s, Done())
	step(t, s, Choose("decline"))
	step(t, s, Text("msg"))
	step(t, s, Choose("social"))
	step(t, s, Choose("known"))
	step(t, s, Text("he is in my class"))

	in := sub.lastInput()
	assert.Equal(t, domain.ChannelGroup, in.Context.Channel)
	assert.Equal(t, "he is in my class", in.ExtraContext)
}

func TestRejectedInputLeavesStateUnchanged(t *testing.T) {
	s := NewSession(&fakeSubmitter{})
	ctx := context.Background()

	_, err := s.Step(ctx, Text("hello"))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, StateGreeting, s.View().State)

	step(t, s, Choose("start"))
	_, err = s.Step(ctx, Text("   "))
	var ie *InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, textEmptyText, ie.Hint)
	assert.Equal(t, StateCollectIdentity, s.View().State)

	step(t, s, Text("Maya"))
	_, err = s.Step(ctx, Done())
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, textPickAtLeastOneFeeling, ie.Hint)

	_, err = s.Step(ctx, Toggle("joy"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	step(t, s, Toggle("fear"))
	turn := step(t, s, Toggle("Scared"))
	assert.Empty(t, turn.Prompt.Selected, "toggling twice removes the feeling")
	step(t, s, Toggle("sadness"))
	step(t, s, Done())

	step(t, s, Choose("provide"))
	_, err = s.Step(ctx, Text("not an address"))
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, textInvalidEmail, ie.Hint)
	assert.Equal(t, StateWaitingForEmailText, s.View().State)

	step(t, s, Text("Mom <mom@example.com>"))
	_, err = s.Step(ctx, Skip())
	assert.ErrorIs(t, err, ErrInvalidInput, "only the extra context question can be skipped")
	_, err = s.Step(ctx, Text(""))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestExtraContextSkipEqualsEmptyText(t *testing.T) {
	for _, ev := range []Event{Skip(), Text(""), Text("  ")} {
		sub := &fakeSubmitter{result: resultFor(groomingVerdict(domain.RiskLow), nil, nil)}
		s := NewSession(sub)
		collectUpToExtraContext(t, s, "")
		step(t, s, ev)
		assert.Empty(t, sub.lastInput().ExtraContext)
	}
}

func TestUnparsedVerdictSkipsVerdictBranches(t *testing.T) {
	for _, raw := range []string{"The model said something odd.", ""} {
		sub := &fakeSubmitter{result: &core.SubmitResult{
			Classification: domain.Unparsed(raw),
			UserID:         "u-1",
			Nickname:       "Maya",
		}}
		s := NewSession(sub)
		collectUpToExtraContext(t, s, "mom@example.com")

		turn := step(t, s, Skip())
		assert.Equal(t, []State{StateSubmitting, StateAwaitingVerdict, StatePresentingVerdict, StateContinuationPrompt}, turn.Visited)
		want := raw
		if want == "" {
			want = textUnparsedDefault
		}
		assert.Equal(t, []string{textAnalyzing, want, textSummaryEmailNotSent, textAskWhatNext}, texts(turn))
		assert.True(t, turn.Flags.ContinuationPrompt)

		turn = step(t, s, Choose("end"))
		assert.Equal(t, StateEnded, turn.State)
	}
}

func TestIncompleteRepliesSkipToneSelection(t *testing.T) {
	v := groomingVerdict(domain.RiskMedium)
	v.ReplyOptions.Assertive = ""
	sub := &fakeSubmitter{result: resultFor(v, domain.Feelings{domain.FeelingCalm}, nil)}
	s := NewSession(sub)
	collectUpToExtraContext(t, s, "mom@example.com")

	turn := step(t, s, Skip())
	assert.NotContains(t, turn.Visited, StateToneSelection)
	assert.Equal(t, StateContinuationPrompt, turn.State)
	assert.Contains(t, texts(turn), textSummaryEmailNotHigh)
}

func TestSupportChoiceSkipToReplies(t *testing.T) {
	sub := &fakeSubmitter{result: resultFor(groomingVerdict(domain.RiskHigh), domain.Feelings{domain.FeelingFear}, &domain.EmailReport{Sent: false, Error: "boom"})}
	s := NewSession(sub)
	collectUpToExtraContext(t, s, "mom@example.com")

	turn := step(t, s, Skip())
	assert.Contains(t, texts(turn), textEmailFailedNote)

	turn = step(t, s, Choose("Send a reply"))
	assert.Equal(t, []State{StateToneSelection}, turn.Visited)

	turn = step(t, s, Choose("assertive"))
	assert.Equal(t, []string{textReplyLeadIn, "Stop contacting me.", textAssertiveHigh, textSummaryEmailFailed, textAskWhatNext}, texts(turn))
}

func TestToneExplanationDependsOnRisk(t *testing.T) {
	tests := []struct {
		level domain.RiskLevel
		tone  string
		want  string
	}{
		{domain.RiskHigh, "gentle", textGentleHigh},
		{domain.RiskMedium, "gentle", textGentleOther},
		{domain.RiskHigh, "assertive", textAssertiveHigh},
		{domain.RiskLow, "assertive", textAssertiveOther},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%s-%s", tc.level, tc.tone), func(t *testing.T) {
			sub := &fakeSubmitter{result: resultFor(groomingVerdict(tc.level), domain.Feelings{domain.FeelingCalm}, nil)}
			s := NewSession(sub)
			collectUpToExtraContext(t, s, "")
			turn := step(t, s, Skip())
			if turn.State == StateOfferSupportChoice {
				step(t, s, Choose("replies"))
			}
			turn = step(t, s, Choose(tc.tone))
			assert.Contains(t, texts(turn), tc.want)
		})
	}
}

func TestSubmissionFailures(t *testing.T) {
	tests := []struct {
		name string
		sub  *fakeSubmitter
		want string
	}{
		{"no response", &fakeSubmitter{err: fmt.Errorf("%w: deadline", domain.ErrNoResponse)}, textErrorNoResponse},
		{"rejected", &fakeSubmitter{err: fmt.Errorf("%w: 500", domain.ErrUpstream)}, textErrorRejected},
		{"store failure", &fakeSubmitter{err: errors.New("disk full")}, textErrorRejected},
		{"unexpected", &fakeSubmitter{panic: true}, textErrorUnexpected},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := metrics.New(prometheus.NewRegistry())
			s := NewSession(tc.sub, WithSessionMetrics(m))
			collectUpToExtraContext(t, s, "")

			turn := step(t, s, Skip())
			assert.Equal(t, StateFailed, turn.State)
			assert.True(t, turn.Flags.Closed)
			assert.Nil(t, turn.Prompt)
			last := turn.Messages[len(turn.Messages)-1]
			assert.Equal(t, MessageError, last.Kind)
			assert.Equal(t, textErrorPrefix+tc.want, last.Text)

			_, err := s.Step(context.Background(), Choose("end"))
			assert.ErrorIs(t, err, ErrSessionClosed)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.DialogueSessions.WithLabelValues(metrics.SessionFailed)))
		})
	}
}

func TestStepWhileSubmittingIsBusy(t *testing.T) {
	sub := &fakeSubmitter{
		result:  resultFor(groomingVerdict(domain.RiskLow), nil, nil),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := NewSession(sub)
	collectUpToExtraContext(t, s, "")

	done := make(chan *Turn, 1)
	go func() {
		turn, err := s.Step(context.Background(), Skip())
		assert.NoError(t, err)
		done <- turn
	}()

	<-sub.entered
	_, err := s.Step(context.Background(), Choose("gentle"))
	assert.ErrorIs(t, err, ErrBusy)

	view := s.View()
	assert.Equal(t, StateAwaitingVerdict, view.State)
	assert.True(t, view.Flags.Pending)
	assert.Equal(t, textAnalyzing, view.Transcript[len(view.Transcript)-1].Text)

	close(sub.release)
	turn := <-done
	require.NotNil(t, turn)
	assert.Equal(t, StateToneSelection, turn.State)
}

func TestHistoryPreviewIsBounded(t *testing.T) {
	reports := make([]domain.Report, 5)
	for i := range reports {
		reports[i] = domain.Report{
			Analysis:  domain.Verdict{RiskLevel: domain.RiskMedium, Category: fmt.Sprintf("cat-%d", i)},
			CreatedAt: time.Date(2025, 1, 5-i, 10, 0, 0, 0, time.UTC),
		}
	}
	sub := &fakeSubmitter{
		result:  resultFor(groomingVerdict(domain.RiskLow), nil, nil),
		history: &core.UserReports{Nickname: "Maya", Reports: reports},
	}
	s := NewSession(sub, WithHistoryPreview(3))
	collectUpToExtraContext(t, s, "")
	step(t, s, Skip())
	step(t, s, Choose("gentle"))

	turn := step(t, s, Choose("history"))
	got := texts(turn)
	assert.Equal(t, fmt.Sprintf(textHistoryFoundMany, 5), got[0])
	summaries := 0
	for _, txt := range got {
		if strings.Contains(txt, "I identified a medium risk level") {
			summaries++
		}
	}
	assert.Equal(t, 3, summaries)
	assert.Contains(t, got[1], "cat-0")
	assert.Contains(t, got, fmt.Sprintf(textHistoryMore, 2))
}

func TestHistoryEdgeCases(t *testing.T) {
	t.Run("first report", func(t *testing.T) {
		sub := &fakeSubmitter{result: resultFor(groomingVerdict(domain.RiskLow), nil, nil)}
		s := NewSession(sub)
		collectUpToExtraContext(t, s, "")
		step(t, s, Skip())
		step(t, s, Choose("gentle"))
		turn := step(t, s, Choose("history"))
		assert.Equal(t, fmt.Sprintf(textHistoryFirst, "Maya"), texts(turn)[0])
	})

	t.Run("store error", func(t *testing.T) {
		sub := &fakeSubmitter{result: resultFor(groomingVerdict(domain.RiskLow), nil, nil), historyErr: errors.New("locked")}
		s := NewSession(sub)
		collectUpToExtraContext(t, s, "")
		step(t, s, Skip())
		step(t, s, Choose("gentle"))
		turn := step(t, s, Choose("history"))
		assert.Equal(t, StateEnded, turn.State)
		assert.Equal(t, []string{textHistoryUnavailable, textClosing}, texts(turn)[:2])
	})
}

func TestRiskStatement(t *testing.T) {
	assert.Equal(t, "I identified a low risk level and it looks like Spam.", riskStatement(domain.RiskLow, "Spam"))
	assert.Equal(t, "I identified a medium risk level.", riskStatement(domain.RiskMedium, " "))
	assert.Equal(t, "It looks like Spam.", riskStatement(domain.RiskUnknown, "Spam"))
	assert.Empty(t, riskStatement(domain.RiskUnknown, ""))
}

func TestMusicFor(t *testing.T) {
	assert.Equal(t, musicByFeeling[domain.FeelingSadness], MusicFor(domain.Feelings{domain.FeelingSadness, domain.FeelingFear}))
	assert.Equal(t, defaultMusic, MusicFor(domain.Feelings{domain.FeelingCalm}))
	assert.Equal(t, defaultMusic, MusicFor(nil))
}
