package dialogue

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/besafe/digital-sister/internal/core"
	"github.com/besafe/digital-sister/internal/domain"
)

const historyDateLayout = "January 2, 2006 15:04"

// presentVerdict shows the support line, the explanation and the
// risk/category statement, each only when present.
func (s *Session) presentVerdict(t *Turn) State {
	v := s.verdict()
	if v == nil {
		raw := strings.TrimSpace(s.result.Classification.Raw)
		if raw == "" {
			raw = textUnparsedDefault
		}
		t.say(raw)
		return StateContinuationPrompt
	}

	if v.SupportLine != "" {
		t.say(fmt.Sprintf(textSupportPersonal, s.displayName()) + " " + v.SupportLine)
	}
	if v.Explanation != "" {
		t.say(v.Explanation)
	}
	if stmt := riskStatement(v.RiskLevel, v.Category); stmt != "" {
		t.say(stmt)
	}

	if er := s.result.EmailReport; er != nil {
		if er.Sent {
			t.sayKind(MessageEmailBadge, textEmailSentNote)
		} else {
			t.say(textEmailFailedNote)
		}
	}

	if help := s.result.ProfessionalHelp; help != nil && help.Show {
		return StateOfferSupportChoice
	}
	return s.afterSupport()
}

func riskStatement(level domain.RiskLevel, category string) string {
	var parts []string
	if lt, ok := riskLevelText[level]; ok {
		parts = append(parts, "I identified "+lt)
	}
	if c := strings.TrimSpace(category); c != "" {
		if len(parts) == 0 {
			parts = append(parts, "It looks like "+c)
		} else {
			parts = append(parts, "it looks like "+c)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " and ") + "."
}

func (s *Session) presentResources(t *Turn) {
	help := s.result.ProfessionalHelp
	if help == nil {
		return
	}
	if help.Message != "" {
		t.say(help.Message)
	}
	var names []string
	for _, key := range help.RecommendedResources {
		if r, ok := core.LookupResource(key); ok {
			names = append(names, fmt.Sprintf("%s: %s", r.Name, r.Details))
		}
	}
	if len(names) > 0 {
		t.say(fmt.Sprintf(textStartWith, strings.Join(names, " or ")))
	}
}

func (s *Session) presentChosenReply(t *Turn) {
	v := s.verdict()
	if v == nil {
		return
	}
	high := v.RiskLevel == domain.RiskHigh

	switch s.tone {
	case optToneGentle, optToneAssertive:
		reply := v.ReplyOptions.Gentle
		explain := textGentleOther
		if high {
			explain = textGentleHigh
		}
		if s.tone == optToneAssertive {
			reply = v.ReplyOptions.Assertive
			explain = textAssertiveOther
			if high {
				explain = textAssertiveHigh
			}
		}
		if reply == "" {
			return
		}
		t.say(textReplyLeadIn)
		t.say(reply)
		t.say(explain)
	case optToneNoReply:
		t.say(textNoReplyAck)
		if v.ReplyOptions.NoReply != "" {
			t.say(v.ReplyOptions.NoReply)
		}
		t.say(textNoReplyCoping)
	}
}

// presentContinuation reports the notification outcome when an email was
// supplied, then asks what next.
func (s *Session) presentContinuation(t *Turn) {
	if s.answers.trustedAdultEmail != "" {
		t.sayKind(emailSummary(s.result))
	}
	t.say(textAskWhatNext)
}

func emailSummary(res *core.SubmitResult) (MessageKind, string) {
	switch {
	case res == nil || !res.Classification.IsParsed():
		return MessageText, textSummaryEmailNotSent
	case res.EmailReport == nil:
		return MessageText, textSummaryEmailNotHigh
	case res.EmailReport.Sent:
		return MessageEmailBadge, textSummaryEmailSent
	default:
		return MessageText, textSummaryEmailFailed
	}
}

func (s *Session) presentHistory(ctx context.Context, t *Turn) {
	name := s.displayName()
	history, err := s.submitter.ReportsByNickname(ctx, s.answers.nickname, 0)
	if err != nil {
		log.WithField("session_id", s.id).WithError(err).Warn("Failed to load report history")
		t.say(textHistoryUnavailable)
		return
	}

	reports := history.Reports
	switch len(reports) {
	case 0:
		t.say(fmt.Sprintf(textHistoryFirst, name))
		return
	case 1:
		t.say(textHistoryFoundOne)
	default:
		t.say(fmt.Sprintf(textHistoryFoundMany, len(reports)))
	}

	shown := reports
	if len(shown) > s.historyPreview {
		shown = shown[:s.historyPreview]
	}
	for _, r := range shown {
		t.say(summarizeReport(r))
	}
	if extra := len(reports) - len(shown); extra > 0 {
		t.say(fmt.Sprintf(textHistoryMore, extra))
	}
	t.say(fmt.Sprintf(textHistoryNotAlone, name))
}

func summarizeReport(r domain.Report) string {
	var b strings.Builder
	b.WriteString(r.CreatedAt.Local().Format(historyDateLayout))
	b.WriteString("\n")

	level, ok := riskLevelText[r.Analysis.RiskLevel]
	if !ok {
		level = riskLevelText[domain.RiskLow]
	}
	b.WriteString("I identified " + level)
	if c := strings.TrimSpace(r.Analysis.Category); c != "" {
		b.WriteString(" and it looked like " + c)
	}
	b.WriteString(".")
	if e := strings.TrimSpace(r.Analysis.Explanation); e != "" {
		b.WriteString("\n" + e)
	}
	return b.String()
}
