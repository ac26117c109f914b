package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/besafe/digital-sister/internal/domain"
)

const (
	lastCategoriesInSummary = 3

	classifierSystemInstruction = `You are a digital assistant for online safety, helping a young person who received an uncomfortable message.
Return JSON only, in exactly this shape:
{
  "riskLevel": "low" | "medium" | "high",
  "category": "short label, e.g. harassment, grooming, sexual pressure, threat, extortion, manipulation, spam, unclear, safe",
  "explanation": "2-3 sentences explaining what is going on",
  "replyOptions": {
    "gentle": "a gentle reply the person could send",
    "assertive": "an assertive reply the person could send",
    "noReply": "what to do instead of replying"
  },
  "supportLine": "one supportive sentence addressed to the person"
}
Use a respectful, assertive tone. Never blame the person.`

	toneAdjustInstruction = "This person has reported before. Make the reply options less apologetic and more boundary-setting, and make the supportLine more affirming."

	tonePatternInstruction = "There is a pattern of repeated incidents. You may explicitly recommend blocking the sender, reporting the account, or involving a trusted adult."
)

// SummarizeHistory builds the classifier's view of prior reports. reports must be newest first.
func SummarizeHistory(reports []domain.Report) domain.HistorySummary {
	summary := domain.HistorySummary{ReportCount: len(reports), LastCategories: []string{}}
	for _, r := range reports {
		if len(summary.LastCategories) == lastCategoriesInSummary {
			break
		}
		if c := strings.TrimSpace(r.Analysis.Category); c != "" {
			summary.LastCategories = append(summary.LastCategories, c)
		}
	}
	return summary
}

// ToneText is the prompt fragment for a tone instruction level.
func ToneText(tone domain.ToneInstruction) string {
	switch tone {
	case domain.ToneAdjust:
		return toneAdjustInstruction
	case domain.TonePattern:
		return toneAdjustInstruction + "\n" + tonePatternInstruction
	}
	return ""
}

// BuildClassifierPrompt renders the user turn sent to the classifier.
func BuildClassifierPrompt(req domain.ClassifierRequest) (string, error) {
	ctxJSON, err := json.Marshal(struct {
		Channel      domain.Channel    `json:"channel"`
		SenderType   domain.SenderType `json:"senderType"`
		Feelings     domain.Feelings   `json:"feelings"`
		ExtraContext string            `json:"extraContext,omitempty"`
	}{req.Channel, req.SenderType, req.Feelings, req.ExtraContext})
	if err != nil {
		return "", fmt.Errorf("failed to encode context: %w", err)
	}
	histJSON, err := json.Marshal(req.History)
	if err != nil {
		return "", fmt.Errorf("failed to encode history: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "messageText:\n\"\"\"%s\"\"\"\n\n", req.MessageText)
	fmt.Fprintf(&b, "context:\n%s\n\n", ctxJSON)
	fmt.Fprintf(&b, "history:\n%s", histJSON)
	if tone := ToneText(req.Tone); tone != "" {
		fmt.Fprintf(&b, "\n\ntoneInstruction:\n%s", tone)
	}
	return b.String(), nil
}

type rawVerdict struct {
	RiskLevel    string `json:"riskLevel"`
	Category     string `json:"category"`
	Explanation  string `json:"explanation"`
	ReplyOptions *struct {
		Gentle    string `json:"gentle"`
		Assertive string `json:"assertive"`
		NoReply   string `json:"noReply"`
	} `json:"replyOptions"`
	SupportLine string `json:"supportLine"`
}

// ParseVerdict turns classifier output into a Classification. Anything that is
// not a JSON object with a recognizable risk level is returned as Unparsed.
func ParseVerdict(raw string) domain.Classification {
	text := stripCodeFence(strings.TrimSpace(raw))

	var rv rawVerdict
	if err := json.Unmarshal([]byte(text), &rv); err != nil {
		return domain.Unparsed(strings.TrimSpace(raw))
	}
	level := domain.ParseRiskLevel(rv.RiskLevel)
	if !level.Valid() {
		return domain.Unparsed(strings.TrimSpace(raw))
	}

	v := domain.Verdict{
		RiskLevel:   level,
		Category:    strings.TrimSpace(rv.Category),
		Explanation: strings.TrimSpace(rv.Explanation),
		SupportLine: strings.TrimSpace(rv.SupportLine),
	}
	if rv.ReplyOptions != nil {
		v.ReplyOptions = domain.ReplyOptions{
			Gentle:    strings.TrimSpace(rv.ReplyOptions.Gentle),
			Assertive: strings.TrimSpace(rv.ReplyOptions.Assertive),
			NoReply:   strings.TrimSpace(rv.ReplyOptions.NoReply),
		}
	}
	return domain.Parsed(v)
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// StaticClassifier returns canned verdicts for local runs without a model.
// A person who reports feeling fear gets the high-risk grooming verdict.
type StaticClassifier struct{}

func (StaticClassifier) Classify(ctx context.Context, req domain.ClassifierRequest) (domain.Classification, error) {
	if err := ctx.Err(); err != nil {
		return domain.Classification{}, fmt.Errorf("%w: %v", domain.ErrNoResponse, err)
	}
	if req.Feelings.Contains(domain.FeelingFear) {
		return domain.Parsed(domain.Verdict{
			RiskLevel:   domain.RiskHigh,
			Category:    "Grooming",
			Explanation: "The message tries to move the conversation somewhere private, asks for secrecy and uses compliments meant to build trust.",
			ReplyOptions: domain.ReplyOptions{
				Gentle:    "I'm not comfortable with this conversation, I'd rather stop here.",
				Assertive: "Stop contacting me. I'm blocking and reporting you.",
				NoReply:   "Don't reply, block and report.",
			},
			SupportLine: "This is not your fault. Reaching out for help was a strong and right step.",
		}), nil
	}
	return domain.Parsed(domain.Verdict{
		RiskLevel:   domain.RiskLow,
		Category:    "Other",
		Explanation: "No immediate danger was identified.",
		ReplyOptions: domain.ReplyOptions{
			Gentle:    "I'd rather not continue this conversation.",
			Assertive: "Please respect my boundaries.",
			NoReply:   "Don't reply.",
		},
		SupportLine: "You're not alone.",
	}), nil
}
