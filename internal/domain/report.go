package domain

import "strings"

// User is created lazily on first use of a nickname and never mutated afterwards.
type User struct {
	ID        UserID    `json:"id"`
	Nickname  string    `json:"nickname"`
	CreatedAt Timestamp `json:"createdAt"`
}

// ConversationContext is what the dialogue collects about the interaction.
type ConversationContext struct {
	Channel           Channel    `json:"channel"`
	SenderType        SenderType `json:"senderType"`
	Feelings          Feelings   `json:"feelings"`
	TrustedAdultEmail string     `json:"trustedAdultEmail,omitempty"`
	ExtraContext      string     `json:"extraContext,omitempty"`
}

type ReplyOptions struct {
	Gentle    string `json:"gentle"`
	Assertive string `json:"assertive"`
	NoReply   string `json:"noReply"`
}

// Verdict is the classifier's structured risk classification of one narrative.
type Verdict struct {
	RiskLevel    RiskLevel    `json:"riskLevel"`
	Category     string       `json:"category"`
	Explanation  string       `json:"explanation"`
	ReplyOptions ReplyOptions `json:"replyOptions"`
	SupportLine  string       `json:"supportLine"`
}

// CanOfferTones reports whether every reply-adjacent field is present.
func (v Verdict) CanOfferTones() bool {
	return strings.TrimSpace(v.ReplyOptions.Gentle) != "" &&
		strings.TrimSpace(v.ReplyOptions.Assertive) != "" &&
		strings.TrimSpace(v.ReplyOptions.NoReply) != "" &&
		strings.TrimSpace(v.SupportLine) != ""
}

// Classification is either a parsed Verdict or the raw text the classifier
// produced when it could not be parsed. Exactly one of the two is meaningful.
type Classification struct {
	Verdict *Verdict
	Raw     string
}

func Parsed(v Verdict) Classification {
	return Classification{Verdict: &v}
}

func Unparsed(raw string) Classification {
	return Classification{Raw: raw}
}

func (c Classification) IsParsed() bool {
	return c.Verdict != nil
}

type Urgency string

const (
	UrgencyNone    Urgency = "none"
	UrgencySuggest Urgency = "suggest"
	UrgencyUrgent  Urgency = "urgent"
)

type ResourceKey string

const (
	ResourceCrisisLine    ResourceKey = "eran"
	ResourceCyberSafety   ResourceKey = "moked105"
	ResourceEmergencyLine ResourceKey = "police100"
)

// ProfessionalHelp is derived from a verdict and the person's feelings.
type ProfessionalHelp struct {
	Show                 bool          `json:"show"`
	Urgency              Urgency       `json:"urgency"`
	RecommendedResources []ResourceKey `json:"recommendedResources"`
	Message              string        `json:"message"`
	Reason               string        `json:"reason,omitempty"`
}

type EmailReport struct {
	Sent  bool   `json:"sent"`
	Error string `json:"error,omitempty"`
}

// Report is the immutable record of one submission.
type Report struct {
	ID               ReportID            `json:"id"`
	UserID           UserID              `json:"userId"`
	Nickname         string              `json:"nickname"`
	MessageText      string              `json:"messageText"`
	Context          ConversationContext `json:"context"`
	Analysis         Verdict             `json:"analysis"`
	ProfessionalHelp *ProfessionalHelp   `json:"professionalHelp,omitempty"`
	ExtraContext     string              `json:"extraContext,omitempty"`
	CreatedAt        Timestamp           `json:"createdAt"`
	EmailReport      *EmailReport        `json:"emailReport,omitempty"`
}
