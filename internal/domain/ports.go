package domain

import "context"

// UserStore persists users keyed by normalized nickname.
type UserStore interface {
	FindUserByKey(ctx context.Context, key string) (*User, error)
	// CreateUser stores u under key. If a user already exists under key the
	// stored user is returned instead and u is discarded.
	CreateUser(ctx context.Context, key string, u User) (*User, error)
}

// ReportStore is an append-only, per-user ordered log of reports.
type ReportStore interface {
	AppendReport(ctx context.Context, userID UserID, r Report) error
	// ListReportsByUser returns reports newest first. limit <= 0 means all.
	ListReportsByUser(ctx context.Context, userID UserID, limit int) ([]Report, error)
}

// Store is the combined persistence used by the report service.
type Store interface {
	UserStore
	ReportStore
	Close() error
}

type ToneInstruction string

const (
	ToneNone    ToneInstruction = "none"
	ToneAdjust  ToneInstruction = "adjust"
	TonePattern ToneInstruction = "pattern"
)

// HistorySummary is the snapshot of prior reports handed to the classifier.
type HistorySummary struct {
	ReportCount    int      `json:"reportCount"`
	LastCategories []string `json:"lastCategories"`
}

type ClassifierRequest struct {
	MessageText  string          `json:"messageText"`
	Channel      Channel         `json:"channel"`
	SenderType   SenderType      `json:"senderType"`
	Feelings     Feelings        `json:"feelings"`
	ExtraContext string          `json:"extraContext,omitempty"`
	History      HistorySummary  `json:"history"`
	Tone         ToneInstruction `json:"toneInstruction"`
}

// Classifier is the external risk classification service.
type Classifier interface {
	Classify(ctx context.Context, req ClassifierRequest) (Classification, error)
}

// Mailer delivers one message to one recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}
