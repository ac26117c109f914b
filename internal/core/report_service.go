package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/besafe/digital-sister/internal/domain"
	"github.com/besafe/digital-sister/internal/logging"
	"github.com/besafe/digital-sister/internal/metrics"
)

const defaultClassifierTimeout = 30 * time.Second

// ReportService is the submission and query surface: it resolves identity,
// classifies the narrative, applies the risk policy, notifies and persists.
type ReportService struct {
	identity   *IdentityResolver
	reports    domain.ReportStore
	classifier domain.Classifier
	dispatcher *NotificationDispatcher
	metrics    *metrics.Metrics
	timeout    time.Duration
	now        func() time.Time
}

type ReportServiceOption func(*ReportService)

// WithClassifierTimeout bounds the wait for a verdict.
func WithClassifierTimeout(d time.Duration) ReportServiceOption {
	return func(s *ReportService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) ReportServiceOption {
	return func(s *ReportService) { s.metrics = m }
}

func WithClock(now func() time.Time) ReportServiceOption {
	return func(s *ReportService) { s.now = now }
}

func NewReportService(
	identity *IdentityResolver,
	reports domain.ReportStore,
	classifier domain.Classifier,
	dispatcher *NotificationDispatcher,
	opts ...ReportServiceOption,
) *ReportService {
	s := &ReportService{
		identity:   identity,
		reports:    reports,
		classifier: classifier,
		dispatcher: dispatcher,
		metrics:    metrics.New(nil),
		timeout:    defaultClassifierTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SubmitInput struct {
	Nickname          string
	MessageText       string
	Context           *domain.ConversationContext
	TrustedAdultEmail string
	ExtraContext      string
}

type SubmitResult struct {
	Classification   domain.Classification
	UserID           domain.UserID
	Nickname         string
	ReportID         domain.ReportID
	CreatedAt        time.Time
	EmailReport      *domain.EmailReport
	ProfessionalHelp *domain.ProfessionalHelp
	Tone             domain.ToneInstruction
	// Persisted is false when the report could not be written; the verdict is still returned.
	Persisted bool
}

// Validate rejects a submission before any collaborator is contacted.
func (in SubmitInput) Validate() error {
	if strings.TrimSpace(in.Nickname) == "" {
		return domain.Invalid("nickname", "nickname is required")
	}
	if strings.TrimSpace(in.MessageText) == "" {
		return domain.Invalid("messageText", "messageText is required")
	}
	if in.Context == nil {
		return domain.Invalid("context", "context is required")
	}
	if !in.Context.Channel.Valid() {
		return domain.Invalid("context.channel", fmt.Sprintf("unknown channel %q", in.Context.Channel))
	}
	if !in.Context.SenderType.Valid() {
		return domain.Invalid("context.senderType", fmt.Sprintf("unknown sender type %q", in.Context.SenderType))
	}
	return nil
}

// Submit runs the submission path sequentially: resolve identity, classify,
// derive policy outputs, notify if triggered, then append the report.
func (s *ReportService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	user, err := s.identity.Resolve(ctx, in.Nickname)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve identity: %w", err)
	}

	logger := log.WithFields(log.Fields{
		"user_id": user.ID,
		"message": logging.Redacted(in.MessageText),
	})

	convCtx := domain.ConversationContext{
		Channel:           in.Context.Channel,
		SenderType:        in.Context.SenderType,
		Feelings:          in.Context.Feelings.Normalize(),
		TrustedAdultEmail: strings.TrimSpace(in.TrustedAdultEmail),
		ExtraContext:      strings.TrimSpace(in.ExtraContext),
	}

	prior, err := s.reports.ListReportsByUser(ctx, user.ID, 0)
	if err != nil {
		logger.WithError(err).Warn("Failed to load report history, classifying without it")
		prior = nil
	}
	history := SummarizeHistory(prior)
	tone := ToneFor(history.ReportCount)

	classification, err := s.classify(ctx, domain.ClassifierRequest{
		MessageText:  strings.TrimSpace(in.MessageText),
		Channel:      convCtx.Channel,
		SenderType:   convCtx.SenderType,
		Feelings:     convCtx.Feelings,
		ExtraContext: convCtx.ExtraContext,
		History:      history,
		Tone:         tone,
	})
	if err != nil {
		logger.WithError(err).Error("Classifier call failed")
		return nil, err
	}

	result := &SubmitResult{
		Classification: classification,
		UserID:         user.ID,
		Nickname:       user.Nickname,
		Tone:           tone,
	}

	if !classification.IsParsed() {
		logger.Warn("Classifier output could not be parsed, returning raw text only")
		return result, nil
	}
	verdict := *classification.Verdict

	help := ProfessionalHelpFor(verdict.RiskLevel, verdict.Category, convCtx.Feelings)
	result.ProfessionalHelp = &help

	if ShouldNotify(convCtx.TrustedAdultEmail, verdict.RiskLevel) {
		er := s.dispatcher.Dispatch(ctx, convCtx.TrustedAdultEmail, verdict, user.Nickname)
		result.EmailReport = &er
		if er.Sent {
			s.metrics.Notifications.WithLabelValues(metrics.NotificationSent).Inc()
		} else {
			s.metrics.Notifications.WithLabelValues(metrics.NotificationFailed).Inc()
		}
	}

	report := domain.Report{
		ID:               domain.ReportID(uuid.NewString()),
		UserID:           user.ID,
		Nickname:         user.Nickname,
		MessageText:      strings.TrimSpace(in.MessageText),
		Context:          convCtx,
		Analysis:         verdict,
		ProfessionalHelp: &help,
		ExtraContext:     convCtx.ExtraContext,
		CreatedAt:        s.now().UTC(),
		EmailReport:      result.EmailReport,
	}
	result.ReportID = report.ID
	result.CreatedAt = report.CreatedAt

	if err := s.reports.AppendReport(ctx, user.ID, report); err != nil {
		logger.WithError(err).Error("Failed to persist report")
		s.metrics.PersistFailures.Inc()
	} else {
		result.Persisted = true
		s.metrics.ReportsSubmitted.WithLabelValues(string(verdict.RiskLevel)).Inc()
	}

	logger.WithFields(log.Fields{
		"report_id":  report.ID,
		"risk_level": verdict.RiskLevel,
		"tone":       tone,
		"show_help":  help.Show,
		"notified":   result.EmailReport != nil,
	}).Info("Report submitted")

	return result, nil
}

func (s *ReportService) classify(ctx context.Context, req domain.ClassifierRequest) (c domain.Classification, err error) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.now()
	defer func() {
		s.metrics.ClassifierDuration.Observe(s.now().Sub(start).Seconds())
		if p := recover(); p != nil {
			c, err = domain.Classification{}, fmt.Errorf("%w: classifier panicked: %v", domain.ErrUpstream, p)
		}
		s.metrics.ClassifierOutcomes.WithLabelValues(classifierOutcome(c, err)).Inc()
	}()

	c, err = s.classifier.Classify(tctx, req)
	if err == nil {
		return c, nil
	}
	switch {
	case errors.Is(err, domain.ErrNoResponse), errors.Is(err, domain.ErrUpstream):
		return c, err
	case errors.Is(tctx.Err(), context.DeadlineExceeded):
		return c, fmt.Errorf("%w: %v", domain.ErrNoResponse, err)
	default:
		return c, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
}

func classifierOutcome(c domain.Classification, err error) string {
	switch {
	case errors.Is(err, domain.ErrNoResponse):
		return metrics.OutcomeNoResponse
	case err != nil:
		return metrics.OutcomeUpstream
	case c.IsParsed():
		return metrics.OutcomeParsed
	default:
		return metrics.OutcomeUnparsed
	}
}

type UserReports struct {
	UserID   domain.UserID
	Nickname string
	Reports  []domain.Report
}

// ReportsByNickname resolves nickname (creating the user if needed) and
// returns that user's reports, newest first.
func (s *ReportService) ReportsByNickname(ctx context.Context, nickname string, limit int) (*UserReports, error) {
	user, err := s.identity.Resolve(ctx, nickname)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve identity: %w", err)
	}
	reports, err := s.reports.ListReportsByUser(ctx, user.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return &UserReports{UserID: user.ID, Nickname: user.Nickname, Reports: reports}, nil
}

// ReportsByUser returns the reports for a known user id, newest first.
func (s *ReportService) ReportsByUser(ctx context.Context, userID domain.UserID, limit int) ([]domain.Report, error) {
	if strings.TrimSpace(string(userID)) == "" {
		return nil, domain.Invalid("userId", "userId is required")
	}
	reports, err := s.reports.ListReportsByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}
