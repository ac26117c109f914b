package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/besafe/digital-sister/internal/core"
	"github.com/besafe/digital-sister/internal/dialogue"
	"github.com/besafe/digital-sister/internal/domain"
)

const maxBodyBytes = 64 << 10

// ReportSurface is the submission and query surface served over HTTP.
type ReportSurface interface {
	Submit(ctx context.Context, in core.SubmitInput) (*core.SubmitResult, error)
	ReportsByNickname(ctx context.Context, nickname string, limit int) (*core.UserReports, error)
	ReportsByUser(ctx context.Context, userID domain.UserID, limit int) ([]domain.Report, error)
}

type APIHandler struct {
	reports  ReportSurface
	sessions *SessionRegistry
}

func NewAPIHandler(reports ReportSurface, sessions *SessionRegistry) *APIHandler {
	return &APIHandler{reports: reports, sessions: sessions}
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to encode response")
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Internal details are
// logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	var ie *dialogue.InputError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Message, Field: ve.Field})
	case errors.As(err, &ie):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ie.Hint})
	case errors.Is(err, dialogue.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "input not accepted in the current step"})
	case errors.Is(err, domain.ErrNoResponse):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "the classifier did not respond"})
	case errors.Is(err, domain.ErrUpstream):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "the classifier rejected the request"})
	case errors.Is(err, dialogue.ErrBusy):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "the previous answer is still being processed"})
	case errors.Is(err, dialogue.ErrSessionClosed):
		writeJSON(w, http.StatusGone, errorResponse{Error: "this conversation has ended"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	default:
		log.WithFields(log.Fields{"method": r.Method, "path": r.URL.Path}).WithError(err).Error("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Invalid("body", "invalid request body: "+err.Error())
	}
	return nil
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type SubmitReportRequest struct {
	Nickname          string                      `json:"nickname"`
	MessageText       string                      `json:"messageText"`
	Context           *domain.ConversationContext `json:"context"`
	TrustedAdultEmail string                      `json:"trustedAdultEmail,omitempty"`
	ExtraContext      string                      `json:"extraContext,omitempty"`

	// Older clients send the address under this name.
	ResponsibleAdultEmail string `json:"responsibleAdultEmail,omitempty"`
}

// SubmitReportResponse flattens the verdict next to the submission metadata.
// When the classifier output could not be parsed only ResponseText is set.
type SubmitReportResponse struct {
	*domain.Verdict
	ResponseText     string                   `json:"responseText,omitempty"`
	UserID           domain.UserID            `json:"userId"`
	Nickname         string                   `json:"nickname"`
	ReportID         domain.ReportID          `json:"reportId,omitempty"`
	CreatedAt        *time.Time               `json:"createdAt,omitempty"`
	EmailReport      *domain.EmailReport      `json:"emailReport,omitempty"`
	ProfessionalHelp *domain.ProfessionalHelp `json:"professionalHelp,omitempty"`
	ToneInstruction  domain.ToneInstruction   `json:"toneInstruction"`
	Persisted        bool                     `json:"persisted"`
}

func (h *APIHandler) SubmitReportHandler(w http.ResponseWriter, r *http.Request) {
	var req SubmitReportRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	email := req.TrustedAdultEmail
	if strings.TrimSpace(email) == "" {
		email = req.ResponsibleAdultEmail
	}
	extra := req.ExtraContext
	if extra == "" && req.Context != nil {
		extra = req.Context.ExtraContext
	}

	res, err := h.reports.Submit(r.Context(), core.SubmitInput{
		Nickname:          req.Nickname,
		MessageText:       req.MessageText,
		Context:           req.Context,
		TrustedAdultEmail: email,
		ExtraContext:      extra,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := SubmitReportResponse{
		Verdict:          res.Classification.Verdict,
		UserID:           res.UserID,
		Nickname:         res.Nickname,
		ReportID:         res.ReportID,
		EmailReport:      res.EmailReport,
		ProfessionalHelp: res.ProfessionalHelp,
		ToneInstruction:  res.Tone,
		Persisted:        res.Persisted,
	}
	if !res.Classification.IsParsed() {
		resp.ResponseText = res.Classification.Raw
		if resp.ResponseText == "" {
			resp.ResponseText = "The message could not be analyzed right now."
		}
	}
	if !res.CreatedAt.IsZero() {
		createdAt := res.CreatedAt
		resp.CreatedAt = &createdAt
	}
	writeJSON(w, http.StatusOK, resp)
}

type ListReportsResponse struct {
	UserID   domain.UserID   `json:"userId"`
	Nickname string          `json:"nickname"`
	Reports  []domain.Report `json:"reports"`
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, domain.Invalid("limit", "limit must be a non-negative integer")
	}
	return limit, nil
}

// ListReportsHandler serves GET /api/reports?nickname=...
func (h *APIHandler) ListReportsHandler(w http.ResponseWriter, r *http.Request) {
	nickname := strings.TrimSpace(r.URL.Query().Get("nickname"))
	if nickname == "" {
		writeError(w, r, domain.Invalid("nickname", "missing nickname (query param)"))
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.reports.ReportsByNickname(r.Context(), nickname, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListReportsResponse{UserID: res.UserID, Nickname: res.Nickname, Reports: nonNil(res.Reports)})
}

// HistoryHandler serves GET /api/history/{userID}.
func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserID(chi.URLParam(r, "userID"))
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	reports, err := h.reports.ReportsByUser(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]domain.Report{"reports": nonNil(reports)})
}

func nonNil(reports []domain.Report) []domain.Report {
	if reports == nil {
		return []domain.Report{}
	}
	return reports
}

type SessionResponse struct {
	ID string `json:"id"`
	*dialogue.Turn
}

// CreateSessionHandler opens a dialogue session and returns its greeting.
func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.Create()
	turn, err := session.Step(r.Context(), dialogue.Start())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{ID: session.ID(), Turn: turn})
}

func (h *APIHandler) SessionEventHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, r, domain.ErrNotFound)
		return
	}

	var ev dialogue.Event
	if err := decodeBody(w, r, &ev); err != nil {
		writeError(w, r, err)
		return
	}

	// A submission runs to completion even if the client goes away.
	turn, err := session.Step(context.WithoutCancel(r.Context()), ev)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{ID: session.ID(), Turn: turn})
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, r, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session.View())
}
