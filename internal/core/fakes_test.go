package core

import (
	"context"
	"errors"
	"sync"

	"github.com/besafe/digital-sister/internal/domain"
)

type memStore struct {
	mu        sync.Mutex
	users     map[string]domain.User
	reports   map[domain.UserID][]domain.Report
	findCalls int
	appendErr error
	listErr   error
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[string]domain.User),
		reports: make(map[domain.UserID][]domain.Report),
	}
}

func (m *memStore) FindUserByKey(ctx context.Context, key string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	u, ok := m.users[key]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *memStore) CreateUser(ctx context.Context, key string, u domain.User) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[key]; ok {
		return &existing, nil
	}
	m.users[key] = u
	return &u, nil
}

func (m *memStore) AppendReport(ctx context.Context, userID domain.UserID, r domain.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.reports[userID] = append(m.reports[userID], r)
	return nil
}

func (m *memStore) ListReportsByUser(ctx context.Context, userID domain.UserID, limit int) ([]domain.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	src := m.reports[userID]
	out := make([]domain.Report, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

type fakeClassifier struct {
	mu       sync.Mutex
	result   domain.Classification
	err      error
	block    bool
	requests []domain.ClassifierRequest
}

func (f *fakeClassifier) Classify(ctx context.Context, req domain.ClassifierRequest) (domain.Classification, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return domain.Classification{}, ctx.Err()
	}
	return f.result, f.err
}

func (f *fakeClassifier) lastRequest() domain.ClassifierRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeClassifier) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu    sync.Mutex
	err   error
	panic bool
	sent  []sentMail
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	if f.panic {
		panic("smtp exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, body})
	return nil
}

var errBoom = errors.New("boom")

func highGroomingVerdict() domain.Verdict {
	return domain.Verdict{
		RiskLevel:   domain.RiskHigh,
		Category:    "Grooming",
		Explanation: "asks for secrecy",
		ReplyOptions: domain.ReplyOptions{
			Gentle:    "I'd rather stop here.",
			Assertive: "Stop contacting me.",
			NoReply:   "Block and report.",
		},
		SupportLine: "This is not your fault.",
	}
}
