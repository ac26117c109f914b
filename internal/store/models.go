package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/besafe/digital-sister/internal/domain"
)

// Snapshot is the complete persisted state: users by normalized nickname and
// each user's reports in append order.
type Snapshot struct {
	Users   map[string]domain.User            `json:"users"`
	Reports map[domain.UserID][]domain.Report `json:"reports"`
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Users:   make(map[string]domain.User),
		Reports: make(map[domain.UserID][]domain.Report),
	}
}

// DecodeSnapshot reads either the per-user layout or the older flat list of
// reports. The second return value is true when the input used the flat
// layout and was upgraded.
func DecodeSnapshot(data []byte) (*Snapshot, bool, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return NewSnapshot(), false, nil
	}

	if trimmed[0] == '[' {
		var flat []domain.Report
		if err := json.Unmarshal(trimmed, &flat); err != nil {
			return nil, false, fmt.Errorf("failed to decode flat report list: %w", err)
		}
		return upgradeFlat(flat), true, nil
	}

	snap := NewSnapshot()
	if err := json.Unmarshal(trimmed, snap); err != nil {
		return nil, false, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Users == nil {
		snap.Users = make(map[string]domain.User)
	}
	if snap.Reports == nil {
		snap.Reports = make(map[domain.UserID][]domain.Report)
	}
	return snap, false, nil
}

// UnassignedUserID holds legacy reports that name no user. No user is ever
// created with this id and List never serves it.
const UnassignedUserID domain.UserID = "unassigned"

func upgradeFlat(flat []domain.Report) *Snapshot {
	snap := NewSnapshot()

	sorted := make([]domain.Report, len(flat))
	copy(sorted, flat)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	unassigned := 0
	for _, r := range sorted {
		key := domain.NicknameKey(r.Nickname)
		switch {
		case r.UserID == "" && key == "":
			r.UserID = UnassignedUserID
			unassigned++
		case r.UserID == "":
			if u, ok := snap.Users[key]; ok {
				r.UserID = u.ID
			} else {
				r.UserID = domain.UserID(uuid.NewString())
			}
		}
		if key != "" {
			if _, ok := snap.Users[key]; !ok {
				snap.Users[key] = domain.User{ID: r.UserID, Nickname: r.Nickname, CreatedAt: r.CreatedAt}
			}
		}
		if r.ID == "" {
			r.ID = domain.ReportID(uuid.NewString())
		}
		if !r.Analysis.RiskLevel.Valid() {
			r.Analysis.RiskLevel = domain.ParseRiskLevel(string(r.Analysis.RiskLevel))
		}
		snap.Reports[r.UserID] = append(snap.Reports[r.UserID], r)
	}

	if unassigned > 0 {
		log.WithField("unassigned", unassigned).Warn("Kept legacy reports without user id or nickname in the unassigned bucket")
	}
	return snap
}

// AddUser stores u under key unless a user already exists there; the stored user is returned.
func (s *Snapshot) AddUser(key string, u domain.User) domain.User {
	if existing, ok := s.Users[key]; ok {
		return existing
	}
	s.Users[key] = u
	return u
}

func (s *Snapshot) Append(userID domain.UserID, r domain.Report) {
	s.Reports[userID] = append(s.Reports[userID], r)
}

// List returns a copy of the user's reports, newest first by CreatedAt. Reports
// with equal CreatedAt are returned in reverse insertion order.
func (s *Snapshot) List(userID domain.UserID, limit int) []domain.Report {
	if userID == UnassignedUserID {
		return []domain.Report{}
	}
	src := s.Reports[userID]
	out := make([]domain.Report, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}
