package domain

import (
	"strings"
	"time"
)

type UserID string
type ReportID string

// RiskLevel is ordered: low < medium < high.
type RiskLevel string

const (
	RiskUnknown RiskLevel = ""
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
)

var riskAliases = map[string]RiskLevel{
	"low":     RiskLow,
	"medium":  RiskMedium,
	"high":    RiskHigh,
	"נמוך":    RiskLow,
	"נמוכה":   RiskLow,
	"בינוני":  RiskMedium,
	"בינונית": RiskMedium,
	"גבוה":    RiskHigh,
	"גבוהה":   RiskHigh,
}

// ParseRiskLevel accepts the canonical names in any case and the
// Hebrew words the classifier may answer with. Unknown input yields RiskUnknown.
func ParseRiskLevel(s string) RiskLevel {
	if lvl, ok := riskAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lvl
	}
	return RiskUnknown
}

func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

func (r RiskLevel) rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	}
	return 0
}

// AtLeast reports whether r is at or above other in the low/medium/high order.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.rank() >= other.rank()
}

type Channel string

const (
	ChannelPrivate Channel = "private"
	ChannelGroup   Channel = "group"
)

func (c Channel) Valid() bool {
	return c == ChannelPrivate || c == ChannelGroup
}

type SenderType string

const (
	SenderStranger SenderType = "stranger"
	SenderKnown    SenderType = "known"
)

func (s SenderType) Valid() bool {
	return s == SenderStranger || s == SenderKnown
}

type Feeling string

const (
	FeelingConfusion     Feeling = "confusion"
	FeelingEmbarrassment Feeling = "embarrassment"
	FeelingDanger        Feeling = "danger"
	FeelingFear          Feeling = "fear"
	FeelingSadness       Feeling = "sadness"
	FeelingAnger         Feeling = "anger"
	FeelingAnxiety       Feeling = "anxiety"
	FeelingCalm          Feeling = "calm"
	FeelingHope          Feeling = "hope"
	FeelingOther         Feeling = "other"
)

// AllFeelings lists the feelings in the order they are offered to the person.
var AllFeelings = []Feeling{
	FeelingConfusion,
	FeelingEmbarrassment,
	FeelingDanger,
	FeelingFear,
	FeelingSadness,
	FeelingAnger,
	FeelingAnxiety,
	FeelingCalm,
	FeelingHope,
	FeelingOther,
}

func (f Feeling) Valid() bool {
	for _, known := range AllFeelings {
		if f == known {
			return true
		}
	}
	return false
}

// Feelings is an ordered set: insertion order is kept and duplicates are dropped.
type Feelings []Feeling

func (fs Feelings) Contains(f Feeling) bool {
	for _, x := range fs {
		if x == f {
			return true
		}
	}
	return false
}

func (fs Feelings) ContainsAny(candidates ...Feeling) bool {
	for _, c := range candidates {
		if fs.Contains(c) {
			return true
		}
	}
	return false
}

// Toggle adds f if absent and removes it otherwise.
func (fs Feelings) Toggle(f Feeling) Feelings {
	out := make(Feelings, 0, len(fs)+1)
	removed := false
	for _, x := range fs {
		if x == f {
			removed = true
			continue
		}
		out = append(out, x)
	}
	if !removed {
		out = append(out, f)
	}
	return out
}

// Normalize drops duplicates and unknown tags while keeping order.
func (fs Feelings) Normalize() Feelings {
	out := make(Feelings, 0, len(fs))
	for _, f := range fs {
		if f.Valid() && !out.Contains(f) {
			out = append(out, f)
		}
	}
	return out
}

// NicknameKey is the identity lookup key for a nickname: trimmed and case-folded.
func NicknameKey(nickname string) string {
	return strings.ToLower(strings.TrimSpace(nickname))
}

type Timestamp = time.Time
