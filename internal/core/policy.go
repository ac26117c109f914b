package core

import (
	"strings"

	"github.com/besafe/digital-sister/internal/domain"
)

const (
	adjustToneAfter  = 1
	patternToneAfter = 3

	maxRecommendedResources = 2

	// ReasonNotNeeded is reported when no professional help is recommended.
	ReasonNotNeeded = "not_needed"
)

// ToneFor derives the classifier tone instruction from the number of prior reports.
func ToneFor(priorReports int) domain.ToneInstruction {
	switch {
	case priorReports >= patternToneAfter:
		return domain.TonePattern
	case priorReports >= adjustToneAfter:
		return domain.ToneAdjust
	default:
		return domain.ToneNone
	}
}

// ShouldNotify is the only trigger for trusted-adult notification.
func ShouldNotify(trustedAdultEmail string, level domain.RiskLevel) bool {
	return strings.TrimSpace(trustedAdultEmail) != "" && level == domain.RiskHigh
}

var (
	urgentFeelings   = []domain.Feeling{domain.FeelingFear, domain.FeelingDanger, domain.FeelingAnxiety}
	distressFeelings = []domain.Feeling{domain.FeelingSadness, domain.FeelingAnger, domain.FeelingConfusion}
	calmFeelings     = []domain.Feeling{domain.FeelingCalm, domain.FeelingHope}

	// Keywords are matched against the lower-cased category with spaces removed.
	threatKeywords   = []string{"threat", "extortion", "blackmail", "sextortion", "איום", "סחיטה"}
	groomingKeywords = []string{"grooming", "sexualpressure", "harassment", "גרומינג", "לחץמיני", "הטרדה"}
)

const (
	messageUrgent  = "What you're describing doesn't sound simple, and if you feel unsafe it's important to reach out to a professional right now. You're not alone 💜"
	messageSuggest = "If this keeps happening or is affecting you emotionally, it's worth involving a professional or a trusted adult. You don't have to deal with this alone 💜"
	messageCalm    = "If you'd just like to talk it through or get some extra support, you can also reach out to a professional. I'm here with you 💜"
	messageNeutral = "If you'd like support or advice, you can reach out to a professional. You're not alone 💜"
)

// ProfessionalHelpFor decides whether to surface support resources, how urgently, and which ones.
func ProfessionalHelpFor(level domain.RiskLevel, category string, feelings domain.Feelings) domain.ProfessionalHelp {
	isHigh := level == domain.RiskHigh
	isMedium := level == domain.RiskMedium

	hasUrgentFeeling := feelings.ContainsAny(urgentFeelings...)
	hasEmotionalDistress := feelings.ContainsAny(distressFeelings...)
	isCalm := feelings.ContainsAny(calmFeelings...)

	show := isHigh || (isMedium && (hasUrgentFeeling || hasEmotionalDistress))

	urgency := domain.UrgencyNone
	switch {
	case isHigh || hasUrgentFeeling:
		urgency = domain.UrgencyUrgent
	case show:
		urgency = domain.UrgencySuggest
	}

	if !show {
		return domain.ProfessionalHelp{
			Show:                 false,
			Urgency:              urgency,
			RecommendedResources: []domain.ResourceKey{},
			Message:              "",
			Reason:               ReasonNotNeeded,
		}
	}

	return domain.ProfessionalHelp{
		Show:                 true,
		Urgency:              urgency,
		RecommendedResources: selectResources(category, isHigh, urgency, hasUrgentFeeling || hasEmotionalDistress),
		Message:              helpMessage(urgency, isCalm),
	}
}

func selectResources(category string, isHigh bool, urgency domain.Urgency, distressed bool) []domain.ResourceKey {
	picker := resourcePicker{}
	cat := strings.ToLower(strings.Join(strings.Fields(category), ""))

	switch {
	case containsAny(cat, threatKeywords):
		if isHigh {
			picker.add(domain.ResourceEmergencyLine)
		}
		picker.add(domain.ResourceCyberSafety)
		if !isHigh {
			picker.add(domain.ResourceCrisisLine)
		}
	case containsAny(cat, groomingKeywords):
		picker.add(domain.ResourceCyberSafety)
		if isHigh {
			picker.add(domain.ResourceEmergencyLine)
		}
		if urgency != domain.UrgencyNone {
			picker.add(domain.ResourceCrisisLine)
		}
	default:
		if distressed {
			picker.add(domain.ResourceCrisisLine)
		}
		picker.add(domain.ResourceCyberSafety)
		if isHigh {
			picker.add(domain.ResourceEmergencyLine)
		}
		picker.add(domain.ResourceCrisisLine)
	}
	return picker.keys
}

// resourcePicker keeps keys ordered, unique and capped.
type resourcePicker struct {
	keys []domain.ResourceKey
}

func (p *resourcePicker) add(k domain.ResourceKey) {
	if len(p.keys) >= maxRecommendedResources {
		return
	}
	for _, existing := range p.keys {
		if existing == k {
			return
		}
	}
	p.keys = append(p.keys, k)
}

func helpMessage(urgency domain.Urgency, isCalm bool) string {
	switch {
	case urgency == domain.UrgencyUrgent:
		return messageUrgent
	case urgency == domain.UrgencySuggest && isCalm:
		return messageCalm
	case urgency == domain.UrgencySuggest:
		return messageSuggest
	default:
		return messageNeutral
	}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// Resource is the display form of a support line.
type Resource struct {
	Key     domain.ResourceKey
	Name    string
	Details string
}

var resourceDirectory = map[domain.ResourceKey]Resource{
	domain.ResourceCrisisLine:    {Key: domain.ResourceCrisisLine, Name: "ERAN – emotional first aid", Details: "1201 (24/7, anonymous)"},
	domain.ResourceCyberSafety:   {Key: domain.ResourceCyberSafety, Name: "Hotline 105 – online harm reporting", Details: "105"},
	domain.ResourceEmergencyLine: {Key: domain.ResourceEmergencyLine, Name: "Police (emergencies)", Details: "100"},
}

// LookupResource returns the display form of key.
func LookupResource(key domain.ResourceKey) (Resource, bool) {
	r, ok := resourceDirectory[key]
	return r, ok
}
