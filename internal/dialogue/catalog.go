package dialogue

import (
	"strings"

	"github.com/besafe/digital-sister/internal/domain"
)

// Option is one selectable answer. Events may name it by key or by label.
type Option struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

const (
	optStart = "start"

	optProvideEmail = "provide"
	optDeclineEmail = "decline"

	optChannelSocial  = "social"
	optChannelGroup   = "group"
	optChannelPrivate = "private"

	optSenderKnown    = "known"
	optSenderStranger = "stranger"

	optSupportResources = "resources"
	optSupportReplies   = "replies"

	optToneGentle    = "gentle"
	optToneAssertive = "assertive"
	optToneNoReply   = "noReply"

	optHistory = "history"
	optEnd     = "end"
)

var feelingLabels = map[domain.Feeling]string{
	domain.FeelingConfusion:     "Confused",
	domain.FeelingEmbarrassment: "Embarrassed",
	domain.FeelingDanger:        "In danger",
	domain.FeelingFear:          "Scared",
	domain.FeelingSadness:       "Sad",
	domain.FeelingAnger:         "Angry",
	domain.FeelingAnxiety:       "Anxious",
	domain.FeelingCalm:          "Calm",
	domain.FeelingHope:          "Hopeful",
	domain.FeelingOther:         "Something else",
}

func feelingOptions() []Option {
	opts := make([]Option, 0, len(domain.AllFeelings))
	for _, f := range domain.AllFeelings {
		opts = append(opts, Option{Key: string(f), Label: feelingLabels[f]})
	}
	return opts
}

var stateOptions = map[State][]Option{
	StateGreeting: {
		{Key: optStart, Label: "OK, let's start"},
	},
	StateCollectFeelings: feelingOptions(),
	StateOfferTrustedAdultChannel: {
		{Key: optProvideEmail, Label: "Enter a trusted adult's email"},
		{Key: optDeclineEmail, Label: "I'd rather not give an email"},
	},
	StateCollectChannel: {
		{Key: optChannelSocial, Label: "Social network"},
		{Key: optChannelGroup, Label: "Group chat"},
		{Key: optChannelPrivate, Label: "Private chat"},
	},
	StateCollectSenderType: {
		{Key: optSenderKnown, Label: "Someone I know"},
		{Key: optSenderStranger, Label: "A stranger"},
	},
	StateOfferSupportChoice: {
		{Key: optSupportResources, Label: "Support lines"},
		{Key: optSupportReplies, Label: "Send a reply"},
	},
	StateToneSelection: {
		{Key: optToneGentle, Label: "Gentle reply"},
		{Key: optToneAssertive, Label: "Assertive reply"},
		{Key: optToneNoReply, Label: "Don't reply"},
	},
	StateContinuationPrompt: {
		{Key: optHistory, Label: "See a summary of my reports"},
		{Key: optEnd, Label: "End for now"},
	},
}

// OptionsFor returns the options offered in s, or nil for non-choice states.
func OptionsFor(s State) []Option {
	return stateOptions[s]
}

// matchOption resolves a key or label, ignoring case and surrounding spaces.
func matchOption(s State, value string) (string, bool) {
	v := strings.TrimSpace(value)
	for _, o := range stateOptions[s] {
		if strings.EqualFold(v, o.Key) || strings.EqualFold(v, o.Label) {
			return o.Key, true
		}
	}
	return "", false
}

// Channel choices. A social network counts as a group setting.
var channelByOption = map[string]domain.Channel{
	optChannelSocial:  domain.ChannelGroup,
	optChannelGroup:   domain.ChannelGroup,
	optChannelPrivate: domain.ChannelPrivate,
}

var senderByOption = map[string]domain.SenderType{
	optSenderKnown:    domain.SenderKnown,
	optSenderStranger: domain.SenderStranger,
}

// Questions and fixed copy.
const (
	textGreeting = "Hi, I'm your digital sister online. I'm here to help you deal with unpleasant things that happened to you online. I'm glad you decided to reach out, let's try to understand what happened."

	textAskIdentity = "What would you like me to call you? You can give your name or any nickname you choose."

	textAskFeelings = "Hi %s, how are you? How are you feeling right now? (you can pick more than one)"

	textOfferTrustedAdult = "If something here is worrying, we might want to contact a trusted adult you can rely on."
	textAskEmail          = "Great! Which email should I send to?"

	textAskNarrative    = "Let's understand what happened. You can write me the message you received, and I'll help you figure out what to do."
	textAskChannel      = "Where did this happen?"
	textAskSenderType   = "Who sent it, someone you know or a stranger?"
	textAskExtraContext = "Is there anything else you'd like to add? You can also skip this."

	textAnalyzing = "Analyzing your message..."

	textSupportPersonal = "I'm here for you, %s 💗"
	textFallbackName    = "dear"

	textOfferSupport = "I also found some support options that could help in a situation like this. What would you like to do now?"
	textStartWith    = "Right now I'd start with %s."

	textAskTone     = "I thought of a few replies you could send. Which style would you like to use?"
	textReplyLeadIn = "You could reply with:"

	textGentleHigh      = "A gentle reply can help you set a boundary without escalating, especially when the risk level is high."
	textGentleOther     = "A gentle reply lets you set a boundary respectfully, without creating unnecessary conflict."
	textAssertiveHigh   = "An assertive reply matters when the risk level is high: it makes clear that this behavior is not acceptable to you."
	textAssertiveOther  = "An assertive reply helps you state your boundaries clearly and unambiguously."
	textNoReplyAck      = "Got it, it's completely fine not to reply."
	textNoReplyCoping   = "Sometimes the best thing to do is simply not reply, block and report. That doesn't mean you're not strong: it means you know how to protect yourself."
	textUnparsedDefault = "I couldn't fully analyze the message this time, but I'm still here with you."

	textEmailSentNote   = "✅ An email was sent to your trusted adult."
	textEmailFailedNote = "I couldn't send the email right now, but we'll keep going. You can try again later."

	textSummaryEmailSent      = "📧 Summary: an email with the report details was sent to your trusted adult."
	textSummaryEmailFailed    = "📧 Summary: I couldn't send the email to your trusted adult. You can try again later."
	textSummaryEmailNotHigh   = "📧 Summary: the email was not sent because the risk level was not high enough. If you feel you need help, you can reach out again."
	textSummaryEmailNotSent   = "📧 Summary: the email was not sent. If you feel you need help, you can reach out again."
	textAskWhatNext           = "What would you like to do from here?"
	textHistoryFirst          = "%s, this is your first report with us. I'm here to help you whenever you need 💗"
	textHistoryFoundOne       = "I found 1 report of yours. Here's a summary:"
	textHistoryFoundMany      = "I found %d reports of yours. Here's a summary:"
	textHistoryMore           = "And %d more."
	textHistoryNotAlone       = "You're not alone, %s 💗"
	textHistoryUnavailable    = "Sorry, I couldn't load your reports right now. But I'm here to help you 💗"
	textClosing               = "That's completely fine. I'm here whenever you want to come back 💙"
	textMusic                 = "🎵 Some calming music for you: %s"
	textErrorPrefix           = "Sorry, there was a problem reaching the server. "
	textErrorNoResponse       = "The server did not respond. Please try again in a little while."
	textErrorRejected         = "The server responded with an error."
	textErrorUnexpected       = "Something unexpected went wrong."
	textInvalidEmail          = "That doesn't look like an email address. Please try again."
	textEmptyText             = "Please write something so I can continue."
	textPickAtLeastOneFeeling = "Pick at least one feeling, then choose done."
)

var riskLevelText = map[domain.RiskLevel]string{
	domain.RiskHigh:   "a high risk level",
	domain.RiskMedium: "a medium risk level",
	domain.RiskLow:    "a low risk level",
}

const defaultMusic = "https://www.youtube.com/watch?v=jfKfPfyJRdk"

var musicByFeeling = map[domain.Feeling]string{
	domain.FeelingConfusion: "https://www.youtube.com/watch?v=jfKfPfyJRdk",
	domain.FeelingFear:      "https://www.youtube.com/watch?v=5qap5aO4i9A",
	domain.FeelingSadness:   "https://www.youtube.com/watch?v=Dx5qFachd3A",
	domain.FeelingAnger:     "https://www.youtube.com/watch?v=1ZYbU82GVz4",
	domain.FeelingAnxiety:   "https://www.youtube.com/watch?v=1ZYbU82GVz4",
}

// MusicFor picks the closing music suggestion from the first selected feeling.
func MusicFor(feelings domain.Feelings) string {
	if len(feelings) > 0 {
		if url, ok := musicByFeeling[feelings[0]]; ok {
			return url
		}
	}
	return defaultMusic
}
