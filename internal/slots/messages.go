package slots

import "github.com/tjfontaine/hmo-assistant/internal/domain"

type msgKey int

const (
	msgAskProvider msgKey = iota
	msgAskTier
	msgAskConfirm
	msgProviderInvalid
	msgTierInvalid
	msgConfirmIncomplete
	msgConfirmed
	msgRestart
	msgCorrect
)

var catalog = map[domain.Language]map[msgKey]string{
	domain.English: {
		msgAskProvider:       "Which HMO are you a member of? Maccabi, Meuhedet or Clalit?",
		msgAskTier:           "Thanks! What is your insurance tier: Gold, Silver or Bronze?",
		msgAskConfirm:        "Thanks! Please confirm that all your information is correct by replying 'yes' or 'no'.",
		msgProviderInvalid:   "HMO must be one of: Maccabi, Meuhedet, Clalit.",
		msgTierInvalid:       "Insurance tier must be one of: Gold, Silver, Bronze.",
		msgConfirmIncomplete: "I still need both your HMO and your insurance tier before you can confirm.",
		msgConfirmed:         "✅ Thanks for confirming! You may now ask me questions about your health services.",
		msgRestart:           "Okay. Please restart the form and provide your information again.",
		msgCorrect:           "Okay. Tell me which detail is wrong, or reply 'yes' once it is correct.",
	},
	domain.Hebrew: {
		msgAskProvider:       "לאיזו קופת חולים את/ה שייך/ת? מכבי, מאוחדת או כללית?",
		msgAskTier:           "תודה! מהי רמת הביטוח שלך: זהב, כסף או ארד?",
		msgAskConfirm:        "תודה! אנא אשר/י שכל הפרטים נכונים בתשובה 'כן' או 'לא'.",
		msgProviderInvalid:   "קופת החולים חייבת להיות אחת מ: מכבי, מאוחדת, כללית.",
		msgTierInvalid:       "רמת הביטוח חייבת להיות אחת מ: זהב, כסף, ארד.",
		msgConfirmIncomplete: "אני עדיין צריך/ה גם את קופת החולים וגם את רמת הביטוח לפני האישור.",
		msgConfirmed:         "✅ תודה על האישור! כעת אפשר לשאול אותי שאלות על שירותי הבריאות שלך.",
		msgRestart:           "בסדר. נתחיל מחדש, אנא מסור/י את הפרטים שוב.",
		msgCorrect:           "בסדר. איזה פרט שגוי? או השב/י 'כן' כשהפרטים נכונים.",
	},
}

func text(lang domain.Language, key msgKey) string {
	if m, ok := catalog[lang]; ok {
		return m[key]
	}
	return catalog[domain.English][key]
}

// stagePrompt asks for whatever the record is still missing.
func stagePrompt(lang domain.Language, stage domain.Stage) string {
	switch stage {
	case domain.StageAwaitTier:
		return text(lang, msgAskTier)
	case domain.StageAwaitConfirmation:
		return text(lang, msgAskConfirm)
	case domain.StageConfirmed:
		return text(lang, msgConfirmed)
	default:
		return text(lang, msgAskProvider)
	}
}
