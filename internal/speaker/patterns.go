package speaker

import (
	"fmt"
	"regexp"

	"github.com/MrWong99/chartvox/internal/lexicon"
)

// Patterns is the language-specific signal set used by a [Classifier].
// All term lists are matched as lower-case substrings.
type Patterns struct {
	// Interrogatives are question forms. Only the first match counts.
	Interrogatives []*regexp.Regexp

	// ProfessionalTerms are clinical vocabulary a patient rarely volunteers.
	ProfessionalTerms []string

	// ClinicianPhrases are polite or imperative phrasings ("請問", "let me").
	ClinicianPhrases []string

	// PatientPhrases are first-person and hedging phrasings ("我覺得", "kind of").
	PatientPhrases []string

	// SymptomTerms are lay symptom descriptions.
	SymptomTerms []string

	// SecondPerson and FirstPerson are checked against the start of the text.
	// ASCII entries must be followed by a non-letter to count.
	SecondPerson []string
	FirstPerson  []string
}

var patternSets = map[lexicon.Language]func() *Patterns{
	lexicon.LangZhTW: zhTW,
	lexicon.LangZhCN: zhCN,
	lexicon.LangEnUS: enUS,
}

// PatternsFor returns the built-in pattern set for lang. An empty lang
// selects [lexicon.DefaultLanguage].
func PatternsFor(lang lexicon.Language) (*Patterns, error) {
	if lang == "" {
		lang = lexicon.DefaultLanguage
	}
	build, ok := patternSets[lang]
	if !ok {
		return nil, fmt.Errorf("speaker: %w: %q", lexicon.ErrUnknownLanguage, lang)
	}
	return build(), nil
}

func zhTW() *Patterns {
	return &Patterns{
		Interrogatives: []*regexp.Regexp{
			regexp.MustCompile(`^(請問)?(您|你)?.*(有沒有|是不是|會不會|要不要|能不能|可不可以|是否)`),
			regexp.MustCompile(`(什麼|甚麼|哪裡|哪裏|哪邊|哪種|怎麼|怎樣|多久|多少|幾[次天歲年個]|為什麼|何時)`),
			regexp.MustCompile(`[嗎呢][?？。]?\s*$`),
		},
		ProfessionalTerms: []string{"診斷", "檢查", "血壓", "處方", "病史", "症狀", "治療", "追蹤",
			"抽血", "聽診", "劑量", "開藥", "回診", "評估", "過敏史"},
		ClinicianPhrases: []string{"請問", "請你", "請您", "麻煩", "我們來", "我幫你", "我幫您",
			"讓我", "放輕鬆", "深呼吸", "張開", "躺下", "建議"},
		PatientPhrases: []string{"我覺得", "我有", "我會", "我的", "有點", "有一點", "好像", "感覺",
			"一直", "開始", "還好", "不太", "我在吃", "吃了"},
		SymptomTerms: []string{"頭痛", "頭暈", "頭昏", "噁心", "想吐", "嘔吐", "發燒", "咳嗽", "流鼻水",
			"肚子痛", "胃痛", "胸悶", "胸痛", "喉嚨痛", "拉肚子", "腰痠", "發癢", "疲倦", "失眠"},
		SecondPerson: []string{"您", "你"},
		FirstPerson:  []string{"我"},
	}
}

func zhCN() *Patterns {
	return &Patterns{
		Interrogatives: []*regexp.Regexp{
			regexp.MustCompile(`^(请问)?(您|你)?.*(有没有|是不是|会不会|要不要|能不能|可不可以|是否)`),
			regexp.MustCompile(`(什么|哪里|哪边|哪种|怎么|怎样|多久|多少|几[次天岁年个]|为什么|何时)`),
			regexp.MustCompile(`[吗呢][?？。]?\s*$`),
		},
		ProfessionalTerms: []string{"诊断", "检查", "血压", "处方", "病史", "症状", "治疗", "随访",
			"抽血", "听诊", "剂量", "开药", "复诊", "评估", "过敏史"},
		ClinicianPhrases: []string{"请问", "请你", "请您", "麻烦", "我们来", "我帮你", "我帮您",
			"让我", "放轻松", "深呼吸", "张开", "躺下", "建议"},
		PatientPhrases: []string{"我觉得", "我有", "我会", "我的", "有点", "有一点", "好像", "感觉",
			"一直", "开始", "还好", "不太", "我在吃", "吃了"},
		SymptomTerms: []string{"头痛", "头晕", "头昏", "恶心", "想吐", "呕吐", "发烧", "咳嗽", "流鼻涕",
			"肚子痛", "胃痛", "胸闷", "胸痛", "喉咙痛", "拉肚子", "腰酸", "发痒", "疲倦", "失眠"},
		SecondPerson: []string{"您", "你"},
		FirstPerson:  []string{"我"},
	}
}

func enUS() *Patterns {
	return &Patterns{
		Interrogatives: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(please\s+)?(do|does|did|are|is|was|were|have|has|can|could|would|will)\s+(you|your|it|the|there|anyone)\b`),
			regexp.MustCompile(`(?i)\b(what|where|when|how|why|which|who)\b`),
			regexp.MustCompile(`(?i)^(please\s+)?(tell me|describe|show me)\b`),
		},
		ProfessionalTerms: []string{"diagnosis", "examination", "blood pressure", "prescription",
			"medical history", "symptoms", "treatment", "follow up", "dosage", "allergies", "lab work"},
		ClinicianPhrases: []string{"please", "let me", "let's", "take a deep breath", "open your",
			"lie down", "we will", "i'd like to", "i recommend"},
		PatientPhrases: []string{"i feel", "i have", "i've been", "i think", "it hurts", "kind of",
			"a little", "started", "i take", "i'm taking"},
		SymptomTerms: []string{"headache", "dizzy", "nauseous", "nausea", "vomiting", "fever", "cough",
			"sore throat", "stomach ache", "chest pain", "tired", "itchy", "diarrhea"},
		SecondPerson: []string{"you", "your"},
		FirstPerson:  []string{"i", "i'm", "i've", "my"},
	}
}
