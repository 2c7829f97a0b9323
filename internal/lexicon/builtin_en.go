package lexicon

import "github.com/MrWong99/chartvox/pkg/types"

func enUS() []Entry {
	return []Entry{
		{
			Category:    types.ChiefComplaint,
			NameAliases: []string{"chief complaint"},
			Keywords:    []string{"complaint", "bothering", "brings you in", "problem", "discomfort", "not feeling well"},
			SubLists: map[string][]string{
				"symptoms": {"headache", "dizzy", "dizziness", "nausea", "vomiting", "fever", "cough",
					"pain", "shortness of breath", "sore throat", "diarrhea"},
			},
		},
		{
			Category:    types.PresentIllness,
			NameAliases: []string{"history of present illness", "present illness"},
			Keywords:    []string{"started", "began", "onset", "suddenly", "gradually", "getting worse", "how long", "for the past"},
			SubLists: map[string][]string{
				"time": {"days ago", "weeks ago", "months ago", "years ago", "yesterday", "this morning",
					"last night", "last week", "today"},
			},
		},
		{
			Category:    types.AccompaniedSymptoms,
			NameAliases: []string{"associated symptoms", "accompanying symptoms"},
			Keywords:    []string{"along with", "at the same time", "accompanied", "any other symptoms", "as well as"},
		},
		{
			Category:    types.PastMedicalHistory,
			NameAliases: []string{"past medical history"},
			Keywords: []string{"history of", "previously", "in the past", "surgery", "hospitalized",
				"diagnosed with", "used to have"},
			SubLists: map[string][]string{
				"conditions": {"hypertension", "diabetes", "asthma", "heart disease", "stroke", "hepatitis", "cancer"},
			},
		},
		{
			Category:    types.Medications,
			NameAliases: []string{"medication list", "medications"},
			Keywords:    []string{"medication", "medicine", "taking", "pills", "prescription", "dose", "supplement", "vitamin", "tablet"},
			SubLists: map[string][]string{
				"drugs": {"ibuprofen", "acetaminophen", "insulin", "metformin", "lisinopril", "antibiotic"},
			},
		},
		{
			Category:    types.Allergies,
			NameAliases: []string{"allergies"},
			Keywords:    []string{"allergy", "allergic", "reaction", "rash", "hives", "intolerant"},
			SubLists: map[string][]string{
				"allergens": {"penicillin", "sulfa", "peanut", "latex", "shellfish"},
			},
		},
		{
			Category:    types.FamilyHistory,
			NameAliases: []string{"family history"},
			// Relations score as keywords so "my father has diabetes" outranks
			// the condition it names. "son" stays a term: it occurs inside
			// "reason" and "person".
			Keywords: []string{"family", "runs in", "hereditary", "genetic", "mother", "father",
				"sister", "brother", "parents", "grandmother", "grandfather", "daughter"},
			SubLists: map[string][]string{
				"relations": {"son"},
			},
		},
		{
			Category:    types.SocialHistory,
			NameAliases: []string{"social history"},
			Keywords: []string{"smoke", "smoking", "alcohol", "drink", "occupation", "job", "exercise",
				"travel", "diet"},
		},
		{
			Category:    types.PhysicalExam,
			NameAliases: []string{"physical examination", "physical exam"},
			Keywords: []string{"on examination", "auscultation", "palpation", "percussion", "tenderness",
				"lungs clear", "heart sounds", "abdomen soft"},
		},
		{
			Category:    types.VitalSigns,
			NameAliases: []string{"vital signs", "vitals"},
			Keywords: []string{"blood pressure", "heart rate", "pulse", "temperature", "respiratory rate",
				"oxygen saturation", "spo2", "weight", "height"},
		},
		{
			Category:    types.LabResults,
			NameAliases: []string{"laboratory results", "lab results"},
			Keywords:    []string{"blood test", "cbc", "hemoglobin", "white count", "creatinine", "glucose level", "urinalysis"},
		},
		{
			Category:    types.ImagingResults,
			NameAliases: []string{"imaging"},
			Keywords:    []string{"x-ray", "ct scan", "mri", "ultrasound", "radiograph"},
		},
		{
			Category:    types.Assessment,
			NameAliases: []string{"assessment", "impression"},
			Keywords:    []string{"diagnosis", "likely", "consistent with", "suspect", "differential"},
		},
		{
			Category:    types.Plan,
			NameAliases: []string{"treatment plan"},
			Keywords:    []string{"plan", "recommend", "follow up", "follow-up", "schedule", "prescribe", "refer", "return if"},
		},
	}
}
