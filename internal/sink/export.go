package sink

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MrWong99/chartvox/internal/lexicon"
	"github.com/MrWong99/chartvox/pkg/types"
)

// Headings are the section titles of a plain-text export.
type Headings struct {
	Title   string
	Created string
	Fields  map[types.Category]string
}

// HeadingsFor returns the export headings for lang. Unknown languages get
// the zh-TW headings.
func HeadingsFor(lang lexicon.Language) Headings {
	switch lang {
	case lexicon.LangEnUS:
		return Headings{
			Title:   "Clinical Note",
			Created: "Created",
			Fields: map[types.Category]string{
				types.ChiefComplaint:      "Chief Complaint",
				types.PresentIllness:      "History of Present Illness",
				types.AccompaniedSymptoms: "Associated Symptoms",
				types.PastMedicalHistory:  "Past Medical History",
				types.Medications:         "Medications",
				types.Allergies:           "Allergies",
				types.FamilyHistory:       "Family History",
				types.SocialHistory:       "Social History",
				types.PhysicalExam:        "Physical Examination",
				types.VitalSigns:          "Vital Signs",
				types.LabResults:          "Laboratory Results",
				types.ImagingResults:      "Imaging Results",
				types.Assessment:          "Assessment",
				types.Plan:                "Plan",
			},
		}
	case lexicon.LangZhCN:
		return Headings{
			Title:   "医疗病例记录",
			Created: "生成日期",
			Fields: map[types.Category]string{
				types.ChiefComplaint:      "主诉",
				types.PresentIllness:      "现病史",
				types.AccompaniedSymptoms: "伴随症状",
				types.PastMedicalHistory:  "既往史",
				types.Medications:         "目前用药",
				types.Allergies:           "过敏史",
				types.FamilyHistory:       "家族史",
				types.SocialHistory:       "个人史",
				types.PhysicalExam:        "体格检查",
				types.VitalSigns:          "生命体征",
				types.LabResults:          "实验室结果",
				types.ImagingResults:      "影像结果",
				types.Assessment:          "评估",
				types.Plan:                "治疗计划",
			},
		}
	default:
		return Headings{
			Title:   "醫療病例記錄",
			Created: "生成日期",
			Fields: map[types.Category]string{
				types.ChiefComplaint:      "主訴",
				types.PresentIllness:      "現病史",
				types.AccompaniedSymptoms: "伴隨症狀",
				types.PastMedicalHistory:  "過去病史",
				types.Medications:         "目前用藥",
				types.Allergies:           "過敏史",
				types.FamilyHistory:       "家族史",
				types.SocialHistory:       "社會史",
				types.PhysicalExam:        "體格檢查",
				types.VitalSigns:          "生命體徵",
				types.LabResults:          "實驗室結果",
				types.ImagingResults:      "影像結果",
				types.Assessment:          "評估",
				types.Plan:                "治療計劃",
			},
		}
	}
}

const rule = 50

// Export writes the non-empty fields of f as plain text, one headed section
// per field in declaration order. A zero created omits the date line.
func (f *Form) Export(w io.Writer, h Headings, created time.Time) error {
	var b strings.Builder
	b.WriteString(h.Title + "\n")
	b.WriteString(strings.Repeat("=", rule) + "\n\n")
	if !created.IsZero() {
		fmt.Fprintf(&b, "%s: %s\n\n", h.Created, created.Format("2006-01-02 15:04"))
	}
	for _, c := range types.Categories() {
		text := f.Text(c)
		if text == "" {
			continue
		}
		heading := h.Fields[c]
		if heading == "" {
			heading = c.FieldID()
		}
		b.WriteString(heading + "\n")
		b.WriteString(strings.Repeat("-", rule) + "\n")
		b.WriteString(text + "\n\n")
	}
	b.WriteString(strings.Repeat("=", rule) + "\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("sink: export: %w", err)
	}
	return nil
}
