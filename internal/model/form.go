package model

// Question kinds as they appear on the wire.
const (
	KindChoice = "choiceQuestion"
	KindText   = "textQuestion"
	KindScale  = "scaleQuestion"
	KindDate   = "dateQuestion"
	KindTime   = "timeQuestion"
	KindRating = "ratingQuestion"
)

// QuestionKinds lists every recognized question kind.
var QuestionKinds = []string{KindChoice, KindText, KindScale, KindDate, KindTime, KindRating}

// Question is a closed sum over the six supported question kinds.
type Question interface {
	Kind() string
	question()
}

// ChoiceOption is a single option of a choice question.
type ChoiceOption struct {
	Value string `json:"value"`
}

// ChoiceQuestion asks to pick among options (RADIO, CHECKBOX, DROP_DOWN).
type ChoiceQuestion struct {
	Type    string         `json:"type,omitempty"`
	Options []ChoiceOption `json:"options,omitempty"`
	Shuffle bool           `json:"shuffle,omitempty"`
}

// TextQuestion asks for free text.
type TextQuestion struct {
	Paragraph bool `json:"paragraph,omitempty"`
}

// ScaleQuestion asks for a value on a linear scale.
type ScaleQuestion struct {
	Low       int    `json:"low,omitempty"`
	High      int    `json:"high,omitempty"`
	LowLabel  string `json:"lowLabel,omitempty"`
	HighLabel string `json:"highLabel,omitempty"`
}

// DateQuestion asks for a date.
type DateQuestion struct {
	IncludeTime bool `json:"includeTime,omitempty"`
	IncludeYear bool `json:"includeYear,omitempty"`
}

// TimeQuestion asks for a time of day or a duration.
type TimeQuestion struct {
	Duration bool `json:"duration,omitempty"`
}

// RatingQuestion asks for a rating with icons.
type RatingQuestion struct {
	RatingScaleLevel int    `json:"ratingScaleLevel,omitempty"`
	IconType         string `json:"iconType,omitempty"`
}

func (ChoiceQuestion) Kind() string { return KindChoice }
func (TextQuestion) Kind() string   { return KindText }
func (ScaleQuestion) Kind() string  { return KindScale }
func (DateQuestion) Kind() string   { return KindDate }
func (TimeQuestion) Kind() string   { return KindTime }
func (RatingQuestion) Kind() string { return KindRating }

func (ChoiceQuestion) question() {}
func (TextQuestion) question()   {}
func (ScaleQuestion) question()  {}
func (DateQuestion) question()   {}
func (TimeQuestion) question()   {}
func (RatingQuestion) question() {}

// FormItem is one question of a form at its declared position.
type FormItem struct {
	Title    string
	Required bool
	Index    int
	Question Question
}

// Form is the typed view of a validated create-document request.
type Form struct {
	Title       string
	Description string
	Items       []FormItem
}

// Batch renders the wire document: initial form info plus the ordered createItem batch.
func (f *Form) Batch() map[string]any {
	requests := make([]any, 0, len(f.Items))
	for _, it := range f.Items {
		question := map[string]any{"required": it.Required}
		if it.Question != nil {
			question[it.Question.Kind()] = it.Question
		}
		requests = append(requests, map[string]any{
			"createItem": map[string]any{
				"item": map[string]any{
					"title":        it.Title,
					"questionItem": map[string]any{"question": question},
				},
				"location": map[string]any{"index": it.Index},
			},
		})
	}
	return map[string]any{
		"initialForm": map[string]any{
			"info": map[string]any{"title": f.Title, "description": f.Description},
		},
		"batchUpdate": map[string]any{
			"requests":              requests,
			"includeFormInResponse": true,
		},
	}
}
