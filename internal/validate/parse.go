package validate

import (
	"encoding/json"
	"fmt"

	"github.com/and161185/formkeeper/internal/errs"
	"github.com/and161185/formkeeper/internal/model"
)

// Parse validates doc and builds its typed form.
func Parse(doc map[string]any) (*model.Form, error) {
	if err := Document(doc); err != nil {
		return nil, err
	}

	info := path(doc, "initialForm", "info").(map[string]any)
	f := &model.Form{}
	f.Title, _ = info["title"].(string)
	f.Description, _ = info["description"].(string)

	requests := path(doc, "batchUpdate", "requests").([]any)
	f.Items = make([]model.FormItem, 0, len(requests))
	for i, raw := range requests {
		it := path(raw, "createItem", "item").(map[string]any)
		question := path(it, "questionItem", "question").(map[string]any)

		q, err := decodeQuestion(question)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", errs.ErrMalformed, i, err)
		}
		required, _ := question["required"].(bool)
		title, _ := it["title"].(string)
		f.Items = append(f.Items, model.FormItem{Title: title, Required: required, Index: i, Question: q})
	}
	return f, nil
}

func decodeQuestion(question map[string]any) (model.Question, error) {
	for _, kind := range model.QuestionKinds {
		payload, ok := question[kind]
		if !ok {
			continue
		}
		switch kind {
		case model.KindChoice:
			return decodeInto[model.ChoiceQuestion](kind, payload)
		case model.KindText:
			return decodeInto[model.TextQuestion](kind, payload)
		case model.KindScale:
			return decodeInto[model.ScaleQuestion](kind, payload)
		case model.KindDate:
			return decodeInto[model.DateQuestion](kind, payload)
		case model.KindTime:
			return decodeInto[model.TimeQuestion](kind, payload)
		case model.KindRating:
			return decodeInto[model.RatingQuestion](kind, payload)
		}
	}
	return nil, fmt.Errorf("no recognized question kind")
}

// decodeInto re-encodes a generic payload into its concrete question type. A null payload yields the zero value.
func decodeInto[T model.Question](kind string, payload any) (model.Question, error) {
	var q T
	if payload == nil {
		return q, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	if err := json.Unmarshal(b, &q); err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	return q, nil
}
