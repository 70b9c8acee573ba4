// Package validate checks generated create-document batches before they reach the forms API.
//
// Documents are inspected in their decoded JSON form (map[string]any) so that key membership,
// not value truthiness, decides which question kinds are present. Checks run in a fixed order and
// the first violation is reported.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/and161185/formkeeper/internal/errs"
	"github.com/and161185/formkeeper/internal/model"
)

// DocumentLevel is the Item value of violations that are not tied to a single item.
const DocumentLevel = -1

// Violation describes the first broken rule of a document.
type Violation struct {
	Kind  error  // errs.ErrMissingField, errs.ErrIndexMismatch or errs.ErrUnrecognizedVariant
	Item  int    // ordinal of the offending item, DocumentLevel otherwise
	Field string // dotted path of the offending field
}

func (v *Violation) Error() string {
	if v.Item == DocumentLevel {
		return fmt.Sprintf("%v: %s", v.Kind, v.Field)
	}
	return fmt.Sprintf("%v: item %d: %s", v.Kind, v.Item, v.Field)
}

// Unwrap exposes Kind to errors.Is.
func (v *Violation) Unwrap() error { return v.Kind }

func violation(kind error, item int, field string) *Violation {
	return &Violation{Kind: kind, Item: item, Field: field}
}

// DecodeJSON decodes a document keeping numbers exact.
func DecodeJSON(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Valid reports whether the document passes every check.
func Valid(doc map[string]any) bool { return Document(doc) == nil }

// Document validates a decoded create-document request. It returns nil or a *Violation.
func Document(doc map[string]any) error {
	info, _ := path(doc, "initialForm", "info").(map[string]any)
	if title, ok := info["title"].(string); !ok || title == "" {
		return violation(errs.ErrMissingField, DocumentLevel, "initialForm.info.title")
	}

	requests, ok := path(doc, "batchUpdate", "requests").([]any)
	if !ok {
		return violation(errs.ErrMissingField, DocumentLevel, "batchUpdate.requests")
	}

	for i, raw := range requests {
		if err := item(raw, i); err != nil {
			return err
		}
	}
	return nil
}

func item(raw any, i int) error {
	create, _ := path(raw, "createItem").(map[string]any)

	if title, ok := path(create, "item", "title").(string); !ok || title == "" {
		return violation(errs.ErrMissingField, i, "createItem.item.title")
	}

	question, ok := path(create, "item", "questionItem", "question").(map[string]any)
	if !ok || question == nil {
		return violation(errs.ErrMissingField, i, "createItem.item.questionItem.question")
	}

	location, _ := create["location"].(map[string]any)
	rawIndex, present := location["index"]
	if !present {
		return violation(errs.ErrMissingField, i, "createItem.location.index")
	}
	if idx, ok := asInt64(rawIndex); !ok || idx != int64(i) {
		return violation(errs.ErrIndexMismatch, i, "createItem.location.index")
	}

	if n := countKinds(question); n != 1 {
		return violation(errs.ErrUnrecognizedVariant, i, "createItem.item.questionItem.question")
	}
	return nil
}

// countKinds counts recognized kind keys; a present key with a null or empty value counts.
func countKinds(question map[string]any) int {
	n := 0
	for _, k := range model.QuestionKinds {
		if _, ok := question[k]; ok {
			n++
		}
	}
	return n
}

// path walks nested objects; any non-object step yields nil.
func path(v any, keys ...string) any {
	for _, k := range keys {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[k]
	}
	return v
}

// asInt64 accepts integral JSON numbers in any of the decoded representations.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return asInt64(f)
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

// Outcome names the result of a validation for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "valid"
	case errors.Is(err, errs.ErrMissingField):
		return "missing_field"
	case errors.Is(err, errs.ErrIndexMismatch):
		return "index_mismatch"
	case errors.Is(err, errs.ErrUnrecognizedVariant):
		return "unrecognized_variant"
	default:
		return "malformed"
	}
}
