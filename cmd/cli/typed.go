package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/and161185/formkeeper/internal/model"
	"github.com/and161185/formkeeper/internal/validate"
)

// questionFlags collects repeated -q values.
type questionFlags []string

func (q *questionFlags) String() string     { return strings.Join(*q, ", ") }
func (q *questionFlags) Set(v string) error { *q = append(*q, v); return nil }

// ------- builders -------

// parseQuestion turns "kind:title[:args]" into a typed question.
//
//	text:Why?[:paragraph]
//	choice:Colour:red,blue[:RADIO|CHECKBOX|DROP_DOWN]
//	scale:Score:1:5
//	date:When[:time]
//	time:How long[:duration]
//	rating:Stars[:5]
func parseQuestion(spec string) (string, model.Question, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		return "", nil, fmt.Errorf("question %q: want kind:title[:args]", spec)
	}
	kind, title, rest := strings.ToLower(parts[0]), strings.TrimSpace(parts[1]), parts[2:]
	arg := func(i int) string {
		if i < len(rest) {
			return strings.TrimSpace(rest[i])
		}
		return ""
	}

	switch kind {
	case "text":
		return title, model.TextQuestion{Paragraph: arg(0) == "paragraph"}, nil
	case "choice":
		var opts []model.ChoiceOption
		for _, v := range strings.Split(arg(0), ",") {
			if v = strings.TrimSpace(v); v != "" {
				opts = append(opts, model.ChoiceOption{Value: v})
			}
		}
		if len(opts) == 0 {
			return "", nil, fmt.Errorf("question %q: choice needs options", spec)
		}
		return title, model.ChoiceQuestion{Type: choose(strings.ToUpper(arg(1)), "RADIO"), Options: opts}, nil
	case "scale":
		low, err1 := strconv.Atoi(choose(arg(0), "1"))
		high, err2 := strconv.Atoi(choose(arg(1), "5"))
		if err := errors.Join(err1, err2); err != nil || low >= high {
			return "", nil, fmt.Errorf("question %q: bad scale bounds", spec)
		}
		return title, model.ScaleQuestion{Low: low, High: high}, nil
	case "date":
		return title, model.DateQuestion{IncludeTime: arg(0) == "time", IncludeYear: true}, nil
	case "time":
		return title, model.TimeQuestion{Duration: arg(0) == "duration"}, nil
	case "rating":
		level, err := strconv.Atoi(choose(arg(0), "5"))
		if err != nil || level <= 0 {
			return "", nil, fmt.Errorf("question %q: bad rating level", spec)
		}
		return title, model.RatingQuestion{RatingScaleLevel: level, IconType: "STAR"}, nil
	default:
		return "", nil, fmt.Errorf("question %q: unknown kind %q", spec, kind)
	}
}

// buildForm assembles a form with items at their declared positions.
func buildForm(title, desc string, specs []string, required bool) (*model.Form, error) {
	if strings.TrimSpace(title) == "" {
		return nil, errors.New("empty form title")
	}
	f := &model.Form{Title: title, Description: desc}
	for i, spec := range specs {
		qt, q, err := parseQuestion(spec)
		if err != nil {
			return nil, err
		}
		f.Items = append(f.Items, model.FormItem{Title: qt, Required: required, Index: i, Question: q})
	}
	return f, nil
}

func choose(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// ------- commands -------

// cmdForm prints a validated create-document request built from flags.
func cmdForm(args []string) {
	fs := flag.NewFlagSet("form", flag.ExitOnError)
	title := fs.String("title", "", "form title")
	desc := fs.String("desc", "", "form description")
	required := fs.Bool("required", false, "mark every question required")
	var qs questionFlags
	fs.Var(&qs, "q", "question kind:title[:args] (repeatable)")
	_ = fs.Parse(args)

	f, err := buildForm(*title, *desc, qs, *required)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	batch := f.Batch()
	if err := validate.Document(batch); err != nil {
		fail(err)
	}
	printJSON(batch)
}
