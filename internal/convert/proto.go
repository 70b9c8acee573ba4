// Package convert maps domain values to and from the protobuf Struct messages of the FormKeeper API.
package convert

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/and161185/formkeeper/internal/model"
	"github.com/and161185/formkeeper/internal/validate"
	"google.golang.org/protobuf/types/known/structpb"
)

// Struct field names.
const (
	FieldPrincipal    = "principal"
	FieldAccessToken  = "access_token"
	FieldRefreshToken = "refresh_token"
	FieldExpiresIn    = "expires_in"

	FieldSessionToken     = "session_token"
	FieldSessionExpiresAt = "session_expires_at"
	FieldSession          = "session"

	FieldValid     = "valid"
	FieldViolation = "violation"
	FieldDocument  = "document"
)

// --- helpers ---

func millis(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixMilli())
}

func fromMillis(v float64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(v)).UTC()
}

func str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// --- Session ---

// ToProtoSession renders the session projection with epoch-millisecond times.
func ToProtoSession(s model.Session) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"principal":            structpb.NewStringValue(s.Principal),
		"accessToken":          structpb.NewStringValue(s.AccessToken),
		"refreshToken":         structpb.NewStringValue(s.RefreshToken),
		"accessTokenIssuedAt":  structpb.NewNumberValue(millis(s.AccessTokenIssuedAt)),
		"accessTokenExpiresAt": structpb.NewNumberValue(millis(s.AccessTokenExpiresAt)),
		"refreshFailed":        structpb.NewBoolValue(s.RefreshFailed),
	}}
}

// FromProtoSession is the inverse of ToProtoSession.
func FromProtoSession(in *structpb.Struct) model.Session {
	f := in.GetFields()
	return model.Session{
		Principal:            f["principal"].GetStringValue(),
		AccessToken:          f["accessToken"].GetStringValue(),
		RefreshToken:         f["refreshToken"].GetStringValue(),
		AccessTokenIssuedAt:  fromMillis(f["accessTokenIssuedAt"].GetNumberValue()),
		AccessTokenExpiresAt: fromMillis(f["accessTokenExpiresAt"].GetNumberValue()),
		RefreshFailed:        f["refreshFailed"].GetBoolValue(),
	}
}

// --- SignIn ---

// ToProtoSignIn builds a SignIn request.
func ToProtoSignIn(principal string, g model.Grant) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldPrincipal:    structpb.NewStringValue(principal),
		FieldAccessToken:  structpb.NewStringValue(g.AccessToken),
		FieldRefreshToken: structpb.NewStringValue(g.RefreshToken),
		FieldExpiresIn:    structpb.NewNumberValue(float64(g.ExpiresIn)),
	}}
}

// FromProtoSignIn extracts the principal and grant of a SignIn request.
func FromProtoSignIn(in *structpb.Struct) (string, model.Grant, error) {
	if in == nil {
		return "", model.Grant{}, errors.New("nil request")
	}
	exp, ok := in.GetFields()[FieldExpiresIn].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return "", model.Grant{}, fmt.Errorf("%s: not a number", FieldExpiresIn)
	}
	if exp.NumberValue != math.Trunc(exp.NumberValue) || math.IsInf(exp.NumberValue, 0) {
		return "", model.Grant{}, fmt.Errorf("%s: not an integer", FieldExpiresIn)
	}
	if math.Abs(exp.NumberValue) > float64(model.MaxExpiresIn) {
		return "", model.Grant{}, fmt.Errorf("%s: out of range", FieldExpiresIn)
	}
	return str(in, FieldPrincipal), model.Grant{
		AccessToken:  str(in, FieldAccessToken),
		RefreshToken: str(in, FieldRefreshToken),
		ExpiresIn:    int64(exp.NumberValue),
	}, nil
}

// ToProtoSignInResult renders the SignIn response.
func ToProtoSignInResult(res model.SignInResult) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldSessionToken:     structpb.NewStringValue(res.SessionToken),
		FieldSessionExpiresAt: structpb.NewNumberValue(millis(res.SessionExpiresAt)),
		FieldSession:          structpb.NewStructValue(ToProtoSession(model.SessionOf(res.Record))),
	}}
}

// --- Documents ---

// FromProtoDocument returns the generic JSON view of a document. Numbers decode as float64.
func FromProtoDocument(in *structpb.Struct) map[string]any {
	if in == nil {
		return nil
	}
	return in.AsMap()
}

// ToProtoDocument converts a wire document built from typed values into a Struct.
func ToProtoDocument(doc map[string]any) (*structpb.Struct, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var plain map[string]any
	if err := json.Unmarshal(b, &plain); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return structpb.NewStruct(plain)
}

// ToProtoValidation renders a validation result: {valid} plus the violation when the document failed.
func ToProtoValidation(err error) *structpb.Struct {
	out := &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldValid: structpb.NewBoolValue(err == nil),
	}}
	if err == nil {
		return out
	}
	out.Fields[FieldViolation] = structpb.NewStructValue(ToProtoViolation(err))
	return out
}

// ToProtoViolation renders a validation error. Errors that are not a *validate.Violation get item -1 and no field.
func ToProtoViolation(err error) *structpb.Struct {
	item, field := validate.DocumentLevel, ""
	var v *validate.Violation
	if errors.As(err, &v) {
		item, field = v.Item, v.Field
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":    structpb.NewStringValue(validate.Outcome(err)),
		"item":    structpb.NewNumberValue(float64(item)),
		"field":   structpb.NewStringValue(field),
		"message": structpb.NewStringValue(err.Error()),
	}}
}

// ToProtoSubmission renders a prepared submission.
func ToProtoSubmission(sub model.Submission) (*structpb.Struct, error) {
	doc, err := ToProtoDocument(sub.Batch)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldAccessToken: structpb.NewStringValue(sub.AccessToken),
		FieldDocument:    structpb.NewStructValue(doc),
	}}, nil
}
