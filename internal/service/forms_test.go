package service

import (
	"context"
	"testing"

	"github.com/and161185/formkeeper/internal/errs"
	"github.com/and161185/formkeeper/internal/validate"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubTokens struct {
	token string
	err   error
	calls int
}

func (s *stubTokens) GetValidToken(context.Context, string) (string, error) {
	s.calls++
	return s.token, s.err
}

func formDoc(t *testing.T, index string) map[string]any {
	t.Helper()
	doc, err := validate.DecodeJSON([]byte(`{
		"initialForm": {"info": {"title": "Survey"}},
		"batchUpdate": {"requests": [{"createItem": {
			"item": {"title": "Q1", "questionItem": {"question": {"textQuestion": {}}}},
			"location": {"index": ` + index + `}
		}}]}
	}`))
	require.NoError(t, err)
	return doc
}

func TestForms_Validate(t *testing.T) {
	t.Parallel()
	s := NewFormService(&stubTokens{}, zaptest.NewLogger(t))

	require.NoError(t, s.Validate(context.Background(), formDoc(t, "0")))

	err := s.Validate(context.Background(), formDoc(t, "1"))
	require.ErrorIs(t, err, errs.ErrIndexMismatch)
	var v *validate.Violation
	require.ErrorAs(t, err, &v)
	require.Equal(t, 0, v.Item)
}

func TestForms_Prepare(t *testing.T) {
	t.Parallel()
	tokens := &stubTokens{token: "at-1"}
	s := NewFormService(tokens, zaptest.NewLogger(t))

	sub, err := s.Prepare(context.Background(), "alice", formDoc(t, "0"))
	require.NoError(t, err)
	require.Equal(t, "at-1", sub.AccessToken)
	require.Equal(t, "Survey", sub.Form.Title)
	require.Len(t, sub.Form.Items, 1)
	require.NoError(t, validate.Document(sub.Batch))
	require.Equal(t, 1, tokens.calls)
}

func TestForms_Prepare_InvalidDocumentFetchesNoToken(t *testing.T) {
	t.Parallel()
	tokens := &stubTokens{token: "at-1"}
	s := NewFormService(tokens, nil)

	_, err := s.Prepare(context.Background(), "alice", formDoc(t, "1"))
	require.ErrorIs(t, err, errs.ErrIndexMismatch)
	require.Zero(t, tokens.calls)
}

func TestForms_Prepare_TokenErrorsPassThrough(t *testing.T) {
	t.Parallel()
	s := NewFormService(&stubTokens{err: errs.ErrRefreshFailed}, nil)

	_, err := s.Prepare(context.Background(), "alice", formDoc(t, "0"))
	require.ErrorIs(t, err, errs.ErrRefreshFailed)
}
