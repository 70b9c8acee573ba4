package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/formkeeper/internal/metrics"
	"github.com/and161185/formkeeper/internal/model"
	"github.com/and161185/formkeeper/internal/validate"
	"go.uber.org/zap"
)

// TokenSource hands out usable access tokens. Implemented by CredentialServiceImpl.
type TokenSource interface {
	GetValidToken(ctx context.Context, principal string) (string, error)
}

// FormService validates generated documents and pairs them with a bearer token for submission.
type FormService interface {
	// Validate checks a decoded create-document request; it returns nil or a *validate.Violation.
	Validate(ctx context.Context, doc map[string]any) error
	// Prepare validates doc and, only when it passes, obtains a usable access token for principal.
	Prepare(ctx context.Context, principal string, doc map[string]any) (model.Submission, error)
}

// FormServiceImpl is the FormService that takes tokens from a TokenSource.
type FormServiceImpl struct {
	tokens TokenSource
	log    *zap.Logger
}

var _ FormService = (*FormServiceImpl)(nil)

// NewFormService constructs FormService.
func NewFormService(tokens TokenSource, log *zap.Logger) *FormServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &FormServiceImpl{tokens: tokens, log: log}
}

// Validate runs the structural checks and records the outcome.
func (s *FormServiceImpl) Validate(_ context.Context, doc map[string]any) error {
	err := validate.Document(doc)
	s.record(err)
	return err
}

// Prepare blocks invalid documents before any token is fetched.
func (s *FormServiceImpl) Prepare(ctx context.Context, principal string, doc map[string]any) (model.Submission, error) {
	form, err := validate.Parse(doc)
	s.record(err)
	if err != nil {
		return model.Submission{}, err
	}

	token, err := s.tokens.GetValidToken(ctx, principal)
	if err != nil {
		return model.Submission{}, fmt.Errorf("access token: %w", err)
	}
	return model.Submission{AccessToken: token, Form: form, Batch: form.Batch()}, nil
}

func (s *FormServiceImpl) record(err error) {
	outcome := validate.Outcome(err)
	metrics.RecordValidation(outcome)

	var v *validate.Violation
	if errors.As(err, &v) {
		s.log.Debug("document rejected",
			zap.String("rule", outcome),
			zap.Int("item", v.Item),
			zap.String("field", v.Field),
		)
	}
}
