// Package oauth performs the OAuth2 refresh-token exchange against a provider token endpoint.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/and161185/formkeeper/internal/model"
)

// GoogleTokenURL is the Google OAuth2 token endpoint.
const GoogleTokenURL = "https://oauth2.googleapis.com/token"

const maxResponseBytes = 1 << 20

// Exchanger trades a refresh token for a new access token.
type Exchanger interface {
	Refresh(ctx context.Context, refreshToken string) (model.TokenResponse, error)
}

// ProviderError is a non-2xx answer of the token endpoint.
type ProviderError struct {
	StatusCode  int
	Code        string // "error" field, e.g. invalid_grant
	Description string // "error_description" field
	Body        string // raw payload when it was not JSON
}

func (e *ProviderError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("token endpoint: status %d: %s: %s", e.StatusCode, e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("token endpoint: status %d: %s", e.StatusCode, e.Code)
	default:
		return fmt.Sprintf("token endpoint: status %d", e.StatusCode)
	}
}

// Config describes the OAuth2 client.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// HTTPExchanger implements Exchanger over HTTP with a form-encoded POST.
type HTTPExchanger struct {
	cfg    Config
	client *http.Client
}

var _ Exchanger = (*HTTPExchanger)(nil)

// NewHTTPExchanger constructs an exchanger. A nil client gets a 30s default timeout.
func NewHTTPExchanger(cfg Config, client *http.Client) *HTTPExchanger {
	if cfg.TokenURL == "" {
		cfg.TokenURL = GoogleTokenURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPExchanger{cfg: cfg, client: client}
}

type tokenPayload struct {
	AccessToken      string      `json:"access_token"`
	RefreshToken     string      `json:"refresh_token"`
	ExpiresIn        json.Number `json:"expires_in"`
	TokenType        string      `json:"token_type"`
	Scope            string      `json:"scope"`
	Error            string      `json:"error"`
	ErrorDescription string      `json:"error_description"`
}

// Refresh posts grant_type=refresh_token and decodes the JSON answer.
func (e *HTTPExchanger) Refresh(ctx context.Context, refreshToken string) (model.TokenResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return model.TokenResponse{}, errors.New("oauth: refresh token is empty")
	}

	form := url.Values{}
	form.Set("client_id", e.cfg.ClientID)
	form.Set("client_secret", e.cfg.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return model.TokenResponse{}, fmt.Errorf("oauth: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return model.TokenResponse{}, fmt.Errorf("oauth: token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return model.TokenResponse{}, fmt.Errorf("oauth: read response: %w", err)
	}

	var p tokenPayload
	jsonErr := json.Unmarshal(body, &p)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		pe := &ProviderError{StatusCode: resp.StatusCode, Code: p.Error, Description: p.ErrorDescription}
		if jsonErr != nil {
			pe.Body = string(body)
		}
		return model.TokenResponse{}, pe
	}
	if jsonErr != nil {
		return model.TokenResponse{}, fmt.Errorf("oauth: decode response: %w", jsonErr)
	}

	expiresIn, err := p.ExpiresIn.Int64()
	if err != nil {
		return model.TokenResponse{}, fmt.Errorf("oauth: bad expires_in %q", p.ExpiresIn.String())
	}
	if p.AccessToken == "" {
		return model.TokenResponse{}, errors.New("oauth: response has no access_token")
	}
	if _, ok := model.Lifetime(expiresIn); !ok {
		return model.TokenResponse{}, fmt.Errorf("oauth: expires_in %d out of range", expiresIn)
	}

	return model.TokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresIn:    expiresIn,
		TokenType:    p.TokenType,
		Scope:        p.Scope,
	}, nil
}
