// Package grpcserver exposes the FormKeeper gRPC API handlers.
package grpcserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"strings"

	"github.com/and161185/formkeeper/internal/api"
	"github.com/and161185/formkeeper/internal/convert"
	"github.com/and161185/formkeeper/internal/errs"
	"github.com/and161185/formkeeper/internal/limiter"
	"github.com/and161185/formkeeper/internal/service"
	"github.com/and161185/formkeeper/internal/validate"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Server wires services into gRPC handlers.
type Server struct {
	api.UnimplementedFormKeeperServer
	creds     service.CredentialService
	forms     service.FormService
	sessions  *service.SessionTokens
	signInKey []byte
	limiter   limiter.Limiter
	log       *zap.Logger
}

// signInScope is the limiter scope of sign-in key failures.
const signInScope = "signin"

// Option configures optional server collaborators.
type Option func(*Server)

// WithLimiter throttles repeated sign-in key failures per client address.
func WithLimiter(l limiter.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithLogger sets the logger for limiter problems.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// New constructs a gRPC server with injected services.
func New(creds service.CredentialService, forms service.FormService, sessions *service.SessionTokens, signInKey []byte, opts ...Option) *Server {
	s := &Server{creds: creds, forms: forms, sessions: sessions, signInKey: signInKey, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// remoteIP returns the caller host without port, or "" when unknown.
func remoteIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// --- Sessions ---

// SignIn stores the grant handed over by the trusted sign-in collaborator and returns a session token.
func (s *Server) SignIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.checkSignInKey(ctx); err != nil {
		return nil, err
	}
	principal, grant, err := convert.FromProtoSignIn(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad sign-in: %v", err)
	}
	res, err := s.creds.SignIn(ctx, principal, grant)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidGrant) {
			return nil, status.Errorf(codes.InvalidArgument, "%v", err)
		}
		return nil, status.Errorf(codes.Internal, "sign in: %v", err)
	}
	return convert.ToProtoSignInResult(res), nil
}

// GetSession returns the stored session projection without refreshing it.
func (s *Server) GetSession(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	principal, ok := PrincipalFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	sess, err := s.creds.Session(ctx, principal)
	if err != nil {
		return nil, credentialStatus(err, "get session")
	}
	return convert.ToProtoSession(sess), nil
}

// GetAccessToken returns a usable access token, refreshing it when the stored one expired.
func (s *Server) GetAccessToken(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	principal, ok := PrincipalFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	tok, err := s.creds.GetValidToken(ctx, principal)
	if err != nil {
		return nil, credentialStatus(err, "get access token")
	}
	return wrapperspb.String(tok), nil
}

// SignOut drops the caller's token record.
func (s *Server) SignOut(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	principal, ok := PrincipalFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	if err := s.creds.SignOut(ctx, principal); err != nil {
		return nil, status.Errorf(codes.Internal, "sign out: %v", err)
	}
	return &emptypb.Empty{}, nil
}

// --- Documents ---

// ValidateDocument runs the structural checks; a rejected document is a normal response, not an error.
func (s *Server) ValidateDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	err := s.forms.Validate(ctx, convert.FromProtoDocument(req))
	return convert.ToProtoValidation(err), nil
}

// PrepareSubmission validates the document and pairs it with the caller's access token.
func (s *Server) PrepareSubmission(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	principal, ok := PrincipalFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	sub, err := s.forms.Prepare(ctx, principal, convert.FromProtoDocument(req))
	if err != nil {
		var v *validate.Violation
		if errors.As(err, &v) || errors.Is(err, errs.ErrMalformed) {
			return nil, status.Errorf(codes.InvalidArgument, "invalid document: %v", err)
		}
		return nil, credentialStatus(err, "prepare submission")
	}
	out, err := convert.ToProtoSubmission(sub)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode submission: %v", err)
	}
	return out, nil
}

// checkSignInKey verifies the sign-in key, consulting the limiter when one is configured.
func (s *Server) checkSignInKey(ctx context.Context) error {
	if s.limiter == nil {
		if !s.signInKeyOK(ctx) {
			return status.Error(codes.PermissionDenied, "bad sign-in key")
		}
		return nil
	}

	ipHash := limiter.HashIP(remoteIP(ctx))
	allowed, _, err := s.limiter.Allow(ctx, signInScope, ipHash)
	if err != nil {
		return status.Errorf(codes.Internal, "limiter: %v", err)
	}
	if !allowed {
		return status.Error(codes.ResourceExhausted, "rate limited")
	}
	if !s.signInKeyOK(ctx) {
		blocked, _, err := s.limiter.Failure(ctx, signInScope, ipHash)
		if err != nil {
			s.log.Warn("limiter: record failure", zap.Error(err))
		}
		if blocked {
			return status.Error(codes.ResourceExhausted, "rate limited")
		}
		return status.Error(codes.PermissionDenied, "bad sign-in key")
	}
	if err := s.limiter.Success(ctx, signInScope, ipHash); err != nil {
		s.log.Warn("limiter: reset", zap.Error(err))
	}
	return nil
}

// credentialStatus maps credential errors to codes. Provider diagnostics never reach the client.
func credentialStatus(err error, op string) error {
	switch {
	case errors.Is(err, errs.ErrNoSession):
		return status.Error(codes.Unauthenticated, "no session")
	case errors.Is(err, errs.ErrRefreshFailed):
		return status.Error(codes.Unauthenticated, "reauthentication required")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		return status.Errorf(codes.Internal, "%s: %v", op, err)
	}
}

// --- auth helpers ---

func (s *Server) signInKeyOK(ctx context.Context) bool {
	if len(s.signInKey) == 0 {
		return false
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return false
	}
	for _, v := range md.Get(api.SignInKeyHeader) {
		if subtle.ConstantTimeCompare([]byte(v), s.signInKey) == 1 {
			return true
		}
	}
	return false
}

// principalFromMD: extract "authorization: Bearer <JWT>", verify it, return its subject.
func (s *Server) principalFromMD(ctx context.Context) (string, error) {
	tok, err := bearerTokenFromMD(ctx)
	if err != nil {
		return "", err
	}
	return s.sessions.Parse(tok)
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
