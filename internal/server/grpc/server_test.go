package grpcserver

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/and161185/formkeeper/internal/api"
	"github.com/and161185/formkeeper/internal/convert"
	"github.com/and161185/formkeeper/internal/model"
	"github.com/and161185/formkeeper/internal/oauth"
	"github.com/and161185/formkeeper/internal/repository/memory"
	"github.com/and161185/formkeeper/internal/service"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

type stubExchanger struct {
	mu    sync.Mutex
	resp  model.TokenResponse
	err   error
	calls int
}

func (e *stubExchanger) set(resp model.TokenResponse, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resp, e.err = resp, err
}

func (e *stubExchanger) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *stubExchanger) Refresh(context.Context, string) (model.TokenResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.resp, e.err
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const (
	bufSize   = 1 << 20
	signInKey = "signin-secret"
)

type harness struct {
	client api.FormKeeperClient
	ex     *stubExchanger
	clock  *testClock
}

func startBufGRPC(t *testing.T) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	h := &harness{ex: &stubExchanger{}, clock: &testClock{now: time.Now().UTC()}}

	sessions := service.NewSessionTokens([]byte("jwt-secret"), time.Hour)
	creds := service.NewCredentialService(memory.NewTokenRepo(), h.ex, sessions, log, service.WithClock(h.clock.Now))
	forms := service.NewFormService(creds, log)
	srv := New(creds, forms, sessions, []byte(signInKey))

	lis := bufconn.Listen(bufSize)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoverUnary(log),
		LoggingUnary(log),
		srv.AuthUnary(),
	))
	api.RegisterFormKeeperServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(); gs.Stop(); _ = lis.Close() })

	h.client = api.NewFormKeeperClient(cc)
	return h
}

func withSignInKey(key string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), api.SignInKeyHeader, key)
}

func withBearer(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func (h *harness) signIn(t *testing.T, principal string) string {
	t.Helper()
	req := convert.ToProtoSignIn(principal, model.Grant{AccessToken: "at-0", RefreshToken: "rt-0", ExpiresIn: 3600})
	resp, err := h.client.SignIn(withSignInKey(signInKey), req)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	tok := resp.GetFields()[convert.FieldSessionToken].GetStringValue()
	if tok == "" {
		t.Fatalf("empty session token: %v", resp)
	}
	return tok
}

func surveyDoc(t *testing.T, index int) *structpb.Struct {
	t.Helper()
	doc, err := structpb.NewStruct(map[string]any{
		"initialForm": map[string]any{"info": map[string]any{"title": "Survey"}},
		"batchUpdate": map[string]any{"requests": []any{map[string]any{
			"createItem": map[string]any{
				"item": map[string]any{
					"title":        "Q1",
					"questionItem": map[string]any{"question": map[string]any{"textQuestion": map[string]any{}}},
				},
				"location": map[string]any{"index": index},
			},
		}}},
	})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return doc
}

func wantCode(t *testing.T, err error, code codes.Code) *status.Status {
	t.Helper()
	st, ok := status.FromError(err)
	if !ok || st.Code() != code {
		t.Fatalf("want %s, got %v", code, err)
	}
	return st
}

func TestServer_E2E_SessionFlow(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)
	tok := h.signIn(t, "alice@example.com")

	at, err := h.client.GetAccessToken(withBearer(tok), &emptypb.Empty{})
	if err != nil || at.GetValue() != "at-0" {
		t.Fatalf("get access token: %v, resp=%v", err, at)
	}

	sess, err := h.client.GetSession(withBearer(tok), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	got := convert.FromProtoSession(sess)
	if got.Principal != "alice@example.com" || got.RefreshToken != "rt-0" || got.RefreshFailed {
		t.Fatalf("bad session: %+v", got)
	}

	if _, err := h.client.SignOut(withBearer(tok), &emptypb.Empty{}); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	_, err = h.client.GetAccessToken(withBearer(tok), &emptypb.Empty{})
	if st := wantCode(t, err, codes.Unauthenticated); st.Message() != "no session" {
		t.Fatalf("unexpected message: %q", st.Message())
	}
}

func TestServer_E2E_RefreshAndFailure(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)
	tok := h.signIn(t, "alice")

	h.ex.set(model.TokenResponse{AccessToken: "at-1", ExpiresIn: 3600}, nil)
	h.clock.Advance(2 * time.Hour)
	at, err := h.client.GetAccessToken(withBearer(tok), &emptypb.Empty{})
	if err != nil || at.GetValue() != "at-1" {
		t.Fatalf("refresh: %v, resp=%v", err, at)
	}

	h.ex.set(model.TokenResponse{}, &oauth.ProviderError{StatusCode: http.StatusBadRequest, Code: "invalid_grant", Description: "Token has been revoked."})
	h.clock.Advance(2 * time.Hour)
	_, err = h.client.GetAccessToken(withBearer(tok), &emptypb.Empty{})
	st := wantCode(t, err, codes.Unauthenticated)
	if st.Message() != "reauthentication required" || strings.Contains(st.Message(), "revoked") {
		t.Fatalf("unexpected message: %q", st.Message())
	}

	sess, err := h.client.GetSession(withBearer(tok), &emptypb.Empty{})
	if err != nil || !convert.FromProtoSession(sess).RefreshFailed {
		t.Fatalf("session must report failure: %v, %v", err, sess)
	}
	if n := h.ex.count(); n != 2 {
		t.Fatalf("want 2 exchanges, got %d", n)
	}
}

func TestServer_E2E_SignInRequiresKey(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)
	req := convert.ToProtoSignIn("alice", model.Grant{AccessToken: "a", ExpiresIn: 60})

	_, err := h.client.SignIn(context.Background(), req)
	wantCode(t, err, codes.PermissionDenied)

	_, err = h.client.SignIn(withSignInKey("wrong"), req)
	wantCode(t, err, codes.PermissionDenied)

	bad := convert.ToProtoSignIn("alice", model.Grant{AccessToken: "a"})
	_, err = h.client.SignIn(withSignInKey(signInKey), bad)
	wantCode(t, err, codes.InvalidArgument)
}

func TestServer_E2E_ProtectedMethodsNeedBearer(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)

	_, err := h.client.GetAccessToken(context.Background(), &emptypb.Empty{})
	wantCode(t, err, codes.Unauthenticated)
	_, err = h.client.GetSession(withBearer("garbage"), &emptypb.Empty{})
	wantCode(t, err, codes.Unauthenticated)
	_, err = h.client.PrepareSubmission(context.Background(), surveyDoc(t, 0))
	wantCode(t, err, codes.Unauthenticated)
}

func TestServer_E2E_ValidateDocument(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)

	ok, err := h.client.ValidateDocument(context.Background(), surveyDoc(t, 0))
	if err != nil || !ok.GetFields()[convert.FieldValid].GetBoolValue() {
		t.Fatalf("validate ok: %v, resp=%v", err, ok)
	}

	bad, err := h.client.ValidateDocument(context.Background(), surveyDoc(t, 1))
	if err != nil {
		t.Fatalf("validate bad: %v", err)
	}
	v := bad.GetFields()[convert.FieldViolation].GetStructValue().GetFields()
	if bad.GetFields()[convert.FieldValid].GetBoolValue() || v["kind"].GetStringValue() != "index_mismatch" || v["item"].GetNumberValue() != 0 {
		t.Fatalf("unexpected violation: %v", bad)
	}
}

func TestServer_E2E_PrepareSubmission(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)
	tok := h.signIn(t, "alice")

	out, err := h.client.PrepareSubmission(withBearer(tok), surveyDoc(t, 0))
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if out.GetFields()[convert.FieldAccessToken].GetStringValue() != "at-0" {
		t.Fatalf("bad token: %v", out)
	}
	doc := out.GetFields()[convert.FieldDocument].GetStructValue().AsMap()
	if doc["batchUpdate"].(map[string]any)["includeFormInResponse"] != true {
		t.Fatalf("document must request the form in response: %v", doc)
	}

	_, err = h.client.PrepareSubmission(withBearer(tok), surveyDoc(t, 1))
	wantCode(t, err, codes.InvalidArgument)
	if n := h.ex.count(); n != 0 {
		t.Fatalf("no exchange expected, got %d", n)
	}
}

func Test_SignIn_NoKeyConfigured(t *testing.T) {
	t.Parallel()
	s := &Server{}
	_, err := s.SignIn(withIncomingKey(""), convert.ToProtoSignIn("a", model.Grant{AccessToken: "a", ExpiresIn: 1}))
	wantCode(t, err, codes.PermissionDenied)
}

func Test_Handlers_Unauthenticated_WithoutPrincipal(t *testing.T) {
	t.Parallel()
	s := &Server{}
	ctx := context.Background()

	_, err := s.GetSession(ctx, &emptypb.Empty{})
	wantCode(t, err, codes.Unauthenticated)
	_, err = s.GetAccessToken(ctx, &emptypb.Empty{})
	wantCode(t, err, codes.Unauthenticated)
	_, err = s.SignOut(ctx, &emptypb.Empty{})
	wantCode(t, err, codes.Unauthenticated)
	_, err = s.PrepareSubmission(ctx, &structpb.Struct{})
	wantCode(t, err, codes.Unauthenticated)
}

func withIncomingKey(key string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(api.SignInKeyHeader, key))
}
