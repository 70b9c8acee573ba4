// Command fk is a CLI client for the FormKeeper service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/and161185/formkeeper/internal/api"
	"github.com/and161185/formkeeper/internal/convert"
	"github.com/and161185/formkeeper/internal/model"
	"github.com/and161185/formkeeper/internal/validate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	grpcinsecure "google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ---- config/token store ----

type tokenFile struct {
	SessionToken string    `json:"session_token"`
	Principal    string    `json:"principal"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "formkeeper")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "formkeeper")
}

func tokenPath() string { return filepath.Join(cfgDir(), "session.json") }

func saveToken(tf tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tf)
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.SessionToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid session (signin required)")
	}
	return tf.SessionToken, nil
}

func dropToken() error {
	if err := os.Remove(tokenPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ---- grpc dial ----

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

type dialOpts struct {
	addr      string
	caPath    string
	insecure  bool // TLS without verification
	plaintext bool // no TLS at all
}

func loadTLS(caPath string, insecure bool) (credentials.TransportCredentials, error) {
	if insecure {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

func dial(o dialOpts, bearer string) (*grpc.ClientConn, api.FormKeeperClient, error) {
	var creds credentials.TransportCredentials
	if o.plaintext {
		creds = grpcinsecure.NewCredentials()
	} else {
		var err error
		if creds, err = loadTLS(o.caPath, o.insecure); err != nil {
			return nil, nil, err
		}
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !o.plaintext}))
	}
	cc, err := grpc.NewClient(o.addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cc, api.NewFormKeeperClient(cc), nil
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printStruct(s *structpb.Struct) {
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
	if err != nil {
		fail(err)
	}
	fmt.Println(string(b))
}

// readDocument loads a create-document request from a JSON file ('-' = stdin).
func readDocument(p string) (*structpb.Struct, error) {
	b, err := readAll(p)
	if err != nil {
		return nil, err
	}
	doc := &structpb.Struct{}
	if err := protojson.Unmarshal(b, doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", p, err)
	}
	return doc, nil
}

type sessionView struct {
	Principal            string    `json:"principal"`
	AccessTokenIssuedAt  time.Time `json:"access_token_issued_at"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
	RefreshFailed        bool      `json:"refresh_failed"`
}

// viewSession drops the raw tokens before printing.
func viewSession(s model.Session) sessionView {
	return sessionView{
		Principal:            s.Principal,
		AccessTokenIssuedAt:  s.AccessTokenIssuedAt,
		AccessTokenExpiresAt: s.AccessTokenExpiresAt,
		RefreshFailed:        s.RefreshFailed,
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `fk CLI
Usage:
  fk -addr HOST:PORT [-cacert file | -insecure | -plaintext] <cmd> [args]

Commands:
  version
  signin    -principal <p> -access-token <t> -refresh-token <t> -expires-in <sec> [-key <signin key>]   (saves session)
  token                                        (prints a usable access token)
  session                                      (prints the stored session)
  signout
  validate  -file <json|-> [-local]
  prepare   -file <json|->
  form      -title <t> [-desc <d>] -q kind:title[:args] ...   (builds a document)
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS/auth for RPC calls.
func main() {
	// global flags
	var o dialOpts
	flag.StringVar(&o.addr, "addr", "localhost:8443", "server addr")
	flag.StringVar(&o.caPath, "cacert", "", "CA cert (PEM)")
	flag.BoolVar(&o.insecure, "insecure", false, "skip cert verify (dev)")
	flag.BoolVar(&o.plaintext, "plaintext", false, "connect without TLS (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	ctx, cancel := withTimeout()
	defer cancel()

	switch cmd {

	case "version":
		fmt.Printf("fk %s (%s)\n", version, buildDate)

	case "signin":
		fs := flag.NewFlagSet("signin", flag.ExitOnError)
		principal := fs.String("principal", "", "principal (e-mail)")
		access := fs.String("access-token", "", "access token from the provider")
		refresh := fs.String("refresh-token", "", "refresh token from the provider")
		expiresIn := fs.Int64("expires-in", 3600, "access token lifetime, seconds")
		key := fs.String("key", os.Getenv("FK_SIGNIN_KEY"), "sign-in key")
		_ = fs.Parse(args)
		if *principal == "" || *access == "" {
			fmt.Fprintln(os.Stderr, "need -principal and -access-token")
			os.Exit(1)
		}

		cc, cli, err := dial(o, "")
		if err != nil {
			fail(err)
		}
		defer cc.Close()

		req := convert.ToProtoSignIn(*principal, model.Grant{AccessToken: *access, RefreshToken: *refresh, ExpiresIn: *expiresIn})
		resp, err := cli.SignIn(metadata.AppendToOutgoingContext(ctx, api.SignInKeyHeader, *key), req)
		if err != nil {
			fail(err)
		}
		f := resp.GetFields()
		tf := tokenFile{
			SessionToken: f[convert.FieldSessionToken].GetStringValue(),
			Principal:    *principal,
			ExpiresAt:    time.UnixMilli(int64(f[convert.FieldSessionExpiresAt].GetNumberValue())),
		}
		if err := saveToken(tf); err != nil {
			fail(err)
		}
		printJSON(viewSession(convert.FromProtoSession(f[convert.FieldSession].GetStructValue())))

	case "token":
		cc, cli := mustDialAuthed(o)
		defer cc.Close()
		out, err := cli.GetAccessToken(ctx, &emptypb.Empty{})
		if err != nil {
			fail(err)
		}
		fmt.Println(out.GetValue())

	case "session":
		cc, cli := mustDialAuthed(o)
		defer cc.Close()
		out, err := cli.GetSession(ctx, &emptypb.Empty{})
		if err != nil {
			fail(err)
		}
		printJSON(viewSession(convert.FromProtoSession(out)))

	case "signout":
		cc, cli := mustDialAuthed(o)
		defer cc.Close()
		if _, err := cli.SignOut(ctx, &emptypb.Empty{}); err != nil {
			fail(err)
		}
		if err := dropToken(); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "validate":
		fs := flag.NewFlagSet("validate", flag.ExitOnError)
		file := fs.String("file", "", "document JSON ('-'=stdin)")
		local := fs.Bool("local", false, "validate without contacting the server")
		_ = fs.Parse(args)
		if *file == "" {
			fmt.Fprintln(os.Stderr, "need -file")
			os.Exit(1)
		}

		var result *structpb.Struct
		if *local {
			b, err := readAll(*file)
			if err != nil {
				fail(err)
			}
			doc, err := validate.DecodeJSON(b)
			if err != nil {
				fail(err)
			}
			result = convert.ToProtoValidation(validate.Document(doc))
		} else {
			doc, err := readDocument(*file)
			if err != nil {
				fail(err)
			}
			cc, cli, err := dial(o, "")
			if err != nil {
				fail(err)
			}
			defer cc.Close()
			if result, err = cli.ValidateDocument(ctx, doc); err != nil {
				fail(err)
			}
		}
		printStruct(result)
		if !result.GetFields()[convert.FieldValid].GetBoolValue() {
			os.Exit(1)
		}

	case "prepare":
		fs := flag.NewFlagSet("prepare", flag.ExitOnError)
		file := fs.String("file", "", "document JSON ('-'=stdin)")
		_ = fs.Parse(args)
		if *file == "" {
			fmt.Fprintln(os.Stderr, "need -file")
			os.Exit(1)
		}
		doc, err := readDocument(*file)
		if err != nil {
			fail(err)
		}
		cc, cli := mustDialAuthed(o)
		defer cc.Close()
		out, err := cli.PrepareSubmission(ctx, doc)
		if err != nil {
			fail(err)
		}
		printStruct(out)

	case "form":
		cmdForm(args)

	default:
		usage()
	}
}

// ---- helpers ----

func mustDialAuthed(o dialOpts) (*grpc.ClientConn, api.FormKeeperClient) {
	token, err := loadToken()
	if err != nil {
		fail(err)
	}
	cc, cli, err := dial(o, token)
	if err != nil {
		fail(err)
	}
	return cc, cli
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
