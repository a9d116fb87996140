// Command kg is a CLI client for the keygate service.
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
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	grpcserver "github.com/and161185/keygate/internal/server/grpc"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	UserID      int64     `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "keygate")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "keygate")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

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
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (run kg token -save)")
	}
	return tf.AccessToken, nil
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

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
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

type dialOpts struct {
	addr       string
	caPath     string
	skipVerify bool
	plaintext  bool
	token      string
}

func dial(o dialOpts) (*grpc.ClientConn, error) {
	var tc credentials.TransportCredentials
	if o.plaintext {
		tc = insecure.NewCredentials()
	} else {
		var err error
		if tc, err = loadTLS(o.caPath, o.skipVerify); err != nil {
			return nil, err
		}
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(tc)}
	if o.token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: o.token, secure: !o.plaintext}))
	}
	return grpc.NewClient(o.addr, opts...)
}

// ---- commands ----

var (
	version   = "dev"
	buildDate = "unknown"
)

const usageText = `kg CLI
Usage:
  kg version
  kg token -key <jwt key> -user <id> [-ttl 1h] [-save]
  kg send  [-addr HOST:PORT] [-token T] [-cacert file | -insecure | -plaintext] "/command args"

Without -token, send uses the token saved by "kg token -save".
`

func cmdToken(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	key := fs.String("key", os.Getenv("KG_JWT_KEY"), "HS256 signing key")
	user := fs.Int64("user", 0, "caller user id")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	save := fs.Bool("save", false, "store the token for later send calls")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *key == "" || *user == 0 || *ttl <= 0 {
		fmt.Fprintln(stderr, "need -key, -user and a positive -ttl")
		return 2
	}

	now := time.Now()
	tok, err := grpcserver.IssueToken([]byte(*key), *user, *ttl, now)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	if *save {
		if err := saveToken(tokenFile{AccessToken: tok, UserID: *user, ExpiresAt: now.Add(*ttl)}); err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
	}
	fmt.Fprintln(stdout, tok)
	return 0
}

func cmdSend(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o dialOpts
	fs.StringVar(&o.addr, "addr", "localhost:8443", "server addr")
	fs.StringVar(&o.token, "token", "", "caller token")
	fs.StringVar(&o.caPath, "cacert", "", "CA cert (PEM)")
	fs.BoolVar(&o.skipVerify, "insecure", false, "skip cert verify (dev)")
	fs.BoolVar(&o.plaintext, "plaintext", false, "connect without TLS (dev)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		fmt.Fprintln(stderr, "need a command, e.g. kg send /info")
		return 2
	}
	if o.token == "" {
		tok, err := loadToken()
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return 1
		}
		o.token = tok
	}

	cc, err := dial(o)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer cc.Close()

	reply, err := grpcserver.NewClient(cc).Dispatch(ctx, text)
	if err != nil {
		if st, ok := status.FromError(err); ok {
			fmt.Fprintf(stderr, "error: %s: %s\n", st.Code(), st.Message())
		} else {
			fmt.Fprintln(stderr, "error:", err)
		}
		return 1
	}
	fmt.Fprintln(stdout, reply)
	return 0
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(stderr, usageText)
		return 2
	}
	switch args[0] {
	case "version":
		fmt.Fprintf(stdout, "kg %s (%s)\n", version, buildDate)
		return 0
	case "token":
		return cmdToken(args[1:], stdout, stderr)
	case "send":
		return cmdSend(ctx, args[1:], stdout, stderr)
	default:
		fmt.Fprint(stderr, usageText)
		return 2
	}
}

// main dispatches subcommands.
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
