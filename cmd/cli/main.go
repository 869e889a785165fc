// Command cemsctl is a CLI client for the calendar event management service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/and161185/cems/internal/api"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      int64     `json:"user_id"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "cems")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "cems")
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
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

func clearToken() error {
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

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil //nolint:gosec // explicit --insecure flag
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

// globalOptions are the persistent flags of every command.
type globalOptions struct {
	Addr      string
	CA        string
	Insecure  bool
	Plaintext bool
	Timeout   time.Duration
}

func dial(o *globalOptions, bearer string) (*grpc.ClientConn, *api.Client, error) {
	var opts []grpc.DialOption
	if o.Plaintext {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		creds, err := loadTLS(o.CA, o.Insecure)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, grpc.WithTransportCredentials(creds))
	}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !o.Plaintext}))
	}
	cc, err := grpc.NewClient(o.Addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cc, api.NewClient(cc), nil
}

// session is an open connection plus a call context bounded by --timeout.
type session struct {
	ctx    context.Context
	client *api.Client
	close  func()
}

func connect(cmd *cobra.Command, o *globalOptions, authed bool) (*session, error) {
	var tok string
	if authed {
		t, err := loadToken()
		if err != nil {
			return nil, err
		}
		tok = t
	}
	cc, cl, err := dial(o, tok)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), o.Timeout)
	return &session{ctx: ctx, client: cl, close: func() { cancel(); _ = cc.Close() }}, nil
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// rpcError strips the gRPC envelope for display.
func rpcError(err error) error {
	if st, ok := status.FromError(err); ok {
		return fmt.Errorf("%s: %s", st.Code(), st.Message())
	}
	return err
}

func newRootCommand() *cobra.Command {
	o := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "cemsctl",
		Short:         "Client for the calendar event management service",
		Version:       version + " (" + buildDate + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&o.Addr, "addr", "localhost:8443", "server address")
	cmd.PersistentFlags().StringVar(&o.CA, "ca", "", "CA certificate (PEM) to verify the server")
	cmd.PersistentFlags().BoolVar(&o.Insecure, "insecure", false, "skip TLS verification")
	cmd.PersistentFlags().BoolVar(&o.Plaintext, "plaintext", false, "connect without TLS")
	cmd.PersistentFlags().DurationVar(&o.Timeout, "timeout", 10*time.Second, "per-command timeout")

	cmd.AddCommand(newRegisterCommand(o))
	cmd.AddCommand(newLoginCommand(o))
	cmd.AddCommand(newLogoutCommand(o))
	cmd.AddCommand(newEventCommand(o))
	cmd.AddCommand(newShareCommand(o))
	cmd.AddCommand(newPermCommand(o))
	cmd.AddCommand(newHistoryCommand(o))
	cmd.AddCommand(newRollbackCommand(o))
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", rpcError(err))
		os.Exit(1)
	}
}
