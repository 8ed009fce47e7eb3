package credentials

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ambarlabs/ambar-install/internal/logger"
)

const (
	// DefaultHost is the release host tokens are resolved for.
	DefaultHost = "github.com"

	// helperTimeout bounds the credential helper subprocess so a confused
	// gh installation cannot stall the run.
	helperTimeout = 5 * time.Second
)

// envVars are checked in order before the credential helper is consulted.
var envVars = []string{"GITHUB_TOKEN", "GH_TOKEN"}

// Resolver obtains a bearer token for the release host from the local
// environment or the gh CLI credential store. It never fails a run: every
// error path degrades to an absent token.
type Resolver struct {
	// host is the release host the token must belong to.
	host string
	// disabled short-circuits resolution to an absent token.
	disabled bool
	// lookPath locates the credential helper binary; replaceable in tests.
	lookPath func(file string) (string, error)
}

// Option configures resolver behaviour.
type Option func(*Resolver)

// WithHost sets the release host tokens are resolved for.
func WithHost(host string) Option {
	return func(r *Resolver) {
		if host != "" {
			r.host = host
		}
	}
}

// Disabled turns the resolver off; Token always reports an absent credential.
func Disabled() Option {
	return func(r *Resolver) {
		r.disabled = true
	}
}

// NewResolver builds a resolver for the default release host.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		host:     DefaultHost,
		lookPath: exec.LookPath,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Token returns a bearer token for the release host, or an empty string when
// none is available. Environment variables win over the gh credential store.
func (r *Resolver) Token(ctx context.Context) string {
	if r.disabled {
		return ""
	}

	for _, name := range envVars {
		if token := strings.TrimSpace(os.Getenv(name)); token != "" {
			logger.DebugKV(ctx, "Using token from environment", "variable", name)
			return token
		}
	}

	return r.helperToken(ctx)
}

// helperToken asks the gh CLI for a stored token. A missing helper, a
// non-zero exit, or empty output all degrade to an absent token.
func (r *Resolver) helperToken(ctx context.Context) string {
	ghPath, err := r.lookPath("gh")
	if err != nil {
		logger.Debug(ctx, "No gh credential helper on PATH")
		return ""
	}

	cmdCtx, cancel := context.WithTimeout(ctx, helperTimeout)
	defer cancel()

	output, err := exec.CommandContext(cmdCtx, ghPath, "auth", "token", "--hostname", r.host).Output()
	if err != nil {
		logger.DebugKV(ctx, "Credential helper returned no token", "error", err)
		return ""
	}

	token := strings.TrimSpace(string(output))
	if token != "" {
		logger.Debug(ctx, "Using token from gh credential store")
	}

	return token
}
