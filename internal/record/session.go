package record

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cinience/record/internal/jsonrpc"
)

const (
	SoftwareName = "record"
	Version      = "0.0.1"

	DefaultLogin   = "admin"
	DefaultLang    = "en_US"
	DefaultTimeout = 60 * time.Second

	serviceCommon = "common"
	serviceObject = "object"
)

// UserAgent is sent with every request.
const UserAgent = SoftwareName + "/" + Version

// Config is resolved once from the command line and never mutated.
type Config struct {
	URL      string
	DB       string
	Login    string
	Password string
	Lang     string
	Timeout  time.Duration
}

// Caller is the part of jsonrpc.Client a session needs.
type Caller interface {
	Call(ctx context.Context, service, method string, args []any) (jsonrpc.Value, error)
}

// Session holds the credentials and the uid returned by the login call.
// A uid of zero means the server rejected the credentials.
type Session struct {
	cfg    Config
	caller Caller
	uid    int64
}

// Authenticate logs in through the common service. Rejected credentials are
// not an error: the returned session reports Authenticated() == false.
func Authenticate(ctx context.Context, caller Caller, cfg Config) (*Session, error) {
	if caller == nil {
		return nil, errors.New("authenticate: nil caller")
	}
	if strings.TrimSpace(cfg.Lang) == "" {
		cfg.Lang = DefaultLang
	}
	result, err := caller.Call(ctx, serviceCommon, "login", []any{cfg.DB, cfg.Login, cfg.Password})
	if err != nil {
		return nil, err
	}
	s := &Session{cfg: cfg, caller: caller}
	if !result.Truthy() {
		return s, nil
	}
	uid, err := result.Int64()
	if err != nil {
		return nil, fmt.Errorf("authenticate: unexpected login result %s: %w", result, err)
	}
	s.uid = uid
	return s, nil
}

func (s *Session) UID() int64 {
	if s == nil {
		return 0
	}
	return s.uid
}

func (s *Session) Authenticated() bool {
	return s != nil && s.uid != 0
}

func (s *Session) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.cfg
}

// Context is the execution context forwarded to record operations.
func (s *Session) Context() map[string]any {
	return map[string]any{"lang": s.cfg.Lang}
}

// Execute calls method on model through the object service's execute_kw,
// reusing the session credentials. A nil kwargs is sent as an empty object.
func (s *Session) Execute(ctx context.Context, model, method string, args []any, kwargs map[string]any) (jsonrpc.Value, error) {
	if s == nil || s.caller == nil {
		return nil, errors.New("execute: session not initialized")
	}
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	// uid is sent as false when login failed, as the server returned it.
	var uid any = false
	if s.uid != 0 {
		uid = s.uid
	}
	return s.caller.Call(ctx, serviceObject, "execute_kw", []any{
		s.cfg.DB, uid, s.cfg.Password, model, method, args, kwargs,
	})
}
