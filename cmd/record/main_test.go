package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cinience/record/internal/clikit"
	"github.com/cinience/record/internal/jsonrpc"
	"github.com/spf13/cobra"
)

func newTestCmd(t *testing.T, args ...string) (*cobra.Command, *cliOptions) {
	t.Helper()
	opts := defaultOptions()
	cmd := &cobra.Command{Use: "record"}
	bindFlags(cmd, opts)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd, opts
}

func TestResolveCLIOptionsEnvOverlay(t *testing.T) {
	t.Setenv("RECORD_USERNAME", "demo")
	t.Setenv("RECORD_PASSWORD", "secret")
	t.Setenv("RECORD_LANG", "fr_FR")
	t.Setenv("RECORD_TIMEOUT", "2.5")
	t.Setenv("RECORD_OUTPUT", "yml")
	t.Setenv("RECORD_RATE", "4")

	cmd, opts := newTestCmd(t)
	got := resolveCLIOptions(cmd, *opts)
	if got.login != "demo" || got.password != "secret" || got.lang != "fr_FR" {
		t.Fatalf("env not applied: %+v", got)
	}
	if got.timeout != 2.5 {
		t.Fatalf("unexpected timeout %v", got.timeout)
	}
	if got.rate != 4 {
		t.Fatalf("unexpected rate %v", got.rate)
	}
	if got.output != "yaml" {
		t.Fatalf("unexpected output %q", got.output)
	}
}

func TestResolveCLIOptionsFlagsWin(t *testing.T) {
	t.Setenv("RECORD_USERNAME", "demo")
	t.Setenv("RECORD_LANG", "fr_FR")
	t.Setenv("RECORD_TIMEOUT", "2.5")

	cmd, opts := newTestCmd(t, "-u", "root", "--lang", "de_DE", "--timeout", "10")
	got := resolveCLIOptions(cmd, *opts)
	if got.login != "root" || got.lang != "de_DE" || got.timeout != 10 {
		t.Fatalf("flags should win over env: %+v", got)
	}
}

func TestResolveCLIOptionsIgnoresBadTimeout(t *testing.T) {
	t.Setenv("RECORD_TIMEOUT", "soon")
	cmd, opts := newTestCmd(t)
	if got := resolveCLIOptions(cmd, *opts); got.timeout != 60 {
		t.Fatalf("unexpected timeout %v", got.timeout)
	}
}

func TestDefaults(t *testing.T) {
	cmd, opts := newTestCmd(t)
	got := resolveCLIOptions(cmd, *opts)
	if got.login != "admin" || got.lang != "en_US" || got.timeout != 60 || got.output != "json" {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestFlagChanged(t *testing.T) {
	cmd, _ := newTestCmd(t, "-w", "pw")
	if !flagChanged(cmd, "password") {
		t.Fatalf("password should be changed")
	}
	if flagChanged(cmd, "username") {
		t.Fatalf("username should not be changed")
	}
	if flagChanged(nil, "password") {
		t.Fatalf("nil command never has changed flags")
	}
}

func TestVersionOutput(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := out.String(); got != "record 0.0.1\n" {
		t.Fatalf("unexpected version output %q", got)
	}
}

func TestArgValidation(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{name: "missing ids", args: []string{"http://localhost:8069", "prod", "res.partner"}},
		{name: "non integer id", args: []string{"http://localhost:8069", "prod", "res.partner", "abc"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			cmd.SetArgs(tc.args)
			if err := cmd.Execute(); err == nil {
				t.Fatalf("expected error for %v", tc.args)
			}
		})
	}
}

func TestParseTarget(t *testing.T) {
	got, err := parseTarget([]string{"http://h:8069", "prod", "res.partner", "1", "2"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.url != "http://h:8069" || got.db != "prod" || got.model != "res.partner" || len(got.ids) != 2 {
		t.Fatalf("unexpected target %+v", got)
	}
}

func TestTimeoutDuration(t *testing.T) {
	if got := timeoutDuration(1.5); got != 1500*time.Millisecond {
		t.Fatalf("unexpected duration %v", got)
	}
	if got := timeoutDuration(0); got != 0 {
		t.Fatalf("zero should disable the timeout, got %v", got)
	}
}

func TestAppendInput(t *testing.T) {
	cases := []struct {
		line, input, want string
	}{
		{"write", `{"name": "x"}` + "\n", `write {"name": "x"}`},
		{"read name", "", "read name"},
		{"read ", "email", "read email"},
		{"", "read", "read"},
	}
	for _, tc := range cases {
		if got := appendInput(tc.line, tc.input); got != tc.want {
			t.Fatalf("appendInput(%q, %q) = %q, want %q", tc.line, tc.input, got, tc.want)
		}
	}
}

type fakeServer struct {
	uid     string
	bodies  []map[string]any
	execute string
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jsonrpc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); ua != "record/0.0.1" {
			t.Errorf("unexpected user agent %q", ua)
		}
		raw, _ := io.ReadAll(r.Body)
		var env map[string]any
		_ = json.Unmarshal(raw, &env)
		f.bodies = append(f.bodies, env)
		params := env["params"].(map[string]any)
		if params["method"] == "login" {
			_, _ = io.WriteString(w, `{"jsonrpc": "2.0", "id": 1, "result": `+f.uid+`}`)
			return
		}
		_, _ = io.WriteString(w, f.execute)
	})
}

func runCmd(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestExecuteReadOneShot(t *testing.T) {
	fs := &fakeServer{uid: "2", execute: `{"jsonrpc": "2.0", "id": 2, "result": [{"id": 7, "name": "Acme"}]}`}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	out, _, err := runCmd(t, "", srv.URL, "prod", "res.partner", "7", "-w", "pw", "-e", "read name")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, `"name": "Acme"`) {
		t.Fatalf("unexpected output %q", out)
	}
	if len(fs.bodies) != 2 {
		t.Fatalf("expected login and read, got %d requests", len(fs.bodies))
	}
	args, _ := json.Marshal(fs.bodies[1]["params"].(map[string]any)["args"])
	want := `["prod",2,"pw","res.partner","read",[[7],["name"]],{"context":{"lang":"en_US"}}]`
	if string(args) != want {
		t.Fatalf("unexpected args:\n got %s\nwant %s", args, want)
	}
}

func TestExecuteWriteReadsValuesFromStdin(t *testing.T) {
	fs := &fakeServer{uid: "2", execute: `{"jsonrpc": "2.0", "id": 2, "result": true}`}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	out, _, err := runCmd(t, `{"name": "New"}`+"\n", srv.URL, "prod", "res.partner", "3", "4", "-w", "pw", "-e", "write")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.TrimSpace(out) != "true" {
		t.Fatalf("unexpected output %q", out)
	}
	args, _ := json.Marshal(fs.bodies[1]["params"].(map[string]any)["args"])
	want := `["prod",2,"pw","res.partner","write",[[3,4],{"name":"New"}],{"context":{"lang":"en_US"}}]`
	if string(args) != want {
		t.Fatalf("unexpected args:\n got %s\nwant %s", args, want)
	}
}

func TestExecuteEmptyWriteReachesServer(t *testing.T) {
	fs := &fakeServer{uid: "2", execute: `{"jsonrpc": "2.0", "id": 2, "result": true}`}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	if _, _, err := runCmd(t, "", srv.URL, "prod", "res.partner", "5", "-w", "pw", "-e", "write {}"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(fs.bodies) != 2 {
		t.Fatalf("expected login and write, got %d requests", len(fs.bodies))
	}
	args, _ := json.Marshal(fs.bodies[1]["params"].(map[string]any)["args"])
	want := `["prod",2,"pw","res.partner","write",[[5],{}],{"context":{"lang":"en_US"}}]`
	if string(args) != want {
		t.Fatalf("unexpected args:\n got %s\nwant %s", args, want)
	}
}

func TestInvalidLoginWarnsAndContinues(t *testing.T) {
	fs := &fakeServer{uid: "false", execute: `{"jsonrpc": "2.0", "id": 2, "error": {"message": "Access Denied", "data": {"debug": "Traceback ..."}}}`}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	_, errOut, err := runCmd(t, "", srv.URL, "prod", "res.partner", "1", "-w", "bad", "-e", "read")
	if !strings.Contains(errOut, "Invalid login/password") {
		t.Fatalf("missing login warning in %q", errOut)
	}
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Message != "Access Denied" {
		t.Fatalf("expected rpc error from the server, got %v", err)
	}
	if uid := fs.bodies[1]["params"].(map[string]any)["args"].([]any)[1]; uid != false {
		t.Fatalf("expected uid false, got %v", uid)
	}
}

func TestPipedLinesRunInOrder(t *testing.T) {
	fs := &fakeServer{uid: "2", execute: `{"jsonrpc": "2.0", "id": 2, "result": [{"id": 1}]}`}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	stdin := "read name\n# comment\n\ncall name_get\n/quit\nread never\n"
	_, _, err := runCmd(t, stdin, srv.URL, "prod", "res.partner", "1", "-w", "pw")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(fs.bodies) != 3 {
		t.Fatalf("expected login plus two calls, got %d requests", len(fs.bodies))
	}
	if m := fs.bodies[2]["params"].(map[string]any)["args"].([]any)[4]; m != "name_get" {
		t.Fatalf("unexpected method %v", m)
	}
}

func TestPasswordPrompt(t *testing.T) {
	fs := &fakeServer{uid: "2", execute: `{"jsonrpc": "2.0", "id": 2, "result": []}`}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	var prompt string
	orig := promptPassword
	promptPassword = func(p string) (string, error) {
		prompt = p
		return "typed", nil
	}
	defer func() { promptPassword = orig }()

	if _, _, err := runCmd(t, "", srv.URL, "prod", "res.partner", "1", "-u", "bob", "-e", "read"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if prompt != "Please enter the password of 'bob' user: " {
		t.Fatalf("unexpected prompt %q", prompt)
	}
	if pw := fs.bodies[0]["params"].(map[string]any)["args"].([]any)[2]; pw != "typed" {
		t.Fatalf("prompted password not used: %v", pw)
	}
}

func TestPipedLinesSurvivePasswordPrompt(t *testing.T) {
	t.Setenv("RECORD_PASSWORD", "")
	fs := &fakeServer{uid: "2", execute: `{"jsonrpc": "2.0", "id": 2, "result": [{"id": 1, "name": "Acme"}]}`}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	orig := promptPassword
	promptPassword = func(string) (string, error) { return "typed", nil }
	defer func() { promptPassword = orig }()

	out, _, err := runCmd(t, "read name\n", srv.URL, "prod", "res.partner", "1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(fs.bodies) != 2 {
		t.Fatalf("expected login and read, got %d requests", len(fs.bodies))
	}
	if pw := fs.bodies[0]["params"].(map[string]any)["args"].([]any)[2]; pw != "typed" {
		t.Fatalf("piped line used as password: %v", pw)
	}
	args, _ := json.Marshal(fs.bodies[1]["params"].(map[string]any)["args"])
	want := `["prod",2,"typed","res.partner","read",[[1],["name"]],{"context":{"lang":"en_US"}}]`
	if string(args) != want {
		t.Fatalf("unexpected args:\n got %s\nwant %s", args, want)
	}
	if !strings.Contains(out, `"name": "Acme"`) {
		t.Fatalf("piped line was not executed: %q", out)
	}
}

func TestNoTerminalForPasswordIsUsageError(t *testing.T) {
	t.Setenv("RECORD_PASSWORD", "")
	fs := &fakeServer{uid: "2", execute: `{"jsonrpc": "2.0", "id": 2, "result": []}`}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	orig := promptPassword
	promptPassword = func(string) (string, error) { return "", clikit.ErrNoTerminal }
	defer func() { promptPassword = orig }()

	_, _, err := runCmd(t, "read name\n", srv.URL, "prod", "res.partner", "1")
	if !errors.Is(err, clikit.ErrNoTerminal) {
		t.Fatalf("expected no-terminal error, got %v", err)
	}
	if !strings.Contains(err.Error(), "RECORD_PASSWORD") || !strings.Contains(err.Error(), "-w") {
		t.Fatalf("error should say how to pass the password: %v", err)
	}
	if len(fs.bodies) != 0 {
		t.Fatalf("no request should be sent without a password, got %d", len(fs.bodies))
	}
}

func TestPrintEffectiveConfigFlag(t *testing.T) {
	fs := &fakeServer{uid: "2", execute: `{"jsonrpc": "2.0", "id": 2, "result": []}`}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	out, _, err := runCmd(t, "", srv.URL, "prod", "res.partner", "1", "2", "-w", "pw", "--print-effective-config", "-e", "read")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, sub := range []string{"effective-config", "endpoint: " + srv.URL + "/jsonrpc", "password: ********", "ids: 1,2"} {
		if !strings.Contains(out, sub) {
			t.Fatalf("missing %q in output: %s", sub, out)
		}
	}
	if strings.Contains(out, "pw\n") {
		t.Fatalf("password leaked: %s", out)
	}
}
