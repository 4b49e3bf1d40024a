package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cinience/record/internal/clikit"
	"github.com/cinience/record/internal/jsonrpc"
	"github.com/cinience/record/internal/record"
	"github.com/cinience/record/internal/telemetry"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// promptPassword is replaced in tests.
var promptPassword = clikit.ReadPassword

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		clikit.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

type cliOptions struct {
	login       string
	password    string
	lang        string
	timeout     float64
	rate        float64
	output      string
	execute     string
	verbose     bool
	trace       bool
	printConfig bool
}

type target struct {
	url   string
	db    string
	model string
	ids   []int64
}

func defaultOptions() *cliOptions {
	return &cliOptions{
		login:   record.DefaultLogin,
		lang:    record.DefaultLang,
		timeout: record.DefaultTimeout.Seconds(),
		output:  clikit.FormatJSON,
	}
}

func newRootCmd() *cobra.Command {
	opts := defaultOptions()

	rootCmd := &cobra.Command{
		Use:   "record [flags] <url> <db> <model> <id>...",
		Short: "Read and write records over JSON-RPC",
		Long: "Log in to a business-application server over JSON-RPC and read or write\n" +
			"fields of the given records, one-shot with -e or from an interactive shell.",
		Version:       record.Version,
		Args:          cobra.MinimumNArgs(4),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTarget(args)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			return run(cmd.Context(), cmd, resolveCLIOptions(cmd, *opts), t)
		},
	}
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")
	bindFlags(rootCmd, opts)
	return rootCmd
}

func bindFlags(cmd *cobra.Command, opts *cliOptions) {
	flags := cmd.Flags()
	flags.Float64Var(&opts.timeout, "timeout", opts.timeout, "Per-call timeout in seconds (0 disables)")
	flags.Float64Var(&opts.rate, "rate", 0, "Maximum RPC calls per second (0 is unlimited)")
	flags.StringVarP(&opts.login, "username", "u", opts.login, "Login of the user to use")
	flags.StringVarP(&opts.password, "password", "w", opts.password, "User's password. If not specified, you will be asked when starting")
	flags.StringVar(&opts.lang, "lang", opts.lang, "Language code, will be used in the context")
	flags.StringVarP(&opts.output, "output", "o", opts.output, "Result format: json|yaml")
	flags.StringVarP(&opts.execute, "execute", "e", "", "Execute a single shell line (read/write/call) and exit")
	flags.BoolVar(&opts.verbose, "verbose", false, "Log requests to stderr")
	flags.BoolVar(&opts.trace, "trace", false, "Print OpenTelemetry spans of RPC calls to stderr")
	flags.BoolVar(&opts.printConfig, "print-effective-config", false, "Print resolved config before running")
}

func resolveCLIOptions(cmd *cobra.Command, in cliOptions) cliOptions {
	out := in
	if !flagChanged(cmd, "username") {
		if v := strings.TrimSpace(os.Getenv("RECORD_USERNAME")); v != "" {
			out.login = v
		}
	}
	if !flagChanged(cmd, "password") {
		if v := os.Getenv("RECORD_PASSWORD"); v != "" {
			out.password = v
		}
	}
	if !flagChanged(cmd, "lang") {
		if v := strings.TrimSpace(os.Getenv("RECORD_LANG")); v != "" {
			out.lang = v
		}
	}
	if !flagChanged(cmd, "timeout") {
		if v := strings.TrimSpace(os.Getenv("RECORD_TIMEOUT")); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed >= 0 {
				out.timeout = parsed
			}
		}
	}
	if !flagChanged(cmd, "rate") {
		if v := strings.TrimSpace(os.Getenv("RECORD_RATE")); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed >= 0 {
				out.rate = parsed
			}
		}
	}
	if !flagChanged(cmd, "output") {
		if v := strings.TrimSpace(os.Getenv("RECORD_OUTPUT")); v != "" {
			out.output = v
		}
	}
	out.login = strings.TrimSpace(out.login)
	out.lang = strings.TrimSpace(out.lang)
	out.output = clikit.NormalizeFormat(out.output)
	return out
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil {
		return false
	}
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		return true
	}
	if f := cmd.InheritedFlags().Lookup(name); f != nil && f.Changed {
		return true
	}
	return false
}

func parseTarget(args []string) (target, error) {
	if len(args) < 4 {
		return target{}, fmt.Errorf("expected <url> <db> <model> <id>..., got %d argument(s)", len(args))
	}
	ids, err := record.ParseIDs(args[3:])
	if err != nil {
		return target{}, err
	}
	return target{url: args[0], db: args[1], model: args[2], ids: ids}, nil
}

func timeoutDuration(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func run(ctx context.Context, cmd *cobra.Command, opts cliOptions, t target) error {
	if ctx == nil {
		ctx = context.Background()
	}
	stdin, stdout, stderr := cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()
	warn := log.New(stderr, "warning: ", 0)

	if err := record.CheckLang(opts.lang); err != nil {
		warn.Printf("%v", err)
	}

	if opts.trace {
		tp, err := telemetry.InitTracer(stderr, record.SoftwareName, record.Version)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			if err := telemetry.Shutdown(context.Background(), tp); err != nil {
				warn.Printf("flush traces: %v", err)
			}
		}()
	}

	password := opts.password
	if password == "" {
		pw, err := promptPassword(fmt.Sprintf("Please enter the password of '%s' user: ", opts.login))
		if errors.Is(err, clikit.ErrNoTerminal) {
			return fmt.Errorf("no password given and no terminal to ask on: pass -w/--password or set RECORD_PASSWORD: %w", err)
		}
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password = pw
	}

	cfg := record.Config{
		URL:      t.url,
		DB:       t.db,
		Login:    opts.login,
		Password: password,
		Lang:     opts.lang,
		Timeout:  timeoutDuration(opts.timeout),
	}
	clientOpts := []jsonrpc.Option{
		jsonrpc.WithUserAgent(record.UserAgent),
		jsonrpc.WithTimeout(cfg.Timeout),
		jsonrpc.WithRateLimit(opts.rate, 1),
	}
	if opts.verbose {
		clientOpts = append(clientOpts, jsonrpc.WithLogger(log.New(stderr, record.SoftwareName+": ", log.LstdFlags|log.Lmicroseconds)))
	}
	client, err := jsonrpc.NewClient(cfg.URL, clientOpts...)
	if err != nil {
		return err
	}

	eff := toEffectiveConfig(cfg, client.Endpoint(), t, opts)
	if opts.printConfig {
		clikit.PrintEffectiveConfig(stdout, eff)
	}

	session, err := record.Authenticate(ctx, client, cfg)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if !session.Authenticated() {
		// later calls still run and are rejected by the server
		fmt.Fprintln(stderr, "Invalid login/password")
	}

	records := session.Records(t.model, t.ids)
	shell := clikit.NewShell(records, eff, stdout, stderr)
	switch {
	case strings.TrimSpace(opts.execute) != "":
		input, err := readPipedInput(stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		_, err = shell.Exec(ctx, appendInput(opts.execute, input))
		return err
	case !isTerminal(stdin):
		return shell.RunLines(ctx, stdin)
	default:
		clikit.PrintBanner(stdout, record.SoftwareName, record.Version, records)
		return shell.RunInteractive(ctx)
	}
}

func toEffectiveConfig(cfg record.Config, endpoint string, t target, opts cliOptions) clikit.EffectiveConfig {
	return clikit.EffectiveConfig{
		URL:      cfg.URL,
		Endpoint: endpoint,
		DB:       cfg.DB,
		Login:    cfg.Login,
		Password: cfg.Password,
		Lang:     cfg.Lang,
		Model:    t.model,
		IDs:      t.ids,
		Timeout:  opts.timeout,
		Output:   opts.output,
		Trace:    opts.trace,
	}
}

// readPipedInput returns stdin contents when it is a pipe or a file, so
// values for -e "write" can be piped in. Terminals are left alone.
func readPipedInput(in io.Reader) (string, error) {
	if in == nil {
		return "", nil
	}
	if f, ok := in.(*os.File); ok {
		fi, err := f.Stat()
		if err != nil {
			return "", err
		}
		if (fi.Mode()&os.ModeNamedPipe) == 0 && !fi.Mode().IsRegular() {
			return "", nil
		}
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func appendInput(line, input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return line
	}
	if strings.TrimSpace(line) == "" {
		return input
	}
	return strings.TrimSpace(line) + " " + input
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
