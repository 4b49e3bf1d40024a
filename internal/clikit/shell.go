package clikit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/cinience/record/internal/jsonrpc"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/cinience/record/internal/clikit"

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
)

// Shell runs record operations typed as text lines against one record set.
type Shell struct {
	records   RecordSet
	cfg       EffectiveConfig
	format    string
	out       io.Writer
	errOut    io.Writer
	sessionID string
}

func NewShell(records RecordSet, cfg EffectiveConfig, out, errOut io.Writer) *Shell {
	return &Shell{
		records:   records,
		cfg:       cfg,
		format:    NormalizeFormat(cfg.Output),
		out:       out,
		errOut:    errOut,
		sessionID: uuid.NewString(),
	}
}

func (s *Shell) SessionID() string {
	return s.sessionID
}

// Exec runs one line. Meta commands start with a slash; quit reports
// whether the line asked to leave the shell.
func (s *Shell) Exec(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return false, nil
	}
	if strings.HasPrefix(line, "/") {
		return s.handleCommand(line)
	}

	name, rest := splitCommand(line)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "record."+name)
	span.SetAttributes(
		attribute.String("record.shell_session", s.sessionID),
		attribute.String("record.model", s.records.Model()),
	)
	defer span.End()

	result, err := s.run(ctx, name, rest)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
		return false, err
	}
	return false, RenderValue(s.out, result, s.format)
}

func (s *Shell) run(ctx context.Context, name, rest string) (jsonrpc.Value, error) {
	switch name {
	case "read":
		return s.records.Read(ctx, ParseFields(rest))
	case "write":
		values, err := ParseValues(rest)
		if err != nil {
			return nil, err
		}
		return s.records.Write(ctx, values)
	case "call":
		method, args, kwargs, err := ParseCall(rest)
		if err != nil {
			return nil, err
		}
		return s.records.Call(ctx, method, args, kwargs)
	default:
		return nil, fmt.Errorf("%w: %s (try /help)", ErrUnknownCommand, name)
	}
}

func (s *Shell) handleCommand(input string) (quit bool, err error) {
	cmd := strings.ToLower(strings.Fields(input)[0])
	switch cmd {
	case "/quit", "/exit", "/q":
		fmt.Fprintln(s.out, "bye")
		return true, nil
	case "/help":
		printShellHelp(s.out)
	case "/config":
		PrintEffectiveConfig(s.out, s.cfg)
	case "/session":
		fmt.Fprintf(s.out, "session: %s\n", s.sessionID)
		fmt.Fprintf(s.out, "records: %s %s\n", s.records.Model(), formatIDs(s.records.IDs()))
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
	return false, nil
}

func printShellHelp(out io.Writer) {
	fmt.Fprintln(out, "read [field ...]                    read fields (all when none given)")
	fmt.Fprintln(out, "write {\"field\": value, ...}         write values")
	fmt.Fprintln(out, "call <method> [[args]] [{kwargs}]   call a model method on the records")
	fmt.Fprintln(out, "/config /session /help /quit")
}

func splitCommand(line string) (name, rest string) {
	name, rest = splitWord(line)
	return strings.ToLower(name), rest
}

func splitWord(line string) (word, rest string) {
	line = strings.TrimSpace(line)
	idx := strings.IndexFunc(line, unicode.IsSpace)
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimSpace(line[idx:])
}

// ParseFields splits a field list on spaces and commas.
func ParseFields(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if fields == nil {
		return []string{}
	}
	return fields
}

// ParseValues decodes the JSON object given to write.
func ParseValues(s string) (map[string]any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: write {\"field\": value}", ErrUsage)
	}
	dec := newJSONDecoder(s)
	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("write: values must be a JSON object: %w", err)
	}
	if values == nil {
		return nil, fmt.Errorf("write: values must be a JSON object")
	}
	if dec.More() {
		return nil, fmt.Errorf("write: unexpected data after values")
	}
	return values, nil
}

// ParseCall parses "<method> [args-array] [kwargs-object]".
func ParseCall(s string) (method string, args []any, kwargs map[string]any, err error) {
	// method names are case sensitive on the server
	method, rest := splitWord(s)
	if method == "" {
		return "", nil, nil, fmt.Errorf("%w: call <method> [[args]] [{kwargs}]", ErrUsage)
	}

	dec := newJSONDecoder(rest)
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return "", nil, nil, fmt.Errorf("call %s: %w", method, err)
		}
		raw = bytes.TrimSpace(raw)
		switch {
		case bytes.HasPrefix(raw, []byte("[")) && args == nil && kwargs == nil:
			if err := unmarshalNumbers(raw, &args); err != nil {
				return "", nil, nil, fmt.Errorf("call %s: args: %w", method, err)
			}
		case bytes.HasPrefix(raw, []byte("{")) && kwargs == nil:
			if err := unmarshalNumbers(raw, &kwargs); err != nil {
				return "", nil, nil, fmt.Errorf("call %s: kwargs: %w", method, err)
			}
		default:
			return "", nil, nil, fmt.Errorf("%w: call %s expects an args array then a kwargs object", ErrUsage, method)
		}
	}
	return method, args, kwargs, nil
}

func newJSONDecoder(s string) *json.Decoder {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	return dec
}

func unmarshalNumbers(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(dst)
}
