package clikit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cinience/record/internal/jsonrpc"
	"gopkg.in/yaml.v3"
)

const (
	ansiReset = "\033[0m"
	ansiDim   = "\033[2m"
	ansiGreen = "\033[32m"
	ansiRed   = "\033[31m"
	ansiCyan  = "\033[36m"

	FormatJSON = "json"
	FormatYAML = "yaml"
)

func NormalizeFormat(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yaml", "yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// RenderValue writes a call result as indented JSON or as YAML.
func RenderValue(out io.Writer, v jsonrpc.Value, format string) error {
	if out == nil {
		return nil
	}
	if NormalizeFormat(format) == FormatYAML {
		data, err := v.Interface()
		if err != nil {
			return fmt.Errorf("render yaml: %w", err)
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return fmt.Errorf("render yaml: %w", err)
		}
		return enc.Close()
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(v.String()), "", "  "); err != nil {
		return fmt.Errorf("render json: %w", err)
	}
	buf.WriteByte('\n')
	_, err := out.Write(buf.Bytes())
	return err
}

// PrintError writes err for a human. Server errors keep their traceback.
func PrintError(out io.Writer, err error) {
	if out == nil || err == nil {
		return
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		printBlockHeader(out, "ERROR")
		fmt.Fprintln(out, strings.TrimRight(rpcErr.Error(), "\n"))
		printBlockFooter(out)
		return
	}
	fmt.Fprintf(out, "%s %v\n", colorize("error:", ansiRed, supportsANSI(out)), err)
}

func printBlockHeader(out io.Writer, title string) {
	if out == nil {
		return
	}
	useANSI := supportsANSI(out)
	trimmed := strings.TrimSpace(title)
	header := trimmed
	if useANSI {
		header = colorize(trimmed, blockHeaderColor(trimmed), true)
	}
	fmt.Fprintf(out, "\n=== %s ===\n", header)
}

func printBlockFooter(out io.Writer) {
	if out == nil {
		return
	}
	fmt.Fprintln(out)
}

func blockHeaderColor(title string) string {
	switch strings.TrimSpace(title) {
	case "RESULT":
		return ansiGreen
	case "ERROR":
		return ansiRed
	default:
		return ansiCyan
	}
}

func supportsANSI(out io.Writer) bool {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	if v := strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")); v == "1" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("TERM")), "dumb") {
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func colorize(s, ansi string, enabled bool) string {
	if !enabled || s == "" || ansi == "" {
		return s
	}
	return ansi + s + ansiReset
}
