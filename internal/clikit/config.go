package clikit

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

func PrintEffectiveConfig(out io.Writer, cfg EffectiveConfig) {
	if out == nil {
		return
	}
	fmt.Fprintf(out, "effective-config\n")
	fmt.Fprintf(out, "  url: %s\n", strings.TrimSpace(cfg.URL))
	if cfg.Endpoint != "" {
		fmt.Fprintf(out, "  endpoint: %s\n", cfg.Endpoint)
	}
	fmt.Fprintf(out, "  db: %s\n", cfg.DB)
	fmt.Fprintf(out, "  login: %s\n", cfg.Login)
	fmt.Fprintf(out, "  password: %s\n", maskSecret(cfg.Password))
	fmt.Fprintf(out, "  lang: %s\n", cfg.Lang)
	fmt.Fprintf(out, "  model: %s\n", cfg.Model)
	fmt.Fprintf(out, "  ids: %s\n", formatIDs(cfg.IDs))
	fmt.Fprintf(out, "  timeout: %ss\n", strconv.FormatFloat(cfg.Timeout, 'f', -1, 64))
	fmt.Fprintf(out, "  output: %s\n", NormalizeFormat(cfg.Output))
	fmt.Fprintf(out, "  trace: %v\n", cfg.Trace)
}

func maskSecret(s string) string {
	if s == "" {
		return "(prompt)"
	}
	return "********"
}

func formatIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
