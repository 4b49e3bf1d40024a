package clikit

import (
	"context"

	"github.com/cinience/record/internal/jsonrpc"
)

// RecordSet is the record set a shell operates on.
type RecordSet interface {
	Model() string
	IDs() []int64
	Read(ctx context.Context, fields []string) (jsonrpc.Value, error)
	Write(ctx context.Context, values map[string]any) (jsonrpc.Value, error)
	Call(ctx context.Context, method string, args []any, kwargs map[string]any) (jsonrpc.Value, error)
}

type EffectiveConfig struct {
	URL      string
	Endpoint string
	DB       string
	Login    string
	Password string
	Lang     string
	Model    string
	IDs      []int64
	Timeout  float64
	Output   string
	Trace    bool
}
