package record

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/cinience/record/internal/jsonrpc"
)

// RecordSet addresses a fixed list of records of one model.
type RecordSet struct {
	session *Session
	model   string
	ids     []int64
}

func (s *Session) Records(model string, ids []int64) RecordSet {
	cp := make([]int64, len(ids))
	copy(cp, ids)
	return RecordSet{session: s, model: model, ids: cp}
}

func (r RecordSet) Model() string { return r.model }

func (r RecordSet) IDs() []int64 {
	out := make([]int64, len(r.ids))
	copy(out, r.ids)
	return out
}

// Read returns the requested fields of every record; no fields means all.
func (r RecordSet) Read(ctx context.Context, fields []string) (jsonrpc.Value, error) {
	if fields == nil {
		fields = []string{}
	}
	return r.Call(ctx, "read", []any{fields}, nil)
}

// Write sends values as given; an empty map is still forwarded and the
// server decides what it means.
func (r RecordSet) Write(ctx context.Context, values map[string]any) (jsonrpc.Value, error) {
	if values == nil {
		values = map[string]any{}
	}
	return r.Call(ctx, "write", []any{values}, nil)
}

// Call runs method on the record set: the ids are prepended to args and the
// session context is added to kwargs unless one is already present.
func (r RecordSet) Call(ctx context.Context, method string, args []any, kwargs map[string]any) (jsonrpc.Value, error) {
	if r.session == nil {
		return nil, errors.New("record set has no session")
	}
	positional := make([]any, 0, len(args)+1)
	positional = append(positional, r.ids)
	positional = append(positional, args...)

	kw := make(map[string]any, len(kwargs)+1)
	for k, v := range kwargs {
		kw[k] = v
	}
	if _, ok := kw["context"]; !ok {
		kw["context"] = r.session.Context()
	}
	return r.session.Execute(ctx, r.model, method, positional, kw)
}

// ParseIDs parses database ids given on the command line.
func ParseIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, errors.New("at least one record id is required")
	}
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(a), 10, 64)
		if err != nil {
			return nil, errors.New("invalid record id " + strconv.Quote(a))
		}
		ids = append(ids, id)
	}
	return ids, nil
}
