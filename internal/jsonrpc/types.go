package jsonrpc

import (
	"encoding/json"
	"math/rand"
)

const (
	Version = "2.0"

	// callMethod is the only envelope method the server routes; the real
	// dispatch key travels inside params as service/method.
	callMethod = "call"

	maxID = 1_000_000_000
)

type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type callParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

// NewRequest wraps params in a call envelope. A nil id is replaced by NewID.
func NewRequest(params any, id *int64) Request {
	callID := NewID()
	if id != nil {
		callID = *id
	}
	return Request{
		JSONRPC: Version,
		Method:  callMethod,
		Params:  params,
		ID:      callID,
	}
}

// NewID returns a correlation id in [0, 1e9). It is not a security token.
func NewID() int64 {
	return rand.Int63n(maxID)
}

func (r Request) Encode() ([]byte, error) {
	return json.Marshal(r)
}
