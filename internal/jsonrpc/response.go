package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/buger/jsonparser"
)

const DefaultErrorMessage = "Server Error"

// RPCError is returned when the response envelope carries a truthy error
// member.
type RPCError struct {
	Message   string
	Traceback string
}

func (e *RPCError) Error() string {
	return e.Message + "\n\n" + e.Traceback
}

var errNotObject = errors.New("response is not a JSON object")

// Unwrap reads a response envelope and returns its result, or an *RPCError
// when the server reported one. A missing result yields Null.
func Unwrap(r io.Reader) (Value, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return UnwrapBytes(body)
}

func UnwrapBytes(body []byte) (Value, error) {
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, fmt.Errorf("decode response: invalid JSON (%d bytes)", len(body))
	}
	if _, typ, _, err := jsonparser.Get(body); err != nil || typ != jsonparser.Object {
		return nil, fmt.Errorf("decode response: %w", errNotObject)
	}

	errValue, errType, _, err := jsonparser.Get(body, "error")
	if err != nil && errType != jsonparser.NotExist {
		return nil, fmt.Errorf("decode response error: %w", err)
	}
	if truthy(errValue, errType) {
		return nil, newRPCError(errValue, errType)
	}

	result, resType, _, err := jsonparser.Get(body, "result")
	if err != nil && resType != jsonparser.NotExist {
		return nil, fmt.Errorf("decode response result: %w", err)
	}
	return rawValue(result, resType), nil
}

func newRPCError(data []byte, typ jsonparser.ValueType) *RPCError {
	rpcErr := &RPCError{Message: DefaultErrorMessage}
	switch typ {
	case jsonparser.Object:
	case jsonparser.String:
		// Some proxies answer with a bare string in place of the error object.
		rpcErr.Message = textOf(data, typ)
		return rpcErr
	default:
		return rpcErr
	}

	if msg, msgType, _, err := jsonparser.Get(data, "message"); err == nil && truthy(msg, msgType) {
		rpcErr.Message = textOf(msg, msgType)
	}
	details, detailsType, _, err := jsonparser.Get(data, "data")
	if err != nil || detailsType != jsonparser.Object {
		return rpcErr
	}
	if debug, debugType, _, err := jsonparser.Get(details, "debug"); err == nil && truthy(debug, debugType) {
		rpcErr.Traceback = textOf(debug, debugType)
	}
	return rpcErr
}

func textOf(data []byte, typ jsonparser.ValueType) string {
	if typ != jsonparser.String {
		return string(data)
	}
	s, err := jsonparser.ParseString(data)
	if err != nil {
		return string(data)
	}
	return s
}
