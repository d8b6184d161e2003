package qualtrics

import (
	"bytes"
	"encoding/json"
)

// Envelope is the outer shape of every Qualtrics v3 response.
type Envelope struct {
	Result    json.RawMessage `json:"result"`
	Meta      Meta            `json:"meta"`
	RequestID string          `json:"requestId,omitempty"`
}

// Meta carries the response status block.
type Meta struct {
	HTTPStatus string     `json:"httpStatus"`
	RequestID  string     `json:"requestId,omitempty"`
	Error      *MetaError `json:"error,omitempty"`
}

// MetaError is the error block of a failed response.
type MetaError struct {
	ErrorMessage string `json:"errorMessage"`
	ErrorCode    string `json:"errorCode"`
}

// Page is the result object of a list endpoint.
type Page struct {
	Elements []json.RawMessage `json:"elements"`
	NextPage *string           `json:"nextPage"`
}

type createdResult struct {
	ID string `json:"id"`
}

var jsonNull = []byte("null")

func hasResult(env *Envelope) bool {
	trimmed := bytes.TrimSpace(env.Result)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, jsonNull)
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// decodeEnvelope parses a successful body. An empty body is a valid, empty envelope.
func decodeEnvelope(path string, body []byte) (*Envelope, error) {
	env := &Envelope{}
	if len(bytes.TrimSpace(body)) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(body, env); err != nil {
		return nil, &DecodeError{Path: path, Detail: "response is not a JSON envelope", Cause: err}
	}
	return env, nil
}

// decodeErrorMeta does a best-effort parse of an error body; bodies that are
// not JSON still yield a typed status error.
func decodeErrorMeta(body []byte) (Meta, string) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Meta{}, ""
	}
	return env.Meta, env.RequestID
}

func decodeResultObject(path string, env *Envelope) (json.RawMessage, error) {
	if !hasResult(env) {
		return nil, &DecodeError{Path: path, Detail: "missing result object"}
	}
	if !isJSONObject(env.Result) {
		return nil, &DecodeError{Path: path, Detail: "result is not an object"}
	}
	return env.Result, nil
}

func decodePage(path string, env *Envelope) (Page, error) {
	raw, err := decodeResultObject(path, env)
	if err != nil {
		return Page{}, err
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Page{}, &DecodeError{Path: path, Detail: "malformed page", Cause: err}
	}
	if _, ok := probe["elements"]; !ok {
		return Page{}, &DecodeError{Path: path, Detail: "page has no elements"}
	}
	var page Page
	if err := json.Unmarshal(raw, &page); err != nil {
		return Page{}, &DecodeError{Path: path, Detail: "malformed page", Cause: err}
	}
	return page, nil
}

func decodeCreatedID(path string, env *Envelope) (string, error) {
	if !hasResult(env) {
		return "", nil
	}
	if !isJSONObject(env.Result) {
		return "", &DecodeError{Path: path, Detail: "result is not an object"}
	}
	var created createdResult
	if err := json.Unmarshal(env.Result, &created); err != nil {
		return "", &DecodeError{Path: path, Detail: "malformed created result", Cause: err}
	}
	return created.ID, nil
}
