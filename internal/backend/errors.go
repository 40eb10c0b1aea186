package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies why an upload attempt failed.
type Kind int

const (
	// KindNetwork means no HTTP response was obtained.
	KindNetwork Kind = iota + 1
	// KindServer means a non-2xx response was received.
	KindServer
	// KindParse means a response was received but its body was not JSON, or
	// a 2xx body carried no genre.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// User-facing messages for failures that carry no server text.
const (
	MsgNetwork = "Network error. Backend not reachable."
	MsgParse   = "Invalid JSON response from backend."
)

// Error is the failed half of an upload attempt. Detail is already fit to
// show to a user; Err keeps the underlying cause for logs.
type Error struct {
	Kind   Kind
	Detail string
	Status int // zero when no response was received
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind of err, or zero when err is not an *Error.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return 0
}

// Message returns the user-facing text for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) && be.Detail != "" {
		return be.Detail
	}
	return err.Error()
}

// IsFallbackEligible reports whether a failed primary attempt may be repeated
// over the fallback transport. Only transport failures qualify, and a caller
// that cancelled the attempt is never retried.
func IsFallbackEligible(err error) bool {
	if KindOf(err) != KindNetwork {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Detail: MsgNetwork, Err: err}
}

func parseError(status int, err error) *Error {
	return &Error{Kind: KindParse, Detail: MsgParse, Status: status, Err: err}
}

func serverError(status int, body errorBody) *Error {
	detail := strings.TrimSpace(body.Error)
	if detail == "" {
		detail = fmt.Sprintf("Request failed (%d)", status)
	}
	return &Error{Kind: KindServer, Detail: detail, Status: status}
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

// decodePrediction applies the strict rules used by the primary transport:
// any body that is not JSON is a parse failure, whatever the status.
func decodePrediction(status int, body []byte) (*Prediction, error) {
	if !isSuccess(status) {
		var eb errorBody
		if err := json.Unmarshal(body, &eb); err != nil {
			return nil, parseError(status, err)
		}
		return nil, serverError(status, eb)
	}
	return decodeSuccess(status, body)
}

// decodePredictionLenient applies the rules used by the fallback transport:
// an empty body counts as {}, and a non-2xx response is a server failure even
// when its body cannot be parsed. An empty 2xx body still fails for lack of a
// genre.
func decodePredictionLenient(status int, body []byte) (*Prediction, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}
	if !isSuccess(status) {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		return nil, serverError(status, eb)
	}
	return decodeSuccess(status, body)
}

var errMissingGenre = errors.New("response has no genre")

func decodeSuccess(status int, body []byte) (*Prediction, error) {
	var p Prediction
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, parseError(status, err)
	}
	if strings.TrimSpace(p.Genre) == "" {
		return nil, parseError(status, errMissingGenre)
	}
	p.Raw = append(json.RawMessage(nil), body...)
	return &p, nil
}
