package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vocdoni/vocdoni-credentials/log"
)

// Error is used by handler functions to wrap errors, assigning a unique error code
// and also specifying which HTTP Status should be used.
//
// Two Error values match under errors.Is when their codes are equal, and an
// Error unwraps to its Err, so the client side can branch on the types
// sentinels as well.
type Error struct {
	Err        error
	Code       int
	HTTPstatus int
}

// MarshalJSON returns a JSON containing Err.Error() and Code. Field HTTPstatus is ignored.
//
// Example output: {"error":"election not found: E1","code":40007}
func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(
		struct {
			Err  string `json:"error"`
			Code int    `json:"code"`
		}{
			Err:  e.Err.Error(),
			Code: e.Code,
		})
}

// Error returns the message of the wrapped error.
func (e Error) Error() string {
	return e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an Error with the same code.
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t.Code == e.Code
}

// Write sends the error as the JSON body of a response with e.HTTPstatus.
func (e Error) Write(w http.ResponseWriter) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Warn(err)
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	if log.Level() == log.LogLevelDebug {
		log.Debugw("API error response", "error", e.Error(), "code", e.Code, "httpStatus", e.HTTPstatus)
	}
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, string(msg), e.HTTPstatus)
}

// Withf returns a copy of the Error with the formatted detail appended.
func (e Error) Withf(format string, args ...any) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, fmt.Sprintf(format, args...)),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// WithErr returns a copy of the Error with err's message appended.
func (e Error) WithErr(err error) Error {
	return e.Withf("%v", err)
}

// ErrorFromResponse rebuilds the Error of an API response. The message is
// kept as sent by the server. Codes mapped to a types sentinel unwrap to it,
// so errors.Is(err, types.ErrAlreadyIssued) holds on the client side.
func ErrorFromResponse(code, status int, msg string) Error {
	return Error{
		Err:        &responseError{msg: msg, kind: errorKinds[code]},
		Code:       code,
		HTTPstatus: status,
	}
}

type responseError struct {
	msg  string
	kind error
}

func (e *responseError) Error() string { return e.msg }

func (e *responseError) Unwrap() error { return e.kind }
