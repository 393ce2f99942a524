//nolint:lll
package api

import (
	"fmt"
	"net/http"

	"github.com/vocdoni/vocdoni-credentials/storage"
	"github.com/vocdoni/vocdoni-credentials/types"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 401, 404 or 409, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX
// If you notice there's a gap (say, error code 4010, 4011 and 4013 exist, 4012 is missing) DON'T fill in the gap,
// that code was used in the past for some error (not anymore) and shouldn't be reused.
// There's no correlation between Code and HTTP Status.
var (
	ErrResourceNotFound    = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody       = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedElectionID = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed election ID")}
	ErrElectionNotFound    = Error{Code: 40007, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("election not found")}
	ErrInvalidInput        = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid input")}
	ErrVoterCountMismatch  = Error{Code: 40011, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("voter count mismatch")}
	ErrInvalidIdentity     = Error{Code: 40012, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid voter identity")}
	ErrAlreadyIssued       = Error{Code: 40013, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("credentials already issued")}
	ErrNotEligible         = Error{Code: 40014, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("voter not eligible")}
	ErrUnauthorized        = Error{Code: 40016, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("unauthorized")}
	ErrInvalidVote         = Error{Code: 40017, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid vote record")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrElectionSuspended          = Error{Code: 50003, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("election suspended: commitment mismatch")}
	ErrInconsistentState          = Error{Code: 50004, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("inconsistent credential state")}
)

// errorKinds maps the codes that stand for a core error kind back to it.
var errorKinds = map[int]error{
	ErrResourceNotFound.Code:    storage.ErrNotFound,
	ErrMalformedElectionID.Code: types.ErrInvalidElectionID,
	ErrElectionNotFound.Code:    types.ErrElectionNotFound,
	ErrInvalidInput.Code:        types.ErrValidation,
	ErrVoterCountMismatch.Code:  types.ErrCountMismatch,
	ErrInvalidIdentity.Code:     types.ErrInvalidIdentity,
	ErrAlreadyIssued.Code:       types.ErrAlreadyIssued,
	ErrNotEligible.Code:         types.ErrNotEligible,
	ErrInvalidVote.Code:         types.ErrInvalidVote,
	ErrElectionSuspended.Code:   types.ErrCommitmentMismatch,
	ErrInconsistentState.Code:   types.ErrInconsistentState,
}
