package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/vocdoni-credentials/log"
	"github.com/vocdoni/vocdoni-credentials/storage"
	"github.com/vocdoni/vocdoni-credentials/types"
)

// httpWriteJSON helper function allows to write a JSON response. The body
// is never logged since it may carry voter secrets.
func httpWriteJSON(w http.ResponseWriter, data any) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
	log.Debugw("api response", "bytes", n)
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// urlParam returns the unescaped value of a URL parameter. chi routes on
// the raw path only when the request carries one.
func urlParam(r *http.Request, key string) (string, error) {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}

// electionParam returns the validated election ID of the request.
func electionParam(r *http.Request) (types.ElectionID, *Error) {
	raw, err := urlParam(r, ElectionURLParam)
	if err != nil {
		apiErr := ErrMalformedElectionID.WithErr(err)
		return "", &apiErr
	}
	id := types.ElectionID(raw)
	if err := id.Validate(); err != nil {
		apiErr := ErrMalformedElectionID.WithErr(err)
		return "", &apiErr
	}
	return id, nil
}

// voterParam returns the validated voter identity of the request.
func voterParam(r *http.Request) (string, *Error) {
	voter, err := urlParam(r, VoterURLParam)
	if err == nil {
		err = types.ValidateIdentity(voter)
	}
	if err != nil {
		apiErr := ErrInvalidIdentity.WithErr(err)
		return "", &apiErr
	}
	return voter, nil
}

// toAPIError maps the error kinds of the issuer to API errors.
func toAPIError(err error) Error {
	switch {
	case errors.Is(err, types.ErrCountMismatch):
		return ErrVoterCountMismatch.WithErr(err)
	case errors.Is(err, types.ErrInvalidIdentity):
		return ErrInvalidIdentity.WithErr(err)
	case errors.Is(err, types.ErrInvalidElectionID):
		return ErrMalformedElectionID.WithErr(err)
	case errors.Is(err, types.ErrInvalidVote):
		return ErrInvalidVote.WithErr(err)
	case errors.Is(err, types.ErrValidation):
		return ErrInvalidInput.WithErr(err)
	case errors.Is(err, types.ErrAlreadyIssued):
		return ErrAlreadyIssued.WithErr(err)
	case errors.Is(err, types.ErrNotEligible):
		return ErrNotEligible.WithErr(err)
	case errors.Is(err, types.ErrElectionNotFound):
		return ErrElectionNotFound.WithErr(err)
	case errors.Is(err, types.ErrCommitmentMismatch):
		return ErrElectionSuspended.WithErr(err)
	case errors.Is(err, types.ErrInconsistentState):
		return ErrInconsistentState.WithErr(err)
	case errors.Is(err, storage.ErrNotFound):
		return ErrResourceNotFound.WithErr(err)
	}
	return ErrGenericInternalServerError.WithErr(err)
}
