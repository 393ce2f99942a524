package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vocdoni/vocdoni-credentials/storage"
	"github.com/vocdoni/vocdoni-credentials/types"
)

// voteStatus tells whether a voter completed the election
// GET /elections/{electionId}/votes/{voter}
func (a *API) voteStatus(w http.ResponseWriter, r *http.Request) {
	id, apiErr := electionParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	voter, apiErr := voterParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	rec, err := a.issuer.VoteRecord(r.Context(), id, voter)
	if errors.Is(err, storage.ErrNotFound) {
		httpWriteJSON(w, &VoteStatus{Voted: false})
		return
	}
	if err != nil {
		toAPIError(err).Write(w)
		return
	}
	httpWriteJSON(w, &VoteStatus{Voted: true, Record: rec})
}

// recordVote records the completion of a voter under an authority. A
// completion already held by another authority is not an error: the
// response carries accepted=false and the existing authority.
// POST /elections/{electionId}/votes
func (a *API) recordVote(w http.ResponseWriter, r *http.Request) {
	id, apiErr := electionParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	req := &RecordVote{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	out, err := a.issuer.RecordVote(r.Context(), &types.VoteRecord{
		ElectionID:  id,
		Voter:       req.Voter,
		AuthorityID: req.AuthorityID,
		Reference:   req.Reference,
	})
	if err != nil {
		toAPIError(err).Write(w)
		return
	}
	httpWriteJSON(w, out)
}
