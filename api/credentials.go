package api

import (
	"encoding/json"
	"net/http"

	"github.com/vocdoni/vocdoni-credentials/log"
	"github.com/vocdoni/vocdoni-credentials/types"
)

// issueCredentials generates and stores the credentials of an election
// POST /elections/{electionId}/credentials
func (a *API) issueCredentials(w http.ResponseWriter, r *http.Request) {
	id, apiErr := electionParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	req := &IssueCredentials{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	res, err := a.issuer.IssueCredentials(r.Context(), id, req.Voters, req.NumVoters)
	if err != nil {
		toAPIError(err).Write(w)
		return
	}
	log.Infow("new election issued", "election", id, "root", res.Root.String(), "voters", res.TotalIssued)
	httpWriteJSON(w, res)
}

// listElections returns the IDs of the issued elections
// GET /elections
func (a *API) listElections(w http.ResponseWriter, r *http.Request) {
	ids, err := a.issuer.ListElections()
	if err != nil {
		toAPIError(err).Write(w)
		return
	}
	if ids == nil {
		ids = []types.ElectionID{}
	}
	httpWriteJSON(w, &ElectionList{Elections: ids})
}

// election returns the election record
// GET /elections/{electionId}
func (a *API) election(w http.ResponseWriter, r *http.Request) {
	id, apiErr := electionParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	e, err := a.issuer.Election(id)
	if err != nil {
		toAPIError(err).Write(w)
		return
	}
	httpWriteJSON(w, e)
}

// voterCredential returns the secret, leaf and inclusion proof of a voter
// GET /elections/{electionId}/credentials/{voter}
func (a *API) voterCredential(w http.ResponseWriter, r *http.Request) {
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
	vc, err := a.issuer.VoterCredential(r.Context(), id, voter)
	if err != nil {
		toAPIError(err).Write(w)
		return
	}
	httpWriteJSON(w, vc)
}

// exportCredentials dumps every credential of an election
// GET /elections/{electionId}/credentials
func (a *API) exportCredentials(w http.ResponseWriter, r *http.Request) {
	id, apiErr := electionParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	e, err := a.issuer.Election(id)
	if err != nil {
		toAPIError(err).Write(w)
		return
	}
	creds, err := a.issuer.ExportCredentials(id)
	if err != nil {
		toAPIError(err).Write(w)
		return
	}
	httpWriteJSON(w, &CredentialsExport{
		ElectionID:  id,
		Root:        e.Root,
		Credentials: creds,
	})
}

// verifyCommitment recomputes the root from the stored secrets
// POST /elections/{electionId}/verify
func (a *API) verifyCommitment(w http.ResponseWriter, r *http.Request) {
	id, apiErr := electionParam(r)
	if apiErr != nil {
		apiErr.Write(w)
		return
	}
	e, err := a.issuer.VerifyCommitment(r.Context(), id)
	if err != nil {
		toAPIError(err).Write(w)
		return
	}
	httpWriteJSON(w, e)
}
