package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/vocdoni-credentials/issuer"
	"github.com/vocdoni/vocdoni-credentials/merkle"
	"github.com/vocdoni/vocdoni-credentials/storage"
	"github.com/vocdoni/vocdoni-credentials/types"
)

const testAdminToken = "s3cr3t"

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	st := storage.New(memdb.New())
	iss, err := issuer.New(&issuer.Config{Store: st, Ledger: st})
	if err != nil {
		t.Fatal(err)
	}
	a, err := New(&APIConfig{Host: "127.0.0.1", Port: 0, Issuer: iss, AdminToken: testAdminToken})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, u string, token string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, u, r)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, data
}

func errorCode(t *testing.T, data []byte) int {
	t.Helper()
	var e struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("not an API error: %s", data)
	}
	return e.Code
}

func TestPingAndMetrics(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t)

	status, _ := doRequest(t, http.MethodGet, srv.URL+PingEndpoint, "", nil)
	c.Assert(status, qt.Equals, http.StatusOK)

	status, data := doRequest(t, http.MethodGet, srv.URL+MetricsEndpoint, "", nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(string(data), qt.Contains, "credentials_proofcache_hits_total")
}

func TestIssueAndFetchCredential(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t)
	base := srv.URL + "/elections/E1"
	voters := []string{"A", "B", "C", "D", "E"}

	// issuance needs the admin token
	status, data := doRequest(t, http.MethodPost, base+"/credentials", "",
		&IssueCredentials{Voters: voters, NumVoters: 5})
	c.Assert(status, qt.Equals, http.StatusUnauthorized)
	c.Assert(errorCode(t, data), qt.Equals, ErrUnauthorized.Code)
	status, _ = doRequest(t, http.MethodPost, base+"/credentials", "wrong",
		&IssueCredentials{Voters: voters, NumVoters: 5})
	c.Assert(status, qt.Equals, http.StatusUnauthorized)

	status, data = doRequest(t, http.MethodPost, base+"/credentials", testAdminToken,
		&IssueCredentials{Voters: voters, NumVoters: 5})
	c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("%s", data))
	res := &types.Issuance{}
	c.Assert(json.Unmarshal(data, res), qt.IsNil)
	c.Assert(res.TotalIssued, qt.Equals, 5)
	c.Assert(res.Root, qt.HasLen, types.HashSize)

	status, data = doRequest(t, http.MethodPost, base+"/credentials", testAdminToken,
		&IssueCredentials{Voters: voters, NumVoters: 5})
	c.Assert(status, qt.Equals, http.StatusConflict)
	c.Assert(errorCode(t, data), qt.Equals, ErrAlreadyIssued.Code)

	status, data = doRequest(t, http.MethodGet, base+"/credentials/C", "", nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	vc := &types.VoterCredential{}
	c.Assert(json.Unmarshal(data, vc), qt.IsNil)
	c.Assert(vc.Root, qt.DeepEquals, res.Root)
	proof := make([]common.Hash, len(vc.Proof))
	for i, p := range vc.Proof {
		proof[i] = common.BytesToHash(p)
	}
	c.Assert(merkle.Verify(common.BytesToHash(vc.Root), common.BytesToHash(vc.Leaf), proof), qt.IsTrue)

	status, data = doRequest(t, http.MethodGet, base+"/credentials/Z", "", nil)
	c.Assert(status, qt.Equals, http.StatusNotFound)
	c.Assert(errorCode(t, data), qt.Equals, ErrNotEligible.Code)

	status, data = doRequest(t, http.MethodGet, base, "", nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	e := &types.Election{}
	c.Assert(json.Unmarshal(data, e), qt.IsNil)
	c.Assert(e.VoterCount, qt.Equals, 5)
	c.Assert(e.Root, qt.DeepEquals, res.Root)

	status, data = doRequest(t, http.MethodGet, srv.URL+"/elections/E9", "", nil)
	c.Assert(status, qt.Equals, http.StatusNotFound)
	c.Assert(errorCode(t, data), qt.Equals, ErrElectionNotFound.Code)
}

func TestIssueValidation(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t)

	status, data := doRequest(t, http.MethodPost, srv.URL+"/elections/E1/credentials", testAdminToken,
		&IssueCredentials{Voters: []string{"A", "B", "C"}, NumVoters: 5})
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(errorCode(t, data), qt.Equals, ErrVoterCountMismatch.Code)

	status, data = doRequest(t, http.MethodPost, srv.URL+"/elections/E1/credentials", testAdminToken,
		&IssueCredentials{Voters: []string{"A", "A"}, NumVoters: 2})
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(errorCode(t, data), qt.Equals, ErrInvalidIdentity.Code)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/elections/E1/credentials", strings.NewReader("{"))
	c.Assert(err, qt.IsNil)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	resp, err := http.DefaultClient.Do(req)
	c.Assert(err, qt.IsNil)
	resp.Body.Close()
	c.Assert(resp.StatusCode, qt.Equals, http.StatusBadRequest)

	// nothing was issued
	status, _ = doRequest(t, http.MethodGet, srv.URL+"/elections/E1", "", nil)
	c.Assert(status, qt.Equals, http.StatusNotFound)
}

func TestVotes(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t)
	base := srv.URL + "/elections/E1"

	status, _ := doRequest(t, http.MethodPost, base+"/credentials", testAdminToken,
		&IssueCredentials{Voters: []string{"A", "B"}, NumVoters: 2})
	c.Assert(status, qt.Equals, http.StatusOK)

	status, data := doRequest(t, http.MethodGet, base+"/votes/A", "", nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	vs := &VoteStatus{}
	c.Assert(json.Unmarshal(data, vs), qt.IsNil)
	c.Assert(vs.Voted, qt.IsFalse)

	status, data = doRequest(t, http.MethodPost, base+"/votes", "",
		&RecordVote{Voter: "A", AuthorityID: 11155111, Reference: "0xAAA"})
	c.Assert(status, qt.Equals, http.StatusOK)
	out := &types.VoteOutcome{}
	c.Assert(json.Unmarshal(data, out), qt.IsNil)
	c.Assert(out.Accepted, qt.IsTrue)

	status, data = doRequest(t, http.MethodPost, base+"/votes", "",
		&RecordVote{Voter: "A", AuthorityID: 84532, Reference: "0xBBB"})
	c.Assert(status, qt.Equals, http.StatusOK)
	out = &types.VoteOutcome{}
	c.Assert(json.Unmarshal(data, out), qt.IsNil)
	c.Assert(out.Accepted, qt.IsFalse)
	c.Assert(out.ExistingAuthority, qt.Equals, uint64(11155111))

	status, data = doRequest(t, http.MethodGet, base+"/votes/A", "", nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	vs = &VoteStatus{}
	c.Assert(json.Unmarshal(data, vs), qt.IsNil)
	c.Assert(vs.Voted, qt.IsTrue)
	c.Assert(vs.Record.AuthorityID, qt.Equals, uint64(11155111))
	c.Assert(vs.Record.Reference, qt.Equals, "0xAAA")

	status, data = doRequest(t, http.MethodPost, base+"/votes", "",
		&RecordVote{Voter: "A", Reference: "0xAAA"})
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(errorCode(t, data), qt.Equals, ErrInvalidVote.Code)

	status, data = doRequest(t, http.MethodPost, base+"/votes", "",
		&RecordVote{Voter: "Z", AuthorityID: 1, Reference: "r"})
	c.Assert(status, qt.Equals, http.StatusNotFound)
	c.Assert(errorCode(t, data), qt.Equals, ErrNotEligible.Code)
}

func TestExportAndVerify(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t)
	// identities with reserved URL characters travel escaped
	voters := []string{"alice@example.org", "bob/smith", "carol 100%"}
	base := srv.URL + "/elections/E1"

	status, _ := doRequest(t, http.MethodPost, base+"/credentials", testAdminToken,
		&IssueCredentials{Voters: voters, NumVoters: 3})
	c.Assert(status, qt.Equals, http.StatusOK)

	status, _ = doRequest(t, http.MethodGet, base+"/credentials", "", nil)
	c.Assert(status, qt.Equals, http.StatusUnauthorized)

	status, data := doRequest(t, http.MethodGet, base+"/credentials", testAdminToken, nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	export := &CredentialsExport{}
	c.Assert(json.Unmarshal(data, export), qt.IsNil)
	c.Assert(export.Credentials, qt.HasLen, 3)
	for i, cred := range export.Credentials {
		c.Assert(cred.Identity, qt.Equals, voters[i])
	}

	for _, v := range voters {
		status, data = doRequest(t, http.MethodGet, base+"/credentials/"+url.PathEscape(v), "", nil)
		c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("voter %q: %s", v, data))
		vc := &types.VoterCredential{}
		c.Assert(json.Unmarshal(data, vc), qt.IsNil)
		c.Assert(vc.Voter, qt.Equals, v)
	}

	status, data = doRequest(t, http.MethodPost, base+"/verify", testAdminToken, nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	e := &types.Election{}
	c.Assert(json.Unmarshal(data, e), qt.IsNil)
	c.Assert(e.Root, qt.DeepEquals, export.Root)
}

func TestListElections(t *testing.T) {
	c := qt.New(t)
	srv := newTestAPI(t)

	status, _ := doRequest(t, http.MethodGet, srv.URL+"/elections", "", nil)
	c.Assert(status, qt.Equals, http.StatusUnauthorized)

	status, data := doRequest(t, http.MethodGet, srv.URL+"/elections", testAdminToken, nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	list := &ElectionList{}
	c.Assert(json.Unmarshal(data, list), qt.IsNil)
	c.Assert(list.Elections, qt.HasLen, 0)

	for _, id := range []string{"E1", "E2"} {
		status, _ = doRequest(t, http.MethodPost, srv.URL+"/elections/"+id+"/credentials", testAdminToken,
			&IssueCredentials{Voters: []string{"A", "B"}, NumVoters: 2})
		c.Assert(status, qt.Equals, http.StatusOK)
	}
	status, data = doRequest(t, http.MethodGet, srv.URL+"/elections", testAdminToken, nil)
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(json.Unmarshal(data, list), qt.IsNil)
	c.Assert(list.Elections, qt.DeepEquals, []types.ElectionID{"E1", "E2"})
}

func TestErrorFromResponse(t *testing.T) {
	c := qt.New(t)

	err := error(ErrorFromResponse(ErrAlreadyIssued.Code, http.StatusConflict,
		"credentials already issued: credentials already issued for election: E1"))
	c.Assert(errors.Is(err, types.ErrAlreadyIssued), qt.IsTrue)
	c.Assert(errors.Is(err, ErrAlreadyIssued), qt.IsTrue)
	c.Assert(errors.Is(err, types.ErrNotEligible), qt.IsFalse)
	c.Assert(err.Error(), qt.Equals, "credentials already issued: credentials already issued for election: E1")

	// validation kinds keep their parent
	err = ErrorFromResponse(ErrVoterCountMismatch.Code, http.StatusBadRequest, "voter count mismatch")
	c.Assert(errors.Is(err, types.ErrCountMismatch), qt.IsTrue)
	c.Assert(errors.Is(err, types.ErrValidation), qt.IsTrue)

	// codes without a core kind still match by code
	err = ErrorFromResponse(ErrUnauthorized.Code, http.StatusUnauthorized, "unauthorized")
	c.Assert(errors.Is(err, ErrUnauthorized), qt.IsTrue)
	c.Assert(errors.Is(err, types.ErrValidation), qt.IsFalse)

	// server side errors match their definition whatever the detail
	c.Assert(errors.Is(ErrNotEligible.Withf("voter %s", "A"), ErrNotEligible), qt.IsTrue)
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	c := qt.New(t)
	st := storage.New(memdb.New())
	iss, err := issuer.New(&issuer.Config{Store: st, Ledger: st})
	c.Assert(err, qt.IsNil)
	a, err := New(&APIConfig{Host: "127.0.0.1", Issuer: iss})
	c.Assert(err, qt.IsNil)
	defer func() { _ = a.Shutdown(context.Background()) }()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/elections/E1/credentials", nil)
	req.Header.Set("Authorization", "Bearer ")
	a.Router().ServeHTTP(rec, req)
	c.Assert(rec.Code, qt.Equals, http.StatusUnauthorized)

	_, err = New(&APIConfig{Host: "127.0.0.1"})
	c.Assert(err, qt.ErrorMatches, "missing issuer instance")
}
