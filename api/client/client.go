package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vocdoni/vocdoni-credentials/api"
	"github.com/vocdoni/vocdoni-credentials/log"
	"github.com/vocdoni/vocdoni-credentials/types"
)

const (
	// HTTPGET is the method string used for calling Request()
	HTTPGET = http.MethodGet
	// HTTPPOST is the method string used for calling Request()
	HTTPPOST = http.MethodPost

	errCodeNot200 = "API error"

	// DefaultRetries this enables Request() to handle the situation where the server connection fails
	DefaultRetries = 3
	// DefaultTimeout is the default timeout for the HTTP client
	DefaultTimeout = 10 * time.Second
	// retryDelay is the pause between two attempts of the same request
	retryDelay = 500 * time.Millisecond
)

// HTTPclient is the credentials API HTTP client.
type HTTPclient struct {
	c          *http.Client
	host       *url.URL
	retries    int
	adminToken string
}

// New connects to the API host and returns the handle. The host must answer
// the ping endpoint.
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}

	tr := &http.Transport{
		IdleConnTimeout:    DefaultTimeout,
		DisableCompression: false,
		WriteBufferSize:    1 * 1024 * 1024, // 1 MiB
		ReadBufferSize:     1 * 1024 * 1024, // 1 MiB
	}
	c := &HTTPclient{
		c:       &http.Client{Transport: tr, Timeout: DefaultTimeout},
		host:    hostURL,
		retries: DefaultRetries,
	}
	log.Debugw("http client created", "host", hostURL.String())
	if err := c.Ping(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// SetRetries configures the number of retries for the HTTP client.
func (c *HTTPclient) SetRetries(n int) {
	c.retries = max(n, 1)
}

// SetTimeout configures the timeout for the HTTP client.
func (c *HTTPclient) SetTimeout(d time.Duration) {
	c.c.Timeout = d
	if tr, ok := c.c.Transport.(*http.Transport); ok {
		tr.ResponseHeaderTimeout = d
	}
}

// SetAdminToken configures the bearer token sent on every request. It is
// needed for issuance, export and verification.
func (c *HTTPclient) SetAdminToken(token string) {
	c.adminToken = token
}

// Request performs a `method` type raw request to the endpoint specified by
// the urlPath segments, each segment is escaped. Method is either GET or
// POST. If jsonBody is not nil it is sent JSON encoded. Returns the
// response, the status code and an error.
//
// Connection errors are retried for GET only. The server may have applied a
// POST whose response was lost, so a POST is sent once. Responses are
// returned whatever their status code.
func (c *HTTPclient) Request(ctx context.Context, method string, jsonBody any, urlPath ...string) ([]byte, int, error) {
	return c.request(ctx, method, method == HTTPGET, jsonBody, urlPath...)
}

// request performs the request, retrying connection errors only if retry
// is set.
func (c *HTTPclient) request(ctx context.Context, method string, retry bool, jsonBody any, urlPath ...string) ([]byte, int, error) {
	var body []byte
	if jsonBody != nil {
		var err error
		body, err = json.Marshal(jsonBody)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}

	segments := make([]string, len(urlPath))
	for i, p := range urlPath {
		segments[i] = url.PathEscape(p)
	}
	u := c.host.JoinPath(segments...)

	// Prepare headers
	headers := http.Header{}
	if jsonBody != nil {
		headers.Set("Content-Type", "application/json")
	}
	headers.Set("Accept", "application/json")
	if c.adminToken != "" {
		headers.Set("Authorization", "Bearer "+c.adminToken)
	}

	// request bodies may hold voter rolls, only their size is logged
	log.Debugw("http client request", "type", method, "url", u.String(), "bytes", len(body))

	attempts := 1
	if retry {
		attempts = c.retries
	}
	var (
		resp    *http.Response
		lastErr error
	)
	for i := 1; i <= attempts; i++ {
		// Create a fresh request each attempt
		req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header = headers.Clone()

		resp, lastErr = c.c.Do(req)
		if lastErr == nil {
			break
		}
		log.Warnw("http request failed", "error", lastErr.Error(), "attempt", i, "attempts", attempts)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	if lastErr != nil {
		if !retry {
			return nil, 0, fmt.Errorf("http request failed: %w", lastErr)
		}
		return nil, 0, fmt.Errorf("http request ultimately failed after retries: %w", lastErr)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// Ping checks the API is up.
func (c *HTTPclient) Ping(ctx context.Context) error {
	data, status, err := c.Request(ctx, HTTPGET, nil, strings.TrimPrefix(api.PingEndpoint, "/"))
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: %d (%s)", errCodeNot200, status, data)
	}
	return nil
}

// IssueCredentials issues the credentials of an election. It needs the
// admin token. The request is never retried: after a connection error the
// issuance may or may not have been committed, Election tells which.
func (c *HTTPclient) IssueCredentials(ctx context.Context, id types.ElectionID, voters []string) (*types.Issuance, error) {
	res := &types.Issuance{}
	req := &api.IssueCredentials{Voters: voters, NumVoters: len(voters)}
	if err := c.call(ctx, HTTPPOST, false, req, res, api.ElectionsPath, id.String(), api.CredentialsPath); err != nil {
		return nil, err
	}
	return res, nil
}

// ListElections returns the IDs of the issued elections. It needs the admin
// token.
func (c *HTTPclient) ListElections(ctx context.Context) ([]types.ElectionID, error) {
	res := &api.ElectionList{}
	if err := c.call(ctx, HTTPGET, true, nil, res, api.ElectionsPath); err != nil {
		return nil, err
	}
	return res.Elections, nil
}

// Election returns the election record.
func (c *HTTPclient) Election(ctx context.Context, id types.ElectionID) (*types.Election, error) {
	res := &types.Election{}
	if err := c.call(ctx, HTTPGET, true, nil, res, api.ElectionsPath, id.String()); err != nil {
		return nil, err
	}
	return res, nil
}

// VoterCredential returns the secret and inclusion proof of a voter.
func (c *HTTPclient) VoterCredential(ctx context.Context, id types.ElectionID, voter string) (*types.VoterCredential, error) {
	res := &types.VoterCredential{}
	if err := c.call(ctx, HTTPGET, true, nil, res, api.ElectionsPath, id.String(), api.CredentialsPath, voter); err != nil {
		return nil, err
	}
	return res, nil
}

// ExportCredentials returns every credential of an election. It needs the
// admin token.
func (c *HTTPclient) ExportCredentials(ctx context.Context, id types.ElectionID) (*api.CredentialsExport, error) {
	res := &api.CredentialsExport{}
	if err := c.call(ctx, HTTPGET, true, nil, res, api.ElectionsPath, id.String(), api.CredentialsPath); err != nil {
		return nil, err
	}
	return res, nil
}

// VerifyCommitment asks the server to recompute the root of an election. It
// needs the admin token.
func (c *HTTPclient) VerifyCommitment(ctx context.Context, id types.ElectionID) (*types.Election, error) {
	res := &types.Election{}
	if err := c.call(ctx, HTTPPOST, true, nil, res, api.ElectionsPath, id.String(), api.VerifyPath); err != nil {
		return nil, err
	}
	return res, nil
}

// VoteStatus tells whether a voter completed an election.
func (c *HTTPclient) VoteStatus(ctx context.Context, id types.ElectionID, voter string) (*api.VoteStatus, error) {
	res := &api.VoteStatus{}
	if err := c.call(ctx, HTTPGET, true, nil, res, api.ElectionsPath, id.String(), api.VotesPath, voter); err != nil {
		return nil, err
	}
	return res, nil
}

// RecordVote records the completion of a voter under an authority. Recording
// is idempotent for the same authority, so the request is retried.
func (c *HTTPclient) RecordVote(ctx context.Context, id types.ElectionID, vote *api.RecordVote) (*types.VoteOutcome, error) {
	res := &types.VoteOutcome{}
	if err := c.call(ctx, HTTPPOST, true, vote, res, api.ElectionsPath, id.String(), api.VotesPath); err != nil {
		return nil, err
	}
	return res, nil
}

// call performs the request and decodes a successful response into out.
// Non 200 responses are returned as api.Error values.
func (c *HTTPclient) call(ctx context.Context, method string, retry bool, body, out any, urlPath ...string) error {
	data, status, err := c.request(ctx, method, retry, body, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return decodeError(status, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var e struct {
		Err  string `json:"error"`
		Code int    `json:"code"`
	}
	if err := json.Unmarshal(data, &e); err != nil || e.Code == 0 {
		return fmt.Errorf("%s: %d (%s)", errCodeNot200, status, bytes.TrimSpace(data))
	}
	return api.ErrorFromResponse(e.Code, status, e.Err)
}
