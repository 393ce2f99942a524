package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// MetricsEndpoint exposes the Prometheus metrics
	MetricsEndpoint = "/metrics"

	// ElectionURLParam and VoterURLParam are the URL parameters naming an
	// election and a voter identity.
	ElectionURLParam = "electionId"
	VoterURLParam    = "voter"

	// ElectionsPath is the first path segment of every election endpoint.
	ElectionsPath = "elections"
	// CredentialsPath and VotesPath are the election sub-resources.
	CredentialsPath = "credentials"
	VotesPath       = "votes"
	// VerifyPath triggers a commitment check.
	VerifyPath = "verify"

	// ElectionsEndpoint lists the issued elections, requires the admin token
	ElectionsEndpoint = "/" + ElectionsPath
	// ElectionEndpoint returns the election record
	ElectionEndpoint = "/" + ElectionsPath + "/{" + ElectionURLParam + "}"
	// CredentialsEndpoint issues the credentials of an election (POST) and
	// exports them (GET). Both require the admin token.
	CredentialsEndpoint = ElectionEndpoint + "/" + CredentialsPath
	// VoterCredentialEndpoint returns the secret and proof of a voter
	VoterCredentialEndpoint = CredentialsEndpoint + "/{" + VoterURLParam + "}"
	// VerifyEndpoint recomputes the root of an election, requires the admin token
	VerifyEndpoint = ElectionEndpoint + "/" + VerifyPath
	// VotesEndpoint records a vote completion
	VotesEndpoint = ElectionEndpoint + "/" + VotesPath
	// VoterVoteEndpoint tells whether a voter completed the election
	VoterVoteEndpoint = VotesEndpoint + "/{" + VoterURLParam + "}"
)
