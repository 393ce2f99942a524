package api

import "github.com/vocdoni/vocdoni-credentials/types"

// IssueCredentials is the request to issue the credentials of an election.
// NumVoters must match the number of voters.
type IssueCredentials struct {
	Voters    []string `json:"voters"`
	NumVoters int      `json:"numVoters"`
}

// CredentialsExport is the administrative dump of an election credentials.
type CredentialsExport struct {
	ElectionID  types.ElectionID    `json:"electionId"`
	Root        types.HexBytes      `json:"root"`
	Credentials []*types.Credential `json:"credentials"`
}

// ElectionList is the list of issued elections.
type ElectionList struct {
	Elections []types.ElectionID `json:"elections"`
}

// VoteStatus tells whether a voter completed an election and under which
// authority.
type VoteStatus struct {
	Voted  bool              `json:"voted"`
	Record *types.VoteRecord `json:"record,omitempty"`
}

// RecordVote is the request sent by the caller once a verifying authority
// accepted the vote of a voter.
type RecordVote struct {
	Voter       string `json:"voter"`
	AuthorityID uint64 `json:"authorityId"`
	Reference   string `json:"reference"`
}
