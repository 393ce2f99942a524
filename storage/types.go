package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/vocdoni-credentials/types"
)

// electionRecord is the stored form of types.Election.
type electionRecord struct {
	ID            string    `json:"id"`
	VoterCount    int       `json:"voterCount"`
	Root          []byte    `json:"root"`
	IssuanceID    uuid.UUID `json:"issuanceId"`
	IssuedAt      int64     `json:"issuedAt"`
	Suspended     bool      `json:"suspended"`
	SuspendReason string    `json:"suspendReason,omitempty"`
}

func newElectionRecord(e *types.Election) *electionRecord {
	return &electionRecord{
		ID:            string(e.ID),
		VoterCount:    e.VoterCount,
		Root:          e.Root,
		IssuanceID:    e.IssuanceID,
		IssuedAt:      e.IssuedAt.UnixNano(),
		Suspended:     e.Suspended,
		SuspendReason: e.SuspendReason,
	}
}

func (r *electionRecord) election() *types.Election {
	return &types.Election{
		ID:            types.ElectionID(r.ID),
		VoterCount:    r.VoterCount,
		Root:          r.Root,
		IssuanceID:    r.IssuanceID,
		IssuedAt:      time.Unix(0, r.IssuedAt).UTC(),
		Suspended:     r.Suspended,
		SuspendReason: r.SuspendReason,
	}
}

// credentialRecord only holds the secret and its position. Leaves and
// proofs are always derived from the secrets.
type credentialRecord struct {
	Identity string `json:"identity"`
	Index    int    `json:"index"`
	Secret   []byte `json:"secret"`
}

// voteRecord is the stored form of types.VoteRecord.
type voteRecord struct {
	AuthorityID uint64 `json:"authorityId"`
	Reference   string `json:"reference"`
	Timestamp   int64  `json:"timestamp"`
}

func (r *voteRecord) vote(id types.ElectionID, voter string) *types.VoteRecord {
	return &types.VoteRecord{
		ElectionID:  id,
		Voter:       voter,
		AuthorityID: r.AuthorityID,
		Reference:   r.Reference,
		Timestamp:   time.Unix(0, r.Timestamp).UTC(),
	}
}
