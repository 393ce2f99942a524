package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vocdoni/vocdoni-credentials/log"
	"github.com/vocdoni/vocdoni-credentials/types"
)

// HasVoted reports whether a completion record exists for the voter.
func (s *Storage) HasVoted(ctx context.Context, id types.ElectionID, voter string) (bool, error) {
	if _, err := s.VoteRecord(ctx, id, voter); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// VoteRecord returns the completion record of a voter, or ErrNotFound.
func (s *Storage) VoteRecord(ctx context.Context, id types.ElectionID, voter string) (*types.VoteRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec := &voteRecord{}
	if err := s.getArtifact(votePrefix, voterKey(id, voter), rec); err != nil {
		return nil, err
	}
	return rec.vote(id, voter), nil
}

// RecordVote stores the completion record if the voter has none yet. The
// first record is never overwritten: later calls report the authority that
// holds it. Writers of the same (election, voter) key are serialized, so a
// race between authorities has exactly one winner.
func (s *Storage) RecordVote(ctx context.Context, r *types.VoteRecord) (*types.VoteOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	key := voterKey(r.ElectionID, r.Voter)
	unlock := s.locks.Lock(string(votePrefix) + string(key))
	defer unlock()

	existing := &voteRecord{}
	err := s.getArtifact(votePrefix, key, existing)
	switch {
	case err == nil:
		return &types.VoteOutcome{
			Accepted:          existing.AuthorityID == r.AuthorityID,
			ExistingAuthority: existing.AuthorityID,
			Record:            existing.vote(r.ElectionID, r.Voter),
		}, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	rec := &voteRecord{
		AuthorityID: r.AuthorityID,
		Reference:   r.Reference,
		Timestamp:   ts.UnixNano(),
	}
	if err := s.setArtifact(votePrefix, key, rec); err != nil {
		return nil, err
	}
	log.Debugw("vote completion recorded", "election", r.ElectionID, "authority", r.AuthorityID)
	return &types.VoteOutcome{
		Accepted: true,
		Record:   rec.vote(r.ElectionID, r.Voter),
	}, nil
}
