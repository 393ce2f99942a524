package storage

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vocdoni/vocdoni-credentials/crypto/leaf"
	"github.com/vocdoni/vocdoni-credentials/log"
	"github.com/vocdoni/vocdoni-credentials/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Election retrieves an election. It returns ErrNotFound if the election
// has not been issued.
func (s *Storage) Election(id types.ElectionID) (*types.Election, error) {
	rec := &electionRecord{}
	if err := s.getArtifact(electionPrefix, electionKey(id), rec); err != nil {
		return nil, err
	}
	return rec.election(), nil
}

// ListElections returns the IDs of every issued election, sorted.
func (s *Storage) ListElections() ([]types.ElectionID, error) {
	var ids []types.ElectionID
	pr := prefixeddb.NewPrefixedReader(s.db, electionPrefix)
	if err := pr.Iterate(nil, func(k, _ []byte) bool {
		ids = append(ids, types.ElectionID(k))
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate elections: %w", err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// IssueCredentials stores the election and all its credentials in a single
// transaction. It returns types.ErrAlreadyIssued, without writing anything,
// if the election already exists. Concurrent calls for the same election
// are serialized and at most one of them commits.
func (s *Storage) IssueCredentials(e *types.Election, creds []*types.Credential) error {
	if e == nil {
		return fmt.Errorf("nil election")
	}
	if len(e.Root) != types.HashSize {
		return fmt.Errorf("%w: root must be %d bytes", types.ErrValidation, types.HashSize)
	}
	if len(creds) == 0 || len(creds) != e.VoterCount {
		return fmt.Errorf("%w: %d credentials for %d voters", types.ErrCountMismatch, len(creds), e.VoterCount)
	}

	unlock := s.locks.Lock(string(electionPrefix) + string(e.ID))
	defer unlock()

	if _, err := prefixeddb.NewPrefixedReader(s.db, electionPrefix).Get(electionKey(e.ID)); err == nil {
		return fmt.Errorf("%w: %s", types.ErrAlreadyIssued, e.ID)
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return err
	}

	wTx := s.db.WriteTx()
	defer wTx.Discard()
	cTx := prefixeddb.NewPrefixedWriteTx(wTx, credentialPrefix)
	seen := make(map[string]struct{}, len(creds))
	for i, c := range creds {
		if c.ElectionID != e.ID {
			return fmt.Errorf("%w: credential %d belongs to election %s", types.ErrValidation, i, c.ElectionID)
		}
		if _, dup := seen[c.Identity]; dup {
			return fmt.Errorf("%w: duplicated identity at position %d", types.ErrInvalidIdentity, i)
		}
		seen[c.Identity] = struct{}{}
		if len(c.Secret) != types.SecretSize {
			return fmt.Errorf("%w: credential %d", types.ErrInvalidSecret, i)
		}
		val, err := encodeArtifact(&credentialRecord{
			Identity: c.Identity,
			Index:    i,
			Secret:   c.Secret,
		})
		if err != nil {
			return fmt.Errorf("encode credential: %w", err)
		}
		if err := cTx.Set(voterKey(e.ID, c.Identity), val); err != nil {
			return err
		}
	}

	val, err := encodeArtifact(newElectionRecord(e))
	if err != nil {
		return fmt.Errorf("encode election: %w", err)
	}
	if err := prefixeddb.NewPrefixedWriteTx(wTx, electionPrefix).Set(electionKey(e.ID), val); err != nil {
		return err
	}
	if err := wTx.Commit(); err != nil {
		return fmt.Errorf("commit issuance: %w", err)
	}
	log.Debugw("election credentials stored", "election", e.ID, "credentials", len(creds))
	return nil
}

// SuspendElection flags the election as suspended. The first reason is
// kept if the election was already suspended.
func (s *Storage) SuspendElection(id types.ElectionID, reason string) error {
	unlock := s.locks.Lock(string(electionPrefix) + string(id))
	defer unlock()

	rec := &electionRecord{}
	if err := s.getArtifact(electionPrefix, electionKey(id), rec); err != nil {
		return err
	}
	if rec.Suspended {
		return nil
	}
	rec.Suspended = true
	rec.SuspendReason = reason
	return s.setArtifact(electionPrefix, electionKey(id), rec)
}

// Credential returns the credential of a voter. It returns ErrNotFound if
// the voter has none in the election.
func (s *Storage) Credential(id types.ElectionID, voter string) (*types.Credential, error) {
	rec := &credentialRecord{}
	if err := s.getArtifact(credentialPrefix, voterKey(id, voter), rec); err != nil {
		return nil, err
	}
	return rec.credential(id)
}

// Credentials returns every credential of the election in issuance order.
// It returns ErrNotFound if the election holds no credentials.
func (s *Storage) Credentials(id types.ElectionID) ([]*types.Credential, error) {
	var creds []*types.Credential
	var decodeErr error
	pr := prefixeddb.NewPrefixedReader(s.db, credentialPrefix)
	if err := pr.Iterate(electionScope(id), func(_, v []byte) bool {
		rec := &credentialRecord{}
		if decodeErr = decodeArtifact(v, rec); decodeErr != nil {
			return false
		}
		c, err := rec.credential(id)
		if err != nil {
			decodeErr = err
			return false
		}
		creds = append(creds, c)
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode credential: %w", decodeErr)
	}
	if len(creds) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i].Index < creds[j].Index })
	return creds, nil
}

func (r *credentialRecord) credential(id types.ElectionID) (*types.Credential, error) {
	secret, err := leaf.SecretFromBytes(r.Secret)
	if err != nil {
		return nil, err
	}
	l := leaf.Hash(secret)
	return &types.Credential{
		ElectionID: id,
		Identity:   r.Identity,
		Index:      r.Index,
		Secret:     secret.Bytes(),
		Leaf:       l.Bytes(),
	}, nil
}
