// Package issuer exposes the credential issuance core: issuing the
// credentials of an election, serving each voter its secret and inclusion
// proof, and keeping the cross-authority vote ledger.
package issuer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/vocdoni-credentials/credential"
	"github.com/vocdoni/vocdoni-credentials/log"
	"github.com/vocdoni/vocdoni-credentials/merkle"
	"github.com/vocdoni/vocdoni-credentials/proofcache"
	"github.com/vocdoni/vocdoni-credentials/storage"
	"github.com/vocdoni/vocdoni-credentials/types"
)

// Store persists elections and their credentials. storage.Storage
// implements it.
type Store interface {
	proofcache.Source
	ListElections() ([]types.ElectionID, error)
	IssueCredentials(e *types.Election, creds []*types.Credential) error
	Credential(id types.ElectionID, voter string) (*types.Credential, error)
	SuspendElection(id types.ElectionID, reason string) error
}

// VoteLedger keeps at most one completion record per voter and election.
// storage.Storage and sqlledger.Ledger implement it.
type VoteLedger interface {
	HasVoted(ctx context.Context, id types.ElectionID, voter string) (bool, error)
	VoteRecord(ctx context.Context, id types.ElectionID, voter string) (*types.VoteRecord, error)
	RecordVote(ctx context.Context, r *types.VoteRecord) (*types.VoteOutcome, error)
}

// Config holds the collaborators of an Issuer. Store and Ledger are
// required, the rest fall back to defaults.
type Config struct {
	Store     Store
	Ledger    VoteLedger
	Cache     *proofcache.Cache
	CacheSize int
	Generator *credential.Generator
}

// Issuer is safe for concurrent use.
type Issuer struct {
	store     Store
	ledger    VoteLedger
	cache     *proofcache.Cache
	generator *credential.Generator
}

// New creates an Issuer.
func New(conf *Config) (*Issuer, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing issuer configuration")
	}
	if conf.Store == nil {
		return nil, fmt.Errorf("missing credential store")
	}
	if conf.Ledger == nil {
		return nil, fmt.Errorf("missing vote ledger")
	}
	i := &Issuer{
		store:     conf.Store,
		ledger:    conf.Ledger,
		cache:     conf.Cache,
		generator: conf.Generator,
	}
	if i.cache == nil {
		var err error
		if i.cache, err = proofcache.New(conf.Store, conf.CacheSize); err != nil {
			return nil, fmt.Errorf("failed to create proof cache: %w", err)
		}
	}
	if i.generator == nil {
		i.generator = credential.NewGenerator(nil)
	}
	return i, nil
}

// IssueCredentials generates a secret for every voter, commits the secrets
// into a tree and stores the election, its root and every credential in a
// single transaction. Voters keep their position in the tree. It fails with
// types.ErrAlreadyIssued if the election already has credentials, and with
// a types.ErrValidation kind for malformed input; in both cases nothing is
// stored.
func (i *Issuer) IssueCredentials(ctx context.Context, id types.ElectionID, voters []string, numVoters int) (*types.Issuance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := id.Validate(); err != nil {
		return nil, err
	}
	// fast path, the store transaction is what actually arbitrates
	if _, err := i.store.Election(id); err == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrAlreadyIssued, id)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	secrets, err := i.generator.Generate(id, voters, numVoters)
	if err != nil {
		return nil, err
	}
	leaves := make([]common.Hash, len(secrets))
	creds := make([]*types.Credential, len(secrets))
	for n, s := range secrets {
		leaves[n] = s.Leaf()
		creds[n] = &types.Credential{
			ElectionID: id,
			Identity:   voters[n],
			Index:      n,
			Secret:     s.Bytes(),
			Leaf:       leaves[n].Bytes(),
		}
	}
	tree, err := merkle.New(leaves)
	if err != nil {
		return nil, fmt.Errorf("failed to build tree: %w", err)
	}
	election := &types.Election{
		ID:         id,
		VoterCount: len(creds),
		Root:       tree.Root().Bytes(),
		IssuanceID: uuid.New(),
		IssuedAt:   time.Now(),
	}
	if err := i.store.IssueCredentials(election, creds); err != nil {
		return nil, err
	}
	credentialsIssued.Add(float64(len(creds)))
	electionsIssued.Inc()
	log.Infow("credentials issued",
		"election", id,
		"voters", len(creds),
		"root", tree.Root().Hex(),
		"issuanceId", election.IssuanceID.String())
	return &types.Issuance{
		ElectionID:  id,
		Root:        election.Root,
		TotalIssued: len(creds),
		IssuanceID:  election.IssuanceID,
	}, nil
}

// Election returns the election record. It returns
// types.ErrElectionNotFound if the election was never issued.
func (i *Issuer) Election(id types.ElectionID) (*types.Election, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	e, err := i.store.Election(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", types.ErrElectionNotFound, id)
	}
	return e, err
}

// ListElections returns the IDs of every issued election, suspended ones
// included.
func (i *Issuer) ListElections() ([]types.ElectionID, error) {
	ids, err := i.store.ListElections()
	if err != nil {
		return nil, fmt.Errorf("failed to list elections: %w", err)
	}
	return ids, nil
}

// VoterCredential returns the secret of the voter together with its leaf,
// inclusion proof and the election root. Unknown elections and voters
// without credentials fail with types.ErrNotEligible. Suspended elections
// fail with types.ErrCommitmentMismatch.
func (i *Issuer) VoterCredential(ctx context.Context, id types.ElectionID, voter string) (*types.VoterCredential, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if err := types.ValidateIdentity(voter); err != nil {
		return nil, err
	}
	if _, err := i.activeElection(id); err != nil {
		return nil, err
	}
	entry, err := i.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	cred, proof, err := entry.Credential(voter)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s in election %s", types.ErrNotEligible, voter, id)
	}
	if err != nil {
		return nil, err
	}
	vc := &types.VoterCredential{
		ElectionID: id,
		Voter:      voter,
		Secret:     cred.Secret,
		Leaf:       cred.Leaf,
		Proof:      make([]types.HexBytes, len(proof)),
		Root:       entry.Root().Bytes(),
	}
	for n, p := range proof {
		vc.Proof[n] = p.Bytes()
	}
	return vc, nil
}

// ExportCredentials returns every credential of the election in issuance
// order. It is an administrative operation and also works on suspended
// elections.
func (i *Issuer) ExportCredentials(id types.ElectionID) ([]*types.Credential, error) {
	if _, err := i.Election(id); err != nil {
		return nil, err
	}
	creds, err := i.store.Credentials(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: election %s has no credentials", types.ErrInconsistentState, id)
	}
	if err != nil {
		return nil, err
	}
	log.Infow("credentials exported", "election", id, "credentials", len(creds))
	return creds, nil
}

// VerifyCommitment rebuilds the tree from the stored secrets and checks its
// root against the stored one. On mismatch the election is suspended and
// types.ErrCommitmentMismatch is returned.
func (i *Issuer) VerifyCommitment(ctx context.Context, id types.ElectionID) (*types.Election, error) {
	if _, err := i.Election(id); err != nil {
		return nil, err
	}
	entry, err := i.cache.Refresh(ctx, id)
	if err != nil {
		if errors.Is(err, types.ErrCommitmentMismatch) {
			i.suspend(id, err)
		}
		return nil, err
	}
	e := *entry.Election
	e.Root = bytes.Clone(e.Root)
	return &e, nil
}

// HasVoted reports whether the ledger holds a completion record for the
// voter.
func (i *Issuer) HasVoted(ctx context.Context, id types.ElectionID, voter string) (bool, error) {
	if err := id.Validate(); err != nil {
		return false, err
	}
	if err := types.ValidateIdentity(voter); err != nil {
		return false, err
	}
	return i.ledger.HasVoted(ctx, id, voter)
}

// VoteRecord returns the completion record of the voter. It returns
// storage.ErrNotFound if the voter has not completed the election.
func (i *Issuer) VoteRecord(ctx context.Context, id types.ElectionID, voter string) (*types.VoteRecord, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if err := types.ValidateIdentity(voter); err != nil {
		return nil, err
	}
	return i.ledger.VoteRecord(ctx, id, voter)
}

// RecordVote records that the voter completed the election under the given
// authority. Only the first authority is kept: a later call from another
// authority returns Accepted false and the existing authority, a repeated
// call from the same authority returns Accepted true. The voter must hold a
// credential in an active election.
func (i *Issuer) RecordVote(ctx context.Context, r *types.VoteRecord) (*types.VoteOutcome, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: missing vote record", types.ErrInvalidVote)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if _, err := i.activeElection(r.ElectionID); err != nil {
		return nil, err
	}
	if _, err := i.store.Credential(r.ElectionID, r.Voter); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s in election %s", types.ErrNotEligible, r.Voter, r.ElectionID)
		}
		return nil, err
	}
	out, err := i.ledger.RecordVote(ctx, r)
	if err != nil {
		return nil, err
	}
	switch {
	case out.ExistingAuthority == 0:
		voteRecords.WithLabelValues("accepted").Inc()
		log.Infow("vote completion recorded", "election", r.ElectionID, "authority", r.AuthorityID)
	case out.Accepted:
		voteRecords.WithLabelValues("repeated").Inc()
	default:
		voteRecords.WithLabelValues("rejected").Inc()
		log.Infow(types.ErrDuplicateVote.Error(),
			"election", r.ElectionID,
			"authority", r.AuthorityID,
			"existingAuthority", out.ExistingAuthority)
	}
	return out, nil
}

// activeElection loads the election and fails if it is unknown or
// suspended.
func (i *Issuer) activeElection(id types.ElectionID) (*types.Election, error) {
	e, err := i.store.Election(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", types.ErrNotEligible, types.ErrElectionNotFound)
	}
	if err != nil {
		return nil, err
	}
	if e.Suspended {
		return nil, fmt.Errorf("%w: election %s is suspended: %s", types.ErrCommitmentMismatch, id, e.SuspendReason)
	}
	return e, nil
}

// entry returns the cached tree, suspending the election if the rebuild
// finds a commitment mismatch.
func (i *Issuer) entry(ctx context.Context, id types.ElectionID) (*proofcache.Entry, error) {
	entry, err := i.cache.Get(ctx, id)
	if err != nil {
		if errors.Is(err, types.ErrCommitmentMismatch) {
			i.suspend(id, err)
		}
		return nil, err
	}
	return entry, nil
}

func (i *Issuer) suspend(id types.ElectionID, cause error) {
	i.cache.Evict(id)
	if err := i.store.SuspendElection(id, cause.Error()); err != nil {
		log.Errorw(err, "failed to suspend election", "election", id)
		return
	}
	electionsSuspended.Inc()
	log.Errorw(cause, "election suspended, operator intervention required", "election", id)
}
