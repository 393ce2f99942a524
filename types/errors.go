package types

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the parent of every malformed-input error. Inputs
	// rejected with it never reach the storage.
	ErrValidation = errors.New("validation error")
	// ErrCountMismatch is returned when the number of voter identities does
	// not match the requested voter count.
	ErrCountMismatch = fmt.Errorf("%w: voter count mismatch", ErrValidation)
	// ErrInvalidIdentity is returned for empty, oversized, duplicated or
	// otherwise malformed voter identities.
	ErrInvalidIdentity = fmt.Errorf("%w: invalid voter identity", ErrValidation)
	// ErrInvalidElectionID is returned for malformed election IDs.
	ErrInvalidElectionID = fmt.Errorf("%w: invalid election id", ErrValidation)
	// ErrInvalidSecret is returned when a credential secret cannot be parsed.
	ErrInvalidSecret = fmt.Errorf("%w: invalid credential secret", ErrValidation)
	// ErrInvalidVote is returned for malformed vote records.
	ErrInvalidVote = fmt.Errorf("%w: invalid vote record", ErrValidation)

	// ErrAlreadyIssued is returned when credentials were already issued for
	// the election. Nothing is mutated.
	ErrAlreadyIssued = errors.New("credentials already issued for election")
	// ErrNotEligible is returned when the voter holds no credential in the
	// election.
	ErrNotEligible = errors.New("voter not eligible")
	// ErrElectionNotFound is returned when the election does not exist.
	ErrElectionNotFound = errors.New("election not found")
	// ErrCommitmentMismatch is returned when the root recomputed from the
	// stored secrets differs from the published root. Voting for the
	// election is suspended.
	ErrCommitmentMismatch = errors.New("commitment mismatch")
	// ErrDuplicateVote is informational: the ledger already holds a
	// completion record for the voter.
	ErrDuplicateVote = errors.New("duplicate vote attempt")
	// ErrInconsistentState is returned when the stored credentials cannot be
	// turned into a tree (missing or incomplete secret set).
	ErrInconsistentState = errors.New("inconsistent credential state")
	// ErrLeafNotFound is returned when a leaf is not part of a tree.
	ErrLeafNotFound = errors.New("leaf not found")
)
