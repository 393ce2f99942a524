package types

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ElectionID identifies an election. It is an opaque, printable string.
type ElectionID string

// Validate checks the election ID is non-empty, bounded and printable.
func (id ElectionID) Validate() error {
	if err := validateText(string(id), MaxElectionIDLen); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidElectionID, err)
	}
	return nil
}

func (id ElectionID) String() string {
	return string(id)
}

// ValidateIdentity checks a voter identity is non-empty, bounded and
// printable.
func ValidateIdentity(identity string) error {
	if err := validateText(identity, MaxIdentityLen); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return nil
}

func validateText(s string, maxLen int) error {
	switch {
	case s == "":
		return fmt.Errorf("empty value")
	case len(s) > maxLen:
		return fmt.Errorf("value longer than %d bytes", maxLen)
	case !utf8.ValidString(s):
		return fmt.Errorf("value is not valid utf-8")
	case strings.TrimSpace(s) != s:
		return fmt.Errorf("value has leading or trailing spaces")
	case strings.IndexFunc(s, unicode.IsControl) >= 0:
		return fmt.Errorf("value contains control characters")
	}
	return nil
}

// Election is the write-once commitment of an election voter roll.
type Election struct {
	ID            ElectionID `json:"id"`
	VoterCount    int        `json:"voterCount"`
	Root          HexBytes   `json:"root"`
	IssuanceID    uuid.UUID  `json:"issuanceId"`
	IssuedAt      time.Time  `json:"issuedAt"`
	Suspended     bool       `json:"suspended"`
	SuspendReason string     `json:"suspendReason,omitempty"`
}

// Credential is the secret issued to one voter of an election. Index is the
// position of its leaf in the tree, which is the issuance order.
type Credential struct {
	ElectionID ElectionID `json:"electionId"`
	Identity   string     `json:"voter"`
	Index      int        `json:"index"`
	Secret     HexBytes   `json:"secret"`
	Leaf       HexBytes   `json:"leaf"`
}

// VoteRecord states that a voter completed an election under one verifying
// authority. AuthorityID is the chain ID of the authority.
type VoteRecord struct {
	ElectionID  ElectionID `json:"electionId"`
	Voter       string     `json:"voter"`
	AuthorityID uint64     `json:"authorityId"`
	Reference   string     `json:"reference"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Validate checks the fields provided by the caller.
func (r *VoteRecord) Validate() error {
	if err := r.ElectionID.Validate(); err != nil {
		return err
	}
	if err := ValidateIdentity(r.Voter); err != nil {
		return err
	}
	if r.AuthorityID == 0 {
		return fmt.Errorf("%w: missing authority id", ErrInvalidVote)
	}
	if err := validateText(r.Reference, MaxReferenceLen); err != nil {
		return fmt.Errorf("%w: reference: %v", ErrInvalidVote, err)
	}
	return nil
}

// VoteOutcome is the result of recording a vote completion. When the ledger
// already held a record for the voter, ExistingAuthority names the authority
// of that record and Record holds it unchanged.
type VoteOutcome struct {
	Accepted          bool        `json:"accepted"`
	ExistingAuthority uint64      `json:"existingAuthority,omitempty"`
	Record            *VoteRecord `json:"record,omitempty"`
}

// VoterCredential is what a voter needs to prove membership: the secret,
// its leaf, the inclusion proof from the leaf up to the root, and the root.
type VoterCredential struct {
	ElectionID ElectionID `json:"electionId"`
	Voter      string     `json:"voter"`
	Secret     HexBytes   `json:"secret"`
	Leaf       HexBytes   `json:"leaf"`
	Proof      []HexBytes `json:"proof"`
	Root       HexBytes   `json:"root"`
}

// Issuance summarizes a successful credential issuance.
type Issuance struct {
	ElectionID  ElectionID `json:"electionId"`
	Root        HexBytes   `json:"root"`
	TotalIssued int        `json:"totalIssued"`
	IssuanceID  uuid.UUID  `json:"issuanceId"`
}
