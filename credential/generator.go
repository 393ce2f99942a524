// Package credential generates the per-voter secrets of an election.
package credential

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/vocdoni/vocdoni-credentials/crypto/leaf"
	"github.com/vocdoni/vocdoni-credentials/types"
)

// maxCollisionRetries bounds how many times a colliding secret is redrawn
// before giving up on a broken random source.
const maxCollisionRetries = 8

// Generator produces one fixed-width random secret per voter identity. It has
// no side effects; persisting the result is up to the caller.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a Generator reading from r. A nil reader selects
// crypto/rand.
func NewGenerator(r io.Reader) *Generator {
	if r == nil {
		r = rand.Reader
	}
	return &Generator{rand: r}
}

// Generate returns a secret for every identity, in the same order. The
// number of identities must equal numVoters and identities must be unique
// and well formed. No two returned secrets are equal.
func (g *Generator) Generate(electionID types.ElectionID, identities []string, numVoters int) ([]leaf.Secret, error) {
	if err := electionID.Validate(); err != nil {
		return nil, err
	}
	if numVoters <= 0 || numVoters > types.MaxVotersPerElection {
		return nil, fmt.Errorf("%w: voter count %d out of range", types.ErrValidation, numVoters)
	}
	if len(identities) != numVoters {
		return nil, fmt.Errorf("%w: got %d identities, expected %d", types.ErrCountMismatch, len(identities), numVoters)
	}
	seenIdentity := make(map[string]struct{}, len(identities))
	for i, id := range identities {
		if err := types.ValidateIdentity(id); err != nil {
			return nil, fmt.Errorf("identity at position %d: %w", i, err)
		}
		if _, dup := seenIdentity[id]; dup {
			return nil, fmt.Errorf("%w: duplicated identity at position %d", types.ErrInvalidIdentity, i)
		}
		seenIdentity[id] = struct{}{}
	}

	secrets := make([]leaf.Secret, len(identities))
	seenSecret := make(map[leaf.Secret]struct{}, len(identities))
	for i := range secrets {
		var s leaf.Secret
		var err error
		for try := 0; ; try++ {
			if try == maxCollisionRetries {
				return nil, fmt.Errorf("random source keeps producing duplicated secrets")
			}
			if s, err = leaf.NewSecret(g.rand); err != nil {
				return nil, err
			}
			if _, dup := seenSecret[s]; !dup {
				break
			}
		}
		seenSecret[s] = struct{}{}
		secrets[i] = s
	}
	return secrets, nil
}
