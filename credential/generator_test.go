package credential

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/vocdoni-credentials/crypto/leaf"
	"github.com/vocdoni/vocdoni-credentials/types"
)

func voters(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("voter-%d", i)
	}
	return ids
}

func TestGenerate(t *testing.T) {
	c := qt.New(t)
	g := NewGenerator(nil)

	secrets, err := g.Generate("E1", voters(100), 100)
	c.Assert(err, qt.IsNil)
	c.Assert(secrets, qt.HasLen, 100)

	seen := make(map[leaf.Secret]bool)
	for _, s := range secrets {
		c.Assert(seen[s], qt.IsFalse)
		c.Assert(s, qt.Not(qt.Equals), leaf.Secret{})
		seen[s] = true
	}
}

func TestGenerateCountMismatch(t *testing.T) {
	c := qt.New(t)
	_, err := NewGenerator(nil).Generate("E1", []string{"A", "B", "C"}, 5)
	c.Assert(errors.Is(err, types.ErrCountMismatch), qt.IsTrue)
	c.Assert(errors.Is(err, types.ErrValidation), qt.IsTrue)
}

func TestGenerateInvalidInput(t *testing.T) {
	c := qt.New(t)
	g := NewGenerator(nil)

	for _, ids := range [][]string{
		{"A", ""},
		{"A", " B"},
		{"A", "B\x00"},
		{"A", strings.Repeat("x", types.MaxIdentityLen+1)},
		{"A", "A"},
	} {
		_, err := g.Generate("E1", ids, len(ids))
		c.Assert(errors.Is(err, types.ErrInvalidIdentity), qt.IsTrue, qt.Commentf("ids %q", ids))
	}

	_, err := g.Generate("", []string{"A"}, 1)
	c.Assert(errors.Is(err, types.ErrInvalidElectionID), qt.IsTrue)

	_, err = g.Generate("E1", nil, 0)
	c.Assert(errors.Is(err, types.ErrValidation), qt.IsTrue)
}

func TestGenerateRedrawsCollisions(t *testing.T) {
	c := qt.New(t)
	// the first two draws are equal, the third one differs
	src := append(bytes.Repeat([]byte{1}, 2*types.SecretSize), bytes.Repeat([]byte{2}, types.SecretSize)...)
	secrets, err := NewGenerator(bytes.NewReader(src)).Generate("E1", []string{"A", "B"}, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(secrets[0], qt.Not(qt.Equals), secrets[1])

	// a constant source never yields a second distinct secret
	constant := bytes.Repeat([]byte{1}, (maxCollisionRetries+1)*types.SecretSize)
	_, err = NewGenerator(bytes.NewReader(constant)).Generate("E1", []string{"A", "B"}, 2)
	c.Assert(err, qt.ErrorMatches, "random source keeps producing duplicated secrets")
}
