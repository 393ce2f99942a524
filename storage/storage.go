// Package storage persists the credential commitments and the vote completion
// ledger. It is built on a prefixed key-value store with the following
// prefixes:
//   - 'e/' for elections (write-once root)
//   - 'c/' for credentials, keyed by election and voter
//   - 'v/' for vote completion records, keyed by election and voter
//
// Every mutation is committed in a single write transaction, so readers
// never observe partial state.
package storage

import (
	"fmt"

	"go.vocdoni.io/dvote/db"
)

var (
	// Prefixes for the keys in the database.
	electionPrefix   = []byte("e/")
	credentialPrefix = []byte("c/")
	votePrefix       = []byte("v/")
)

// ErrNotFound is returned when the requested artifact does not exist.
var ErrNotFound = fmt.Errorf("not found")

// Storage is the persistent store of elections, credentials and vote
// records.
type Storage struct {
	db    db.Database
	locks *keyedMutex
}

// New creates a new Storage instance.
func New(db db.Database) *Storage {
	return &Storage{
		db:    db,
		locks: newKeyedMutex(),
	}
}

// Close closes the storage.
func (s *Storage) Close() {
	s.db.Close()
}
