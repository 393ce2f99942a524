// Package proofcache keeps the Merkle trees of issued elections in memory.
//
// A tree is rebuilt from the stored secrets the first time an election is
// requested and then served from memory. Issued credentials never change, so
// entries never go stale: they are only evicted when the cache is full and
// rebuilt on the next request. Concurrent requests for an election that is
// not cached share a single rebuild.
package proofcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vocdoni/vocdoni-credentials/log"
	"github.com/vocdoni/vocdoni-credentials/merkle"
	"github.com/vocdoni/vocdoni-credentials/storage"
	"github.com/vocdoni/vocdoni-credentials/types"
	"golang.org/x/sync/singleflight"
)

// DefaultSize is the number of elections kept in memory when no size is
// configured.
const DefaultSize = 128

// Source provides the issued state the trees are rebuilt from.
type Source interface {
	Election(id types.ElectionID) (*types.Election, error)
	Credentials(id types.ElectionID) ([]*types.Credential, error)
}

// Entry is the in-memory tree of one election.
type Entry struct {
	Election *types.Election
	Tree     *merkle.Tree
	creds    []*types.Credential
	byVoter  map[string]int
}

// Credential returns a copy of the credential of a voter and its inclusion
// proof. It returns storage.ErrNotFound if the voter holds no credential.
func (e *Entry) Credential(voter string) (*types.Credential, []common.Hash, error) {
	i, ok := e.byVoter[voter]
	if !ok {
		return nil, nil, storage.ErrNotFound
	}
	proof, err := e.Tree.ProofByIndex(i)
	if err != nil {
		return nil, nil, err
	}
	// the entry is shared by every caller, never hand out its buffers
	c := *e.creds[i]
	c.Secret = bytes.Clone(c.Secret)
	c.Leaf = bytes.Clone(c.Leaf)
	return &c, proof, nil
}

// Root returns the root of the tree.
func (e *Entry) Root() common.Hash {
	return e.Tree.Root()
}

// Cache is a bounded cache of election trees.
type Cache struct {
	src     Source
	entries *lru.Cache[types.ElectionID, *Entry]
	group   singleflight.Group
}

// New creates a cache holding up to size elections. A size of zero or less
// uses DefaultSize.
func New(src Source, size int) (*Cache, error) {
	if src == nil {
		return nil, fmt.Errorf("proof cache needs a source")
	}
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.NewWithEvict(size, func(id types.ElectionID, _ *Entry) {
		evictions.Inc()
		log.Debugw("proof cache entry evicted", "election", id)
	})
	if err != nil {
		return nil, err
	}
	return &Cache{src: src, entries: entries}, nil
}

// Get returns the tree of the election, rebuilding it if it is not cached.
// Failed rebuilds are not cached, so a later call retries. If ctx is done
// before the rebuild finishes Get returns ctx.Err() and the rebuild carries
// on for the other waiters.
func (c *Cache) Get(ctx context.Context, id types.ElectionID) (*Entry, error) {
	if e, ok := c.entries.Get(id); ok {
		hits.Inc()
		return e, nil
	}
	misses.Inc()
	return c.load(ctx, id, false)
}

// Refresh drops the cached tree, if any, and rebuilds it from the source.
func (c *Cache) Refresh(ctx context.Context, id types.ElectionID) (*Entry, error) {
	c.entries.Remove(id)
	return c.load(ctx, id, true)
}

// Evict drops the cached tree of the election.
func (c *Cache) Evict(id types.ElectionID) {
	c.entries.Remove(id)
}

// Len returns the number of cached elections.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) load(ctx context.Context, id types.ElectionID, force bool) (*Entry, error) {
	key := "get/" + string(id)
	if force {
		key = "refresh/" + string(id)
	}
	ch := c.group.DoChan(key, func() (any, error) {
		// another flight may have stored the entry while this one was queued
		if e, ok := c.entries.Peek(id); ok && !force {
			return e, nil
		}
		e, err := c.build(id)
		if err != nil {
			return nil, err
		}
		c.entries.Add(id, e)
		return e, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entry), nil
	}
}

// build recomputes the tree and checks it against the stored root.
func (c *Cache) build(id types.ElectionID) (*Entry, error) {
	rebuilds.Inc()
	election, err := c.src.Election(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", types.ErrElectionNotFound, id)
		}
		return nil, fmt.Errorf("load election %s: %w", id, err)
	}
	creds, err := c.src.Credentials(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: election %s has no credentials", types.ErrInconsistentState, id)
		}
		return nil, fmt.Errorf("load credentials of %s: %w", id, err)
	}
	if len(creds) != election.VoterCount {
		return nil, fmt.Errorf("%w: election %s has %d credentials for %d voters",
			types.ErrInconsistentState, id, len(creds), election.VoterCount)
	}

	leaves := make([]common.Hash, len(creds))
	byVoter := make(map[string]int, len(creds))
	for i, cred := range creds {
		if cred.Index != i {
			return nil, fmt.Errorf("%w: election %s misses the credential at position %d",
				types.ErrInconsistentState, id, i)
		}
		leaves[i] = common.BytesToHash(cred.Leaf)
		byVoter[cred.Identity] = i
	}
	tree, err := merkle.New(leaves)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInconsistentState, err)
	}
	if root := tree.Root(); root != common.BytesToHash(election.Root) {
		mismatches.Inc()
		return nil, fmt.Errorf("%w: election %s stores root %s, secrets yield %s",
			types.ErrCommitmentMismatch, id, election.Root, root)
	}
	log.Debugw("proof cache entry built", "election", id, "leaves", len(leaves), "root", tree.Root().Hex())
	return &Entry{
		Election: election,
		Tree:     tree,
		creds:    creds,
		byVoter:  byVoter,
	}, nil
}
