package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/vocdoni-credentials/types"
	"github.com/vocdoni/vocdoni-credentials/util"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
)

// testElection returns an election and n credentials with random secrets.
// The root is random too: storage does not check it against the secrets.
func testElection(id types.ElectionID, n int) (*types.Election, []*types.Credential) {
	e := &types.Election{
		ID:         id,
		VoterCount: n,
		Root:       util.RandomBytes(types.HashSize),
		IssuanceID: uuid.New(),
		IssuedAt:   time.Now(),
	}
	creds := make([]*types.Credential, n)
	for i := range creds {
		creds[i] = &types.Credential{
			ElectionID: id,
			// reverse lexicographic order, to check the issuance order is kept
			Identity: fmt.Sprintf("voter-%03d", n-i),
			Secret:   util.RandomBytes(types.SecretSize),
		}
	}
	return e, creds
}

func TestIssueCredentials(t *testing.T) {
	c := qt.New(t)
	st := New(metadb.NewTest(t))

	_, err := st.Election("E1")
	c.Assert(err, qt.Equals, ErrNotFound)

	e, creds := testElection("E1", 5)
	c.Assert(st.IssueCredentials(e, creds), qt.IsNil)

	stored, err := st.Election("E1")
	c.Assert(err, qt.IsNil)
	c.Assert(stored.ID, qt.Equals, e.ID)
	c.Assert(stored.VoterCount, qt.Equals, 5)
	c.Assert(stored.Root, qt.DeepEquals, e.Root)
	c.Assert(stored.IssuanceID, qt.Equals, e.IssuanceID)
	c.Assert(stored.IssuedAt.Equal(e.IssuedAt), qt.IsTrue)
	c.Assert(stored.Suspended, qt.IsFalse)

	all, err := st.Credentials("E1")
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 5)
	for i, cred := range all {
		c.Assert(cred.Index, qt.Equals, i)
		c.Assert(cred.Identity, qt.Equals, creds[i].Identity)
		c.Assert(cred.Secret, qt.DeepEquals, creds[i].Secret)
		c.Assert(cred.Leaf, qt.HasLen, types.HashSize)
	}

	one, err := st.Credential("E1", creds[2].Identity)
	c.Assert(err, qt.IsNil)
	c.Assert(one, qt.DeepEquals, all[2])

	_, err = st.Credential("E1", "unknown")
	c.Assert(err, qt.Equals, ErrNotFound)

	ids, err := st.ListElections()
	c.Assert(err, qt.IsNil)
	c.Assert(ids, qt.DeepEquals, []types.ElectionID{"E1"})
}

func TestIssueTwice(t *testing.T) {
	c := qt.New(t)
	st := New(metadb.NewTest(t))

	e, creds := testElection("E1", 3)
	c.Assert(st.IssueCredentials(e, creds), qt.IsNil)

	e2, creds2 := testElection("E1", 4)
	err := st.IssueCredentials(e2, creds2)
	c.Assert(errors.Is(err, types.ErrAlreadyIssued), qt.IsTrue)

	// first issuance is unchanged
	stored, err := st.Election("E1")
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Root, qt.DeepEquals, e.Root)
	all, err := st.Credentials("E1")
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 3)
	_, err = st.Credential("E1", creds2[0].Identity)
	c.Assert(err, qt.Equals, ErrNotFound)
}

func TestIssueIsAllOrNothing(t *testing.T) {
	c := qt.New(t)
	st := New(metadb.NewTest(t))

	e, creds := testElection("E1", 4)
	creds[3].Identity = creds[1].Identity
	err := st.IssueCredentials(e, creds)
	c.Assert(errors.Is(err, types.ErrInvalidIdentity), qt.IsTrue)

	_, err = st.Election("E1")
	c.Assert(err, qt.Equals, ErrNotFound)
	_, err = st.Credentials("E1")
	c.Assert(err, qt.Equals, ErrNotFound)

	e, creds = testElection("E1", 4)
	err = st.IssueCredentials(e, creds[:3])
	c.Assert(errors.Is(err, types.ErrCountMismatch), qt.IsTrue)
	_, err = st.Credentials("E1")
	c.Assert(err, qt.Equals, ErrNotFound)

	creds[2].Secret = creds[2].Secret[:10]
	err = st.IssueCredentials(e, creds)
	c.Assert(errors.Is(err, types.ErrInvalidSecret), qt.IsTrue)
	_, err = st.Election("E1")
	c.Assert(err, qt.Equals, ErrNotFound)
}

func TestConcurrentIssue(t *testing.T) {
	c := qt.New(t)
	st := New(metadb.NewTest(t))
	const numGoroutines = 20

	var wg sync.WaitGroup
	var successCount, alreadyIssuedCount int32
	roots := make([][]byte, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		e, creds := testElection("E1", 10)
		roots[i] = e.Root
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := st.IssueCredentials(e, creds)
			switch {
			case err == nil:
				atomic.AddInt32(&successCount, 1)
			case errors.Is(err, types.ErrAlreadyIssued):
				atomic.AddInt32(&alreadyIssuedCount, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	c.Assert(successCount, qt.Equals, int32(1))
	c.Assert(alreadyIssuedCount, qt.Equals, int32(numGoroutines-1))

	stored, err := st.Election("E1")
	c.Assert(err, qt.IsNil)
	found := false
	for _, r := range roots {
		found = found || bytes.Equal(r, stored.Root)
	}
	c.Assert(found, qt.IsTrue)
}

func TestElectionsAreIsolated(t *testing.T) {
	c := qt.New(t)
	st := New(metadb.NewTest(t))

	// "E1" is a prefix of "E10": the key separator keeps them apart
	e1, creds1 := testElection("E1", 2)
	e10, creds10 := testElection("E10", 3)
	c.Assert(st.IssueCredentials(e1, creds1), qt.IsNil)
	c.Assert(st.IssueCredentials(e10, creds10), qt.IsNil)

	all, err := st.Credentials("E1")
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 2)
	all, err = st.Credentials("E10")
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 3)
}

func TestSuspendElection(t *testing.T) {
	c := qt.New(t)
	st := New(metadb.NewTest(t))

	c.Assert(st.SuspendElection("E1", "nope"), qt.Equals, ErrNotFound)

	e, creds := testElection("E1", 2)
	c.Assert(st.IssueCredentials(e, creds), qt.IsNil)
	c.Assert(st.SuspendElection("E1", "root mismatch"), qt.IsNil)
	c.Assert(st.SuspendElection("E1", "second reason"), qt.IsNil)

	stored, err := st.Election("E1")
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Suspended, qt.IsTrue)
	c.Assert(stored.SuspendReason, qt.Equals, "root mismatch")
	c.Assert(stored.Root, qt.DeepEquals, e.Root)
}

func TestRecordVote(t *testing.T) {
	c := qt.New(t)
	st := New(memdb.New())
	ctx := context.Background()

	voted, err := st.HasVoted(ctx, "E1", "A")
	c.Assert(err, qt.IsNil)
	c.Assert(voted, qt.IsFalse)

	first, err := st.RecordVote(ctx, &types.VoteRecord{
		ElectionID: "E1", Voter: "A", AuthorityID: 11155111, Reference: "0xAAA",
	})
	c.Assert(err, qt.IsNil)
	c.Assert(first.Accepted, qt.IsTrue)
	c.Assert(first.ExistingAuthority, qt.Equals, uint64(0))
	c.Assert(first.Record.Timestamp.IsZero(), qt.IsFalse)

	second, err := st.RecordVote(ctx, &types.VoteRecord{
		ElectionID: "E1", Voter: "A", AuthorityID: 84532, Reference: "0xBBB",
	})
	c.Assert(err, qt.IsNil)
	c.Assert(second.Accepted, qt.IsFalse)
	c.Assert(second.ExistingAuthority, qt.Equals, uint64(11155111))

	// same authority again is idempotent and keeps the first reference
	again, err := st.RecordVote(ctx, &types.VoteRecord{
		ElectionID: "E1", Voter: "A", AuthorityID: 11155111, Reference: "0xCCC",
	})
	c.Assert(err, qt.IsNil)
	c.Assert(again.Accepted, qt.IsTrue)
	c.Assert(again.ExistingAuthority, qt.Equals, uint64(11155111))

	rec, err := st.VoteRecord(ctx, "E1", "A")
	c.Assert(err, qt.IsNil)
	c.Assert(rec.AuthorityID, qt.Equals, uint64(11155111))
	c.Assert(rec.Reference, qt.Equals, "0xAAA")

	voted, err = st.HasVoted(ctx, "E1", "A")
	c.Assert(err, qt.IsNil)
	c.Assert(voted, qt.IsTrue)

	_, err = st.RecordVote(ctx, &types.VoteRecord{ElectionID: "E1", Voter: "A", Reference: "x"})
	c.Assert(errors.Is(err, types.ErrInvalidVote), qt.IsTrue)
}

func TestConcurrentRecordVote(t *testing.T) {
	c := qt.New(t)
	st := New(metadb.NewTest(t))
	ctx := context.Background()
	const numAuthorities = 16

	var wg sync.WaitGroup
	var accepted int32
	winners := make(chan uint64, numAuthorities)
	for i := 1; i <= numAuthorities; i++ {
		wg.Add(1)
		go func(authority uint64) {
			defer wg.Done()
			out, err := st.RecordVote(ctx, &types.VoteRecord{
				ElectionID: "E1", Voter: "A", AuthorityID: authority, Reference: fmt.Sprintf("ref-%d", authority),
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if out.Accepted {
				atomic.AddInt32(&accepted, 1)
				winners <- authority
			}
		}(uint64(i))
	}
	wg.Wait()
	close(winners)
	c.Assert(accepted, qt.Equals, int32(1))

	rec, err := st.VoteRecord(ctx, "E1", "A")
	c.Assert(err, qt.IsNil)
	c.Assert(rec.AuthorityID, qt.Equals, <-winners)
}

func TestPersistenceAcrossInstances(t *testing.T) {
	c := qt.New(t)
	dir := filepath.Join(t.TempDir(), "db")

	database, err := metadb.New(db.TypePebble, dir)
	c.Assert(err, qt.IsNil)
	st := New(database)
	e, creds := testElection("E1", 3)
	c.Assert(st.IssueCredentials(e, creds), qt.IsNil)
	_, err = st.RecordVote(context.Background(), &types.VoteRecord{
		ElectionID: "E1", Voter: creds[0].Identity, AuthorityID: 1, Reference: "r",
	})
	c.Assert(err, qt.IsNil)
	st.Close()

	database, err = metadb.New(db.TypePebble, dir)
	c.Assert(err, qt.IsNil)
	st = New(database)
	defer st.Close()

	stored, err := st.Election("E1")
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Root, qt.DeepEquals, e.Root)
	all, err := st.Credentials("E1")
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 3)
	voted, err := st.HasVoted(context.Background(), "E1", creds[0].Identity)
	c.Assert(err, qt.IsNil)
	c.Assert(voted, qt.IsTrue)
}
