package txn_test

import (
	"context"
	"errors"
	"testing"

	"github.com/webitel/objectdb-coordinator/internal/domain/txn"
)

type fakeResource struct {
	key  string
	fail string
	log  *[]string

	begun, committed, voted, finished, aborted, tpcAborted bool
}

func (f *fakeResource) SortKey() string { return f.key }

func (f *fakeResource) TPCBegin(_ context.Context, _ *txn.Transaction, sub bool) error {
	f.begun = true
	if f.log != nil {
		*f.log = append(*f.log, f.key)
	}
	if f.fail == "begin" {
		return errors.New("begin failed")
	}
	return nil
}

func (f *fakeResource) Commit(_ context.Context, _ *txn.Transaction) error {
	f.committed = true
	if f.fail == "commit" {
		return errors.New("commit failed")
	}
	return nil
}

func (f *fakeResource) TPCVote(_ context.Context, _ *txn.Transaction) error {
	f.voted = true
	if f.fail == "vote" {
		return errors.New("vote failed")
	}
	return nil
}

func (f *fakeResource) TPCFinish(_ context.Context, _ *txn.Transaction) error {
	f.finished = true
	if f.fail == "finish" {
		return errors.New("finish failed")
	}
	return nil
}

func (f *fakeResource) TPCAbort(_ context.Context, _ *txn.Transaction) error {
	f.tpcAborted = true
	return nil
}

func (f *fakeResource) Abort(_ context.Context, _ *txn.Transaction) error {
	f.aborted = true
	return nil
}

func TestCommitDrivesFullSequenceInSortKeyOrder(t *testing.T) {
	var order []string
	a := &fakeResource{key: "b", log: &order}
	b := &fakeResource{key: "a", log: &order}

	tr := txn.NewTransaction("test")
	tr.Register(a)
	tr.Register(b)
	tr.Register(b) // duplicate registration must be a no-op

	if err := tr.Commit(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, r := range []*fakeResource{a, b} {
		if !(r.begun && r.committed && r.voted && r.finished) {
			t.Fatalf("resource %q did not see the full 2PC sequence: %+v", r.key, r)
		}
		if r.aborted || r.tpcAborted {
			t.Fatalf("resource %q was aborted on a successful commit", r.key)
		}
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected tpc_begin in sort-key order [a b], got %v", order)
	}
}

func TestCommitAbortsAllOnVoteFailure(t *testing.T) {
	ok := &fakeResource{key: "a"}
	failing := &fakeResource{key: "b", fail: "vote"}

	tr := txn.NewTransaction("test")
	tr.Register(ok)
	tr.Register(failing)

	err := tr.Commit(context.Background())
	if err == nil {
		t.Fatalf("expected an error from Commit")
	}
	if !ok.tpcAborted || !ok.aborted {
		t.Fatalf("expected the non-failing resource to be aborted too")
	}
	if !failing.tpcAborted || !failing.aborted {
		t.Fatalf("expected the failing resource to be aborted")
	}
	if ok.finished || failing.finished {
		t.Fatalf("tpc_finish must not run after a vote failure")
	}
}

func TestCommitDoesNotAbortOnFinishFailure(t *testing.T) {
	r := &fakeResource{key: "a", fail: "finish"}

	tr := txn.NewTransaction("test")
	tr.Register(r)

	err := tr.Commit(context.Background())
	if err == nil {
		t.Fatalf("expected an error from Commit")
	}
	if r.tpcAborted || r.aborted {
		t.Fatalf("a tpc_finish failure must not trigger abort: it cannot be undone once committed")
	}
}

func TestAbortDrivesEveryResourceWithoutCommitting(t *testing.T) {
	a := &fakeResource{key: "a"}
	b := &fakeResource{key: "b"}

	tr := txn.NewTransaction("test")
	tr.Register(a)
	tr.Register(b)

	if err := tr.Abort(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, r := range []*fakeResource{a, b} {
		if r.committed || r.voted || r.finished {
			t.Fatalf("resource %q saw a commit phase during Abort", r.key)
		}
		if !r.tpcAborted || !r.aborted {
			t.Fatalf("resource %q was not aborted", r.key)
		}
	}
}
