package coordinator

import (
	"context"
	"fmt"

	"github.com/webitel/objectdb-coordinator/internal/domain/storage"
	"github.com/webitel/objectdb-coordinator/internal/domain/txn"
)

// resourceManager is the common 2PC scaffolding shared by CommitVersion,
// AbortVersion, and TransactionalUndo (§4.4). Each variant only supplies
// its own Commit body; tpc_begin/vote/finish/abort all delegate straight
// through to storage, exactly as the original ResourceManager.__init__
// bound self.tpc_vote/tpc_finish/tpc_abort to the storage's own methods.
type resourceManager struct {
	coord *Coordinator
}

// SortKey embeds the storage's own sort key plus this resource's process-
// local identity as a tiebreak, making concurrently registered resources
// deterministically orderable (§4.4). ResourceManagers must never be
// persisted across a restart: the identity half of this key is only
// stable for the lifetime of the process (§9 open question ii).
func (r *resourceManager) sortKeySuffix(self txn.Resource) string {
	return fmt.Sprintf("%s:%p", r.coord.storage.SortKey(), self)
}

// storageTxn treats the txn.Transaction itself as the opaque per-round
// storage.Txn handle: it is comparable, unique per logical unit of work,
// and threading it straight through avoids inventing a second identity
// for the same round-trip.
func storageTxn(t *txn.Transaction) storage.Txn { return t }

func (r *resourceManager) TPCBegin(ctx context.Context, t *txn.Transaction, sub bool) error {
	if sub {
		return storage.ErrSubTransactionUnsupported
	}
	return r.coord.storage.TPCBegin(ctx, storageTxn(t), false)
}

func (r *resourceManager) TPCVote(ctx context.Context, t *txn.Transaction) error {
	return r.coord.tpcVote(ctx, storageTxn(t))
}

func (r *resourceManager) TPCFinish(ctx context.Context, t *txn.Transaction) error {
	return r.coord.storage.TPCFinish(ctx, storageTxn(t))
}

func (r *resourceManager) TPCAbort(ctx context.Context, t *txn.Transaction) error {
	return r.coord.storage.TPCAbort(ctx, storageTxn(t))
}

// Abort is intentionally a no-op: the resource has nothing of its own to
// roll back beyond the storage-level tpc_abort already issued above.
func (r *resourceManager) Abort(_ context.Context, _ *txn.Transaction) error { return nil }

// CommitVersion commits the given namespace into dest (§4.4). When dest
// is non-empty ("promoting" one scoped edit buffer into another rather
// than the mainline), the source namespace is invalidated too: its
// readers need to observe that their objects moved out from under them.
type CommitVersion struct {
	resourceManager
	Source, Dest storage.Namespace
}

// NewCommitVersion constructs a CommitVersion resource bound to c,
// ready to Register into a *txn.Transaction.
func NewCommitVersion(c *Coordinator, source, dest storage.Namespace) *CommitVersion {
	cv := &CommitVersion{Source: source, Dest: dest}
	cv.coord = c
	return cv
}

func (cv *CommitVersion) SortKey() string { return cv.sortKeySuffix(cv) }

func (cv *CommitVersion) Commit(ctx context.Context, t *txn.Transaction) error {
	tid, oids, err := cv.coord.storage.CommitNamespace(ctx, cv.Source, cv.Dest, storageTxn(t))
	if err != nil {
		return fmt.Errorf("commit_version: %w", err)
	}
	cv.coord.Invalidate(tid, oids, nil, cv.Dest)
	if cv.Dest != "" {
		cv.coord.Invalidate(tid, oids, nil, cv.Source)
	}
	return nil
}

// AbortVersion discards every uncommitted change in the given namespace
// (§4.4).
type AbortVersion struct {
	resourceManager
	Namespace storage.Namespace
}

// NewAbortVersion constructs an AbortVersion resource bound to c.
func NewAbortVersion(c *Coordinator, ns storage.Namespace) *AbortVersion {
	av := &AbortVersion{Namespace: ns}
	av.coord = c
	return av
}

func (av *AbortVersion) SortKey() string { return av.sortKeySuffix(av) }

func (av *AbortVersion) Commit(ctx context.Context, t *txn.Transaction) error {
	tid, oids, err := av.coord.storage.AbortNamespace(ctx, av.Namespace, storageTxn(t))
	if err != nil {
		return fmt.Errorf("abort_version: %w", err)
	}
	av.coord.Invalidate(tid, oids, nil, av.Namespace)
	return nil
}

// TransactionalUndo replays the inverse of a previously committed
// transaction (§4.4). Its invalidation is always global: an undo can
// touch objects regardless of which namespace originally modified them.
type TransactionalUndo struct {
	resourceManager
	UndoID string
}

// NewTransactionalUndo constructs a TransactionalUndo resource bound to c.
func NewTransactionalUndo(c *Coordinator, undoID string) *TransactionalUndo {
	tu := &TransactionalUndo{UndoID: undoID}
	tu.coord = c
	return tu
}

func (tu *TransactionalUndo) SortKey() string { return tu.sortKeySuffix(tu) }

func (tu *TransactionalUndo) Commit(ctx context.Context, t *txn.Transaction) error {
	tid, oids, err := tu.coord.storage.Undo(ctx, tu.UndoID, storageTxn(t))
	if err != nil {
		return fmt.Errorf("undo: %w", err)
	}
	tu.coord.Invalidate(tid, oids, nil, "")
	return nil
}
