// Package storage defines the contract the Coordinator consumes from the
// pluggable persistence backend. The wire format, on-disk layout, and
// conflict-resolution policy of any given implementation are out of scope
// here; this package only pins down the operations the coordinator core
// drives.
package storage

import (
	"context"
	"errors"
	"time"
)

// OID identifies a persistent object. The reserved root OID is eight zero
// bytes.
type OID [8]byte

// RootOID is the fixed identifier of the database root object.
var RootOID OID

// TID identifies a committed transaction (a storage-assigned serial).
type TID [8]byte

// Namespace names a scoped edit buffer. The empty string is the mainline.
type Namespace string

// ErrNoSuchObject is returned by Load when an OID has never been stored.
var ErrNoSuchObject = errors.New("storage: no such object")

// ErrSubTransactionUnsupported is returned by TPCBegin when sub is true.
var ErrSubTransactionUnsupported = errors.New("storage: sub-transactions are not supported")

// Txn is an opaque per-transaction handle threaded through the 2PC calls.
// Concrete storages may type-assert it to a richer type if they need one;
// the coordinator core never inspects it.
type Txn any

// ReferenceExtractor extracts the OIDs a stored pickle references, used by
// Pack to compute reachability. Its internal format is storage-specific and
// out of scope here.
type ReferenceExtractor func(payload []byte) ([]OID, error)

// Storage is the persistence backend contract. Implementations must be safe
// for concurrent use by multiple Connections; the Coordinator never
// serializes calls into it beyond what a single 2PC sequence implies.
type Storage interface {
	Load(ctx context.Context, oid OID, ns Namespace) ([]byte, TID, error)
	Store(ctx context.Context, oid OID, prevSerial TID, payload []byte, ns Namespace, txn Txn) error

	TPCBegin(ctx context.Context, txn Txn, sub bool) error
	// TPCVote is optional on the storage side; implementations that have
	// nothing to vote on should simply return nil. Coordinator-side, a
	// storage that also implements NoTPCVote() bool returning true has its
	// vote step skipped entirely.
	TPCVote(ctx context.Context, txn Txn) error
	TPCFinish(ctx context.Context, txn Txn) error
	TPCAbort(ctx context.Context, txn Txn) error

	Pack(ctx context.Context, packTime time.Time, refs ReferenceExtractor) error

	CommitNamespace(ctx context.Context, source, dest Namespace, txn Txn) (TID, []OID, error)
	AbortNamespace(ctx context.Context, ns Namespace, txn Txn) (TID, []OID, error)
	Undo(ctx context.Context, undoID string, txn Txn) (TID, []OID, error)

	ModifiedInNamespace(ctx context.Context, oid OID) (Namespace, error)
	NamespaceEmpty(ctx context.Context, ns Namespace) (bool, error)

	History(ctx context.Context, oid OID, size int) ([]HistoryEntry, error)
	UndoLog(ctx context.Context, first, last int) ([]UndoLogEntry, error)
	UndoInfo(ctx context.Context, first, last int) ([]UndoLogEntry, error)

	SupportsUndo() bool
	SupportsNamespaces() bool
	Namespaces() ([]Namespace, error)

	LastTransaction(ctx context.Context) (TID, error)
	GetName() string
	GetSize(ctx context.Context) (int64, error)
	SortKey() string

	// RegisterCoordinator is called once at Coordinator construction time,
	// mirroring ZODB's storage.registerDB(self, None).
	RegisterCoordinator(c CoordinatorRef, firstNamespace Namespace)
}

// CoordinatorRef is the minimal surface a Storage needs back from its
// owning Coordinator (currently none; kept as a marker so storages can
// type-assert a richer interface in the future without a signature churn
// on RegisterCoordinator).
type CoordinatorRef any

// HistoryEntry is one revision record as reported by History.
type HistoryEntry struct {
	TID      TID
	Time     time.Time
	UserName string
	Size     int
}

// UndoLogEntry describes one undoable transaction, as reported by UndoLog
// or UndoInfo.
type UndoLogEntry struct {
	ID          string
	Time        time.Time
	Description string
}
