package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mem is a reference, in-memory Storage implementation. It exists to
// exercise the Storage contract end-to-end (bootstrap, 2PC, pack, undo)
// without pulling in an on-disk format, which is explicitly out of scope
// for this repository. Production deployments plug in a real backend; Mem
// is what the coordinator's own tests and local `stats` runs use.
type Mem struct {
	mu       sync.Mutex
	objects  map[OID]*objRecord
	lastTID  uint64
	name     string
	txns     map[Txn]*pendingTxn
	undoable []undoRecord
}

type objRecord struct {
	serial    TID
	payload   []byte
	ns        Namespace
	revisions []revision
}

type revision struct {
	tid     TID
	payload []byte
	ns      Namespace
}

type pendingTxn struct {
	writes map[OID]pendingWrite
}

type pendingWrite struct {
	payload []byte
	ns      Namespace
}

type undoRecord struct {
	id      string
	oids    []OID
	payload map[OID][]byte
	ns      Namespace
	at      time.Time
}

// NewMem constructs an empty in-memory storage.
func NewMem(name string) *Mem {
	return &Mem{
		objects: make(map[OID]*objRecord),
		name:    name,
		txns:    make(map[Txn]*pendingTxn),
	}
}

func (m *Mem) nextTID() TID {
	m.lastTID++
	var t TID
	for i := range t {
		t[i] = byte(m.lastTID >> (8 * uint(len(t)-1-i)))
	}
	return t
}

func (m *Mem) Load(_ context.Context, oid OID, _ Namespace) ([]byte, TID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.objects[oid]
	if !ok {
		return nil, TID{}, ErrNoSuchObject
	}
	return rec.payload, rec.serial, nil
}

func (m *Mem) Store(_ context.Context, oid OID, _ TID, payload []byte, ns Namespace, txn Txn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pt, ok := m.txns[txn]
	if !ok {
		return fmt.Errorf("mem storage: store outside tpc_begin for oid %x", oid)
	}
	pt.writes[oid] = pendingWrite{payload: payload, ns: ns}
	return nil
}

func (m *Mem) TPCBegin(_ context.Context, txn Txn, sub bool) error {
	if sub {
		return ErrSubTransactionUnsupported
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txns[txn] = &pendingTxn{writes: make(map[OID]pendingWrite)}
	return nil
}

func (m *Mem) TPCVote(_ context.Context, _ Txn) error { return nil }

func (m *Mem) TPCFinish(_ context.Context, txn Txn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pt, ok := m.txns[txn]
	if !ok {
		return fmt.Errorf("mem storage: tpc_finish without tpc_begin")
	}
	tid := m.nextTID()
	for oid, w := range pt.writes {
		rec, exists := m.objects[oid]
		if !exists {
			rec = &objRecord{}
			m.objects[oid] = rec
		}
		rec.serial = tid
		rec.payload = w.payload
		rec.ns = w.ns
		rec.revisions = append(rec.revisions, revision{tid: tid, payload: w.payload, ns: w.ns})
	}
	delete(m.txns, txn)
	return nil
}

func (m *Mem) TPCAbort(_ context.Context, txn Txn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.txns, txn)
	return nil
}

func (m *Mem) Pack(_ context.Context, _ time.Time, _ ReferenceExtractor) error {
	// Reference-tracing GC is a real storage's job; Mem keeps every object,
	// ignores the pack time and the reference extractor, and only trims each
	// object's history to its latest revision.
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.objects {
		if len(rec.revisions) > 1 {
			rec.revisions = rec.revisions[len(rec.revisions)-1:]
		}
	}
	return nil
}

func (m *Mem) CommitNamespace(_ context.Context, source, dest Namespace, _ Txn) (TID, []OID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := m.nextTID()
	var oids []OID
	for oid, rec := range m.objects {
		if rec.ns == source {
			rec.ns = dest
			oids = append(oids, oid)
		}
	}
	return tid, oids, nil
}

func (m *Mem) AbortNamespace(_ context.Context, ns Namespace, _ Txn) (TID, []OID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := m.nextTID()
	var oids []OID
	for oid, rec := range m.objects {
		if rec.ns == ns {
			oids = append(oids, oid)
			delete(m.objects, oid)
		}
	}
	return tid, oids, nil
}

func (m *Mem) Undo(_ context.Context, undoID string, _ Txn) (TID, []OID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.undoable {
		if u.id == undoID {
			tid := m.nextTID()
			for oid, payload := range u.payload {
				rec, exists := m.objects[oid]
				if !exists {
					rec = &objRecord{ns: u.ns}
					m.objects[oid] = rec
				}
				rec.serial = tid
				rec.payload = payload
				rec.revisions = append(rec.revisions, revision{tid: tid, payload: payload, ns: u.ns})
			}
			return tid, u.oids, nil
		}
	}
	return TID{}, nil, fmt.Errorf("mem storage: no such undo id %q", undoID)
}

// SeedUndo registers an undoable transaction directly, bypassing the
// normal commit flow. Tests use this to exercise TransactionalUndo without
// first reconstructing the prior transaction it reverts.
func (m *Mem) SeedUndo(id string, oids []OID, payload map[OID][]byte, ns Namespace, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undoable = append(m.undoable, undoRecord{id: id, oids: oids, payload: payload, ns: ns, at: at})
}

func (m *Mem) ModifiedInNamespace(_ context.Context, oid OID) (Namespace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.objects[oid]
	if !ok {
		return "", ErrNoSuchObject
	}
	return rec.ns, nil
}

func (m *Mem) NamespaceEmpty(_ context.Context, ns Namespace) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.objects {
		if rec.ns == ns {
			return false, nil
		}
	}
	return true, nil
}

func (m *Mem) History(_ context.Context, oid OID, size int) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.objects[oid]
	if !ok {
		return nil, ErrNoSuchObject
	}
	entries := make([]HistoryEntry, 0, len(rec.revisions))
	for _, r := range rec.revisions {
		entries = append(entries, HistoryEntry{TID: r.tid, Size: len(r.payload)})
		if len(entries) >= size {
			break
		}
	}
	return entries, nil
}

func (m *Mem) UndoLog(_ context.Context, first, last int) ([]UndoLogEntry, error) {
	return m.undoEntries(first, last), nil
}

func (m *Mem) UndoInfo(_ context.Context, first, last int) ([]UndoLogEntry, error) {
	return m.undoEntries(first, last), nil
}

func (m *Mem) undoEntries(first, last int) []UndoLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []UndoLogEntry
	for i := first; i < last && i < len(m.undoable); i++ {
		u := m.undoable[i]
		out = append(out, UndoLogEntry{ID: u.id, Time: u.at})
	}
	return out
}

func (m *Mem) SupportsUndo() bool      { return true }
func (m *Mem) SupportsNamespaces() bool { return true }

func (m *Mem) Namespaces() ([]Namespace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[Namespace]bool{}
	var out []Namespace
	for _, rec := range m.objects {
		if rec.ns != "" && !seen[rec.ns] {
			seen[rec.ns] = true
			out = append(out, rec.ns)
		}
	}
	return out, nil
}

func (m *Mem) LastTransaction(_ context.Context) (TID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextTIDPeek(), nil
}

func (m *Mem) nextTIDPeek() TID {
	var t TID
	v := m.lastTID
	for i := range t {
		t[i] = byte(v >> (8 * uint(len(t)-1-i)))
	}
	return t
}

func (m *Mem) GetName() string { return m.name }

func (m *Mem) GetSize(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var size int64
	for _, rec := range m.objects {
		size += int64(len(rec.payload))
	}
	return size, nil
}

func (m *Mem) SortKey() string { return "mem:" + m.name }

func (m *Mem) RegisterCoordinator(_ CoordinatorRef, _ Namespace) {}

// rootPickle is the empty root mapping the way the bootstrap sequence
// expects (§4.3.1): a (class_reference, state) pair. Pickle format is out
// of scope, so Mem uses JSON as its placeholder wire encoding.
type rootPickle struct {
	Class string         `json:"class"`
	State map[string]any `json:"state"`
}

// EncodeEmptyRoot serializes a fresh persistent-mapping root the way
// §4.3.1 step 4 describes.
func EncodeEmptyRoot() ([]byte, error) {
	return json.Marshal(rootPickle{
		Class: "persistent.mapping.PersistentMapping",
		State: map[string]any{},
	})
}

// NewTxnHandle mints an opaque Txn identity for a single 2PC round. Mem
// (and any Storage) only needs it to be comparable, which a *uuid.UUID
// key satisfies.
func NewTxnHandle() Txn {
	id := uuid.New()
	return &id
}
