package coordinator

import (
	"hash/maphash"

	"github.com/webitel/objectdb-coordinator/internal/domain/storage"
)

// mivBucketCount is the fixed bucket count for the modified-in-namespace
// cache (§3, §4.3.5, §9 "Per-bucket scalar cache with collision
// discard"). It is a plain array of optional (oid, namespace) pairs —
// no dynamic allocation, no generic map.
const mivBucketCount = 131

var mivSeed = maphash.MakeSeed()

type mivEntry struct {
	valid bool
	oid   storage.OID
	ns    storage.Namespace
}

// mivCache memoizes per-oid namespace membership across calls to
// ModifiedInNamespace, discarding on any hash collision rather than
// chaining — a mismatch on oid simply means the next lookup re-consults
// storage (§4.3.5). Invalidation pre-evicts potentially-stale entries
// before a commit's fan-out reaches connections (§4.3.4 step 1).
type mivCache struct {
	buckets [mivBucketCount]mivEntry
}

func mivBucket(oid storage.OID) int {
	var h maphash.Hash
	h.SetSeed(mivSeed)
	h.Write(oid[:])
	return int(h.Sum64() % mivBucketCount)
}

// Evict removes the entry for oid if present, used by Invalidate (§4.3.4
// step 1) so a stale membership answer is never handed out after a
// commit touching that oid.
func (m *mivCache) Evict(oid storage.OID) {
	b := mivBucket(oid)
	e := &m.buckets[b]
	if e.valid && e.oid == oid {
		e.valid = false
	}
}

// Lookup returns the cached namespace for oid and whether the cache had
// a (non-stale) answer.
func (m *mivCache) Lookup(oid storage.OID) (storage.Namespace, bool) {
	e := &m.buckets[mivBucket(oid)]
	if e.valid && e.oid == oid {
		return e.ns, true
	}
	return "", false
}

// Store records ns as oid's namespace, evicting whatever collided with it
// in the same bucket.
func (m *mivCache) Store(oid storage.OID, ns storage.Namespace) {
	m.buckets[mivBucket(oid)] = mivEntry{valid: true, oid: oid, ns: ns}
}
