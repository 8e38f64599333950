package coordinator

import (
	"log/slog"

	"github.com/webitel/objectdb-coordinator/internal/domain/storage"
)

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithDefaultPoolSize sets the soft ceiling applied to the default
// (empty-string) namespace pool.
func WithDefaultPoolSize(n int) Option {
	return func(c *Coordinator) { c.defaultPoolSize = n }
}

// WithNamespacePoolSize sets the soft ceiling applied to every
// non-default-namespace pool.
func WithNamespacePoolSize(n int) Option {
	return func(c *Coordinator) { c.namespacePoolSize = n }
}

// WithDefaultCacheSize sets the object-cache target size handed to
// connections opened against the default namespace.
func WithDefaultCacheSize(n int) Option {
	return func(c *Coordinator) { c.defaultCacheSize = n }
}

// WithNamespaceCacheSize sets the object-cache target size handed to
// connections opened against any non-default namespace.
func WithNamespaceCacheSize(n int) Option {
	return func(c *Coordinator) { c.namespaceCacheSize = n }
}

// WithActivityMonitor installs the hook notified on connection closure
// (§4.3.3 step 2).
func WithActivityMonitor(m ActivityMonitor) Option {
	return func(c *Coordinator) { c.activityMonitor = m }
}

// WithLogger overrides the default slog.Logger used for pool sizing
// warnings and pack-failure logging.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithReferenceExtractor installs the function Pack uses to compute
// reachability from a stored payload (§4.3.7). Its wire format is
// storage-specific and out of scope here; the default extractor reports no
// references, which is correct only for a storage that does not rely on it
// (Mem ignores the extractor and does no reachability analysis).
func WithReferenceExtractor(fn storage.ReferenceExtractor) Option {
	return func(c *Coordinator) { c.refExtractor = fn }
}

// WithRemoteInvalidationPublisher installs the hook Invalidate forwards
// every locally-originated invalidation to, after it has already been
// applied locally. Used to fan invalidations out to other coordinator
// processes sharing the same storage (see internal/adapter/invalidationbus).
func WithRemoteInvalidationPublisher(fn func(tid storage.TID, oids []storage.OID, ns storage.Namespace)) Option {
	return func(c *Coordinator) { c.remotePublish = fn }
}
