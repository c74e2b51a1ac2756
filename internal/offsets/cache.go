package offsets

import (
	"log/slog"
	"sync"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/layout"
)

// ResolveFunc produces offsets on first use.
type ResolveFunc func() (Offsets, error)

// Cache resolves offsets lazily, exactly once, and remembers the outcome for
// the life of the process. A failed resolution is logged once and disables
// the native override path.
type Cache struct {
	once    sync.Once
	resolve ResolveFunc
	logger  *slog.Logger

	offsets Offsets
	err     error
}

// NewCache wraps resolve. logger may be nil.
func NewCache(resolve ResolveFunc, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{resolve: resolve, logger: logger}
}

// NewSchemaCache resolves names against schema on first use.
func NewSchemaCache(schema *layout.Schema, r layout.Resolver, names Names, logger *slog.Logger) *Cache {
	return NewCache(func() (Offsets, error) {
		return Resolve(schema, r, names)
	}, logger)
}

// NewDisabledCache returns a cache that always fails with cause. It keeps
// the override path off when the layout inputs are known to be unusable.
func NewDisabledCache(cause error, logger *slog.Logger) *Cache {
	return NewCache(func() (Offsets, error) {
		return Offsets{}, unresolved("%v", cause)
	}, logger)
}

// Get returns the cached offsets, resolving them on the first call.
func (c *Cache) Get() (Offsets, error) {
	c.once.Do(func() {
		c.offsets, c.err = c.resolve()
		if c.err != nil {
			c.logger.Warn("Native offsets unavailable, native override disabled", "error", c.err)
			return
		}
		c.logger.Info("Native offsets resolved", "offsets", c.offsets)
	})
	return c.offsets, c.err
}

// Available reports whether offsets resolved successfully.
func (c *Cache) Available() bool {
	_, err := c.Get()
	return err == nil
}
