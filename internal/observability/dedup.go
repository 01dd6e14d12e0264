package observability

import (
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DedupLogger logs a warning once per error category. The set of seen
// categories is a bounded LRU, so a category evicted after a long quiet
// period is logged again.
type DedupLogger struct {
	logger *slog.Logger
	seen   *lru.Cache[string, struct{}]
}

// NewDedupLogger creates a DedupLogger remembering up to size categories.
func NewDedupLogger(logger *slog.Logger, size int) *DedupLogger {
	if size <= 0 {
		size = 256
	}
	seen, _ := lru.New[string, struct{}](size) // only errors on size <= 0
	return &DedupLogger{logger: logger, seen: seen}
}

// Warn logs msg at warn level the first time category is seen and at debug
// level afterwards. It reports whether the warning was emitted.
func (d *DedupLogger) Warn(category, msg string, args ...any) bool {
	if found, _ := d.seen.ContainsOrAdd(category, struct{}{}); found {
		d.logger.Debug(msg, append(args, "category", category, "suppressed", true)...)
		return false
	}
	d.logger.Warn(msg, append(args, "category", category)...)
	return true
}

// Forget drops every remembered category.
func (d *DedupLogger) Forget() {
	d.seen.Purge()
}
