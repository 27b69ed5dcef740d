package vector

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"pintfoam/internal/catalog"
)

// Option configures a BaseCase.
type Option func(*settings)

type settings struct {
	logger           Logger
	metrics          MetricsRecorder
	tracer           Tracer
	catalog          catalog.Catalog
	newID            func() string
	cleanParallelism int
	preserve         []string
}

func defaultSettings() settings {
	return settings{
		logger:           noopLogger{},
		metrics:          noopMetrics{},
		tracer:           noopTracer{},
		newID:            newCaseID,
		cleanParallelism: 4,
	}
}

// newCaseID returns 32 lowercase hex characters.
func newCaseID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WithLogger sets the logger; nil keeps the no-op logger.
func WithLogger(l Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder sets the metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *settings) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) Option {
	return func(s *settings) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithCatalog records the lineage of every produced vector in c.
func WithCatalog(c catalog.Catalog) Option {
	return func(s *settings) { s.catalog = c }
}

// WithIDGenerator replaces the generator of fresh case ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *settings) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithCleanParallelism bounds the number of concurrent deletions in Clean.
func WithCleanParallelism(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.cleanParallelism = n
		}
	}
}

// WithPreserve keeps every directory under Root that is, or contains, one of
// paths out of VectorPaths and therefore out of Clean. Stores that live next
// to the working cases, such as a filesystem archive, are listed here.
func WithPreserve(paths ...string) Option {
	return func(s *settings) {
		for _, p := range paths {
			if p == "" {
				continue
			}
			if abs, err := filepath.Abs(p); err == nil {
				s.preserve = append(s.preserve, abs)
			}
		}
	}
}
