package header

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-msgcam/camera"
	"github.com/arloliu/go-msgcam/logger"
)

// DefaultLookupTimeout bounds a single Source lookup.
const DefaultLookupTimeout = 2 * time.Second

// Enricher implements camera.Enricher on top of a Source.
type Enricher struct {
	src     Source
	mapping []Mapping
	timeout time.Duration
	logger  logger.Logger
}

var _ camera.Enricher = (*Enricher)(nil)

// Option configures an Enricher.
type Option func(*Enricher) error

// WithMap replaces DefaultMap.
func WithMap(m []Mapping) Option {
	return func(e *Enricher) error {
		for _, entry := range m {
			if entry.Key == "" || entry.Keyword == "" {
				return fmt.Errorf("header: incomplete mapping %+v", entry)
			}
			if len(entry.Keyword) > 8 {
				return fmt.Errorf("header: keyword %q longer than 8 characters", entry.Keyword)
			}
		}
		e.mapping = append([]Mapping(nil), m...)

		return nil
	}
}

// WithLookupTimeout sets the bound on a single Source lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(e *Enricher) error {
		if d <= 0 {
			return errors.New("header: lookup timeout must be positive")
		}
		e.timeout = d

		return nil
	}
}

// WithLogger sets the logger for the enricher.
func WithLogger(l logger.Logger) Option {
	return func(e *Enricher) error {
		if l == nil {
			return errors.New("header: logger must not be nil")
		}
		e.logger = l

		return nil
	}
}

// NewEnricher creates an Enricher reading from src.
func NewEnricher(src Source, opts ...Option) (*Enricher, error) {
	if src == nil {
		return nil, errors.New("header: source is nil")
	}

	e := &Enricher{
		src:     src,
		mapping: DefaultMap,
		timeout: DefaultLookupTimeout,
		logger:  logger.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Keys returns the telemetry keys the enricher looks up.
func (e *Enricher) Keys() []string {
	keys := make([]string, len(e.mapping))
	for i, m := range e.mapping {
		keys[i] = m.Key
	}

	return keys
}

// Enrich looks up every mapped key and stamps the known values on img.
// Missing keys are skipped; a failed lookup leaves img untouched.
func (e *Enricher) Enrich(ctx context.Context, img *camera.Image) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	values, err := e.src.Lookup(ctx, e.Keys())
	if err != nil {
		return fmt.Errorf("header: lookup: %w", err)
	}

	stamped := 0
	for _, m := range e.mapping {
		raw, ok := values[m.Key]
		if !ok {
			continue
		}
		v, ok := cardValue(raw)
		if !ok {
			continue
		}
		img.SetCard(m.Keyword, v, m.Comment)
		stamped++
	}
	e.logger.Debug("header: frame enriched", "cards", stamped, "mapped", len(e.mapping))

	return nil
}
