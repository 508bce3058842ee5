// Package match implements the three-stage smart-match cascade over the
// collection store: known (optionally federated) -> unknown -> auto-register.
package match

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/civium/matchd/pkg/collection"
	"github.com/civium/matchd/pkg/store"
	"github.com/civium/matchd/pkg/tenant"
)

var tracer = otel.Tracer("matchd.match")

var (
	// ErrTransferUnsupported is returned by TransferFace. The similarity
	// index cannot move an entry between collections; re-derive the vector
	// from the system of record and re-insert it instead.
	ErrTransferUnsupported = errors.New("transfer between collections is not supported")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds configuration for the match orchestrator.
type Config struct {
	// DefaultThreshold is the minimum similarity for a match when the query
	// does not override it. Default: 0.4
	DefaultThreshold float32 `koanf:"default_threshold"`

	// DefaultTopK is the result window per collection when the query does
	// not override it. Default: 10
	DefaultTopK int `koanf:"default_top_k"`

	// FanOutLimit caps in-flight collection searches during stage 1.
	// Default: 5
	FanOutLimit int `koanf:"fan_out_limit"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.DefaultThreshold == 0 {
		c.DefaultThreshold = 0.4
	}
	if c.DefaultTopK == 0 {
		c.DefaultTopK = 10
	}
	if c.FanOutLimit == 0 {
		c.FanOutLimit = 5
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DefaultTopK <= 0 {
		return fmt.Errorf("%w: default top-k must be positive", ErrInvalidConfig)
	}
	if c.FanOutLimit <= 0 {
		return fmt.Errorf("%w: fan-out limit must be positive", ErrInvalidConfig)
	}
	return nil
}

// Service executes the cascade against a collection store.
//
// Construct one Service at process start and pass it by reference to every
// handler; there is no package-level instance.
type Service struct {
	store  *store.Store
	config Config
	logger *zap.Logger

	startTime time.Time

	smartMatches      atomic.Int64
	autoRegistrations atomic.Int64
	totalMatchMicros  atomic.Int64
}

// NewService creates a match service over the given store.
func NewService(st *store.Store, config Config, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &Service{
		store:     st,
		config:    config,
		logger:    logger.Named("match"),
		startTime: time.Now(),
	}, nil
}

// SmartMatch resolves a query vector through the cascade:
//
//  1. Search the known collections: all public known plus the caller's own
//     when federated, the caller's own only otherwise. Any hit
//     short-circuits the cascade.
//  2. If enabled and stage 1 was empty, search the caller's unknown
//     collection. Only the single best hit is surfaced.
//  3. If enabled and stages 1-2 were empty, register the vector in the
//     caller's unknown collection and return the assigned position.
//
// Stage n+1 never starts before stage n fully resolved empty. Every terminal
// result reports the cumulative count of searches issued and the wall-clock
// elapsed time of the whole cascade.
func (s *Service) SmartMatch(ctx context.Context, query Query) (*Result, error) {
	ctx, span := tracer.Start(ctx, "match.smart_match")
	defer span.End()

	start := time.Now()

	threshold := s.config.DefaultThreshold
	if query.Threshold != nil {
		threshold = *query.Threshold
	}
	topK := s.config.DefaultTopK
	if query.TopK > 0 {
		topK = query.TopK
	}

	ownKnown, err := tenant.NewKey(query.Category, query.TenantID, tenant.KindKnown)
	if err != nil {
		return nil, err
	}
	ownUnknown := tenant.Key{Category: query.Category, ID: query.TenantID, Kind: tenant.KindUnknown}

	if err := collection.ValidateVector(query.Vector, s.store.Dimension()); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("tenant", ownKnown.String()),
		attribute.Bool("federated", query.Federated),
		attribute.Bool("search_unknown", query.SearchUnknown),
		attribute.Bool("auto_register", query.AutoRegister),
		attribute.Float64("threshold", float64(threshold)),
		attribute.Int("top_k", topK),
	)

	collectionsSearched := 0

	// Stage 1: known collections.
	var candidates []*collection.Collection
	if query.Federated {
		candidates = s.store.ListPublicKnown(ctx)
		own, err := s.store.GetOrCreate(ctx, ownKnown)
		if err != nil {
			return nil, fmt.Errorf("loading own known collection: %w", err)
		}
		// The caller's own collection is appended unconditionally, even when
		// it is public and already enumerated above.
		candidates = append(candidates, own)
		s.logger.Debug("federated search",
			zap.String("tenant", ownKnown.String()),
			zap.Int("candidates", len(candidates)),
		)
	} else {
		own, err := s.store.GetOrCreate(ctx, ownKnown)
		if err != nil {
			return nil, fmt.Errorf("loading own known collection: %w", err)
		}
		candidates = []*collection.Collection{own}
	}
	collectionsSearched += len(candidates)

	outcomes := s.fanOut(ctx, candidates, query.Vector, topK, threshold)
	ranked, grouped := mergeOutcomes(outcomes, topK)
	if len(ranked) > 0 {
		result := s.finish(&Result{
			Outcome:                OutcomeFoundKnown,
			Ranked:                 ranked,
			Matches:                grouped,
			AutoRegisteredPosition: -1,
			CollectionsSearched:    collectionsSearched,
			Threshold:              threshold,
			TopK:                   topK,
		}, start)
		s.logger.Info("match found in known collections",
			zap.String("tenant", ownKnown.String()),
			zap.Int("matches", len(ranked)),
			zap.Int("collections_searched", collectionsSearched),
		)
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 2: the caller's own unknown collection.
	if query.SearchUnknown {
		unknown, err := s.store.GetOrCreate(ctx, ownUnknown)
		if err != nil {
			return nil, fmt.Errorf("loading own unknown collection: %w", err)
		}
		collectionsSearched++

		matches, err := unknown.Search(query.Vector, topK, threshold)
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			// Only the single best match is surfaced for unknown hits.
			best := matches[0]
			result := s.finish(&Result{
				Outcome: OutcomeFoundUnknown,
				Ranked: []AttributedMatch{{
					Category: ownUnknown.Category,
					TenantID: ownUnknown.ID,
					Kind:     ownUnknown.Kind,
					Match:    best,
				}},
				Matches:                Grouped{ownUnknown.Category: {ownUnknown.ID: []collection.Match{best}}},
				AutoRegisteredPosition: -1,
				CollectionsSearched:    collectionsSearched,
				Threshold:              threshold,
				TopK:                   topK,
			}, start)
			s.logger.Info("match found in unknown collection",
				zap.String("collection", ownUnknown.String()),
				zap.Int("position", best.Position),
			)
			return result, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 3: auto-register in the caller's unknown collection.
	if query.AutoRegister {
		position, err := s.AddFace(ctx, ownUnknown, query.Vector)
		if err != nil {
			return nil, fmt.Errorf("auto-registering: %w", err)
		}
		s.autoRegistrations.Add(1)
		result := s.finish(&Result{
			Outcome:                OutcomeAutoRegistered,
			AutoRegisteredPosition: position,
			CollectionsSearched:    collectionsSearched,
			Threshold:              threshold,
			TopK:                   topK,
		}, start)
		s.logger.Info("auto-registered",
			zap.String("collection", ownUnknown.String()),
			zap.Int("position", position),
		)
		return result, nil
	}

	return s.finish(&Result{
		Outcome:                OutcomeNotFound,
		AutoRegisteredPosition: -1,
		CollectionsSearched:    collectionsSearched,
		Threshold:              threshold,
		TopK:                   topK,
	}, start), nil
}

// AddFace validates and appends a vector to the keyed collection, persists
// the mutation, and returns the assigned position.
func (s *Service) AddFace(ctx context.Context, key tenant.Key, vec []float32) (int, error) {
	c, err := s.store.GetOrCreate(ctx, key)
	if err != nil {
		return 0, err
	}
	position, err := c.Add(vec)
	if err != nil {
		return 0, err
	}
	if err := s.store.Persist(c); err != nil {
		return 0, fmt.Errorf("persisting collection %s: %w", key, err)
	}
	s.logger.Info("face added",
		zap.String("collection", key.String()),
		zap.Int("position", position),
	)
	return position, nil
}

// RemoveFace tombstones a position, excluding it from future searches. It
// returns false for positions outside [0, total). The vector stays in the
// scan structure; durable identity records live in the external system of
// record.
func (s *Service) RemoveFace(ctx context.Context, key tenant.Key, position int) (bool, error) {
	c, err := s.store.GetOrCreate(ctx, key)
	if err != nil {
		return false, err
	}
	if !c.Invalidate(position) {
		s.logger.Warn("invalidate position out of range",
			zap.String("collection", key.String()),
			zap.Int("position", position),
			zap.Int("total", c.Len()),
		)
		return false, nil
	}
	if err := s.store.Persist(c); err != nil {
		return false, fmt.Errorf("persisting collection %s: %w", key, err)
	}
	s.logger.Info("face invalidated",
		zap.String("collection", key.String()),
		zap.Int("position", position),
		zap.Int("valid", c.ValidLen()),
	)
	return true, nil
}

// RestoreFace removes a tombstone, making the position visible to searches
// again. Returns false when the position was not tombstoned.
func (s *Service) RestoreFace(ctx context.Context, key tenant.Key, position int) (bool, error) {
	c, err := s.store.GetOrCreate(ctx, key)
	if err != nil {
		return false, err
	}
	if !c.Revalidate(position) {
		return false, nil
	}
	if err := s.store.Persist(c); err != nil {
		return false, fmt.Errorf("persisting collection %s: %w", key, err)
	}
	s.logger.Info("face revalidated",
		zap.String("collection", key.String()),
		zap.Int("position", position),
	)
	return true, nil
}

// TransferFace always fails: positions are bound to their collection and the
// underlying index cannot move an entry. Re-derive the vector from the
// system of record and add it to the target collection instead.
func (s *Service) TransferFace(ctx context.Context, from, to tenant.Key, position int) error {
	if err := from.Validate(); err != nil {
		return err
	}
	if err := to.Validate(); err != nil {
		return err
	}
	return fmt.Errorf("%w: re-derive the vector for %s position %d from the system of record and re-insert into %s",
		ErrTransferUnsupported, from, position, to)
}

// Stats returns a point-in-time snapshot of service counters.
func (s *Service) Stats() Stats {
	valid, total := s.store.Totals()
	matches := s.smartMatches.Load()
	var avg time.Duration
	if matches > 0 {
		avg = time.Duration(s.totalMatchMicros.Load()/matches) * time.Microsecond
	}
	return Stats{
		Uptime:              time.Since(s.startTime),
		CollectionsLoaded:   s.store.Loaded(),
		ValidFaces:          valid,
		TotalFaces:          total,
		TombstonedFaces:     total - valid,
		SmartMatches:        matches,
		AutoRegistrations:   s.autoRegistrations.Load(),
		AverageMatchLatency: avg,
	}
}

// finish stamps timing, stats and metrics on a terminal result.
func (s *Service) finish(r *Result, start time.Time) *Result {
	r.Elapsed = time.Since(start)
	s.smartMatches.Add(1)
	s.totalMatchMicros.Add(r.Elapsed.Microseconds())
	MatchesTotal.WithLabelValues(string(r.Outcome)).Inc()
	CascadeDuration.Observe(r.Elapsed.Seconds())
	return r
}
