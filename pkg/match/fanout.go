package match

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/civium/matchd/pkg/collection"
)

// searchOutcome carries one candidate's results back from the fan-out.
type searchOutcome struct {
	source  *collection.Collection
	matches []collection.Match
}

// fanOut searches every candidate collection concurrently, bounded by the
// configured in-flight limit regardless of candidate-set size. A candidate's
// failure is logged and excluded; it never aborts the fan-out. Cancelling ctx
// stops queued and in-flight work.
//
// Aggregation is order-independent: the final ranking is by similarity, not
// completion order.
func (s *Service) fanOut(ctx context.Context, candidates []*collection.Collection, query []float32, topK int, threshold float32) []searchOutcome {
	if len(candidates) == 0 {
		return nil
	}

	results := make(chan searchOutcome, len(candidates))
	sem := make(chan struct{}, s.config.FanOutLimit)

	var wg sync.WaitGroup
	for _, cand := range candidates {
		wg.Add(1)
		go func(c *collection.Collection) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			_, span := tracer.Start(ctx, "match.search_collection")
			span.SetAttributes(
				attribute.String("collection", c.Key().String()),
				attribute.Int("collection.total", c.Len()),
			)

			start := time.Now()
			matches, err := c.Search(query, topK, threshold)
			if err != nil {
				FanOutFailures.Inc()
				s.logger.Warn("collection search failed, excluded from fan-out",
					zap.String("collection", c.Key().String()),
					zap.Error(err),
				)
				span.RecordError(err)
				span.SetStatus(codes.Error, "search failed")
				span.End()
				return
			}
			FanOutSearchDuration.Observe(time.Since(start).Seconds())
			span.SetAttributes(attribute.Int("matches", len(matches)))
			span.End()

			select {
			case results <- searchOutcome{source: c, matches: matches}:
			case <-ctx.Done():
			}
		}(cand)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]searchOutcome, 0, len(candidates))
	for r := range results {
		outcomes = append(outcomes, r)
	}
	return outcomes
}

// mergeOutcomes flattens fan-out results into a ranked, attributed list
// (truncated to topK) and a category/tenant grouping (untruncated).
func mergeOutcomes(outcomes []searchOutcome, topK int) ([]AttributedMatch, Grouped) {
	grouped := make(Grouped)
	var merged []AttributedMatch

	for _, out := range outcomes {
		if len(out.matches) == 0 {
			continue
		}
		key := out.source.Key()
		byTenant, ok := grouped[key.Category]
		if !ok {
			byTenant = make(map[int][]collection.Match)
			grouped[key.Category] = byTenant
		}
		byTenant[key.ID] = append(byTenant[key.ID], out.matches...)

		for _, m := range out.matches {
			merged = append(merged, AttributedMatch{
				Category: key.Category,
				TenantID: key.ID,
				Kind:     key.Kind,
				Match:    m,
			})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, grouped
}
