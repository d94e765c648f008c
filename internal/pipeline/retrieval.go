package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/clinika/medanswer/internal/metrics"
	"github.com/clinika/medanswer/internal/search"
)

// Tier selects the retrieval scope.
type Tier int

const (
	// TierRestricted scopes queries to the trusted-domain allow-list.
	TierRestricted Tier = iota
	// TierBroad is the unscoped fallback.
	TierBroad
)

func (t Tier) String() string {
	if t == TierRestricted {
		return "restricted"
	}
	return "broad"
}

// LinkProber checks whether a result link is still reachable.
type LinkProber interface {
	Probe(ctx context.Context, link string) bool
}

// Cascade runs tiered scoped searches: trusted domains first, broad when
// the trusted tier comes back empty. Search failures degrade to empty
// result sets and never reach the caller.
type Cascade struct {
	svc            search.Service
	prober         LinkProber // nil disables liveness filtering
	trustedScopeID string
	broadScopeID   string
	trustedDomains []string
	logger         *zap.Logger
}

// CascadeOptions configures the retrieval cascade.
type CascadeOptions struct {
	TrustedScopeID string
	BroadScopeID   string
	TrustedDomains []string
	Prober         LinkProber
}

// NewCascade builds a retrieval cascade over the search service.
func NewCascade(svc search.Service, opts CascadeOptions, logger *zap.Logger) *Cascade {
	return &Cascade{
		svc:            svc,
		prober:         opts.Prober,
		trustedScopeID: opts.TrustedScopeID,
		broadScopeID:   opts.BroadScopeID,
		trustedDomains: opts.TrustedDomains,
		logger:         logger,
	}
}

// Run executes the tier-1 policy: restricted search first, then a broad
// search with the same query when the restricted tier returns nothing.
func (c *Cascade) Run(ctx context.Context, query string, count int) []search.Result {
	results := c.search(ctx, query, count, TierRestricted)
	if len(results) > 0 {
		return results
	}
	return c.search(ctx, query, count, TierBroad)
}

// RunBroad forces the broad tier; used by the escalation cycle.
func (c *Cascade) RunBroad(ctx context.Context, query string, count int) []search.Result {
	return c.search(ctx, query, count, TierBroad)
}

func (c *Cascade) search(ctx context.Context, query string, count int, tier Tier) []search.Result {
	q := query
	scopeID := c.broadScopeID
	if tier == TierRestricted {
		scopeID = c.trustedScopeID
		if scopeID == "" && len(c.trustedDomains) > 0 {
			// No trusted collection configured; fall back to an inline
			// site restriction.
			q = fmt.Sprintf("%s %s", query, siteFilter(c.trustedDomains))
		}
	}

	results, err := c.svc.Search(ctx, q, count, scopeID)
	if err != nil {
		metrics.RecordSearch(tier.String(), "error", 0)
		c.logger.Warn("Search call failed, degrading to empty results",
			zap.String("tier", tier.String()),
			zap.Error(err),
		)
		return nil
	}
	metrics.RecordSearch(tier.String(), "ok", len(results))

	if c.prober != nil {
		results = c.filterLive(ctx, results)
	}
	return results
}

// filterLive drops results whose links no longer answer. Original ranks are
// preserved so citation order still reflects tier position.
func (c *Cascade) filterLive(ctx context.Context, results []search.Result) []search.Result {
	live := results[:0]
	for _, r := range results {
		if c.prober.Probe(ctx, r.Link) {
			live = append(live, r)
			continue
		}
		metrics.ProbeDropsTotal.Inc()
		c.logger.Debug("Dropped unreachable result", zap.String("link", r.Link))
	}
	return live
}

func siteFilter(domains []string) string {
	parts := make([]string, 0, len(domains))
	for _, d := range domains {
		parts = append(parts, "site:"+d)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}
