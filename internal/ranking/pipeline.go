package ranking

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/farmrank/internal/distance"
	"github.com/onnwee/farmrank/internal/farm"
	"github.com/onnwee/farmrank/internal/tracing"
	"github.com/onnwee/farmrank/internal/user"
)

// ErrDistanceMismatch is returned when the distance client returns a result
// whose length differs from the page.
var ErrDistanceMismatch = errors.New("distance count does not match page size")

// UserLookup resolves the requesting user.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// PageSource reads sorted pages of farms.
type PageSource interface {
	QueryPage(ctx context.Context, q farm.PageQuery) ([]farm.Projection, error)
}

// YieldStats provides the mean yield used as the outlier band center.
type YieldStats interface {
	AverageYield(ctx context.Context) (float64, error)
}

// RankedFarm is one entry of a ranking result.
type RankedFarm struct {
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	Coordinates string    `json:"coordinates"`
	Size        float64   `json:"size"`
	Yield       float64   `json:"yield"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"createdAt"`
	Distance    float64   `json:"distance"`
}

// Pipeline ranks farms for a requesting user. It holds no mutable state and
// is safe for concurrent use when its dependencies are.
type Pipeline struct {
	users     UserLookup
	farms     PageSource
	stats     YieldStats
	distances distance.Client
	cfg       Config
	metrics   *Metrics
	logger    *slog.Logger
}

// NewPipeline creates a ranking pipeline. metrics may be nil.
// A non-positive cfg.OutlierBand is replaced by the default.
func NewPipeline(
	users UserLookup,
	farms PageSource,
	stats YieldStats,
	distances distance.Client,
	cfg Config,
	metrics *Metrics,
	logger *slog.Logger,
) *Pipeline {
	if cfg.OutlierBand <= 0 {
		cfg.OutlierBand = farm.DefaultOutlierBand
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		users:     users,
		farms:     farms,
		stats:     stats,
		distances: distances,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// Rank returns one page of farms enriched with the distance from the user
// identified by userID. See the package documentation for ordering rules.
func (p *Pipeline) Rank(ctx context.Context, userID string, req Request) (ranked []RankedFarm, err error) {
	req = req.withDefaults()

	ctx, endSpan := tracing.StartSpan(ctx, "ranking.rank",
		attribute.Int("ranking.limit", req.Limit),
		attribute.Int("ranking.offset", req.Offset),
		attribute.String("ranking.sort_column", string(req.SortColumn)),
		attribute.String("ranking.sort_order", string(req.SortOrder)),
		attribute.Bool("ranking.outliers", req.Outliers),
	)
	start := time.Now()
	defer func() {
		p.metrics.observe(err, time.Since(start).Seconds(), len(ranked))
		endSpan(err)
	}()

	if err := req.Validate(); err != nil {
		return nil, &Error{Kind: KindInvalidParameter, Op: "validate", Err: err}
	}

	owner, err := p.lookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Limit == 0 {
		return []RankedFarm{}, nil
	}

	var band *farm.YieldBand
	if req.Outliers {
		avg, err := p.stats.AverageYield(ctx)
		if err != nil {
			return nil, &Error{Kind: KindStoreUnavailable, Op: "average_yield", Err: err}
		}
		band = &farm.YieldBand{Center: avg, Band: p.cfg.OutlierBand}
		tracing.SetAttributes(ctx, attribute.Float64("ranking.average_yield", avg))
	}

	page, err := p.farms.QueryPage(ctx, storeQuery(req, band))
	if err != nil {
		return nil, classifyStoreError("query_page", err)
	}
	if len(page) == 0 {
		return []RankedFarm{}, nil
	}

	destinations := make([]string, len(page))
	for i, f := range page {
		destinations[i] = f.Coordinates
	}

	distances, err := p.distances.Distances(ctx, owner.Coordinates, destinations)
	if err != nil {
		return nil, &Error{Kind: KindUpstreamUnavailable, Op: "distances", Err: err}
	}
	if len(distances) != len(page) {
		return nil, &Error{
			Kind: KindUpstreamUnavailable,
			Op:   "distances",
			Err:  fmt.Errorf("%w: got %d, want %d", ErrDistanceMismatch, len(distances), len(page)),
		}
	}

	ranked = assemble(page, distances)
	if req.SortColumn == SortByDistance {
		sortByDistance(ranked, req.SortOrder)
	}

	p.logger.DebugContext(ctx, "farms ranked",
		slog.String("user_id", owner.ID),
		slog.Int("count", len(ranked)),
		slog.String("sort_column", string(req.SortColumn)),
		slog.String("sort_order", string(req.SortOrder)),
		slog.Bool("outliers", req.Outliers))

	return ranked, nil
}

func (p *Pipeline) lookupUser(ctx context.Context, userID string) (*user.User, error) {
	if userID == "" {
		return nil, &Error{Kind: KindEntityNotFound, Op: "lookup_user", Err: user.ErrNotFound}
	}
	u, err := p.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, &Error{Kind: KindEntityNotFound, Op: "lookup_user", Err: err}
		}
		return nil, &Error{Kind: KindStoreUnavailable, Op: "lookup_user", Err: err}
	}
	return u, nil
}

// storeQuery maps a ranking request onto a store query. Distance has no
// store column; the page is read by name descending and re-sorted afterwards.
func storeQuery(req Request, band *farm.YieldBand) farm.PageQuery {
	q := farm.PageQuery{
		Limit:      req.Limit,
		Offset:     req.Offset,
		Column:     farm.ColumnName,
		Descending: req.SortOrder == Descending,
		Band:       band,
	}
	switch req.SortColumn {
	case SortByDate:
		q.Column = farm.ColumnCreatedAt
	case SortByDistance:
		q.Descending = true
	}
	return q
}

func classifyStoreError(op string, err error) error {
	if errors.Is(err, farm.ErrInvalidPageQuery) {
		return &Error{Kind: KindInvalidParameter, Op: op, Err: err}
	}
	return &Error{Kind: KindStoreUnavailable, Op: op, Err: err}
}

// assemble pairs page[i] with distances[i].
func assemble(page []farm.Projection, distances []float64) []RankedFarm {
	ranked := make([]RankedFarm, len(page))
	for i, f := range page {
		ranked[i] = RankedFarm{
			Name:        f.Name,
			Address:     f.Address,
			Coordinates: f.Coordinates,
			Size:        f.Size,
			Yield:       f.Yield,
			Owner:       f.Owner,
			CreatedAt:   f.CreatedAt,
			Distance:    distances[i],
		}
	}
	return ranked
}

func sortByDistance(ranked []RankedFarm, order SortOrder) {
	slices.SortStableFunc(ranked, func(a, b RankedFarm) int {
		if order == Descending {
			return cmp.Compare(b.Distance, a.Distance)
		}
		return cmp.Compare(a.Distance, b.Distance)
	})
}
