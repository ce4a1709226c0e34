package ranking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/onnwee/farmrank/internal/distance"
	"github.com/onnwee/farmrank/internal/farm"
	"github.com/onnwee/farmrank/internal/user"
)

const testUserID = "user-1"

type stubUsers struct {
	users map[string]*user.User
	err   error
	calls int
}

func (s *stubUsers) GetByID(ctx context.Context, id string) (*user.User, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

type stubFarms struct {
	page    []farm.Projection
	err     error
	queries []farm.PageQuery
}

func (s *stubFarms) QueryPage(ctx context.Context, q farm.PageQuery) ([]farm.Projection, error) {
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}
	return s.page, nil
}

type stubStats struct {
	avg   float64
	err   error
	calls int
}

func (s *stubStats) AverageYield(ctx context.Context) (float64, error) {
	s.calls++
	return s.avg, s.err
}

type stubDistances struct {
	fn    func(origin string, destinations []string) ([]float64, error)
	calls int

	origin       string
	destinations []string
}

func (s *stubDistances) Distances(ctx context.Context, origin string, destinations []string) ([]float64, error) {
	s.calls++
	s.origin = origin
	s.destinations = append([]string(nil), destinations...)
	return s.fn(origin, destinations)
}

// fixedDistances returns values in destination order.
func fixedDistances(values ...float64) *stubDistances {
	return &stubDistances{fn: func(string, []string) ([]float64, error) {
		return values, nil
	}}
}

type fixture struct {
	users     *stubUsers
	farms     *stubFarms
	stats     *stubStats
	distances *stubDistances
	metrics   *Metrics
	pipeline  *Pipeline
}

func newFixture(page []farm.Projection, distances *stubDistances) *fixture {
	f := &fixture{
		users: &stubUsers{users: map[string]*user.User{
			testUserID: {ID: testUserID, Email: "me@example.com", Coordinates: "52.0907,5.1214"},
		}},
		farms:     &stubFarms{page: page},
		stats:     &stubStats{avg: 48.65},
		distances: distances,
		metrics:   NewMetrics(),
	}
	f.pipeline = NewPipeline(f.users, f.farms, f.stats, f.distances, DefaultConfig(), f.metrics, nil)
	return f
}

func projections(names ...string) []farm.Projection {
	page := make([]farm.Projection, len(names))
	for i, n := range names {
		page[i] = farm.Projection{
			Name:        n,
			Address:     "addr " + n,
			Coordinates: fmt.Sprintf("52.%d,4.%d", i, i),
			Size:        10,
			Yield:       50,
			Owner:       "owner@example.com",
			CreatedAt:   time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC),
		}
	}
	return page
}

func names(ranked []RankedFarm) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Name
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRank_DistancesArePositional(t *testing.T) {
	fx := newFixture(projections("C", "B", "A"), fixedDistances(300, 100, 200))

	got, err := fx.pipeline.Rank(context.Background(), testUserID, DefaultRequest())
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}

	if !equalStrings(names(got), []string{"C", "B", "A"}) {
		t.Fatalf("order = %v, want store order", names(got))
	}
	want := map[string]float64{"C": 300, "B": 100, "A": 200}
	for _, r := range got {
		if r.Distance != want[r.Name] {
			t.Errorf("%s distance = %v, want %v", r.Name, r.Distance, want[r.Name])
		}
		if r.Owner != "owner@example.com" || r.Address != "addr "+r.Name {
			t.Errorf("%s lost projection fields: %+v", r.Name, r)
		}
	}

	if fx.distances.origin != "52.0907,5.1214" {
		t.Errorf("origin = %q, want user coordinates", fx.distances.origin)
	}
	if !equalStrings(fx.distances.destinations, []string{"52.0,4.0", "52.1,4.1", "52.2,4.2"}) {
		t.Errorf("destinations = %v, want page coordinates in page order", fx.distances.destinations)
	}
}

func TestRank_StoreQueryMapping(t *testing.T) {
	tests := []struct {
		name           string
		column         SortColumn
		order          SortOrder
		wantColumn     farm.Column
		wantDescending bool
	}{
		{"name asc", SortByName, Ascending, farm.ColumnName, false},
		{"name desc", SortByName, Descending, farm.ColumnName, true},
		{"date asc", SortByDate, Ascending, farm.ColumnCreatedAt, false},
		{"date desc", SortByDate, Descending, farm.ColumnCreatedAt, true},
		{"distance asc reads name desc", SortByDistance, Ascending, farm.ColumnName, true},
		{"distance desc reads name desc", SortByDistance, Descending, farm.ColumnName, true},
		{"defaults", "", "", farm.ColumnName, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(projections("A"), fixedDistances(1))
			req := Request{Limit: 50, Offset: 100, SortColumn: tt.column, SortOrder: tt.order}

			if _, err := fx.pipeline.Rank(context.Background(), testUserID, req); err != nil {
				t.Fatalf("Rank() error = %v", err)
			}
			if len(fx.farms.queries) != 1 {
				t.Fatalf("expected 1 store query, got %d", len(fx.farms.queries))
			}
			q := fx.farms.queries[0]
			if q.Column != tt.wantColumn || q.Descending != tt.wantDescending {
				t.Errorf("query column=%s descending=%v, want %s/%v", q.Column, q.Descending, tt.wantColumn, tt.wantDescending)
			}
			if q.Limit != 50 || q.Offset != 100 {
				t.Errorf("query limit=%d offset=%d, want 50/100", q.Limit, q.Offset)
			}
			if q.Band != nil {
				t.Error("band must be nil without outlier filtering")
			}
		})
	}
}

func TestRank_SortByDistance(t *testing.T) {
	tests := []struct {
		name  string
		order SortOrder
		want  []string
	}{
		{"ascending", Ascending, []string{"B", "D", "A", "C"}},
		{"descending", Descending, []string{"C", "D", "A", "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(projections("D", "C", "B", "A"), fixedDistances(150, 900, 100, 150))
			req := DefaultRequest()
			req.SortColumn = SortByDistance
			req.SortOrder = tt.order

			got, err := fx.pipeline.Rank(context.Background(), testUserID, req)
			if err != nil {
				t.Fatalf("Rank() error = %v", err)
			}
			// D and A tie at 150; stable sort keeps D (page index 0) before A.
			if !equalStrings(names(got), tt.want) {
				t.Errorf("order = %v, want %v", names(got), tt.want)
			}
		})
	}
}

func TestRank_OutlierFilter(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		fx := newFixture(projections("A"), fixedDistances(1))
		req := DefaultRequest()
		req.Outliers = true

		if _, err := fx.pipeline.Rank(context.Background(), testUserID, req); err != nil {
			t.Fatalf("Rank() error = %v", err)
		}
		if fx.stats.calls != 1 {
			t.Errorf("stats calls = %d, want 1", fx.stats.calls)
		}
		band := fx.farms.queries[0].Band
		if band == nil {
			t.Fatal("expected a yield band")
		}
		if band.Center != 48.65 || band.Band != farm.DefaultOutlierBand {
			t.Errorf("band = %+v, want center 48.65 band 0.3", *band)
		}
		for yield, keep := range map[float64]bool{5: false, 45.78: true, 140.56: false} {
			if band.Contains(yield) != keep {
				t.Errorf("band.Contains(%v) = %v, want %v", yield, !keep, keep)
			}
		}
	})

	t.Run("disabled does not read stats", func(t *testing.T) {
		fx := newFixture(projections("A"), fixedDistances(1))

		if _, err := fx.pipeline.Rank(context.Background(), testUserID, DefaultRequest()); err != nil {
			t.Fatalf("Rank() error = %v", err)
		}
		if fx.stats.calls != 0 {
			t.Errorf("stats calls = %d, want 0", fx.stats.calls)
		}
	})

	t.Run("custom band", func(t *testing.T) {
		fx := newFixture(projections("A"), fixedDistances(1))
		p := NewPipeline(fx.users, fx.farms, fx.stats, fx.distances, Config{OutlierBand: 0.1}, nil, nil)
		req := DefaultRequest()
		req.Outliers = true

		if _, err := p.Rank(context.Background(), testUserID, req); err != nil {
			t.Fatalf("Rank() error = %v", err)
		}
		if got := fx.farms.queries[0].Band.Band; got != 0.1 {
			t.Errorf("band = %v, want 0.1", got)
		}
	})
}

func TestRank_OutlierFilterWithInMemoryStore(t *testing.T) {
	users := user.NewInMemoryRepository()
	owner := &user.User{Email: "owner@example.com", Coordinates: "0,0", Address: "Null Island"}
	if err := users.Insert(context.Background(), owner); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	farms := farm.NewInMemoryRepository(users)
	for i, y := range []float64{5, 45.78, 140.56} {
		f := &farm.Farm{
			Name:        fmt.Sprintf("F%d", i),
			Coordinates: "1,1",
			Address:     "addr",
			Size:        1,
			Yield:       y,
			UserID:      owner.ID,
		}
		if err := farms.Insert(context.Background(), f); err != nil {
			t.Fatalf("insert farm: %v", err)
		}
	}

	stats := &stubStats{avg: 48.65}
	p := NewPipeline(users, farms, stats, distance.NewHaversineClient(), DefaultConfig(), nil, nil)
	req := DefaultRequest()
	req.Outliers = true

	got, err := p.Rank(context.Background(), owner.ID, req)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(got) != 1 || got[0].Yield != 45.78 {
		t.Fatalf("expected only the 45.78 farm, got %+v", got)
	}
	if got[0].Distance <= 0 {
		t.Errorf("distance = %v, want > 0", got[0].Distance)
	}
}

func TestRank_EmptyPageSkipsDistance(t *testing.T) {
	fx := newFixture(nil, fixedDistances())

	got, err := fx.pipeline.Rank(context.Background(), testUserID, DefaultRequest())
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil result, got %v", got)
	}
	if fx.distances.calls != 0 {
		t.Errorf("distance calls = %d, want 0", fx.distances.calls)
	}
}

func TestRank_ZeroLimit(t *testing.T) {
	fx := newFixture(projections("A"), fixedDistances(1))
	req := DefaultRequest()
	req.Limit = 0
	req.Outliers = true

	got, err := fx.pipeline.Rank(context.Background(), testUserID, req)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
	if len(fx.farms.queries) != 0 || fx.distances.calls != 0 || fx.stats.calls != 0 {
		t.Errorf("zero limit touched dependencies: queries=%d distances=%d stats=%d",
			len(fx.farms.queries), fx.distances.calls, fx.stats.calls)
	}
}

func TestRank_Errors(t *testing.T) {
	storeDown := errors.New("connection refused")

	tests := []struct {
		name     string
		userID   string
		req      Request
		setup    func(fx *fixture)
		wantKind Kind
		wantErr  error
	}{
		{
			name:     "unknown user",
			userID:   "ghost",
			req:      DefaultRequest(),
			wantKind: KindEntityNotFound,
			wantErr:  user.ErrNotFound,
		},
		{
			name:     "empty user id",
			userID:   "",
			req:      DefaultRequest(),
			wantKind: KindEntityNotFound,
		},
		{
			name:     "user store down",
			userID:   testUserID,
			req:      DefaultRequest(),
			setup:    func(fx *fixture) { fx.users.err = storeDown },
			wantKind: KindStoreUnavailable,
			wantErr:  storeDown,
		},
		{
			name:     "limit too large",
			userID:   testUserID,
			req:      Request{Limit: 101},
			wantKind: KindInvalidParameter,
			wantErr:  ErrInvalidRequest,
		},
		{
			name:     "negative offset",
			userID:   testUserID,
			req:      Request{Limit: 10, Offset: -1},
			wantKind: KindInvalidParameter,
		},
		{
			name:     "unknown sort column",
			userID:   testUserID,
			req:      Request{Limit: 10, SortColumn: "yield"},
			wantKind: KindInvalidParameter,
		},
		{
			name:     "stats unavailable",
			userID:   testUserID,
			req:      Request{Limit: 10, Outliers: true},
			setup:    func(fx *fixture) { fx.stats.err = farm.ErrStoreUnavailable },
			wantKind: KindStoreUnavailable,
			wantErr:  farm.ErrStoreUnavailable,
		},
		{
			name:     "page query unavailable",
			userID:   testUserID,
			req:      DefaultRequest(),
			setup:    func(fx *fixture) { fx.farms.err = fmt.Errorf("%w: boom", farm.ErrStoreUnavailable) },
			wantKind: KindStoreUnavailable,
			wantErr:  farm.ErrStoreUnavailable,
		},
		{
			name:   "distance upstream failure",
			userID: testUserID,
			req:    DefaultRequest(),
			setup: func(fx *fixture) {
				fx.distances.fn = func(string, []string) ([]float64, error) {
					return nil, distance.ErrUpstreamUnavailable
				}
			},
			wantKind: KindUpstreamUnavailable,
			wantErr:  distance.ErrUpstreamUnavailable,
		},
		{
			name:   "distance count mismatch",
			userID: testUserID,
			req:    DefaultRequest(),
			setup: func(fx *fixture) {
				fx.distances.fn = func(string, []string) ([]float64, error) {
					return []float64{1}, nil
				}
			},
			wantKind: KindUpstreamUnavailable,
			wantErr:  ErrDistanceMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(projections("A", "B"), fixedDistances(1, 2))
			if tt.setup != nil {
				tt.setup(fx)
			}

			got, err := fx.pipeline.Rank(context.Background(), tt.userID, tt.req)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if got != nil {
				t.Errorf("expected no partial result, got %v", got)
			}
			if kind := KindOf(err); kind != tt.wantKind {
				t.Errorf("KindOf() = %s, want %s (err: %v)", kind, tt.wantKind, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v in chain, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRank_UserLookedUpBeforeFarms(t *testing.T) {
	fx := newFixture(projections("A"), fixedDistances(1))

	_, err := fx.pipeline.Rank(context.Background(), "ghost", DefaultRequest())
	if KindOf(err) != KindEntityNotFound {
		t.Fatalf("KindOf() = %s, want entity_not_found", KindOf(err))
	}
	if len(fx.farms.queries) != 0 {
		t.Error("farm store must not be queried for an unknown user")
	}
}

func TestRank_Metrics(t *testing.T) {
	fx := newFixture(projections("A", "B"), fixedDistances(1, 2))

	if _, err := fx.pipeline.Rank(context.Background(), testUserID, DefaultRequest()); err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if _, err := fx.pipeline.Rank(context.Background(), "ghost", DefaultRequest()); err == nil {
		t.Fatal("expected error for unknown user")
	}

	if v := outcomeCount(t, fx.metrics, outcomeOK); v != 1 {
		t.Errorf("ok outcomes = %v, want 1", v)
	}
	if v := outcomeCount(t, fx.metrics, KindEntityNotFound.String()); v != 1 {
		t.Errorf("entity_not_found outcomes = %v, want 1", v)
	}

	var metric dto.Metric
	if err := fx.metrics.pageSize.Write(&metric); err != nil {
		t.Fatalf("read page size: %v", err)
	}
	if got := metric.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("page size samples = %d, want 1", got)
	}
	if got := metric.GetHistogram().GetSampleSum(); got != 2 {
		t.Errorf("page size sum = %v, want 2", got)
	}
}

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{MetricRankRequestsTotal, MetricRankDuration, MetricRankPageSize} {
		if !found[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}

	if err := NewMetrics().Register(reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func outcomeCount(t *testing.T, m *Metrics, outcome string) float64 {
	t.Helper()
	var metric dto.Metric
	if err := m.requestsTotal.WithLabelValues(outcome).Write(&metric); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return metric.GetCounter().GetValue()
}

// seededStores returns in-memory stores holding one owner and n farms named
// "Farm 000" onwards, with distinct coordinates, yields and creation times.
func seededStores(t *testing.T, n int) (*user.InMemoryRepository, *farm.InMemoryRepository, string) {
	t.Helper()
	ctx := context.Background()

	users := user.NewInMemoryRepository()
	owner := &user.User{Email: "grower@example.com", Coordinates: "52.0907,5.1214", Address: "Utrecht"}
	if err := users.Insert(ctx, owner); err != nil {
		t.Fatalf("insert user: %v", err)
	}

	farms := farm.NewInMemoryRepository(users)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range n {
		f := &farm.Farm{
			Name:        fmt.Sprintf("Farm %03d", i),
			Coordinates: fmt.Sprintf("%.4f,%.4f", 50+float64(i)*0.01, 4+float64(i)*0.013),
			Address:     fmt.Sprintf("%d Polder Road", i+1),
			Size:        20 + float64(i%80),
			Yield:       20 + float64((i*37)%81),
			UserID:      owner.ID,
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		}
		if err := farms.Insert(ctx, f); err != nil {
			t.Fatalf("insert farm: %v", err)
		}
	}
	return users, farms, owner.ID
}

func TestRank_PagesAreDisjointAndContiguous(t *testing.T) {
	users, farms, ownerID := seededStores(t, 150)
	p := NewPipeline(users, farms, farms, distance.NewHaversineClient(), DefaultConfig(), nil, nil)

	seen := make(map[string]bool)
	for _, offset := range []int{0, 50, 100} {
		req := Request{Limit: 50, Offset: offset, SortColumn: SortByName, SortOrder: Ascending}
		got, err := p.Rank(context.Background(), ownerID, req)
		if err != nil {
			t.Fatalf("Rank(offset=%d) error = %v", offset, err)
		}

		want := make([]string, 50)
		for i := range want {
			want[i] = fmt.Sprintf("Farm %03d", offset+i)
		}
		if !equalStrings(names(got), want) {
			t.Fatalf("offset %d: got %v, want %v", offset, names(got), want)
		}
		for _, n := range names(got) {
			if seen[n] {
				t.Errorf("%s returned on more than one page", n)
			}
			seen[n] = true
		}
	}
	if len(seen) != 150 {
		t.Errorf("pages covered %d farms, want 150", len(seen))
	}

	past, err := p.Rank(context.Background(), ownerID, Request{Limit: 50, Offset: 150, SortColumn: SortByName, SortOrder: Ascending})
	if err != nil {
		t.Fatalf("Rank(offset=150) error = %v", err)
	}
	if past == nil || len(past) != 0 {
		t.Errorf("expected empty non-nil page past the end, got %v", past)
	}
}

func TestRank_ConcurrentCalls(t *testing.T) {
	users, farms, ownerID := seededStores(t, 150)
	p := NewPipeline(users, farms, farms, distance.NewHaversineClient(), DefaultConfig(), NewMetrics(), nil)

	requests := []Request{
		{Limit: 50, Offset: 100, SortColumn: SortByName, SortOrder: Ascending},
		{Limit: 50, Offset: 0, SortColumn: SortByDistance, SortOrder: Ascending, Outliers: true},
		{Limit: 20, Offset: 10, SortColumn: SortByDate, SortOrder: Descending, Outliers: true},
		{Limit: 0, SortColumn: SortByName, SortOrder: Descending, Outliers: true},
	}

	want := make([][]RankedFarm, len(requests))
	for i, req := range requests {
		got, err := p.Rank(context.Background(), ownerID, req)
		if err != nil {
			t.Fatalf("Rank(%+v) error = %v", req, err)
		}
		if req.Limit > 0 && len(got) != req.Limit {
			t.Fatalf("Rank(%+v) returned %d farms, want %d", req, len(got), req.Limit)
		}
		want[i] = got
	}

	const workers = 16
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := range 5 {
				i := (w + round) % len(requests)
				got, err := p.Rank(context.Background(), ownerID, requests[i])
				if err != nil {
					t.Errorf("worker %d: Rank() error = %v", w, err)
					return
				}
				if len(got) != len(want[i]) {
					t.Errorf("worker %d: got %d farms, want %d", w, len(got), len(want[i]))
					return
				}
				for j := range got {
					if got[j] != want[i][j] {
						t.Errorf("worker %d request %d: row %d = %+v, want %+v", w, i, j, got[j], want[i][j])
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	if v := outcomeCount(t, p.metrics, outcomeOK); v != float64(len(requests)+workers*5) {
		t.Errorf("success count = %v, want %d", v, len(requests)+workers*5)
	}
}
