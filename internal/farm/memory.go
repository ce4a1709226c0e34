package farm

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/farmrank/internal/user"
)

// OwnerDirectory resolves farm owners. user.Repository satisfies it.
type OwnerDirectory interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Safe for concurrent use.
type InMemoryRepository struct {
	mu     sync.RWMutex
	farms  []*Farm
	owners OwnerDirectory
}

// NewInMemoryRepository creates an in-memory farm repository whose owner
// join is resolved through owners.
func NewInMemoryRepository(owners OwnerDirectory) *InMemoryRepository {
	return &InMemoryRepository{owners: owners}
}

// Insert stores a new farm. The owner must exist in the owner directory.
func (r *InMemoryRepository) Insert(ctx context.Context, f *Farm) error {
	if _, err := r.owners.GetByID(ctx, f.UserID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrOwnerNotFound
		}
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	f.UpdatedAt = f.CreatedAt

	farmCopy := *f
	r.farms = append(r.farms, &farmCopy)
	return nil
}

// QueryPage returns one sorted page. Ties keep insertion order.
func (r *InMemoryRepository) QueryPage(ctx context.Context, q PageQuery) ([]Projection, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Limit == 0 {
		return []Projection{}, nil
	}

	r.mu.RLock()
	candidates := make([]Farm, 0, len(r.farms))
	for _, f := range r.farms {
		if q.Band != nil && !q.Band.Contains(f.Yield) {
			continue
		}
		candidates = append(candidates, *f)
	}
	r.mu.RUnlock()

	slices.SortStableFunc(candidates, func(a, b Farm) int {
		var c int
		switch q.Column {
		case ColumnCreatedAt:
			c = a.CreatedAt.Compare(b.CreatedAt)
		default:
			c = strings.Compare(a.Name, b.Name)
		}
		if q.Descending {
			return -c
		}
		return c
	})

	if q.Offset >= len(candidates) {
		return []Projection{}, nil
	}
	end := min(q.Offset+q.Limit, len(candidates))

	page := make([]Projection, 0, end-q.Offset)
	for _, f := range candidates[q.Offset:end] {
		owner, err := r.owners.GetByID(ctx, f.UserID)
		if err != nil {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
		page = append(page, Projection{
			Name:        f.Name,
			Address:     f.Address,
			Coordinates: f.Coordinates,
			Size:        f.Size,
			Yield:       f.Yield,
			Owner:       owner.Email,
			CreatedAt:   f.CreatedAt,
		})
	}
	return page, nil
}

// AverageYield returns the mean yield, or 0 for an empty collection.
func (r *InMemoryRepository) AverageYield(ctx context.Context) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.farms) == 0 {
		return 0, nil
	}
	var sum float64
	for _, f := range r.farms {
		sum += f.Yield
	}
	return sum / float64(len(r.farms)), nil
}
