package farm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/onnwee/farmrank/internal/tracing"
)

var (
	// ErrStoreUnavailable wraps every persistence failure other than a
	// missing owner.
	ErrStoreUnavailable = errors.New("farm store unavailable")

	// ErrOwnerNotFound is returned when inserting a farm whose owner does not exist.
	ErrOwnerNotFound = errors.New("farm owner not found")
)

// pqForeignKeyViolation is the Postgres SQLSTATE for foreign key violations.
const pqForeignKeyViolation = "23503"

// Repository defines farm persistence operations.
type Repository interface {
	// Insert stores a new farm and sets its ID and timestamps.
	// Returns ErrOwnerNotFound if f.UserID does not reference an existing user.
	Insert(ctx context.Context, f *Farm) error

	// QueryPage returns at most q.Limit projections ordered by q.Column.
	QueryPage(ctx context.Context, q PageQuery) ([]Projection, error)

	// AverageYield returns the mean yield across all farms, or 0 when there are none.
	AverageYield(ctx context.Context) (float64, error)
}

// orderColumns maps store columns to SQL expressions. Only these
// expressions are ever interpolated into ORDER BY.
var orderColumns = map[Column]string{
	ColumnName:      "f.name",
	ColumnCreatedAt: "f.created_at",
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

// Insert stores a new farm.
func (r *PostgresRepository) Insert(ctx context.Context, f *Farm) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "farms", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	query := `
		INSERT INTO farms (name, coordinates, address, size, yield, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRowContext(ctx, query,
		f.Name,
		f.Coordinates,
		f.Address,
		f.Size,
		f.Yield,
		f.UserID,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqForeignKeyViolation {
			return ErrOwnerNotFound
		}
		r.logger.ErrorContext(ctx, "failed to insert farm",
			slog.String("error", err.Error()),
			slog.String("user_id", f.UserID))
		return fmt.Errorf("%w: insert farm: %w", ErrStoreUnavailable, err)
	}

	r.logger.InfoContext(ctx, "farm created",
		slog.String("farm_id", f.ID),
		slog.String("user_id", f.UserID))
	return nil
}

// buildPageQuery renders the SQL and arguments for q. q must be valid.
func buildPageQuery(q PageQuery) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, 4)

	b.WriteString(`SELECT f.name, f.address, f.coordinates, f.size, f.yield, u.email AS owner, f.created_at
		FROM farms f
		INNER JOIN users u ON u.id = f.user_id`)

	if q.Band != nil {
		args = append(args, q.Band.Min(), q.Band.Max())
		b.WriteString("\n\t\tWHERE f.yield > $1 AND f.yield < $2")
	}

	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}
	fmt.Fprintf(&b, "\n\t\tORDER BY %s %s", orderColumns[q.Column], direction)

	args = append(args, q.Limit, q.Offset)
	fmt.Fprintf(&b, "\n\t\tLIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return b.String(), args
}

// QueryPage returns one sorted page of farm projections.
// The page is read fully before returning; on any error no rows are returned.
func (r *PostgresRepository) QueryPage(ctx context.Context, q PageQuery) (page []Projection, err error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Limit == 0 {
		return []Projection{}, nil
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "farms", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query, args := buildPageQuery(q)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query farm page: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	page = make([]Projection, 0, q.Limit)
	for rows.Next() {
		var p Projection
		if err := rows.Scan(
			&p.Name,
			&p.Address,
			&p.Coordinates,
			&p.Size,
			&p.Yield,
			&p.Owner,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan farm row: %w", ErrStoreUnavailable, err)
		}
		page = append(page, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate farm rows: %w", ErrStoreUnavailable, err)
	}

	r.logger.DebugContext(ctx, "farm page queried",
		slog.Int("limit", q.Limit),
		slog.Int("offset", q.Offset),
		slog.String("column", q.Column.String()),
		slog.Bool("descending", q.Descending),
		slog.Bool("outlier_filter", q.Band != nil),
		slog.Int("rows", len(page)))

	return page, nil
}

// AverageYield returns the mean yield across the whole farm collection.
func (r *PostgresRepository) AverageYield(ctx context.Context) (avg float64, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "farms", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	err = r.db.QueryRowContext(ctx, `SELECT COALESCE(AVG(yield), 0) FROM farms`).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("%w: average yield: %w", ErrStoreUnavailable, err)
	}
	return avg, nil
}
