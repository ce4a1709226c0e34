// Package seed populates a store with one user and a batch of random farms,
// for local development and load checks of the ranking endpoint.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/farmrank/internal/farm"
	"github.com/onnwee/farmrank/internal/stats"
	"github.com/onnwee/farmrank/internal/user"
)

// Defaults for Options.
const (
	DefaultFarms       = 150
	DefaultConcurrency = 8
	MinMeasure         = 20.0
	MaxMeasure         = 100.0
	passwordLength     = 10
)

// UserStore persists users.
type UserStore interface {
	Insert(ctx context.Context, u *user.User) error
}

// FarmStore persists farms.
type FarmStore interface {
	Insert(ctx context.Context, f *farm.Farm) error
}

// Options controls a seed run. Zero values take the defaults.
type Options struct {
	Farms       int
	Email       string
	Concurrency int
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// Rand is the source for generated values. Defaults to a randomly seeded PCG.
	Rand *rand.Rand
}

// Result describes what a run created. Password is the plaintext of the
// seeded user's generated password.
type Result struct {
	User     *user.User
	Password string
	Inserted int64
}

var (
	adjectives = []string{"green", "golden", "quiet", "windy", "sunny", "misty", "old", "little", "high", "low", "red", "silver"}
	features   = []string{"meadow", "river", "oak", "hill", "brook", "valley", "orchard", "willow", "stone", "field", "ridge", "pond"}
	kinds      = []string{"farm", "acres", "ranch", "homestead", "fields", "grange", "croft", "estate"}
	streets    = []string{"Mill Lane", "Church Road", "Orchard Way", "Station Road", "Polder Road", "Dyke Street", "Farm Lane", "Canal Side"}
)

// Run creates one user and opts.Farms farms owned by it. Farm inserts run
// concurrently and the first failure cancels the rest.
func Run(ctx context.Context, users UserStore, farms FarmStore, opts Options, logger *slog.Logger) (*Result, error) {
	opts = withDefaults(opts)
	if logger == nil {
		logger = slog.Default()
	}
	rng := opts.Rand

	password := randomLetters(rng, passwordLength)
	owner := &user.User{
		Email:       opts.Email,
		Coordinates: randomCoordinates(rng),
		Address:     randomAddress(rng),
	}
	if err := owner.SetPassword(password, opts.BcryptCost); err != nil {
		return nil, err
	}
	if owner.Email == "" {
		owner.Email = fmt.Sprintf("grower-%s@example.com", randomLetters(rng, 8))
	}
	if errs := owner.Normalize(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid seed user: %v", errs)
	}
	if err := users.Insert(ctx, owner); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	logger.Info("created seed user", "user_id", owner.ID, "email", owner.Email)

	// Generate up front so values depend only on the random source, not on
	// goroutine scheduling.
	batch := make([]*farm.Farm, opts.Farms)
	for i := range batch {
		batch[i] = randomFarm(rng, owner.ID)
	}

	counts := stats.NewInsertStats()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, f := range batch {
		g.Go(func() error {
			if err := farms.Insert(gctx, f); err != nil {
				counts.RecordFailure()
				return fmt.Errorf("insert farm %q: %w", f.Name, err)
			}
			counts.RecordInsert()
			return nil
		})
	}
	err := g.Wait()
	counts.LogSummary(logger, "farms")
	if err != nil {
		return nil, err
	}

	return &Result{User: owner, Password: password, Inserted: counts.Inserted()}, nil
}

func withDefaults(opts Options) Options {
	if opts.Farms <= 0 {
		opts.Farms = DefaultFarms
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return opts
}

func randomFarm(rng *rand.Rand, ownerID string) *farm.Farm {
	name := fmt.Sprintf("%s %s %s",
		pick(rng, adjectives), pick(rng, features), pick(rng, kinds))
	return &farm.Farm{
		Name:        titleCase(name),
		Coordinates: randomCoordinates(rng),
		Address:     randomAddress(rng),
		Size:        randomMeasure(rng),
		Yield:       randomMeasure(rng),
		UserID:      ownerID,
	}
}

// randomMeasure returns a value in [MinMeasure, MaxMeasure] rounded to 2 decimals.
func randomMeasure(rng *rand.Rand) float64 {
	v := MinMeasure + rng.Float64()*(MaxMeasure-MinMeasure)
	return math.Round(v*100) / 100
}

func randomCoordinates(rng *rand.Rand) string {
	lat := rng.Float64()*180 - 90
	lng := rng.Float64()*360 - 180
	return fmt.Sprintf("%.6f,%.6f", lat, lng)
}

func randomAddress(rng *rand.Rand) string {
	return fmt.Sprintf("%d %s", 1+rng.IntN(999), pick(rng, streets))
}

func randomLetters(rng *rand.Rand, n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rng.IntN(len(letters))]
	}
	return string(b)
}

func pick(rng *rand.Rand, words []string) string {
	return words[rng.IntN(len(words))]
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
