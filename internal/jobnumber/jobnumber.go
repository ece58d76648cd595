// Package jobnumber assigns WHL<YYMMDD><SEQ3> job numbers.
//
// Numbering is optimistic: the generator counts today's jobs, proposes the
// next sequence, and checks that no job already carries it. Collisions back
// off and re-read the count. The unique index on jobs.job_number is the final
// arbiter; CreateJob treats a constraint violation on insert as one more
// detected race. This is correct under light contention but not serializable.
package jobnumber

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mesh-intelligence/photofactory/internal/access"
	"github.com/mesh-intelligence/photofactory/internal/retry"
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// Prefix starts every job number.
const Prefix = "WHL"

// Defaults for the collision loop.
const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = 100 * time.Millisecond
)

// maxSequence is the largest daily sequence the three-digit field can hold.
const maxSequence = 999

// Pattern matches every number the generator can return.
var Pattern = types.JobNumberPattern

// Valid reports whether number is a well-formed job number.
func Valid(number string) bool {
	return Pattern.MatchString(number)
}

// Format builds the job number for day and seq.
func Format(day time.Time, seq int) string {
	return fmt.Sprintf("%s%s%03d", Prefix, day.Format("060102"), seq)
}

// JobStore is the part of the access layer the generator needs.
type JobStore interface {
	CountCreatedBetween(ctx context.Context, start, end time.Time) types.Result[int]
	GetByNumber(ctx context.Context, number string) types.Result[*types.Job]
	Insert(ctx context.Context, in types.JobInput) types.Result[*types.Job]
}

var _ JobStore = (*access.Jobs)(nil)

// Generator hands out job numbers. It is safe for concurrent use.
type Generator struct {
	jobs      JobStore
	now       func() time.Time
	retries   int
	baseDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger

	mu           sync.Mutex
	lastFallback int64
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock sets the clock. Day boundaries follow the clock's location.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithLogger sets the logger. A nil logger selects slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithRetries bounds the collision loop. Values below 1 are ignored.
func WithRetries(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.retries = n
		}
	}
}

// WithBaseDelay sets the backoff unit; attempt k waits k times this delay.
func WithBaseDelay(d time.Duration) Option {
	return func(g *Generator) {
		if d >= 0 {
			g.baseDelay = d
		}
	}
}

// WithSleep replaces the backoff wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Generator) {
		if sleep != nil {
			g.sleep = sleep
		}
	}
}

// New returns a Generator over jobs.
func New(jobs JobStore, opts ...Option) *Generator {
	g := &Generator{
		jobs:      jobs,
		now:       time.Now,
		retries:   DefaultMaxRetries,
		baseDelay: DefaultBaseDelay,
		sleep:     retry.Sleep,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate proposes the next free job number for today's local date.
//
// Result.Data is always a usable number. When the collision loop runs out of
// retries or the store fails, Data holds a timestamp-derived fallback and
// Err carries a non-fatal KindDatabase error describing why.
func (g *Generator) Generate(ctx context.Context) types.Result[string] {
	res, _ := g.next(ctx, 0)
	return res
}

// next runs the collision loop with sequences above after. It also returns
// the sequence it settled on, or 0 for a fallback number.
func (g *Generator) next(ctx context.Context, after int) (types.Result[string], int) {
	now := g.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1)

	last := after
	for attempt := 1; attempt <= g.retries; attempt++ {
		count := g.jobs.CountCreatedBetween(ctx, start, end)
		if count.Err != nil {
			return g.fallback(now, types.DatabaseError("counting today's jobs", count.Err)), 0
		}
		seq := max(count.Data+1, last+1)
		if seq > maxSequence {
			return g.fallback(now, types.DatabaseError(fmt.Sprintf("daily sequence exhausted at %d", seq-1), nil)), 0
		}

		number := Format(start, seq)
		existing := g.jobs.GetByNumber(ctx, number)
		if existing.Err != nil {
			return g.fallback(now, types.DatabaseError("checking job number", existing.Err)), 0
		}
		if existing.Data == nil {
			return types.Ok(number), seq
		}

		last = seq
		g.logger.Debug("job number taken", "number", number, "attempt", attempt)
		if attempt == g.retries {
			break
		}
		if err := g.sleep(ctx, g.baseDelay*time.Duration(attempt)); err != nil {
			return g.fallback(now, types.DatabaseError("waiting to retry job number", err)), 0
		}
	}
	return g.fallback(now, types.DatabaseError(
		fmt.Sprintf("job number race not resolved after %d attempts", g.retries), nil)), 0
}

// fallback returns WHL followed by the last nine digits of the millisecond
// clock. Successive fallbacks from one Generator never repeat.
func (g *Generator) fallback(now time.Time, cause *types.AppError) types.Result[string] {
	g.mu.Lock()
	ms := now.UnixMilli()
	if ms <= g.lastFallback {
		ms = g.lastFallback + 1
	}
	g.lastFallback = ms
	g.mu.Unlock()

	number := fmt.Sprintf("%s%09d", Prefix, ms%1_000_000_000)
	g.logger.Warn("using fallback job number", "number", number, "err", cause)
	return types.Result[string]{Data: number, Err: cause}
}

// CreateJob numbers and inserts a job. A unique-index violation on insert
// counts as a detected race: the next number is drawn above the one that
// collided. Once the retries are spent the job is inserted under a fallback
// number.
//
// A job inserted under a fallback number comes back with both Data and a
// non-fatal Err describing why the daily sequence was not used.
func (g *Generator) CreateJob(ctx context.Context, in types.JobInput) types.Result[*types.Job] {
	after := 0
	for attempt := 1; attempt <= g.retries+1; attempt++ {
		var (
			seq int
			gen types.Result[string]
		)
		if attempt <= g.retries {
			gen, seq = g.next(ctx, after)
		} else {
			gen = g.fallback(g.now(), types.DatabaseError("job number insert kept colliding", nil))
		}
		in.JobNumber = gen.Data

		res := g.jobs.Insert(ctx, in)
		if res.Err == nil {
			res.Err = gen.Err
			return res
		}
		if !access.IsConflict(res.Err) || res.Err.Field != "job_number" {
			return res
		}
		g.logger.Debug("job number collided on insert", "number", in.JobNumber, "attempt", attempt)
		after = max(after, seq)
		if attempt < g.retries {
			if err := g.sleep(ctx, g.baseDelay*time.Duration(attempt)); err != nil {
				return types.Fail[*types.Job](types.DatabaseError("waiting to retry job insert", err))
			}
		}
	}
	return types.Fail[*types.Job](types.DatabaseError("could not assign a unique job number", nil))
}
