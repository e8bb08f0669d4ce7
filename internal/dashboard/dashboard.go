// Package dashboard keeps the polled overview state: running models, the
// installed model listing and the totals derived from it.
package dashboard

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bitdruid/llmm/internal/client"
	"github.com/bitdruid/llmm/internal/refresh"
)

// Default polling intervals.
const (
	DefaultRunningInterval = 3 * time.Second
	DefaultTotalsInterval  = 30 * time.Second
)

// Source is the part of the dashboard API the overview polls.
type Source interface {
	Models(ctx context.Context) ([]client.Model, error)
	Running(ctx context.Context) ([]client.Model, error)
}

// Snapshot is an immutable copy of the overview state. Each slice is replaced
// as a whole by its own refresh; an error leaves the previous data in place.
type Snapshot struct {
	Running    []client.Model
	RunningErr error

	Models    []client.Model
	ModelsErr error

	TotalModels int
	TotalsErr   error

	StorageBytes int64
	StorageErr   error

	UpdatedAt time.Time
}

// Dashboard fetches and holds the overview state.
type Dashboard struct {
	src      Source
	onChange func(Snapshot)
	log      zerolog.Logger

	runningEvery time.Duration
	totalsEvery  time.Duration

	group singleflight.Group

	mu   sync.Mutex
	snap Snapshot

	tasksOnce sync.Once
	running   *refresh.Task
	totals    *refresh.Task
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithIntervals overrides the polling intervals. Zero keeps the default.
func WithIntervals(running, totals time.Duration) Option {
	return func(d *Dashboard) {
		if running > 0 {
			d.runningEvery = running
		}
		if totals > 0 {
			d.totalsEvery = totals
		}
	}
}

// WithLogger installs a logger for failed refreshes.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dashboard) { d.log = l }
}

// New creates a dashboard. onChange, if not nil, receives a snapshot after
// every refresh, on the refreshing goroutine.
func New(src Source, onChange func(Snapshot), opts ...Option) *Dashboard {
	if onChange == nil {
		onChange = func(Snapshot) {}
	}
	d := &Dashboard{
		src:          src,
		onChange:     onChange,
		log:          zerolog.Nop(),
		runningEvery: DefaultRunningInterval,
		totalsEvery:  DefaultTotalsInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Snapshot returns the current state.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap.clone()
}

func (s Snapshot) clone() Snapshot {
	s.Running = slices.Clone(s.Running)
	s.Models = slices.Clone(s.Models)
	return s
}

func (d *Dashboard) update(fn func(*Snapshot)) {
	d.mu.Lock()
	fn(&d.snap)
	d.snap.UpdatedAt = time.Now()
	snap := d.snap.clone()
	d.mu.Unlock()
	d.onChange(snap)
}

// fetchModels collapses concurrent listing requests into one call.
func (d *Dashboard) fetchModels(ctx context.Context) ([]client.Model, error) {
	v, err, _ := d.group.Do("models", func() (any, error) {
		return d.src.Models(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]client.Model), nil
}

// RefreshRunning replaces the running-models slice.
func (d *Dashboard) RefreshRunning(ctx context.Context) error {
	models, err := d.src.Running(ctx)
	d.update(func(s *Snapshot) {
		s.RunningErr = err
		if err == nil {
			s.Running = models
		}
	})
	return err
}

// RefreshModels replaces the model listing.
func (d *Dashboard) RefreshModels(ctx context.Context) error {
	models, err := d.fetchModels(ctx)
	d.update(func(s *Snapshot) {
		s.ModelsErr = err
		if err == nil {
			s.Models = models
		}
	})
	return err
}

// RefreshTotals replaces the installed model count.
func (d *Dashboard) RefreshTotals(ctx context.Context) error {
	models, err := d.fetchModels(ctx)
	d.update(func(s *Snapshot) {
		s.TotalsErr = err
		if err == nil {
			s.TotalModels = len(models)
		}
	})
	return err
}

// RefreshStorage replaces the summed size of installed models.
func (d *Dashboard) RefreshStorage(ctx context.Context) error {
	models, err := d.fetchModels(ctx)
	d.update(func(s *Snapshot) {
		s.StorageErr = err
		if err == nil {
			s.StorageBytes = TotalSize(models)
		}
	})
	return err
}

// refreshTotalsAndStorage runs both summaries off one listing fetch.
func (d *Dashboard) refreshTotalsAndStorage(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return d.RefreshTotals(ctx) })
	g.Go(func() error { return d.RefreshStorage(ctx) })
	return g.Wait()
}

// RefreshAll refreshes every slice concurrently and returns the first error.
func (d *Dashboard) RefreshAll(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return d.RefreshRunning(ctx) })
	g.Go(func() error { return d.RefreshModels(ctx) })
	g.Go(func() error { return d.refreshTotalsAndStorage(ctx) })
	return g.Wait()
}

// HandleEvent reacts to a server-pushed event. A model_update refreshes the
// listing and the totals.
func (d *Dashboard) HandleEvent(ctx context.Context, ev client.Event) {
	if ev.Event != client.EventModelUpdate {
		return
	}
	var g errgroup.Group
	g.Go(func() error { return d.RefreshModels(ctx) })
	g.Go(func() error { return d.refreshTotalsAndStorage(ctx) })
	g.Go(func() error { return d.RefreshRunning(ctx) })
	if err := g.Wait(); err != nil {
		d.log.Debug().Err(err).Msg("refresh after model update failed")
	}
}

func (d *Dashboard) tasks() (*refresh.Task, *refresh.Task) {
	d.tasksOnce.Do(func() {
		d.running = refresh.New("running", d.runningEvery, d.RefreshRunning, refresh.WithLogger(d.log))
		d.totals = refresh.New("totals", d.totalsEvery, d.refreshTotalsAndStorage, refresh.WithLogger(d.log))
	})
	return d.running, d.totals
}

// Start begins polling: running models every running interval, totals and
// storage every totals interval. Both run once immediately.
func (d *Dashboard) Start(ctx context.Context) {
	running, totals := d.tasks()
	running.Start(ctx)
	totals.Start(ctx)
}

// Stop ends polling and waits for in-flight refreshes.
func (d *Dashboard) Stop() {
	running, totals := d.tasks()
	running.Stop()
	totals.Stop()
}

// TotalSize sums the sizes of models.
func TotalSize(models []client.Model) int64 {
	var total int64
	for _, m := range models {
		total += m.Size
	}
	return total
}
