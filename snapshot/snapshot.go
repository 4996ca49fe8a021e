// Package snapshot fills the store from its bulk sources and refreshes single
// collections when the backend announces a change.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go-aidr/metrics"
	"go-aidr/store"
	"go-aidr/types"
)

const (
	loadFailedMsg  = "Failed to load initial data"
	refetchTimeout = 20 * time.Second
)

// Source produces a partial snapshot. Collections it does not own stay nil.
type Source interface {
	Name() string
	Load(ctx context.Context) (store.Snapshot, error)
}

// Fetcher is the REST collection API.
type Fetcher interface {
	FetchDisasters(ctx context.Context) ([]types.Disaster, error)
	FetchDamageReports(ctx context.Context) ([]types.DamageReport, error)
	FetchResources(ctx context.Context) ([]types.Resource, error)
	FetchTasks(ctx context.Context) ([]types.Task, error)
}

type Sink interface {
	ReplaceSnapshot(store.Snapshot)
	SetLoading(bool)
	SetError(string)
	SetTasks([]types.Task)
	SetDamageReports([]types.DamageReport)
}

// RESTSource loads the four REST collections concurrently. Any failure fails
// the whole source.
type RESTSource struct {
	API Fetcher
}

func (RESTSource) Name() string { return "rest" }

func (r RESTSource) Load(ctx context.Context) (store.Snapshot, error) {
	var snap store.Snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Disasters, err = r.API.FetchDisasters(ctx)
		return err
	})
	g.Go(func() (err error) {
		snap.DamageReports, err = r.API.FetchDamageReports(ctx)
		return err
	})
	g.Go(func() (err error) {
		snap.Resources, err = r.API.FetchResources(ctx)
		return err
	})
	g.Go(func() (err error) {
		snap.Tasks, err = r.API.FetchTasks(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return store.Snapshot{}, err
	}
	return nonNil(snap), nil
}

// nonNil turns an empty fetched collection into an explicit clear.
func nonNil(s store.Snapshot) store.Snapshot {
	if s.Disasters == nil {
		s.Disasters = []types.Disaster{}
	}
	if s.DamageReports == nil {
		s.DamageReports = []types.DamageReport{}
	}
	if s.Resources == nil {
		s.Resources = []types.Resource{}
	}
	if s.Tasks == nil {
		s.Tasks = []types.Task{}
	}
	return s
}

type Loader struct {
	sink    Sink
	sources []Source
	api     Fetcher
	log     *zap.Logger
	tracer  trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]*refetchState
}

type refetchState struct {
	running bool
	again   bool
}

type Option func(*Loader)

// WithRefetchAPI enables change-driven refetches of tasks and damage reports.
func WithRefetchAPI(api Fetcher) Option {
	return func(l *Loader) { l.api = api }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Loader) { l.tracer = tp.Tracer("go-aidr/snapshot") }
}

func NewLoader(sink Sink, logger *zap.Logger, sources []Source, opts ...Option) *Loader {
	l := &Loader{
		sink:     sink,
		sources:  sources,
		log:      logger.Named("snapshot"),
		tracer:   otel.Tracer("go-aidr/snapshot"),
		inflight: make(map[string]*refetchState),
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load pulls every source and applies what succeeded as one store mutation.
// If any source failed the store's error message is set and the joined
// errors are returned.
func (l *Loader) Load(ctx context.Context) error {
	ctx, span := l.tracer.Start(ctx, "snapshot.Load")
	defer span.End()

	l.sink.SetLoading(true)
	defer l.sink.SetLoading(false)

	var (
		merged store.Snapshot
		errs   []error
	)
	for _, src := range l.sources {
		start := time.Now()
		snap, err := src.Load(ctx)
		status := "ok"
		if err != nil {
			status = "error"
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			l.log.Error("Snapshot source failed", zap.String("source", src.Name()), zap.Error(err))
		} else {
			merged = merged.Merge(snap)
		}
		metrics.SnapshotDuration.WithLabelValues(src.Name(), status).Observe(time.Since(start).Seconds())
	}

	l.sink.ReplaceSnapshot(merged)
	span.SetAttributes(attribute.Int("snapshot.sources", len(l.sources)), attribute.Int("snapshot.failed", len(errs)))

	if len(errs) > 0 {
		err := errors.Join(errs...)
		l.sink.SetError(loadFailedMsg)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	l.sink.SetError("")
	l.log.Info("Snapshot loaded",
		zap.Int("resources", len(merged.Resources)),
		zap.Int("tasks", len(merged.Tasks)),
		zap.Int("incidents", len(merged.Incidents)),
	)
	return nil
}

// Resync runs Load in the background. It suits callbacks that must not
// block, such as the connection manager's on-connect hook.
func (l *Loader) Resync() {
	l.spawn(func(ctx context.Context) {
		if err := l.Load(ctx); err != nil {
			l.log.Warn("Resync failed", zap.Error(err))
		}
	})
}

func (l *Loader) RefetchTasks() {
	l.refetch("tasks", func(ctx context.Context) error {
		tasks, err := l.api.FetchTasks(ctx)
		if err != nil {
			return err
		}
		if tasks == nil {
			tasks = []types.Task{}
		}
		l.sink.SetTasks(tasks)
		return nil
	})
}

func (l *Loader) RefetchDamageReports() {
	l.refetch("damage_reports", func(ctx context.Context) error {
		reports, err := l.api.FetchDamageReports(ctx)
		if err != nil {
			return err
		}
		if reports == nil {
			reports = []types.DamageReport{}
		}
		l.sink.SetDamageReports(reports)
		return nil
	})
}

// refetch runs fn in the background. A request arriving while the same
// collection is already being fetched is folded into one follow-up fetch.
func (l *Loader) refetch(collection string, fn func(context.Context) error) {
	if l.api == nil {
		return
	}
	l.mu.Lock()
	st, ok := l.inflight[collection]
	if !ok {
		st = &refetchState{}
		l.inflight[collection] = st
	}
	if st.running {
		st.again = true
		l.mu.Unlock()
		return
	}
	st.running = true
	l.mu.Unlock()

	l.spawn(func(ctx context.Context) {
		for {
			fctx, cancel := context.WithTimeout(ctx, refetchTimeout)
			err := fn(fctx)
			cancel()
			if err != nil {
				metrics.Refetches.WithLabelValues(collection, "error").Inc()
				l.log.Warn("Refetch failed", zap.String("collection", collection), zap.Error(err))
			} else {
				metrics.Refetches.WithLabelValues(collection, "ok").Inc()
			}

			l.mu.Lock()
			if !st.again || ctx.Err() != nil {
				st.running = false
				st.again = false
				l.mu.Unlock()
				return
			}
			st.again = false
			l.mu.Unlock()
		}
	})
}

func (l *Loader) spawn(fn func(context.Context)) {
	l.mu.Lock()
	if l.ctx.Err() != nil {
		l.mu.Unlock()
		return
	}
	l.wg.Add(1)
	l.mu.Unlock()
	go func() {
		defer l.wg.Done()
		fn(l.ctx)
	}()
}

// Wait blocks until background refetches and resyncs have finished.
func (l *Loader) Wait() {
	l.wg.Wait()
}

// Close cancels background work and waits for it.
func (l *Loader) Close() {
	l.mu.Lock()
	l.cancel()
	l.mu.Unlock()
	l.wg.Wait()
}
