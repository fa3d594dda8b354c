package projector

import (
	"log/slog"
	"time"

	"github.com/asaskevich/govalidator"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/plaenen/projector/pkg/domain"
	"github.com/plaenen/projector/pkg/observability"
	"github.com/plaenen/projector/pkg/projector/notify"
	"github.com/plaenen/projector/pkg/store"
)

const (
	defaultLockTimeout         = time.Second
	defaultPersistBlockSize    = 1000
	defaultUpdateLockThreshold = 0
	defaultIdleSleep           = 100 * time.Millisecond
)

// Builder assembles a projector's configuration through a write-once fluent
// surface: init, one of fromAll/fromStream/fromStreams, and one of
// when/whenAny, each accepted at most once. Violating write-once raises a
// programmer error synchronously, before Build is ever called.
type Builder struct {
	name string

	query        querySpec
	fromCalled   bool
	handlers     handlerRegistry
	whenCalled   bool
	initThunk    func() (any, error)
	initSet      bool
	initialState any

	lockTimeout         time.Duration
	persistBlockSize    int
	updateLockThreshold time.Duration
	idleSleep           time.Duration

	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
	notifier notify.Waker
}

// New starts configuring a projector named name. name must be a non-empty
// printable string, globally unique within the control store it will run
// against.
func New(name string) (*Builder, error) {
	if name == "" || !govalidator.IsPrintableASCII(name) {
		return nil, ErrInvalidName
	}
	return &Builder{
		name:                name,
		lockTimeout:         defaultLockTimeout,
		persistBlockSize:    defaultPersistBlockSize,
		updateLockThreshold: defaultUpdateLockThreshold,
		idleSleep:           defaultIdleSleep,
		logger:              slog.Default(),
		tracer:              noop.NewTracerProvider().Tracer("projector"),
	}, nil
}

// Init sets the function used to produce the projection's initial state.
// thunk is evaluated immediately. Init may be called at most once.
func (b *Builder) Init(thunk func() (any, error)) (*Builder, error) {
	if b.initSet {
		return b, ErrAlreadyInitialized
	}
	state, err := thunk()
	if err != nil {
		return b, err
	}
	b.initThunk = thunk
	b.initialState = state
	b.initSet = true
	return b, nil
}

// FromAll consumes every stream known to the event store. Mutually
// exclusive with FromStream/FromStreams.
func (b *Builder) FromAll() (*Builder, error) {
	if b.fromCalled {
		return b, ErrFromAlreadyCalled
	}
	b.query = querySpec{queryAll: true}
	b.fromCalled = true
	return b, nil
}

// FromStream consumes a single named stream, optionally filtered by
// matcher. Mutually exclusive with FromAll/FromStreams.
func (b *Builder) FromStream(stream string, matcher *domain.Matcher) (*Builder, error) {
	if b.fromCalled {
		return b, ErrFromAlreadyCalled
	}
	b.query = querySpec{streams: []StreamSpec{{Stream: stream, Matcher: matcher}}}
	b.fromCalled = true
	return b, nil
}

// FromStreams consumes exactly the given set of named streams. Mutually
// exclusive with FromAll/FromStream.
func (b *Builder) FromStreams(streams ...StreamSpec) (*Builder, error) {
	if b.fromCalled {
		return b, ErrFromAlreadyCalled
	}
	b.query = querySpec{streams: streams}
	b.fromCalled = true
	return b, nil
}

// When registers named handlers, keyed by event name. Mutually exclusive
// with WhenAny.
func (b *Builder) When(handlers map[string]Handler) (*Builder, error) {
	if b.whenCalled {
		return b, ErrWhenAlreadyCalled
	}
	b.handlers = handlerRegistry{named: handlers}
	b.whenCalled = true
	return b, nil
}

// WhenAny registers a single catch-all handler invoked for every event.
// Mutually exclusive with When.
func (b *Builder) WhenAny(handler Handler) (*Builder, error) {
	if b.whenCalled {
		return b, ErrWhenAlreadyCalled
	}
	b.handlers = handlerRegistry{whenAny: handler}
	b.whenCalled = true
	return b, nil
}

// WithLockTimeout overrides the default 1s lease duration.
func (b *Builder) WithLockTimeout(d time.Duration) *Builder {
	b.lockTimeout = d
	return b
}

// WithPersistBlockSize overrides the default 1000-event checkpoint block size.
func (b *Builder) WithPersistBlockSize(n int) *Builder {
	b.persistBlockSize = n
	return b
}

// WithUpdateLockThreshold overrides the default 0 (always refresh on idle poll).
func (b *Builder) WithUpdateLockThreshold(d time.Duration) *Builder {
	b.updateLockThreshold = d
	return b
}

// WithIdleSleep overrides the default 100ms idle-poll sleep.
func (b *Builder) WithIdleSleep(d time.Duration) *Builder {
	b.idleSleep = d
	return b
}

// WithLogger overrides the default slog.Default() logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetrics attaches OpenTelemetry metric instrumentation.
func (b *Builder) WithMetrics(m *observability.Metrics) *Builder {
	b.metrics = m
	return b
}

// WithTracer overrides the default no-op tracer, so run() and lock
// acquisition produce spans in whatever trace pipeline tracer is bound to.
func (b *Builder) WithTracer(tracer trace.Tracer) *Builder {
	b.tracer = tracer
	return b
}

// WithNotifier attaches an optional wake-early signal. Polling remains the
// source of truth; the notifier only shortens idle latency.
func (b *Builder) WithNotifier(w notify.Waker) *Builder {
	b.notifier = w
	return b
}

func (b *Builder) preflight() error {
	if !b.query.isSet() {
		return ErrNoQuery
	}
	if !b.handlers.isSet() {
		return ErrNoHandler
	}
	if !b.initSet {
		return ErrStateNotInitialised
	}
	return nil
}

func (b *Builder) newEngine(eventStore store.EventStore, controlStore store.ControlStore, lockStore store.LockStore, manager store.ProjectionManager, monitor store.ProjectionMonitor) *engine {
	return &engine{
		name:                b.name,
		eventStore:          eventStore,
		controlStore:        controlStore,
		lockStore:           lockStore,
		manager:             manager,
		monitor:             monitor,
		query:               b.query,
		handlers:            b.handlers,
		initThunk:           b.initThunk,
		lockTimeout:         b.lockTimeout,
		persistBlockSize:    b.persistBlockSize,
		updateLockThreshold: b.updateLockThreshold,
		idleSleep:           b.idleSleep,
		logger:              b.logger,
		metrics:             b.metrics,
		tracer:              b.tracer,
		notifier:            b.notifier,
		state:               b.initialState,
		streamPositions:     domain.Positions{},
	}
}

// Build validates the configuration and returns a plain Projector (C7)
// running against eventStore/controlStore/manager.
func (b *Builder) Build(eventStore store.EventStore, controlStore store.ControlStore, lockStore store.LockStore, manager store.ProjectionManager, monitor store.ProjectionMonitor) (*Projector, error) {
	if err := b.preflight(); err != nil {
		return nil, err
	}
	e := b.newEngine(eventStore, controlStore, lockStore, manager, monitor)
	e.sink = plainSink{}
	e.kind = "plain"
	return &Projector{e: e}, nil
}

// ReadModelFactory constructs a ReadModel, given an opaque client handle
// (e.g. a *sql.DB) the caller wants injected into it.
type ReadModelFactory func(client any) (store.ReadModel, error)

// BuildReadModel validates the configuration and returns a ReadModelProjector
// (C8): the same engine as Build, plus the read-model lifecycle hooks.
func (b *Builder) BuildReadModel(eventStore store.EventStore, controlStore store.ControlStore, lockStore store.LockStore, manager store.ProjectionManager, monitor store.ProjectionMonitor, client any, factory ReadModelFactory) (*ReadModelProjector, error) {
	if err := b.preflight(); err != nil {
		return nil, err
	}
	rm, err := factory(client)
	if err != nil {
		return nil, err
	}
	e := b.newEngine(eventStore, controlStore, lockStore, manager, monitor)
	e.sink = readModelSink{rm: rm}
	e.kind = "read-model"
	return &ReadModelProjector{e: e, rm: rm}, nil
}
