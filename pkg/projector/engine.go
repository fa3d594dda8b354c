package projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/plaenen/projector/pkg/domain"
	"github.com/plaenen/projector/pkg/observability"
	"github.com/plaenen/projector/pkg/projector/notify"
	"github.com/plaenen/projector/pkg/store"
)

// sink is the small capability that differs between the plain projector and
// the read-model projector (C7 vs C8). Both share the engine below;
// composition, not a class hierarchy, per the design note that the two
// variants share most of their code.
type sink interface {
	beforeLoop(ctx context.Context, e *engine) error
	persist(ctx context.Context, e *engine) error
	reset(ctx context.Context, e *engine) error
	delete(ctx context.Context, e *engine, deleteVariantData bool) error
}

type plainSink struct{}

func (plainSink) beforeLoop(ctx context.Context, e *engine) error { return nil }
func (plainSink) persist(ctx context.Context, e *engine) error    { return nil }
func (plainSink) reset(ctx context.Context, e *engine) error      { return nil }

func (plainSink) delete(ctx context.Context, e *engine, deleteEmittedEvents bool) error {
	if !deleteEmittedEvents {
		return nil
	}
	return e.eventStore.DeleteStream(ctx, e.name)
}

type readModelSink struct {
	rm store.ReadModel
}

func (s readModelSink) beforeLoop(ctx context.Context, e *engine) error {
	initialized, err := s.rm.IsInitialized(ctx)
	if err != nil {
		return fmt.Errorf("read model IsInitialized: %w", err)
	}
	if initialized {
		return nil
	}
	return s.rm.Init(ctx)
}

func (s readModelSink) persist(ctx context.Context, e *engine) error {
	return s.rm.Persist(ctx)
}

func (s readModelSink) reset(ctx context.Context, e *engine) error {
	return s.rm.Reset(ctx)
}

func (s readModelSink) delete(ctx context.Context, e *engine, deleteReadModel bool) error {
	if !deleteReadModel {
		return nil
	}
	return s.rm.Delete(ctx)
}

// engine is the shared main loop (C7): merge-load, dispatch, batch-persist,
// poll control, sleep when idle. Projector and ReadModelProjector are thin
// wrappers selecting a sink.
type engine struct {
	name string

	eventStore   store.EventStore
	controlStore store.ControlStore
	lockStore    store.LockStore
	manager      store.ProjectionManager
	monitor      store.ProjectionMonitor

	query    querySpec
	handlers handlerRegistry

	initThunk func() (any, error)

	lockTimeout         time.Duration
	persistBlockSize    int
	updateLockThreshold time.Duration
	idleSleep           time.Duration

	logger   *slog.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
	notifier notify.Waker

	sink sink
	kind string

	// runtime state
	streamPositions domain.Positions
	state           any
	eventCounter    int
	lastLockUpdate  *time.Time
	streamCreated   bool
	keepRunning     bool
	isStopped       atomic.Bool

	rebuildStartedAt    time.Time
	totalEventsConsumed int64
}

func (e *engine) stop() {
	e.isStopped.Store(true)
}

// run executes one invocation of the main loop (spec §4.5). It always
// attempts to release its lease before returning, regardless of outcome.
func (e *engine) run(ctx context.Context, keepRunning bool) error {
	ctx, span := e.tracer.Start(ctx, "projector.run", trace.WithAttributes(
		observability.ProjectionAttrs(e.name, e.kind)...,
	))
	defer span.End()

	e.keepRunning = keepRunning
	e.isStopped.Store(false)

	exit, err := e.preTransition(ctx)
	if err != nil {
		return e.runErr(span, fmt.Errorf("pre-transition: %w", err))
	}
	if exit {
		return nil
	}

	if err := e.ensureControlRow(ctx); err != nil {
		return e.runErr(span, fmt.Errorf("ensure control row: %w", err))
	}

	if err := e.acquireLock(ctx); err != nil {
		return e.runErr(span, fmt.Errorf("acquire lock: %w", err))
	}
	defer e.releaseLock(ctx)

	if err := e.sink.beforeLoop(ctx, e); err != nil {
		return e.runErr(span, fmt.Errorf("before loop: %w", err))
	}

	if err := e.preparePositions(ctx); err != nil {
		return e.runErr(span, fmt.Errorf("prepare positions: %w", err))
	}
	if err := e.loadCheckpoint(ctx); err != nil {
		return e.runErr(span, fmt.Errorf("load checkpoint: %w", err))
	}

	e.rebuildStartedAt = time.Now()
	e.saveOperationalState(ctx, store.OperationalRebuilding, "")

	if err := e.mainLoop(ctx); err != nil {
		e.logger.Error("projection run terminated", "projection", e.name, "error", err)
		e.saveOperationalState(ctx, store.OperationalFailed, err.Error())
		return e.runErr(span, err)
	}
	e.saveOperationalState(ctx, store.OperationalReady, "")
	span.SetStatus(codes.Ok, "")
	return nil
}

// runErr records err on the run span before returning it, so a failed run
// is visible in a trace backend without the caller having to thread the
// span through every error path by hand.
func (e *engine) runErr(span trace.Span, err error) error {
	span.RecordError(err, trace.WithAttributes(observability.ErrorAttrs(err)...))
	span.SetStatus(codes.Error, err.Error())
	return err
}

// saveOperationalState is a best-effort write to the optional monitor: a
// failure here never aborts a run, it only means an operator dashboard goes
// briefly stale.
func (e *engine) saveOperationalState(ctx context.Context, status store.OperationalStatus, message string) {
	if e.monitor == nil {
		return
	}
	state := &store.OperationalState{
		ProjectionName: e.name,
		Status:         status,
		Message:        message,
		UpdatedAt:      time.Now(),
	}
	if status == store.OperationalRebuilding {
		state.Progress = &store.RebuildProgress{
			EventsProcessed: e.totalEventsConsumed,
			StartedAt:       e.rebuildStartedAt,
		}
	}
	if err := e.monitor.Save(e.name, state); err != nil {
		e.logger.Debug("operational state save failed", "projection", e.name, "error", err)
	}
}

// preTransition is step 2: a status observed before the control row is even
// ensured/locked can abort the whole run without ever acquiring the lease.
func (e *engine) preTransition(ctx context.Context) (exit bool, err error) {
	status := e.fetchStatus(ctx)

	switch status {
	case store.StatusStopping:
		if loadErr := e.loadIntoWorkingCopies(ctx); loadErr != nil {
			return true, loadErr
		}
		e.stop()
		return true, nil

	case store.StatusDeleting:
		return true, e.delete(ctx, false)

	case store.StatusDeletingInclEmitted:
		return true, e.delete(ctx, true)

	case store.StatusResetting:
		if err := e.reset(ctx); err != nil {
			return false, err
		}
		if e.keepRunning {
			if err := e.startAgain(ctx); err != nil {
				return false, err
			}
		}
		return false, nil

	default:
		return false, nil
	}
}

// checkRemoteStatus is step 8b/8d's re-evaluation: it reacts to the same
// statuses as preTransition but never returns early from run, since the
// lease is already held and releaseLock must still run via defer.
func (e *engine) checkRemoteStatus(ctx context.Context) error {
	status := e.fetchStatus(ctx)

	switch status {
	case store.StatusStopping:
		e.stop()

	case store.StatusDeleting:
		if err := e.delete(ctx, false); err != nil {
			return err
		}
		e.stop()

	case store.StatusDeletingInclEmitted:
		if err := e.delete(ctx, true); err != nil {
			return err
		}
		e.stop()

	case store.StatusResetting:
		if err := e.reset(ctx); err != nil {
			return err
		}
		if e.keepRunning {
			if err := e.startAgain(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// fetchStatus swallows errors and assumes running: a projection that cannot
// observe operator commands should keep working rather than self-stop.
func (e *engine) fetchStatus(ctx context.Context) store.Status {
	status, err := e.manager.FetchProjectionStatus(ctx, e.name)
	if err != nil {
		e.logger.Error("status read failed, assuming running", "projection", e.name, "error", err)
		return store.StatusRunning
	}
	return status
}

func (e *engine) ensureControlRow(ctx context.Context) error {
	exists, err := e.controlStore.Exists(ctx, e.name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return e.controlStore.Create(ctx, e.name, store.StatusIdle)
}

func (e *engine) acquireLock(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "projector.acquireLock")
	defer span.End()

	now := time.Now()
	until := now.Add(e.lockTimeout)
	ok, err := e.lockStore.AcquireLock(ctx, e.name, until)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(observability.AttrLockHeld.Bool(ok))
	if !ok {
		if e.metrics != nil {
			e.metrics.RecordLockRenewal(ctx, e.name, false)
		}
		return store.ErrLockHeld
	}
	e.lastLockUpdate = &now
	if e.metrics != nil {
		e.metrics.RecordLockAcquired(ctx, e.name)
	}
	return nil
}

func (e *engine) releaseLock(ctx context.Context) {
	if err := e.controlStore.ClearLock(ctx, e.name, store.StatusIdle); err != nil && !errors.Is(err, store.ErrProjectionNotFound) {
		e.logger.Error("release lock failed", "projection", e.name, "error", err)
	}
	if err := e.manager.IdleProjection(ctx, e.name); err != nil {
		e.logger.Debug("idle projection notify failed", "projection", e.name, "error", err)
	}
	if e.metrics != nil {
		e.metrics.RecordLockReleased(ctx, e.name)
	}
	if e.notifier != nil {
		_ = e.notifier.Notify(ctx, e.name)
	}
}

func (e *engine) shouldUpdateLock(now time.Time) bool {
	if e.updateLockThreshold == 0 || e.lastLockUpdate == nil {
		return true
	}
	return !now.Before(e.lastLockUpdate.Add(e.updateLockThreshold))
}

func (e *engine) updateLock(ctx context.Context) error {
	now := time.Now()
	if !e.shouldUpdateLock(now) {
		return nil
	}
	until := now.Add(e.lockTimeout)
	if err := e.lockStore.RefreshLock(ctx, e.name, until); err != nil {
		if e.metrics != nil {
			e.metrics.RecordLockRenewal(ctx, e.name, false)
		}
		return err
	}
	e.lastLockUpdate = &now
	if e.metrics != nil {
		e.metrics.RecordLockRenewal(ctx, e.name, true)
	}
	return nil
}

// preparePositions seeds every stream this instance is configured to
// consume to 0, then overlays the currently loaded streamPositions —
// persisted positions always win (spec §4.5).
func (e *engine) preparePositions(ctx context.Context) error {
	var names []string
	var err error
	if e.query.queryAll {
		names, err = e.manager.FetchAllStreamNames(ctx)
		if err != nil {
			return err
		}
	} else {
		names = e.query.streamNames()
	}

	fresh := make(domain.Positions, len(names))
	for _, n := range names {
		fresh[n] = 0
	}
	e.streamPositions = fresh.Merge(e.streamPositions)
	return nil
}

func (e *engine) loadIntoWorkingCopies(ctx context.Context) error {
	position, state, err := e.controlStore.Load(ctx, e.name)
	if err != nil {
		if errors.Is(err, store.ErrProjectionNotFound) {
			return nil
		}
		return err
	}
	e.streamPositions = e.streamPositions.Merge(position)
	if len(state) > 0 && string(state) != "null" {
		var decoded any
		if err := json.Unmarshal(state, &decoded); err != nil {
			return err
		}
		e.state = decoded
	}
	return nil
}

// loadCheckpoint is step 7: merge the persisted checkpoint into the working
// copies before the main loop starts.
func (e *engine) loadCheckpoint(ctx context.Context) error {
	return e.loadIntoWorkingCopies(ctx)
}

func (e *engine) buildStreamQueries() []store.StreamQuery {
	queries := make([]store.StreamQuery, 0, len(e.streamPositions))
	for stream, pos := range e.streamPositions {
		queries = append(queries, store.StreamQuery{
			Stream:     stream,
			FromNumber: pos + 1,
			Matcher:    e.query.matcherFor(stream),
		})
	}
	return queries
}

// mainLoop is step 8, the do-while over merge-load/dispatch/persist/poll.
func (e *engine) mainLoop(ctx context.Context) error {
	for {
		queries := e.buildStreamQueries()
		it, err := e.eventStore.MergeAndLoad(ctx, queries)
		if err != nil {
			return err
		}
		consumeErr := e.consumeIterator(ctx, it)
		closeErr := it.Close()
		if consumeErr != nil {
			return consumeErr
		}
		if closeErr != nil {
			return closeErr
		}

		if e.eventCounter == 0 {
			e.idleWait(ctx)
			if err := e.updateLock(ctx); err != nil {
				return err
			}
		} else {
			if err := e.persist(ctx); err != nil {
				return err
			}
		}
		e.eventCounter = 0

		if err := e.checkRemoteStatus(ctx); err != nil {
			return err
		}
		if err := e.preparePositions(ctx); err != nil {
			return err
		}

		if !e.keepRunning || e.isStopped.Load() || ctx.Err() != nil {
			return nil
		}
	}
}

func (e *engine) consumeIterator(ctx context.Context, it store.EventIterator) error {
	for it.Next() {
		event := it.Event()
		e.streamPositions.Advance(event.Metadata.Stream, event.No)
		e.eventCounter++
		e.totalEventsConsumed++

		next, handled, err := e.handlers.dispatch(ctx, event, e.state)
		if err != nil {
			if e.metrics != nil {
				e.metrics.RecordHandlerError(ctx, e.name, fmt.Sprintf("%T", err))
			}
			return fmt.Errorf("handle event %s#%d: %w", event.Metadata.Stream, event.No, err)
		}
		if handled {
			copied, err := deepCopy(next)
			if err != nil {
				return fmt.Errorf("copy handler state: %w", err)
			}
			e.state = copied
		}
		if e.metrics != nil {
			e.metrics.RecordEvent(ctx, e.name, event.Name)
		}

		if e.eventCounter%e.persistBlockSize == 0 {
			if err := e.persist(ctx); err != nil {
				return err
			}
			if e.monitor != nil {
				if err := e.monitor.UpdateProgress(e.name, &store.RebuildProgress{
					EventsProcessed: e.totalEventsConsumed,
					StartedAt:       e.rebuildStartedAt,
				}); err != nil {
					e.logger.Debug("progress update failed", "projection", e.name, "error", err)
				}
			}
			if err := e.checkRemoteStatus(ctx); err != nil {
				return err
			}
			if e.isStopped.Load() {
				break
			}
		}
	}
	return it.Err()
}

func (e *engine) idleWait(ctx context.Context) {
	waitCtx, cancel := context.WithTimeout(ctx, e.idleSleep)
	defer cancel()
	w := e.notifier
	if w == nil {
		w = notify.Noop{}
	}
	w.Wait(waitCtx, e.name)
}

// persist is the canonical checkpoint write. The sink hook runs first so a
// read-model projector never claims progress that hasn't been externalized.
func (e *engine) persist(ctx context.Context) error {
	start := time.Now()

	if err := e.sink.persist(ctx, e); err != nil {
		return fmt.Errorf("persist sink: %w", err)
	}

	stateJSON, err := json.Marshal(e.state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	now := time.Now()
	until := now.Add(e.lockTimeout)
	if err := e.controlStore.Persist(ctx, e.name, until, stateJSON, e.streamPositions.Clone()); err != nil {
		return err
	}
	e.lastLockUpdate = &now

	if e.metrics != nil {
		e.metrics.RecordPersist(ctx, e.name, time.Since(start))
	}
	return nil
}

// reset zeros positions and state, best-effort deletes the emitted-events
// stream, runs the variant's own reset hook, and writes the row back idle.
func (e *engine) reset(ctx context.Context) error {
	e.streamPositions = domain.Positions{}
	state, err := e.initThunk()
	if err != nil {
		return fmt.Errorf("reset initThunk: %w", err)
	}
	e.state = state

	if err := e.eventStore.DeleteStream(ctx, e.name); err != nil {
		e.logger.Error("best-effort emitted-stream deletion during reset failed", "projection", e.name, "error", err)
	}
	e.streamCreated = false

	if err := e.sink.reset(ctx, e); err != nil {
		return fmt.Errorf("reset sink: %w", err)
	}

	stateJSON, err := json.Marshal(e.state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	// reset can run from preTransition, before this run has acquired the
	// lock at all (the resetting status is observed pre-lock). Only extend
	// the lease here if this run already holds one; otherwise write a
	// lease in the past so the lock remains free for the acquireLock call
	// that follows.
	until := time.Time{}
	if e.lastLockUpdate != nil {
		now := time.Now()
		until = now.Add(e.lockTimeout)
		e.lastLockUpdate = &now
	}
	if err := e.controlStore.Persist(ctx, e.name, until, stateJSON, e.streamPositions.Clone()); err != nil {
		return err
	}
	return e.controlStore.UpdateStatus(ctx, e.name, store.StatusIdle)
}

// startAgain flips status back to running after a reset, so the caller's
// do-while re-enters the main loop. The source this is grounded on passed a
// stray fourth parameter its query never declared; the only well-defined
// behavior is the net status write, which is what this does.
func (e *engine) startAgain(ctx context.Context) error {
	return e.controlStore.UpdateStatus(ctx, e.name, store.StatusRunning)
}

func (e *engine) delete(ctx context.Context, deleteVariantData bool) error {
	if err := e.sink.delete(ctx, e, deleteVariantData); err != nil {
		return fmt.Errorf("delete sink: %w", err)
	}
	if err := e.controlStore.DeleteRow(ctx, e.name); err != nil && !errors.Is(err, store.ErrProjectionNotFound) {
		return err
	}
	return nil
}

func (e *engine) emit(ctx context.Context, event *domain.Event) error {
	if !e.streamCreated {
		if err := e.eventStore.CreateStream(ctx, e.name); err != nil {
			return err
		}
		e.streamCreated = true
	}
	event.Metadata.Stream = e.name
	return e.eventStore.AppendTo(ctx, e.name, []*domain.Event{event})
}

// linkTo writes to streamName, creating it on demand. Honoring streamName
// here (rather than always writing to the projection's own stream) is a
// deliberate correction; see DESIGN.md.
func (e *engine) linkTo(ctx context.Context, streamName string, event *domain.Event) error {
	exists, err := e.eventStore.HasStream(ctx, streamName)
	if err != nil {
		return err
	}
	if !exists {
		if err := e.eventStore.CreateStream(ctx, streamName); err != nil {
			return err
		}
	}
	event.Metadata.Stream = streamName
	return e.eventStore.AppendTo(ctx, streamName, []*domain.Event{event})
}
