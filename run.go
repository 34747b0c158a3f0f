package genfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/alloc/jumpgen/internal/changelog"
	"github.com/alloc/jumpgen/internal/fswatch"
	"github.com/alloc/jumpgen/internal/globutil"
	"github.com/alloc/jumpgen/internal/registry"
)

var runLog = newFacility("run")

// Status is the run lifecycle state (C8): Pending, Running or Finished.
type Status int

const (
	Pending Status = iota
	Running
	Finished
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	default:
		return "finished"
	}
}

// Generator is the user body a factory call instantiates an engine around.
// It receives a run-scoped context honoring cancellation and the facade
// through which it observes and produces filesystem state.
type Generator func(ctx context.Context, fs *FS) (interface{}, error)

// WatchMode configures the factory's "watch" option (§6): disabled, enabled
// with no initial list, or enabled watching an initial set of paths. Each
// initial entry is registered as one literal watched path; glob patterns
// are not expanded or matched.
type WatchMode struct {
	Enabled bool
	Initial []string
}

// NoWatch runs the generator once with no filesystem monitoring.
func NoWatch() WatchMode { return WatchMode{} }

// WatchAll enables watching with no initial paths; the generator's own
// scan/read/watch calls populate the registry.
func WatchAll() WatchMode { return WatchMode{Enabled: true} }

// WatchPaths enables watching, pre-registering the given paths before the
// first run. Each entry is watched as a literal file path; a glob pattern is
// not expanded. Entries must not start with "!" (§6).
func WatchPaths(paths ...string) WatchMode {
	return WatchMode{Enabled: true, Initial: paths}
}

// Options configures a factory call (§6's "Factory configuration options").
type Options struct {
	// Root is the absolute root for path resolution; defaults to the
	// process working directory. A trailing separator is stripped.
	Root string
	// Watch selects the watch mode; the zero value is NoWatch().
	Watch WatchMode
	// Events lets several engines share one bus, e.g. under Compose.
	Events *EventBus
}

type bodyResult struct {
	value interface{}
	err   error
}

// Outcome is the result of one completed (non-aborted) body execution,
// delivered through Engine.Wait.
type Outcome struct {
	Result interface{}
	Err    error
}

// WatchInfo is the subset of engine state exposed only in watch mode (§6:
// "watcher (only in watch mode; exposes ready, watchedFiles, blamedFiles)").
type WatchInfo struct {
	engine *Engine
}

// Ready always reports true; it does not check whether the watcher services
// have established their OS-level subscriptions.
func (w WatchInfo) Ready() bool { return true }

// WatchedFiles snapshots the currently watched files.
func (w WatchInfo) WatchedFiles() []string { return w.engine.reg.WatchedFiles() }

// BlamedFiles snapshots the current blame mapping.
func (w WatchInfo) BlamedFiles() map[string][]string { return w.engine.reg.BlamedFiles() }

// Engine is a single generator run loop (C8): one instance per factory call.
// Its state cycles Pending/Running/Finished for as long as filesystem
// changes (or explicit Rerun calls) keep arriving; Destroy makes it
// terminal.
type Engine struct {
	name   string
	root   string
	gen    Generator
	events *EventBus
	watch  WatchMode

	reg *registry.WatchRegistry
	log *changelog.Log

	sup       *suture.Supervisor
	supCancel context.CancelFunc
	eventsIn  chan fswatch.Event

	rerunCh   chan struct{}
	destroyCh chan chan struct{}
	bodyDone  chan bodyResult

	mu        sync.Mutex
	status    Status
	store     map[string]interface{}
	runCancel context.CancelFunc
	destroyed bool

	outcomeMu   sync.Mutex
	outcomeCh   chan struct{}
	lastOutcome Outcome
	lastAborted bool

	startedMu sync.Mutex
	startedCh chan struct{}
}

// New constructs an engine and schedules its first run. Following §4.8's
// "state becomes Running on the microtask boundary after constructor
// returns", the run loop goroutine yields once before its first action so a
// caller can subscribe to Events() immediately after New returns.
func New(name string, opts Options, gen Generator) (*Engine, error) {
	root := opts.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}
	root = filepath.Clean(root)

	for _, p := range opts.Watch.Initial {
		if !pathWithinRoot(root, toAbs(root, p)) {
			return nil, ErrInvalidWatch
		}
	}

	bus := opts.Events
	if bus == nil {
		bus = NewEventBus()
	}

	e := &Engine{
		name:      name,
		root:      root,
		gen:       gen,
		events:    bus,
		watch:     opts.Watch,
		reg:       registry.New(),
		log:       changelog.New(),
		rerunCh:   make(chan struct{}, 1),
		destroyCh: make(chan chan struct{}, 1),
		bodyDone:  make(chan bodyResult, 1),
		store:     make(map[string]interface{}),
		outcomeCh: make(chan struct{}),
		startedCh: make(chan struct{}),
	}

	for _, p := range opts.Watch.Initial {
		e.reg.AddFile(toAbs(root, p), registry.AddFileOptions{})
	}

	if opts.Watch.Enabled {
		if err := e.startWatchers(); err != nil {
			return nil, err
		}
	}

	go e.loop()
	return e, nil
}

func toAbs(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

// pathWithinRoot implements Open Question (b) from §9: an initial watch
// target (path or glob base) that escapes root is rejected rather than
// silently watched, since the registry has no notion of a second root.
func pathWithinRoot(root, absPath string) bool {
	base, _, _ := globutil.Split(absPath)
	rel, err := filepath.Rel(root, filepath.FromSlash(base))
	if err != nil {
		return false
	}
	return rel == "." || !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return rel == ".." || (len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator))
}

// startWatchers wires the recursive and existence watchers (C3/C4) as
// thejerf/suture services (A3): each service owns one watcher's lifetime
// and is restarted by the supervisor if its Serve returns an error,
// following the teacher's lib/suturewrap.AsService pattern adapted to
// suture v4's context-scoped Service interface.
func (e *Engine) startWatchers() error {
	ctx, cancel := context.WithCancel(context.Background())
	e.supCancel = cancel
	e.eventsIn = make(chan fswatch.Event, 64)

	e.sup = suture.New(e.name+"-watchers", suture.Spec{
		EventHook: func(ev suture.Event) { runLog.Debugln(ev.String()) },
	})

	e.sup.Add(newWatcherService(func(ctx context.Context) (<-chan fswatch.Event, <-chan error, func(), error) {
		rec, err := fswatch.NewRecursive(ctx, e.root, e.reg)
		if err != nil {
			return nil, nil, nil, err
		}
		return rec.Events(), rec.Errors(), rec.Close, nil
	}, e.eventsIn))

	e.sup.Add(newWatcherService(func(ctx context.Context) (<-chan fswatch.Event, <-chan error, func(), error) {
		ex, err := fswatch.NewExistence(ctx, e.root, e.reg)
		if err != nil {
			return nil, nil, nil, err
		}
		return ex.Events(), nil, ex.Close, nil
	}, e.eventsIn))

	go e.sup.Serve(ctx)
	return nil
}

// watcherService adapts a watcher constructor into a suture.Service.
type watcherService struct {
	ctor func(ctx context.Context) (<-chan fswatch.Event, <-chan error, func(), error)
	out  chan<- fswatch.Event
}

func newWatcherService(ctor func(ctx context.Context) (<-chan fswatch.Event, <-chan error, func(), error), out chan<- fswatch.Event) *watcherService {
	return &watcherService{ctor: ctor, out: out}
}

func (w *watcherService) Serve(ctx context.Context) error {
	events, errs, closeFn, err := w.ctor(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			select {
			case w.out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err := <-errs:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// loop is the single goroutine that owns every state transition (§4.8): no
// field it touches is mutated from anywhere else.
func (e *Engine) loop() {
	runtime.Gosched()
	e.beginRun("start")

	for {
		select {
		case ev := <-e.eventsIn:
			e.onEvent(ev)

		case res := <-e.bodyDone:
			e.onBodyDone(res)

		case <-e.rerunCh:
			e.onRerunRequest()

		case reply := <-e.destroyCh:
			e.onDestroy(reply)
			return
		}
	}
}

func (e *Engine) onEvent(ev fswatch.Event) {
	e.log.Record(ev.Path, ev.Type)
	e.events.Publish(EventWatch, WatchEvent{Kind: ev.Type.String(), Path: ev.Path, Name: e.name})

	if ev.Type == fswatch.Add || ev.Type == fswatch.AddDir {
		e.reg.CheckAdded(ev.Path)
	}

	e.mu.Lock()
	status := e.status
	if status == Running {
		e.status = Pending
		if e.runCancel != nil {
			e.runCancel()
		}
	}
	e.mu.Unlock()
	if status == Finished {
		e.resetAndRun()
	}
}

func (e *Engine) onRerunRequest() {
	e.mu.Lock()
	status := e.status
	if status == Running {
		e.status = Pending
		if e.runCancel != nil {
			e.runCancel()
		}
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	if status == Finished {
		e.resetAndRun()
	}
	// If already Pending, the in-flight continuation will pick it up.
}

func (e *Engine) onDestroy(reply chan struct{}) {
	e.mu.Lock()
	e.destroyed = true
	if e.runCancel != nil {
		e.runCancel()
	}
	e.mu.Unlock()

	if e.sup != nil {
		e.supCancel()
	}
	e.events.Publish(EventDestroy, DestroyEvent{Name: e.name})
	close(reply)
}

func (e *Engine) onBodyDone(res bodyResult) {
	e.mu.Lock()
	rerunPending := e.status == Pending
	e.status = Finished
	destroyed := e.destroyed
	e.mu.Unlock()

	aborted := errors.Is(res.err, ErrAborted) || errors.Is(res.err, context.Canceled)
	switch {
	case aborted:
		e.events.Publish(EventAbort, AbortEvent{Name: e.name})
		e.settle(Outcome{}, true)
	case res.err != nil:
		e.events.Publish(EventError, ErrorEvent{Err: res.err, Name: e.name})
		e.settle(Outcome{Err: res.err}, false)
	default:
		e.events.Publish(EventFinish, FinishEvent{Result: res.value, Name: e.name})
		e.settle(Outcome{Result: res.value}, false)
	}

	if destroyed {
		return
	}
	if rerunPending || e.log.Len() > 0 {
		e.resetAndRun()
	}
}

// resetAndRun performs the reset decision (§4.8) then begins the next run.
func (e *Engine) resetAndRun() {
	if e.log.HasCritical(e.reg.IsFileCritical) {
		e.store = make(map[string]interface{})
		e.reg.Close()
		for _, p := range e.watch.Initial {
			e.reg.AddFile(toAbs(e.root, p), registry.AddFileOptions{})
		}
	} else {
		for _, p := range e.log.NonAdds() {
			e.reg.Unwatch(p)
		}
		e.reg.ReleaseRunMatchers()
	}
	e.beginRun("watch")
}

func (e *Engine) beginRun(reason string) {
	changes := e.log.Resolve(e.reg)
	e.log.Clear()

	ctx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.status = Running
	e.runCancel = cancel
	store := e.store
	e.mu.Unlock()

	e.events.Publish(EventStart, StartEvent{Name: e.name})
	e.markStarted()

	fsys := newFS(e.root, e.reg, store, changes, e.events, e.watch.Enabled, e.name)

	go func() {
		value, err := e.gen(ctx, fsys)
		e.bodyDone <- bodyResult{value: value, err: err}
	}()
}

func (e *Engine) markStarted() {
	e.startedMu.Lock()
	defer e.startedMu.Unlock()
	select {
	case <-e.startedCh:
	default:
	}
	close(e.startedCh)
	e.startedCh = make(chan struct{})
}

func (e *Engine) settle(o Outcome, aborted bool) {
	e.outcomeMu.Lock()
	e.lastOutcome = o
	e.lastAborted = aborted
	ch := e.outcomeCh
	e.outcomeCh = make(chan struct{})
	e.outcomeMu.Unlock()
	close(ch)
}

// Wait blocks until the next non-aborted run settles, then returns its
// result or error — the Go analogue of awaiting the generator object's
// `then` (§6).
func (e *Engine) Wait(ctx context.Context) (interface{}, error) {
	for {
		e.outcomeMu.Lock()
		ch := e.outcomeCh
		e.outcomeMu.Unlock()

		select {
		case <-ch:
			e.outcomeMu.Lock()
			o, aborted := e.lastOutcome, e.lastAborted
			e.outcomeMu.Unlock()
			if aborted {
				continue
			}
			return o.Result, o.Err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// WaitForStart races the next `start` event against timeout, per §6's
// waitForStart(timeoutMs).
func (e *Engine) WaitForStart(timeout time.Duration) error {
	e.startedMu.Lock()
	ch := e.startedCh
	e.startedMu.Unlock()

	select {
	case <-ch:
		return nil
	case <-time.After(timeout):
		return ErrTimeout
	}
}

// Status reports the engine's current lifecycle state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Watcher exposes watch-mode-only state, or (zero value, false) when the
// engine was constructed with NoWatch().
func (e *Engine) Watcher() (WatchInfo, bool) {
	if !e.watch.Enabled {
		return WatchInfo{}, false
	}
	return WatchInfo{engine: e}, true
}

// Events returns the engine's event bus.
func (e *Engine) Events() *EventBus { return e.events }

// Rerun requests an extra run outside the normal change-triggered cycle
// (§4.8's rerun()). It does not block; observe completion via Wait or the
// event bus.
func (e *Engine) Rerun() error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return ErrDestroyed
	}
	e.mu.Unlock()
	select {
	case e.rerunCh <- struct{}{}:
	default:
	}
	return nil
}

// Destroy aborts any in-flight run, stops the watchers, emits destroy and
// makes the engine terminal (§4.8's destroy()).
func (e *Engine) Destroy(ctx context.Context) error {
	reply := make(chan struct{})
	select {
	case e.destroyCh <- reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Event payload types (§6's typed events table).
type (
	StartEvent   struct{ Name string }
	WatchEvent   struct{ Kind, Path, Name string }
	FinishEvent  struct {
		Result interface{}
		Name   string
	}
	ErrorEvent struct {
		Err  error
		Name string
	}
	AbortEvent   struct{ Name string }
	DestroyEvent struct{ Name string }
)
