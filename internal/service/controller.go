package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-sync-service/internal/cache"
	"github.com/kjstillabower/weather-sync-service/internal/client"
	"github.com/kjstillabower/weather-sync-service/internal/location"
	"github.com/kjstillabower/weather-sync-service/internal/models"
	"github.com/kjstillabower/weather-sync-service/internal/observability"
	"github.com/kjstillabower/weather-sync-service/internal/traffic"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("controller closed")

// Flow names used in logs and metric labels.
const (
	flowInitialize = "initialize"
	flowSelect     = "select"
	flowRefresh    = "refresh"
)

// panicError carries a recovered panic value through error paths.
type panicError struct {
	value interface{}
}

func (p *panicError) Error() string {
	switch v := p.value.(type) {
	case error:
		return v.Error()
	case string:
		return v
	default:
		return ""
	}
}

// WeatherSyncController owns the weather state and the selected location. It
// shows the cached snapshot for a newly selected location first, then replaces
// it with a fresh one from the WeatherSource.
//
// Every weather flow (initialize, select, refresh) takes a generation number. A
// newer flow cancels the older one, and a flow whose generation is no longer
// current publishes nothing.
type WeatherSyncController struct {
	provider  location.Provider
	source    client.WeatherSource
	cache     cache.OfflineCache
	logger    *zap.Logger
	coalescer *requestCoalescer

	state       *Observable[SyncState]
	suggestions *Observable[[]models.LocationData]
	selected    *Observable[*models.LocationData]

	mu          sync.Mutex
	generation  uint64
	flowCancel  context.CancelFunc
	querySeq    uint64
	closed      bool
	wg          sync.WaitGroup
	closeCtx    context.Context
	closeCancel context.CancelFunc
}

// ControllerOption configures a WeatherSyncController.
type ControllerOption func(*WeatherSyncController)

func WithLogger(logger *zap.Logger) ControllerOption {
	return func(c *WeatherSyncController) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFetchCoalescing shares one upstream fetch among concurrent flows for the
// same location. wait bounds how long a flow waits on a shared fetch; 0 is unbounded.
func WithFetchCoalescing(wait time.Duration) ControllerOption {
	return func(c *WeatherSyncController) {
		c.coalescer = newRequestCoalescer(wait)
	}
}

// NewWeatherSyncController creates a controller in the Loading state with no
// selected location. Call Start or Initialize to resolve the current location.
func NewWeatherSyncController(provider location.Provider, source client.WeatherSource, offline cache.OfflineCache, opts ...ControllerOption) *WeatherSyncController {
	closeCtx, closeCancel := context.WithCancel(context.Background())
	c := &WeatherSyncController{
		provider:    provider,
		source:      source,
		cache:       offline,
		logger:      zap.NewNop(),
		state:       NewCopyingObservable(Loading(), SyncState.Clone),
		suggestions: NewCopyingObservable([]models.LocationData{}, cloneSuggestions),
		selected:    NewObservable[*models.LocationData](nil),
		closeCtx:    closeCtx,
		closeCancel: closeCancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current weather state.
func (c *WeatherSyncController) State() SyncState {
	return c.state.Value()
}

// SubscribeState streams state changes, starting with the current value.
func (c *WeatherSyncController) SubscribeState(buffer int) (<-chan SyncState, func()) {
	return c.state.Subscribe(buffer)
}

// Suggestions returns the last published suggestion list.
func (c *WeatherSyncController) Suggestions() []models.LocationData {
	return c.suggestions.Value()
}

// SubscribeSuggestions streams suggestion list changes, starting with the current value.
func (c *WeatherSyncController) SubscribeSuggestions(buffer int) (<-chan []models.LocationData, func()) {
	return c.suggestions.Subscribe(buffer)
}

// Selected returns the selected location. ok is false until one is resolved or chosen.
func (c *WeatherSyncController) Selected() (loc models.LocationData, ok bool) {
	p := c.selected.Value()
	if p == nil {
		return models.LocationData{}, false
	}
	return *p, true
}

// Start runs Initialize in the background. The flow is cancelled by Close.
func (c *WeatherSyncController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.wg.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.wg.Done()
		c.Initialize(ctx)
	}()
	return nil
}

// Initialize publishes Loading, resolves the current location and selects it.
// It returns the state at the end of the flow.
func (c *WeatherSyncController) Initialize(ctx context.Context) SyncState {
	c.runFlow(ctx, flowInitialize, nil, func(f *flow) traffic.Outcome {
		f.publish(Loading(), "flow")
		loc, err := c.provider.CurrentLocation(f.ctx)
		if err != nil {
			return f.fail("resolve location", err)
		}
		if !f.setSelected(loc) {
			return traffic.OutcomeSuccess
		}
		return c.selectionSteps(f, loc)
	})
	return c.State()
}

// SelectLocation makes loc the selected location, shows its cached snapshot if
// any, then fetches a fresh one. It returns the state at the end of the flow.
func (c *WeatherSyncController) SelectLocation(ctx context.Context, loc models.LocationData) SyncState {
	c.runFlow(ctx, flowSelect, &loc, func(f *flow) traffic.Outcome {
		return c.selectionSteps(f, loc)
	})
	return c.State()
}

// Refresh refetches the selected location without consulting the cache. With no
// selected location it changes nothing and returns the current state.
func (c *WeatherSyncController) Refresh(ctx context.Context) SyncState {
	if _, ok := c.Selected(); !ok {
		return c.State()
	}
	c.runFlow(ctx, flowRefresh, nil, func(f *flow) traffic.Outcome {
		// Read after registration: a later selection supersedes this flow.
		loc, _ := c.Selected()
		f.publish(Loading(), "flow")
		return c.onlineSync(f, loc)
	})
	return c.State()
}

// SetSearchQuery asks the location provider for suggestions and publishes them.
// It never touches the weather state. When queries overlap, only the newest
// query's result is published; each caller still gets its own list back.
func (c *WeatherSyncController) SetSearchQuery(ctx context.Context, query string) []models.LocationData {
	c.mu.Lock()
	c.querySeq++
	seq := c.querySeq
	c.mu.Unlock()

	list := c.provider.Suggestions(ctx, query)
	if list == nil {
		list = []models.LocationData{}
	}

	c.mu.Lock()
	if seq == c.querySeq {
		c.suggestions.Set(list)
	}
	c.mu.Unlock()
	return list
}

func cloneSuggestions(list []models.LocationData) []models.LocationData {
	if list == nil {
		return []models.LocationData{}
	}
	return slices.Clone(list)
}

// Close cancels running flows, waits for them and closes subscriber channels.
func (c *WeatherSyncController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.closeCancel()
	c.wg.Wait()
	c.state.Close()
	c.suggestions.Close()
	c.selected.Close()
}

// flow is one run of a weather flow. Its context is cancelled when a newer flow
// starts or the controller closes.
type flow struct {
	c          *WeatherSyncController
	ctx        context.Context
	name       string
	generation uint64
	log        *zap.Logger
}

// runFlow registers a new generation, cancels the previous flow and runs steps.
// A non-nil selecting becomes the selected location atomically with registration.
// Panics in steps or collaborators become an Error state.
func (c *WeatherSyncController) runFlow(ctx context.Context, name string, selecting *models.LocationData, steps func(f *flow) traffic.Outcome) {
	start := time.Now()
	flowCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.closeCtx, cancel)
	defer stop()
	defer cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	defer c.wg.Done()
	if c.flowCancel != nil {
		c.flowCancel()
		observability.SyncFlowsSupersededTotal.Inc()
	}
	c.generation++
	f := &flow{
		c:          c,
		ctx:        flowCtx,
		name:       name,
		generation: c.generation,
		log: observability.LoggerFromContext(ctx, c.logger).With(
			zap.String("flow", name),
			zap.String("flow_id", uuid.NewString()),
		),
	}
	c.flowCancel = cancel
	if selecting != nil {
		loc := *selecting
		c.selected.Set(&loc)
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.generation == f.generation {
			c.flowCancel = nil
		}
		c.mu.Unlock()
	}()

	outcome := func() (outcome traffic.Outcome) {
		defer func() {
			if r := recover(); r != nil {
				outcome = f.fail("panic", &panicError{value: r})
			}
		}()
		return steps(f)
	}()

	if !f.current() {
		f.log.Debug("flow superseded")
		return
	}
	observability.RecordSyncFlow(name, outcome, time.Since(start))
	f.log.Debug("flow finished", zap.String("outcome", outcome.String()), zap.Duration("duration", time.Since(start)))
}

// selectionSteps reads the cache, publishes a hit provisionally, then syncs online.
// The cache read always completes before the fetch starts.
func (c *WeatherSyncController) selectionSteps(f *flow, loc models.LocationData) traffic.Outcome {
	f.publish(Loading(), "flow")
	cached, err := c.cache.Get(f.ctx, &loc)
	if err != nil {
		return f.fail("read cache", err)
	}
	if cached != nil {
		f.publish(Success(*cached), "cache")
	}
	return c.onlineSync(f, loc)
}

// onlineSync fetches loc, publishes a non-nil result and writes it back to the cache.
// A nil result leaves the state untouched.
func (c *WeatherSyncController) onlineSync(f *flow, loc models.LocationData) traffic.Outcome {
	snapshot, err := c.fetch(f.ctx, loc)
	if err != nil {
		return f.fail("fetch", err)
	}
	if snapshot == nil {
		f.log.Debug("no data for location", zap.String("key", loc.Key()))
		return traffic.OutcomeNoData
	}
	f.publish(Success(*snapshot), "network")
	if err := c.cache.Save(f.ctx, snapshot); err != nil {
		return f.fail("write cache", err)
	}
	return traffic.OutcomeSuccess
}

func (c *WeatherSyncController) fetch(ctx context.Context, loc models.LocationData) (*models.WeatherSnapshot, error) {
	if c.coalescer == nil {
		return c.source.Fetch(ctx, loc)
	}
	snapshot, shared, err := c.coalescer.GetOrDo(ctx, loc.Key(), func(ctx context.Context) (*models.WeatherSnapshot, error) {
		return c.source.Fetch(ctx, loc)
	})
	if shared {
		observability.LoggerFromContext(ctx, c.logger).Debug("joined in-flight fetch", zap.String("key", loc.Key()))
	}
	return snapshot, err
}

// current reports whether f is still the newest flow of an open controller.
func (f *flow) current() bool {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	return f.generation == f.c.generation && !f.c.closed
}

// publish sets the state if f is still the newest flow. The generation check and
// the write happen under one lock so a superseded flow can never write after its
// successor.
func (f *flow) publish(s SyncState, source string) bool {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if f.generation != f.c.generation || f.c.closed {
		return false
	}
	if f.c.state.Value().Equal(s) {
		return true
	}
	f.c.state.Set(s)
	observability.SyncStateTransitionsTotal.WithLabelValues(string(s.Status), source).Inc()
	f.log.Debug("state published", zap.String("status", string(s.Status)), zap.String("source", source))
	return true
}

// setSelected records loc as the selected location if f is still current.
func (f *flow) setSelected(loc models.LocationData) bool {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	if f.generation != f.c.generation || f.c.closed {
		return false
	}
	f.c.selected.Set(&loc)
	return true
}

// fail publishes Error with err's text. Failures in a superseded flow, including
// the cancellation that superseded it, publish nothing.
func (f *flow) fail(step string, err error) traffic.Outcome {
	if !f.current() {
		return traffic.OutcomeError
	}
	msg := err.Error()
	if msg == "" {
		msg = UnknownErrorMessage
	}
	f.log.Warn("flow step failed",
		zap.String("step", step),
		zap.String("category", string(client.CategorizeError(err))),
		zap.Error(err),
	)
	f.publish(Failure(msg), "flow")
	return traffic.OutcomeError
}
