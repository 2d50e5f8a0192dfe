// Package draft keeps one server-side draft record in step with an in-memory form.
//
// Every save captures a generation number when it is scheduled. A save whose
// generation is no longer current when it completes is discarded, which is how
// cancellation and supersession work without aborting network calls. Writes to the
// persistence boundary are serialized, so a create that is still in flight is always
// observed by the next save or by submit. Every create for one form is sent under
// the same idempotency key, so a create whose answer was lost is never duplicated.
package draft

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/domain/workflow"
)

// DefaultDebounce is the autosave delay after the last edit
const DefaultDebounce = time.Second

var (
	// ErrRetired is returned once the form has been submitted or closed
	ErrRetired = errors.New("draft coordinator is retired")

	// ErrSubmitInProgress is returned when a second submit starts before the first ends
	ErrSubmitInProgress = errors.New("submit already in progress")

	// ErrNotEditable is returned when submitting a form whose status is neither draft nor returned
	ErrNotEditable = errors.New("request is not editable by its requester")
)

// Client is the part of the persistence boundary the coordinator writes through
type Client interface {
	CreateDraft(ctx context.Context, actor port.Actor, fields entity.RequestFields) (*entity.PaymentRequest, error)
	UpdateDraft(ctx context.Context, actor port.Actor, id uuid.UUID, fields entity.RequestFields) (*entity.PaymentRequest, error)
	Submit(ctx context.Context, actor port.Actor, id uuid.UUID) (*entity.PaymentRequest, error)
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Form is a snapshot of the tracked form fields and the status of the record they edit
type Form struct {
	Fields entity.RequestFields
	Status workflow.Status
}

// State is what the form renders
type State struct {
	DraftID    uuid.UUID
	IsDirty    bool
	IsSaving   bool
	LastSaved  time.Time
	Err        error
	Enabled    bool
	Submitting bool
	Retired    bool
}

// Coordinator persists one form instance as a draft record
type Coordinator struct {
	client         Client
	actor          port.Actor
	logger         Logger
	debounce       time.Duration
	afterFunc      AfterFunc
	now            func() time.Time
	onDraftCreated func(id uuid.UUID)
	onChange       func(State)

	// writes serializes every call to the persistence boundary
	writes *semaphore.Weighted

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu         sync.Mutex
	form       Form
	draftID    uuid.UUID
	announced  bool
	enabled    bool
	submitting bool
	retired    bool
	generation uint64
	savingGen  uint64
	// createKey is minted for the first create and kept until the draft id is known
	createKey  string
	createSent bool
	timer      Timer
	dirty      bool
	saving     bool
	lastSaved  time.Time
	err        error
}

// Option configures the coordinator
type Option func(*Coordinator)

// WithDebounce sets the autosave delay
func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithAfterFunc replaces the timer source
func WithAfterFunc(f AfterFunc) Option {
	return func(c *Coordinator) {
		c.afterFunc = f
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithLogger sets a logger
func WithLogger(l Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithDraftID starts from an already persisted draft
func WithDraftID(id uuid.UUID) Option {
	return func(c *Coordinator) {
		c.draftID = id
		c.announced = id != uuid.Nil
	}
}

// WithEnabled sets the initial autosave gate
func WithEnabled(enabled bool) Option {
	return func(c *Coordinator) {
		c.enabled = enabled
	}
}

// OnDraftCreated registers the callback that receives a newly created draft id.
// It is invoked at most once per created draft.
func OnDraftCreated(fn func(id uuid.UUID)) Option {
	return func(c *Coordinator) {
		c.onDraftCreated = fn
	}
}

// OnChange registers a callback invoked with the new state after every save outcome
func OnChange(fn func(State)) Option {
	return func(c *Coordinator) {
		c.onChange = fn
	}
}

// New creates a coordinator for one form instance
func New(client Client, actor port.Actor, form Form, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:    client,
		actor:     actor,
		debounce:  DefaultDebounce,
		afterFunc: realAfterFunc,
		now:       time.Now,
		writes:    semaphore.NewWeighted(1),
		form:      form,
		enabled:   true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseCtx, c.cancelBase = context.WithCancel(context.Background())
	return c
}

// State returns a snapshot of the coordinator state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Coordinator) stateLocked() State {
	s := State{
		IsDirty:    c.dirty,
		IsSaving:   c.saving,
		LastSaved:  c.lastSaved,
		Err:        c.err,
		Enabled:    c.enabled,
		Submitting: c.submitting,
		Retired:    c.retired,
	}
	if c.announced {
		s.DraftID = c.draftID
	}
	return s
}

// Edit records a new form snapshot and schedules an autosave
func (c *Coordinator) Edit(form Form) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.retired {
		return
	}
	c.form = form
	c.dirty = true
	if form.Status != workflow.StatusDraft {
		// only an explicit submit may write a record that left draft
		c.cancelLocked()
		return
	}
	c.scheduleLocked()
}

// Schedule restarts the debounce timer for the current form
func (c *Coordinator) Schedule() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduleLocked()
}

func (c *Coordinator) scheduleLocked() {
	if !c.enabled || c.submitting || c.retired || c.form.Status != workflow.StatusDraft {
		return
	}

	c.stopTimerLocked()
	c.dirty = true
	c.generation++
	gen := c.generation
	c.timer = c.afterFunc(c.debounce, func() {
		c.perform(c.baseCtx, gen)
	})
}

// Save persists the form now. It is skipped while disabled, when nothing changed,
// or when the fields a draft needs are missing.
func (c *Coordinator) Save(ctx context.Context) {
	c.mu.Lock()
	if !c.enabled || c.submitting || c.retired || !c.dirty {
		c.mu.Unlock()
		return
	}
	if c.form.Fields.CounterpartyID == "" || c.form.Fields.DueDate == nil {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	c.perform(ctx, gen)
}

// Cancel invalidates any pending or in-flight save
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

func (c *Coordinator) cancelLocked() {
	c.stopTimerLocked()
	c.generation++
}

func (c *Coordinator) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// SetEnabled opens or closes the autosave gate. Closing it cancels pending saves.
func (c *Coordinator) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = enabled
	if !enabled {
		c.cancelLocked()
		return
	}
	if c.dirty {
		c.scheduleLocked()
	}
}

func (c *Coordinator) eligibleLocked(gen uint64) bool {
	return c.enabled &&
		!c.submitting &&
		!c.retired &&
		gen == c.generation &&
		c.form.Status == workflow.StatusDraft
}

func (c *Coordinator) perform(ctx context.Context, gen uint64) {
	c.mu.Lock()
	ok := c.eligibleLocked(gen)
	c.mu.Unlock()
	if !ok {
		return
	}

	if err := c.writes.Acquire(ctx, 1); err != nil {
		return
	}
	defer c.writes.Release(1)

	c.mu.Lock()
	if !c.eligibleLocked(gen) {
		c.mu.Unlock()
		return
	}
	id := c.draftID
	fields := c.form.Fields
	c.saving = true
	c.savingGen = gen
	c.mu.Unlock()

	var (
		rec *entity.PaymentRequest
		err error
	)
	if id == uuid.Nil {
		rec, err = c.createDraft(ctx, fields)
	} else {
		rec, err = c.client.UpdateDraft(ctx, c.actor, id, fields)
	}

	c.mu.Lock()
	if id == uuid.Nil && rec != nil && c.draftID == uuid.Nil {
		// the record exists whether or not this save is still current
		c.adoptLocked(rec.ID)
	}
	if c.savingGen == gen {
		c.saving = false
		c.savingGen = 0
	}

	stale := gen != c.generation
	var announce uuid.UUID
	if !stale {
		if err != nil {
			c.err = err
		} else {
			c.dirty = false
			c.err = nil
			c.lastSaved = c.now()
			if !c.announced && c.draftID != uuid.Nil {
				c.announced = true
				announce = c.draftID
			}
		}
	}
	state := c.stateLocked()
	c.mu.Unlock()

	c.log(stale, id, err)
	if announce != uuid.Nil && c.onDraftCreated != nil {
		c.onDraftCreated(announce)
	}
	if c.onChange != nil {
		c.onChange(state)
	}
}

// createDraft creates the record under the form's idempotency key. Once an attempt
// has been sent the server may answer a repeat with the first create's record, so
// the current fields are written on top of it. A record is returned whenever one
// exists, even if that follow-up write failed.
func (c *Coordinator) createDraft(ctx context.Context, fields entity.RequestFields) (*entity.PaymentRequest, error) {
	c.mu.Lock()
	if c.createKey == "" {
		c.createKey = uuid.NewString()
	}
	key := c.createKey
	repeat := c.createSent
	c.createSent = true
	c.mu.Unlock()

	rec, err := c.client.CreateDraft(port.WithIdempotencyKey(ctx, key), c.actor, fields)
	if err != nil || !repeat {
		return rec, err
	}
	updated, err := c.client.UpdateDraft(ctx, c.actor, rec.ID, fields)
	if err != nil {
		return rec, err
	}
	return updated, nil
}

func (c *Coordinator) adoptLocked(id uuid.UUID) {
	c.draftID = id
	c.createKey = ""
	c.createSent = false
}

func (c *Coordinator) log(stale bool, id uuid.UUID, err error) {
	if c.logger == nil {
		return
	}
	switch {
	case stale:
		c.logger.Info("Discarded stale draft save", "draft_id", id.String())
	case err != nil:
		c.logger.Error("Draft save failed", "draft_id", id.String(), "error", err)
	}
}

// Submit persists the latest form and submits it. Autosave is locked out for the
// whole call; a save already in flight is awaited so the latest draft id is used.
// On failure the lock is released; on success the coordinator is retired.
func (c *Coordinator) Submit(ctx context.Context) (*entity.PaymentRequest, error) {
	c.mu.Lock()
	switch {
	case c.retired:
		c.mu.Unlock()
		return nil, ErrRetired
	case c.submitting:
		c.mu.Unlock()
		return nil, ErrSubmitInProgress
	case c.form.Status != workflow.StatusDraft && c.form.Status != workflow.StatusReturned:
		c.mu.Unlock()
		return nil, ErrNotEditable
	}
	c.submitting = true
	c.cancelLocked()
	c.mu.Unlock()

	if err := c.writes.Acquire(ctx, 1); err != nil {
		c.releaseSubmit()
		return nil, err
	}
	defer c.writes.Release(1)

	c.mu.Lock()
	id := c.draftID
	fields := c.form.Fields
	dirty := c.dirty
	c.mu.Unlock()

	created := false
	if id == uuid.Nil {
		rec, err := c.createDraft(ctx, fields)
		if rec != nil {
			c.mu.Lock()
			c.adoptLocked(rec.ID)
			c.mu.Unlock()
		}
		if err != nil {
			c.releaseSubmit()
			return nil, err
		}
		id = rec.ID
		created = true
	} else if dirty {
		if _, err := c.client.UpdateDraft(ctx, c.actor, id, fields); err != nil {
			c.releaseSubmit()
			return nil, err
		}
	}

	rec, err := c.client.Submit(ctx, c.actor, id)
	if err != nil {
		c.releaseSubmit()
		return nil, err
	}

	c.mu.Lock()
	c.retired = true
	c.submitting = false
	c.enabled = false
	c.dirty = false
	c.err = nil
	c.form.Status = rec.Status
	c.lastSaved = c.now()
	announce := !c.announced
	c.announced = true
	state := c.stateLocked()
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Info("Draft submitted", "draft_id", id.String(), "created", created)
	}
	if announce && c.onDraftCreated != nil {
		c.onDraftCreated(id)
	}
	if c.onChange != nil {
		c.onChange(state)
	}

	return rec, nil
}

func (c *Coordinator) releaseSubmit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false
	if c.dirty {
		c.scheduleLocked()
	}
}

// Close retires the coordinator and abandons any timer-driven save
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.retired = true
	c.cancelLocked()
	c.mu.Unlock()
	c.cancelBase()
}
