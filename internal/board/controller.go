// Package board keeps a locally held document in step with a remote store
// using optimistic updates.
//
// Every action is applied to a copy of the visible document, the copy becomes
// visible at once, and the whole document is then saved through a Gateway. A
// failed save is answered by applying the action's inverse, which takes back
// that action alone: inverses follow the items they address while later
// actions move them, so mutations still pending are left as they are.
// Failures are logged and,
// when a notifier is configured, reported to it; they are never retried.
//
// Front ends that need the save to run in the background use the two-phase
// API: Apply, then Persist on another goroutine, then Settle with the result.
// Do wraps the three for callers that can block.
package board

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/idilsaglam/board/internal/model"
)

// DefaultSectionTitle is the placeholder title for new sections.
const DefaultSectionTitle = "New section"

// Gateway reads and writes the whole remote document.
type Gateway interface {
	Load(ctx context.Context) (model.Document, error)
	Save(ctx context.Context, doc model.Document) error
}

// State of the controller as a whole.
type State int

const (
	// Idle means no mutation is waiting on a save.
	Idle State = iota
	// Applied means at least one mutation is visible but not yet saved.
	Applied
)

func (s State) String() string {
	if s == Applied {
		return "applied"
	}
	return "idle"
}

// Failure describes a mutation that was rolled back.
type Failure struct {
	Op  string
	Err error
}

func (f Failure) Error() string { return f.Op + ": " + f.Err.Error() }

func (f Failure) Unwrap() error { return f.Err }

// Pending is a mutation that is visible locally and awaiting its save.
type Pending struct {
	op      Op
	inverse Op
	// host is the pending delete that removed the inverse's target; the
	// inverse then addresses the content host holds.
	host   *Pending
	doc    model.Document
	queued bool

	done chan struct{}
	err  error
}

// Op returns the action this mutation applied.
func (p *Pending) Op() Op { return p.op }

// Queued reports whether the save waits behind another one. Queued mutations
// are handed back by Settle once the save ahead of them finishes.
func (p *Pending) Queued() bool { return p.queued }

// Done is closed once the mutation is committed or rolled back.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err is the save error after Done is closed; nil means committed.
func (p *Pending) Err() error { return p.err }

// ErrEditClosed is returned by EditItemText when the item under edit was
// removed, by another action or by a rollback, while the session was open.
var ErrEditClosed = errors.New("edited item was removed")

type editSession struct {
	// origin is where the item was when the session began; section and item
	// follow it as other actions move it.
	origin        pos
	section, item int
	original      string
	gone          bool
}

type Option func(*Controller)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNotifier registers fn to hear about every rollback.
func WithNotifier(fn func(Failure)) Option {
	return func(c *Controller) { c.notify = fn }
}

// WithSerializedWrites makes mutations wait for the save ahead of them, so at
// most one save is in flight and each one writes the then-current document.
func WithSerializedWrites(on bool) Option {
	return func(c *Controller) { c.serialize = on }
}

// WithSectionPlaceholder sets the title given to new sections.
func WithSectionPlaceholder(title string) Option {
	return func(c *Controller) {
		if title != "" {
			c.placeholder = title
		}
	}
}

// Controller owns the visible document.
type Controller struct {
	gw          Gateway
	logger      *zap.Logger
	notify      func(Failure)
	serialize   bool
	placeholder string

	mu        sync.Mutex
	doc       model.Document
	inflight  []*Pending
	active    *Pending
	queue     []*Pending
	edit      *editSession
	observers []func(model.Document)
}

func New(gw Gateway, opts ...Option) *Controller {
	c := &Controller{
		gw:          gw,
		logger:      zap.NewNop(),
		placeholder: DefaultSectionTitle,
		doc:         model.Empty(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("board")
	return c
}

// Subscribe registers fn to receive a copy of the document after every
// visible change, including the optimistic one before the save completes.
func (c *Controller) Subscribe(fn func(model.Document)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Document returns a copy of the visible document.
func (c *Controller) Document() model.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Clone()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inflight) > 0 {
		return Applied
	}
	return Idle
}

// Load replaces the visible document with the remote one. On failure the
// document is left empty and the error returned; there is no retry.
func (c *Controller) Load(ctx context.Context) error {
	doc, err := c.gw.Load(ctx)
	c.mu.Lock()
	if err != nil {
		c.doc = model.Empty()
	} else {
		c.doc = doc.Clone()
	}
	c.edit = nil
	snap, observers := c.snapshotLocked()
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("load failed", zap.Error(err))
	} else {
		c.logger.Debug("loaded", zap.Int("sections", len(doc.Sections)))
	}
	publish(observers, snap)
	return err
}

// Replace adopts a document pushed from elsewhere. It is refused while a
// mutation or an edit session is open, so a remote copy never hides local
// changes that have not been saved.
func (c *Controller) Replace(doc model.Document) bool {
	c.mu.Lock()
	if len(c.inflight) > 0 || c.edit != nil {
		c.mu.Unlock()
		return false
	}
	c.doc = doc.Clone()
	snap, observers := c.snapshotLocked()
	c.mu.Unlock()
	publish(observers, snap)
	return true
}

// Apply makes op visible and returns the pending mutation. It returns nil,
// nil when op changes nothing; no save is needed then. A non-queued result
// must be passed to Persist and then Settle.
func (c *Controller) Apply(op Op) (*Pending, error) {
	c.mu.Lock()
	next := c.doc.Clone()
	inverse, err := op.apply(&next)
	if err != nil || inverse == nil {
		c.mu.Unlock()
		return nil, err
	}
	c.doc = next
	p := &Pending{op: op, inverse: inverse, done: make(chan struct{})}
	c.trackLocked(op, nil, p)
	c.inflight = append(c.inflight, p)
	if c.serialize && c.active != nil {
		p.queued = true
		c.queue = append(c.queue, p)
	} else {
		p.doc = next.Clone()
		if c.serialize {
			c.active = p
		}
	}
	snap, observers := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug("applied", zap.String("op", op.Name()), zap.Bool("queued", p.queued))
	publish(observers, snap)
	return p, nil
}

// Persist saves the document captured for p. It does not touch controller
// state and may run on any goroutine.
func (c *Controller) Persist(ctx context.Context, p *Pending) error {
	return c.gw.Save(ctx, p.doc)
}

// Settle records the outcome of p's save. On error p's action is taken back;
// changes made after it stay visible. In serialized mode the returned slice
// holds the next mutation to persist, if any.
func (c *Controller) Settle(p *Pending, saveErr error) []*Pending {
	var undoErr error

	c.mu.Lock()
	c.removeInflightLocked(p)
	if saveErr != nil {
		undoErr = c.rollbackLocked(p)
	} else {
		c.releaseLocked(p)
	}
	var ready []*Pending
	if c.serialize && c.active == p {
		c.active = nil
		if len(c.queue) > 0 {
			n := c.queue[0]
			c.queue = c.queue[1:]
			n.queued = false
			n.doc = c.doc.Clone()
			c.active = n
			ready = append(ready, n)
		}
	}
	snap, observers := c.snapshotLocked()
	c.mu.Unlock()

	p.err = saveErr
	close(p.done)

	if saveErr == nil {
		c.logger.Debug("committed", zap.String("op", p.op.Name()))
		return ready
	}
	c.logger.Warn("save failed, rolled back",
		zap.String("op", p.op.Name()),
		zap.Error(saveErr),
	)
	if undoErr != nil {
		c.logger.Error("rollback failed", zap.String("op", p.op.Name()), zap.Error(undoErr))
	}
	publish(observers, snap)
	if c.notify != nil {
		c.notify(Failure{Op: p.op.Name(), Err: saveErr})
	}
	return ready
}

// Do applies op and blocks until its save is committed or rolled back. It
// returns the save error, or nil for a no-op.
func (c *Controller) Do(ctx context.Context, op Op) error {
	p, err := c.Apply(op)
	if err != nil || p == nil {
		return err
	}
	if !p.Queued() {
		c.run(ctx, p)
	}
	select {
	case <-p.Done():
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) run(ctx context.Context, p *Pending) {
	for _, next := range c.Settle(p, c.Persist(ctx, p)) {
		c.run(ctx, next)
	}
}

func (c *Controller) AddItem(ctx context.Context, section int, text string) error {
	return c.Do(ctx, AddItem{Section: section, Text: text})
}

func (c *Controller) ToggleItem(ctx context.Context, section, item int) error {
	return c.Do(ctx, ToggleItem{Section: section, Item: item})
}

func (c *Controller) DeleteItem(ctx context.Context, section, item int) error {
	return c.Do(ctx, DeleteItem{Section: section, Item: item})
}

// AddSection appends a section titled with the configured placeholder.
func (c *Controller) AddSection(ctx context.Context) error {
	return c.Do(ctx, c.NewSection())
}

// NewSection returns the op AddSection applies.
func (c *Controller) NewSection() Op {
	return AddSection{Title: c.placeholder}
}

func (c *Controller) RenameSection(ctx context.Context, index int, title string) error {
	return c.Do(ctx, RenameSection{Index: index, Title: title})
}

func (c *Controller) DeleteSection(ctx context.Context, index int) error {
	return c.Do(ctx, DeleteSection{Index: index})
}

// BeginEdit opens an edit session on an item and remembers its current text.
func (c *Controller) BeginEdit(section, item int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := checkItem(&c.doc, section, item); err != nil {
		return err
	}
	c.edit = &editSession{
		origin:   pos{section, item},
		section:  section,
		item:     item,
		original: c.doc.Sections[section].Items[item].Text,
	}
	return nil
}

// EditItemText changes an item's text locally. It is never saved on its own;
// the document is saved when the edit session ends. While a session is open,
// the position passed to BeginEdit keeps naming the edited item even if other
// changes move it.
func (c *Controller) EditItemText(section, item int, text string) error {
	c.mu.Lock()
	if s := c.edit; s != nil && s.origin == (pos{section, item}) {
		if s.gone {
			c.mu.Unlock()
			return ErrEditClosed
		}
		section, item = s.section, s.item
	}
	next := c.doc.Clone()
	if _, err := (SetItemText{Section: section, Item: item, Text: text}).apply(&next); err != nil {
		c.mu.Unlock()
		return err
	}
	c.doc = next
	snap, observers := c.snapshotLocked()
	c.mu.Unlock()
	publish(observers, snap)
	return nil
}

// EndEdit closes the edit session and returns the op that saves the whole
// document. The save happens even when the text did not change. If it fails
// the item gets back the text it had when the session began.
func (c *Controller) EndEdit() Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.edit
	c.edit = nil
	if s == nil || s.gone {
		return commitEdit{}
	}
	return commitEdit{restore: SetItemText{Section: s.section, Item: s.item, Text: s.original}}
}

// FinishEdit ends the edit session and saves the document.
func (c *Controller) FinishEdit(ctx context.Context) error {
	return c.Do(ctx, c.EndEdit())
}

// Editing reports the item under edit, if any.
func (c *Controller) Editing() (section, item int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.edit == nil || c.edit.gone {
		return 0, 0, false
	}
	return c.edit.section, c.edit.item, true
}

// trackLocked moves the inverses addressing frame (nil for the visible
// document) and, for the visible document, the edit session across op, which
// was just applied there. Inverses whose target op removed are parked on
// parkOn, or dropped when parkOn is nil.
func (c *Controller) trackLocked(op Op, frame, parkOn *Pending) {
	for _, r := range c.inflight {
		if r.host != frame {
			continue
		}
		inv, ok := rebase(r.inverse, op)
		switch {
		case ok:
			r.inverse = inv
		case parkOn != nil:
			r.inverse, r.host = intoHeld(r.inverse, parkOn.inverse), parkOn
		default:
			r.inverse, r.host = keep{}, nil
		}
	}
	if frame != nil || c.edit == nil || c.edit.gone {
		return
	}
	if p, ok := mapThrough(op, pos{c.edit.section, c.edit.item}, false); ok {
		c.edit.section, c.edit.item = p.section, p.item
	} else {
		c.edit.gone = true
	}
}

// rollbackLocked applies p's inverse where its target now lives: the visible
// document, or the content held by the pending delete that removed it.
func (c *Controller) rollbackLocked(p *Pending) error {
	inv, host := p.inverse, p.host
	if host == nil {
		next := c.doc.Clone()
		if _, err := inv.apply(&next); err != nil {
			c.releaseLocked(p)
			return err
		}
		c.doc = next
	} else {
		doc, ok := held(host.inverse)
		if !ok {
			c.releaseLocked(p)
			return nil
		}
		if _, err := inv.apply(&doc); err != nil {
			c.releaseLocked(p)
			return err
		}
		host.inverse = withHeld(host.inverse, doc)
	}
	c.trackLocked(inv, host, nil)
	// Whatever p had parked comes back with the content inv restored.
	for _, r := range c.inflight {
		if r.host == p {
			r.inverse, r.host = outOfHeld(r.inverse, inv), host
		}
	}
	if host != nil {
		if _, empty := host.inverse.(keep); empty {
			c.releaseLocked(host)
		}
	}
	return nil
}

// releaseLocked drops the inverses parked on p: the content they address is
// gone for good.
func (c *Controller) releaseLocked(p *Pending) {
	for _, r := range c.inflight {
		if r.host == p {
			r.inverse, r.host = keep{}, nil
		}
	}
}

func (c *Controller) removeInflightLocked(p *Pending) {
	for i, q := range c.inflight {
		if q == p {
			c.inflight = append(c.inflight[:i], c.inflight[i+1:]...)
			return
		}
	}
}

func (c *Controller) snapshotLocked() (model.Document, []func(model.Document)) {
	if len(c.observers) == 0 {
		return model.Document{}, nil
	}
	obs := make([]func(model.Document), len(c.observers))
	copy(obs, c.observers)
	return c.doc.Clone(), obs
}

func publish(observers []func(model.Document), doc model.Document) {
	for _, fn := range observers {
		fn(doc.Clone())
	}
}

// IsIndexError reports whether err came from an op addressing a missing
// section or item rather than from a save.
func IsIndexError(err error) bool { return errors.Is(err, ErrIndexOutOfRange) }
