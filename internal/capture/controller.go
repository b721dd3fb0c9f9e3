// Package capture implements the capture -> submit -> results workflow.
//
// A Controller owns exactly one State at a time. Triggers are serialized by a
// mutex; only the match call runs outside it, tagged with a generation so a
// resolution for a superseded or abandoned submission is dropped.
package capture

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/face-match/internal/logging"
	"github.com/example/face-match/internal/matcher"
)

var (
	// ErrSubmissionInFlight rejects acquisition triggers while Submitting.
	ErrSubmissionInFlight = errors.New("submission in flight")
	// ErrInvalidTransition rejects triggers the current state does not accept.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrClosed rejects triggers on an abandoned controller.
	ErrClosed = errors.New("controller closed")
)

// FrameSource supplies the current camera frame when the shutter fires.
type FrameSource interface {
	Frame() (data []byte, contentType string, ok bool)
}

// FrameFunc adapts a function to FrameSource.
type FrameFunc func() ([]byte, string, bool)

// Frame implements FrameSource.
func (f FrameFunc) Frame() ([]byte, string, bool) {
	return f()
}

// Ticket identifies an accepted submission.
type Ticket struct {
	Generation uint64
	RequestID  string
}

// Outcome describes a resolved submission that was applied to the state.
type Outcome struct {
	SessionID  string
	RequestID  string
	Generation uint64
	ImageSHA1  string
	Results    matcher.ResultSet
	// Failure is zero on success.
	Failure matcher.ErrorKind
	Err     error
	Started time.Time
	Latency time.Duration
}

// Succeeded reports whether the submission produced results.
func (o Outcome) Succeeded() bool {
	return o.Failure == 0
}

// Observer is notified after a current-generation submission is applied.
// It runs on the submission goroutine, outside the controller lock.
type Observer interface {
	SubmissionResolved(ctx context.Context, outcome Outcome)
}

// Option customises a Controller.
type Option func(*Controller)

// WithObserver registers an observer for resolved submissions.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller is the workflow state machine of one session.
type Controller struct {
	id       string
	client   matcher.Client
	logger   *zap.Logger
	observer Observer
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        State
	generation   uint64
	closed       bool
	changed      chan struct{}
	lastActivity time.Time
}

// New returns a controller in Idle.
func New(id string, client matcher.Client, logger *zap.Logger, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:      id,
		client:  client,
		logger:  logging.WithOperation(logger.Named("capture"), "capture.workflow", id),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		state:   idle(),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lastActivity = c.now()
	return c
}

// ID returns the session id the controller was created for.
func (c *Controller) ID() string {
	return c.id
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Generation returns the tag of the most recent submission.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// LastActivity returns when a trigger last changed the state.
func (c *Controller) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Snapshot returns the state together with the generation it belongs to.
func (c *Controller) Snapshot() (State, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.generation
}

// RequestCamera moves Idle or Succeeded to Acquiring, clearing any prior error.
func (c *Controller) RequestCamera() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.acceptLocked("camera", KindIdle, KindSucceeded); err != nil {
		return err
	}
	c.setStateLocked(acquiring())
	return nil
}

// SelectFile takes a gallery file and starts a submission.
func (c *Controller) SelectFile(data []byte, contentType string) (Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.acceptLocked("select_file", KindIdle, KindAcquiring, KindSucceeded); err != nil {
		return Ticket{}, err
	}
	image, err := matcher.NewCapturedImage(data, contentType)
	if err != nil {
		return Ticket{}, err
	}
	return c.submitLocked(image), nil
}

// Shutter captures the current frame while Acquiring. When src has no frame
// the state stays Acquiring and ok is false.
func (c *Controller) Shutter(src FrameSource) (ticket Ticket, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.acceptLocked("shutter", KindAcquiring); err != nil {
		return Ticket{}, false, err
	}
	data, contentType, ok := src.Frame()
	if !ok || len(data) == 0 {
		c.logger.Debug("shutter without frame")
		return Ticket{}, false, nil
	}
	image, err := matcher.NewCapturedImage(data, contentType)
	if err != nil {
		return Ticket{}, false, err
	}
	return c.submitLocked(image), true, nil
}

// Cancel leaves Acquiring for Idle.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.acceptLocked("cancel", KindAcquiring); err != nil {
		return err
	}
	c.setStateLocked(idle())
	return nil
}

// Reset discards image, results and error. It is idempotent from Idle.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.acceptLocked("reset", KindIdle, KindSucceeded); err != nil {
		return err
	}
	c.setStateLocked(idle())
	return nil
}

// Close abandons the controller. An in-flight submission is cancelled and its
// resolution, if it still arrives, is ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.generation++
	c.setStateLocked(idle())
	c.mu.Unlock()
	c.cancel()
}

// Wait blocks until no submission is in flight.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.state.Kind != KindSubmitting {
			c.mu.Unlock()
			return nil
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Controller) acceptLocked(trigger string, from ...Kind) error {
	if c.closed {
		return ErrClosed
	}
	current := c.state.Kind
	if current == KindSubmitting {
		c.logger.Warn("trigger rejected while submitting", zap.String("trigger", trigger))
		return fmt.Errorf("%w: %s", ErrSubmissionInFlight, trigger)
	}
	for _, k := range from {
		if current == k {
			return nil
		}
	}
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, trigger, c.state)
}

func (c *Controller) setStateLocked(next State) {
	c.logger.Debug("state transition",
		zap.Stringer("from", c.state),
		zap.Stringer("to", next),
		zap.Uint64("generation", c.generation))
	c.state = next
	c.lastActivity = c.now()
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Controller) submitLocked(image matcher.CapturedImage) Ticket {
	c.generation++
	ticket := Ticket{Generation: c.generation, RequestID: uuid.NewString()}
	c.setStateLocked(submitting(image))

	started := c.now()
	go c.run(ticket, image, started)
	return ticket
}

func (c *Controller) run(ticket Ticket, image matcher.CapturedImage, started time.Time) {
	results, err := c.client.Submit(c.ctx, image)
	if err == nil && len(results) == 0 {
		err = matcher.NoFace(errors.New("empty result set"))
	}

	sum := sha1.Sum(image.Data)
	outcome := Outcome{
		SessionID:  c.id,
		RequestID:  ticket.RequestID,
		Generation: ticket.Generation,
		ImageSHA1:  hex.EncodeToString(sum[:]),
		Started:    started,
	}
	if err != nil {
		outcome.Failure = matcher.KindOf(err)
		outcome.Err = err
	} else {
		outcome.Results = matcher.Rank(results)
	}

	outcome, applied := c.resolve(ticket.Generation, outcome)
	if !applied {
		return
	}
	if c.observer != nil {
		c.observer.SubmissionResolved(context.Background(), outcome)
	}
}

// resolve applies outcome if gen is still current and reports whether it did.
func (c *Controller) resolve(gen uint64, outcome Outcome) (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	genLogger := logging.WithGeneration(c.logger, gen)
	if gen != c.generation || c.state.Kind != KindSubmitting {
		genLogger.Debug("dropping stale submission result", zap.Uint64("current_generation", c.generation))
		return outcome, false
	}

	outcome.Latency = c.now().Sub(outcome.Started)
	if outcome.Succeeded() {
		c.setStateLocked(succeeded(c.state.Image, outcome.Results))
		genLogger.Info("submission succeeded",
			zap.Int("candidates", len(outcome.Results)),
			zap.String("best_match", outcome.Results.Best().ID))
		return outcome, true
	}

	c.setStateLocked(idleWithError(outcome.Failure))
	genLogger.Info("submission failed", zap.Stringer("kind", outcome.Failure), zap.Error(outcome.Err))
	return outcome, true
}
