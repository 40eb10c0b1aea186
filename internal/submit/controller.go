// Package submit orchestrates a single classification submission: probe the
// backend, upload over the primary transport, fall back to the progress
// transport on transport failure, and publish every transition to a
// state.Store.
package submit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tunelab/genrescope/internal/backend"
	"github.com/tunelab/genrescope/internal/media"
	"github.com/tunelab/genrescope/internal/state"
)

// User-facing messages owned by the controller.
const (
	MsgValidation       = "Please choose an audio/video file first."
	MsgConnectivity     = "Cannot connect to backend. Please check your internet connection and try again."
	MsgConnectionOK     = "Connection successful!"
	MsgConnectionFailed = "Connection failed - check the log for details"
)

// ErrSuperseded is returned by Submit when a newer submission, a reset or a
// new file choice replaced it before it finished. Its outcome was discarded.
var ErrSuperseded = errors.New("submission superseded")

// ValidationError rejects a submission before any network call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Prober is the reachability check run before every upload.
type Prober interface {
	Probe(ctx context.Context) bool
	Check(ctx context.Context) (backend.Health, error)
}

// Deps are the collaborators a Controller drives. Fallback may be nil.
type Deps struct {
	Prober   Prober
	Primary  backend.Uploader
	Fallback backend.Uploader
	Store    *state.Store
	Logger   *slog.Logger
}

// Options tune controller behaviour per backend profile.
type Options struct {
	// Fallback enables the second attempt over Deps.Fallback after the
	// primary transport fails without obtaining a response.
	Fallback bool
}

// Controller is the single writer of submission state.
type Controller struct {
	prober   Prober
	primary  backend.Uploader
	fallback backend.Uploader
	store    *state.Store
	logger   *slog.Logger
	opts     Options

	// mu orders generation changes with cancellation of the superseded
	// submission's context.
	mu     sync.Mutex
	cancel context.CancelFunc
}

// New builds a Controller. A nil Store gets a fresh one.
func New(deps Deps, opts Options) *Controller {
	store := deps.Store
	if store == nil {
		store = &state.Store{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		prober:   deps.Prober,
		primary:  deps.Primary,
		fallback: deps.Fallback,
		store:    store,
		logger:   logger,
		opts:     opts,
	}
}

// Store exposes the state the controller publishes to.
func (c *Controller) Store() *state.Store { return c.store }

// Snapshot returns the current state.
func (c *Controller) Snapshot() state.State { return c.store.Snapshot() }

// Choose selects the file for the next submission. Any in-flight submission
// is superseded and the previous result, error and progress are cleared.
func (c *Controller) Choose(f *media.File) {
	c.supersede(nil, func(cur state.State) state.State {
		return state.State{
			Phase:      state.PhaseIdle,
			File:       f,
			Generation: cur.Generation + 1,
			Diagnostic: cur.Diagnostic,
		}
	})
	if f != nil {
		c.logger.Debug("file chosen", "file", f.Name, "size", f.HumanSize(), "kind", f.Kind())
	}
}

// Reset supersedes any in-flight submission and returns to idle with no file.
// The last connectivity diagnostic is kept.
func (c *Controller) Reset() {
	c.supersede(nil, func(cur state.State) state.State {
		return state.State{
			Phase:      state.PhaseIdle,
			Generation: cur.Generation + 1,
			Diagnostic: cur.Diagnostic,
		}
	})
	c.logger.Debug("submission reset")
}

// Submit runs one submission for f to a terminal phase and blocks until it
// gets there. Outcomes are reported through the store; the returned error is
// only non-nil for a *ValidationError or ErrSuperseded.
func (c *Controller) Submit(ctx context.Context, f *media.File) error {
	if f == nil {
		return &ValidationError{Message: MsgValidation}
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	gen := c.supersede(cancel, func(cur state.State) state.State {
		return state.State{
			Phase:        state.PhaseProbing,
			File:         f,
			Generation:   cur.Generation + 1,
			SubmissionID: id,
			Diagnostic:   cur.Diagnostic,
		}
	})

	log := c.logger.With("submission", id, "file", f.Name)
	log.InfoContext(ctx, "submission started", "size", f.HumanSize(), "kind", f.Kind())

	if c.prober == nil || !c.prober.Probe(ctx) {
		log.WarnContext(ctx, "backend unreachable")
		return c.fail(gen, MsgConnectivity)
	}

	if !c.apply(gen, func(s *state.State) bool {
		if s.Phase != state.PhaseProbing {
			return false
		}
		s.Phase = state.PhaseUploading
		return true
	}) {
		return ErrSuperseded
	}

	onProgress := c.progress(gen)
	pred, err := c.upload(ctx, c.primary, f, onProgress)
	if err != nil && c.opts.Fallback && c.fallback != nil && backend.IsFallbackEligible(err) && ctx.Err() == nil {
		log.WarnContext(ctx, "primary upload failed, trying fallback", "err", err)
		pred, err = c.upload(ctx, c.fallback, f, onProgress)
	}
	if err != nil {
		log.WarnContext(ctx, "submission failed", "kind", backend.KindOf(err), "err", err)
		return c.fail(gen, backend.Message(err))
	}

	if !c.apply(gen, func(s *state.State) bool {
		s.Phase = state.PhaseSucceeded
		s.Progress = 100
		s.Result = pred
		s.ErrorMessage = ""
		return true
	}) {
		return ErrSuperseded
	}
	log.InfoContext(ctx, "submission succeeded", "genre", pred.DisplayGenre())
	return nil
}

// TestConnection probes the backend without touching file or submission state.
func (c *Controller) TestConnection(ctx context.Context) state.Diagnostic {
	next, _ := c.store.Update(func(cur state.State) (state.State, bool) {
		cur.Diagnostic = state.Diagnostic{Seq: cur.Diagnostic.Seq + 1, Running: true}
		return cur, true
	})
	seq := next.Diagnostic.Seq

	diag := state.Diagnostic{Seq: seq, Message: MsgConnectionFailed}
	if c.prober != nil {
		health, err := c.prober.Check(ctx)
		diag.Health = health
		if err != nil {
			c.logger.WarnContext(ctx, "connection test failed", "err", err)
		} else {
			diag.OK = true
			diag.Message = MsgConnectionOK
			c.logger.InfoContext(ctx, "connection test ok", "status", health.Status, "latency", health.Latency)
		}
	}
	diag.CheckedAt = time.Now()

	c.store.Update(func(cur state.State) (state.State, bool) {
		if cur.Diagnostic.Seq != seq {
			return cur, false
		}
		cur.Diagnostic = diag
		return cur, true
	})
	return diag
}

// supersede installs a new generation built by next and cancels whatever
// submission was running. A non-nil cancel belongs to the submission that
// starts with this generation.
func (c *Controller) supersede(cancel context.CancelFunc, next func(state.State) state.State) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	st, _ := c.store.Update(func(cur state.State) (state.State, bool) {
		return next(cur), true
	})
	return st.Generation
}

// apply mutates the state only while gen is still current.
func (c *Controller) apply(gen uint64, mutate func(*state.State) bool) bool {
	_, ok := c.store.Update(func(cur state.State) (state.State, bool) {
		if cur.Generation != gen {
			return cur, false
		}
		next := cur
		if !mutate(&next) {
			return cur, false
		}
		return next, true
	})
	return ok
}

func (c *Controller) fail(gen uint64, msg string) error {
	if !c.apply(gen, func(s *state.State) bool {
		s.Phase = state.PhaseFailed
		s.Result = nil
		s.ErrorMessage = msg
		return true
	}) {
		return ErrSuperseded
	}
	return nil
}

// progress publishes upload percentages for gen. Values that would move the
// bar backwards, or that arrive outside the uploading phase, are dropped.
func (c *Controller) progress(gen uint64) backend.ProgressFunc {
	return func(pct int) {
		if pct > 100 {
			pct = 100
		}
		c.apply(gen, func(s *state.State) bool {
			if s.Phase != state.PhaseUploading || pct <= s.Progress {
				return false
			}
			s.Progress = pct
			return true
		})
	}
}

func (c *Controller) upload(ctx context.Context, u backend.Uploader, f *media.File, onProgress backend.ProgressFunc) (*backend.Prediction, error) {
	if u == nil {
		return nil, &backend.Error{Kind: backend.KindNetwork, Detail: backend.MsgNetwork, Err: errors.New("no upload transport configured")}
	}
	pred, err := u.Upload(ctx, f, onProgress)
	if err != nil {
		var be *backend.Error
		if !errors.As(err, &be) {
			// Unclassified failures never reach the user as raw error text.
			return nil, &backend.Error{Kind: backend.KindNetwork, Detail: backend.MsgNetwork, Err: err}
		}
		return nil, err
	}
	if pred == nil {
		return nil, &backend.Error{Kind: backend.KindParse, Detail: backend.MsgParse, Err: errors.New("empty prediction")}
	}
	return pred, nil
}
