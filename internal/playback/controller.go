package playback

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/creek-soundboard/internal/catalog"
	"github.com/zjrosen/creek-soundboard/internal/log"
)

var tracer = otel.Tracer("github.com/zjrosen/creek-soundboard/internal/playback")

// Handle identifies the UI trigger that requested playback.
type Handle string

// NewHandle returns a fresh, unique handle.
func NewHandle() Handle {
	return Handle(uuid.NewString())
}

// Hooks lets the UI reflect the playing state of a trigger.
type Hooks interface {
	MarkPlaying(h Handle)
	MarkStopped(h Handle)
}

// Reporter receives *StartError and *RuntimeError values.
type Reporter interface {
	Report(err error)
}

// Observer receives the completion of a started voice.
// A voice calls at most one of its methods, at most once.
type Observer interface {
	Ended()
	Failed(err error)
}

// Voice is one playable instance of a sound.
type Voice interface {
	// Load prepares the media so a later Start begins quickly.
	Load(ctx context.Context) error
	// Start begins playback. A non-nil error means playback never started
	// and obs will not be called. Start may block while media loads; a Stop
	// made before or during Start must keep the voice silent, and Start then
	// returns ErrStopped.
	Start(ctx context.Context, obs Observer) error
	// Stop pauses and rewinds. obs should not be called after Stop returns;
	// the Controller ignores such late calls. Stop must not call obs itself.
	Stop()
	// Playing reports whether the voice is currently audible.
	Playing() bool
}

// Backend creates voices.
type Backend interface {
	NewVoice(s catalog.Sound) Voice
}

// Option configures a Controller.
type Option func(*Controller)

// WithReporter sets the receiver of playback errors.
func WithReporter(r Reporter) Option {
	return func(c *Controller) { c.reporter = r }
}

// WithPreloadConcurrency bounds the number of concurrent Load calls made by Preload.
func WithPreloadConcurrency(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.preloadConcurrency = n
		}
	}
}

// Controller plays at most one sound at a time.
type Controller struct {
	backend            Backend
	hooks              Hooks
	reporter           Reporter
	preloadConcurrency int

	mu          sync.Mutex
	active      Handle
	activeVoice Voice
	generation  uint64
	voices      map[string]Voice // sound id -> most recent voice
}

// New creates a Controller.
func New(backend Backend, hooks Hooks, opts ...Option) *Controller {
	c := &Controller{
		backend:            backend,
		hooks:              hooks,
		reporter:           discardReporter{},
		preloadConcurrency: 4,
		voices:             make(map[string]Voice),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Play plays s on behalf of trigger h.
//
// If h is already playing, Play does nothing. If another trigger is playing,
// its voice is stopped and it is marked stopped before the new voice is
// created. Errors are delivered to the Reporter.
func (c *Controller) Play(ctx context.Context, s catalog.Sound, h Handle) {
	ctx, span := tracer.Start(ctx, "playback.Play", trace.WithAttributes(attribute.String("sound.id", s.ID)))
	defer span.End()

	c.mu.Lock()
	if c.activeVoice != nil && c.active == h {
		c.mu.Unlock()
		span.SetAttributes(attribute.String("outcome", "noop"))
		return
	}
	outcome := "play"
	if c.activeVoice != nil {
		outcome = "interrupt"
		c.stopActiveLocked()
	}

	v := c.backend.NewVoice(s)
	c.voices[s.ID] = v
	c.generation++
	gen := c.generation
	c.active = h
	c.activeVoice = v
	c.hooks.MarkPlaying(h)
	c.mu.Unlock()

	span.SetAttributes(attribute.String("outcome", outcome))
	log.Debug(log.CatAudio, "Playing sound", "sound", s.ID, "generation", gen, "outcome", outcome)

	obs := &voiceObserver{c: c, gen: gen, sound: s}
	if err := v.Start(ctx, obs); err != nil {
		if errors.Is(err, ErrStopped) {
			span.SetAttributes(attribute.String("outcome", "preempted"))
			return
		}
		span.RecordError(err)
		if c.release(gen) {
			c.reporter.Report(&StartError{Sound: s, Kind: classify(err), Err: err})
		}
		return
	}

	// A later Play may have taken the slot while Start was loading.
	c.mu.Lock()
	owned := c.generation == gen
	c.mu.Unlock()
	if !owned {
		v.Stop()
		span.SetAttributes(attribute.String("outcome", "preempted"))
	}
}

// Stop stops the active voice, if any, and marks its trigger stopped.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeVoice != nil {
		c.stopActiveLocked()
	}
}

// Active returns the trigger currently playing.
func (c *Controller) Active() (Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.activeVoice != nil
}

// Voice returns the cached voice for a sound id.
func (c *Controller) Voice(id string) (Voice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.voices[id]
	return v, ok
}

// Preload creates and loads a voice for every sound in the background.
// It never blocks and never reports errors; the returned channel is closed
// once every load has finished.
func (c *Controller) Preload(ctx context.Context, sounds []catalog.Sound) <-chan struct{} {
	voices := make(map[string]Voice, len(sounds))

	c.mu.Lock()
	for _, s := range sounds {
		v := c.backend.NewVoice(s)
		voices[s.ID] = v
		if active, ok := c.voices[s.ID]; ok && active == c.activeVoice {
			continue // never displace the playing voice from the cache
		}
		c.voices[s.ID] = v
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(c.preloadConcurrency)
		for id, v := range voices {
			g.Go(func() error {
				if err := v.Load(ctx); err != nil {
					log.Debug(log.CatAudio, "Preload failed", "sound", id, "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()
		log.Debug(log.CatAudio, "Preload finished", "sounds", len(voices))
	}()
	return done
}

// stopActiveLocked stops the active voice and clears the slot. c.mu must be held.
func (c *Controller) stopActiveLocked() {
	c.activeVoice.Stop()
	prev := c.active
	c.active = ""
	c.activeVoice = nil
	c.hooks.MarkStopped(prev)
}

// release clears the slot if it still belongs to generation gen.
func (c *Controller) release(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen || c.activeVoice == nil {
		return false
	}
	prev := c.active
	c.active = ""
	c.activeVoice = nil
	c.hooks.MarkStopped(prev)
	return true
}

// voiceObserver is the one-shot observer bound to a single play call.
type voiceObserver struct {
	c     *Controller
	gen   uint64
	sound catalog.Sound
	once  sync.Once
}

func (o *voiceObserver) Ended() {
	o.once.Do(func() {
		if o.c.release(o.gen) {
			log.Debug(log.CatAudio, "Sound ended", "sound", o.sound.ID, "generation", o.gen)
		}
	})
}

func (o *voiceObserver) Failed(err error) {
	o.once.Do(func() {
		if o.c.release(o.gen) {
			log.Warn(log.CatAudio, "Sound failed mid-playback", "sound", o.sound.ID, "error", err)
			o.c.reporter.Report(&RuntimeError{Sound: o.sound, Err: err})
		}
	})
}

type discardReporter struct{}

func (discardReporter) Report(error) {}
