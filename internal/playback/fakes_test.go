package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/zjrosen/creek-soundboard/internal/catalog"
)

// eventLog records hook calls, voice creation and voice stops in order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

// recordingHooks tracks which handles are currently marked playing.
type recordingHooks struct {
	log     *eventLog
	mu      sync.Mutex
	playing map[Handle]bool
	stops   map[Handle]int
	maxLive int
}

func newRecordingHooks(l *eventLog) *recordingHooks {
	return &recordingHooks{log: l, playing: map[Handle]bool{}, stops: map[Handle]int{}}
}

func (h *recordingHooks) MarkPlaying(handle Handle) {
	h.mu.Lock()
	h.playing[handle] = true
	if n := h.liveLocked(); n > h.maxLive {
		h.maxLive = n
	}
	h.mu.Unlock()
	h.log.add("playing:%s", handle)
}

func (h *recordingHooks) MarkStopped(handle Handle) {
	h.mu.Lock()
	delete(h.playing, handle)
	h.stops[handle]++
	h.mu.Unlock()
	h.log.add("stopped:%s", handle)
}

func (h *recordingHooks) live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.liveLocked()
}

func (h *recordingHooks) liveLocked() int {
	return len(h.playing)
}

func (h *recordingHooks) stopCount(handle Handle) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stops[handle]
}

type recordingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingReporter) Report(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingReporter) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// fakeBackend hands out fakeVoices and remembers them per sound id.
type fakeBackend struct {
	log      *eventLog
	mu       sync.Mutex
	created  map[string][]*fakeVoice
	startErr map[string]error
	loadErr  map[string]error
	// startGate holds Start until the channel is closed.
	startGate map[string]chan struct{}
	// forgetStop makes Start ignore an earlier Stop.
	forgetStop map[string]bool
}

func newFakeBackend(l *eventLog) *fakeBackend {
	return &fakeBackend{
		log:        l,
		created:    map[string][]*fakeVoice{},
		startErr:   map[string]error{},
		loadErr:    map[string]error{},
		startGate:  map[string]chan struct{}{},
		forgetStop: map[string]bool{},
	}
}

func (b *fakeBackend) NewVoice(s catalog.Sound) Voice {
	b.mu.Lock()
	v := &fakeVoice{
		sound:      s,
		log:        b.log,
		startErr:   b.startErr[s.ID],
		loadErr:    b.loadErr[s.ID],
		gate:       b.startGate[s.ID],
		forgetStop: b.forgetStop[s.ID],
	}
	b.created[s.ID] = append(b.created[s.ID], v)
	b.mu.Unlock()
	b.log.add("new:%s", s.ID)
	return v
}

func (b *fakeBackend) voices(id string) []*fakeVoice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*fakeVoice(nil), b.created[id]...)
}

func (b *fakeBackend) last(id string) *fakeVoice {
	vs := b.voices(id)
	if len(vs) == 0 {
		return nil
	}
	return vs[len(vs)-1]
}

type fakeVoice struct {
	sound    catalog.Sound
	log      *eventLog
	startErr   error
	loadErr    error
	gate       chan struct{}
	forgetStop bool

	mu      sync.Mutex
	obs     Observer
	started bool
	stopped bool
	done    bool
	loaded  bool
}

func (v *fakeVoice) Load(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loaded = true
	return v.loadErr
}

func (v *fakeVoice) Start(_ context.Context, obs Observer) error {
	if v.gate != nil {
		<-v.gate
	}
	if v.startErr != nil {
		return v.startErr
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stopped {
		if !v.forgetStop {
			return ErrStopped
		}
		v.stopped = false
	}
	v.obs = obs
	v.started = true
	return nil
}

func (v *fakeVoice) Stop() {
	v.mu.Lock()
	v.stopped = true
	v.mu.Unlock()
	v.log.add("stop:%s", v.sound.ID)
}

func (v *fakeVoice) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.started && !v.stopped && !v.done
}

// end simulates the media reaching its end. Stopped voices stay silent.
func (v *fakeVoice) end() {
	v.mu.Lock()
	obs := v.obs
	silent := v.stopped || v.done || obs == nil
	v.done = true
	v.mu.Unlock()
	if !silent {
		obs.Ended()
	}
}

// fail simulates a mid-stream error.
func (v *fakeVoice) fail(err error) {
	v.mu.Lock()
	obs := v.obs
	silent := v.stopped || v.done || obs == nil
	v.done = true
	v.mu.Unlock()
	if !silent {
		obs.Failed(err)
	}
}

// staleEnd fires the observer even though the voice was stopped, the way a
// misbehaving platform might deliver a late event.
func (v *fakeVoice) staleEnd() {
	v.mu.Lock()
	obs := v.obs
	v.mu.Unlock()
	if obs != nil {
		obs.Ended()
	}
}
