package playback

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/creek-soundboard/internal/catalog"
)

var (
	soundA = catalog.Sound{ID: "a", Name: "Alpha", File: "a.mp3"}
	soundB = catalog.Sound{ID: "b", Name: "Bravo", File: "b.mp3"}
)

type harness struct {
	log      *eventLog
	backend  *fakeBackend
	hooks    *recordingHooks
	reporter *recordingReporter
	ctrl     *Controller
}

func newHarness() *harness {
	l := &eventLog{}
	h := &harness{
		log:      l,
		backend:  newFakeBackend(l),
		hooks:    newRecordingHooks(l),
		reporter: &recordingReporter{},
	}
	h.ctrl = New(h.backend, h.hooks, WithReporter(h.reporter))
	return h
}

func TestNewHandle_Unique(t *testing.T) {
	a, b := NewHandle(), NewHandle()
	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}

func TestPlay_StartsVoiceAndMarksPlaying(t *testing.T) {
	h := newHarness()

	h.ctrl.Play(context.Background(), soundA, "ha")

	require.Equal(t, []string{"new:a", "playing:ha"}, h.log.all())
	active, ok := h.ctrl.Active()
	require.True(t, ok)
	require.Equal(t, Handle("ha"), active)
	require.True(t, h.backend.last("a").Playing())
}

func TestPlay_SameHandleIsNoop(t *testing.T) {
	h := newHarness()

	h.ctrl.Play(context.Background(), soundA, "ha")
	h.ctrl.Play(context.Background(), soundA, "ha")

	require.Equal(t, []string{"new:a", "playing:ha"}, h.log.all())
	require.Len(t, h.backend.voices("a"), 1)
}

func TestPlay_InterruptStopsPreviousFirst(t *testing.T) {
	h := newHarness()

	h.ctrl.Play(context.Background(), soundA, "ha")
	h.ctrl.Play(context.Background(), soundB, "hb")

	require.Equal(t, []string{
		"new:a", "playing:ha",
		"stop:a", "stopped:ha",
		"new:b", "playing:hb",
	}, h.log.all())

	assert.False(t, h.backend.last("a").Playing(), "a must be stopped")
	assert.True(t, h.backend.last("b").Playing(), "b must be playing")
	assert.LessOrEqual(t, h.hooks.maxLive, 1)

	active, _ := h.ctrl.Active()
	assert.Equal(t, Handle("hb"), active)
}

// playWhileStarting starts soundA on "ha" with a held Start, interrupts it
// with soundB on "hb", then lets the first Start finish.
func playWhileStarting(t *testing.T, h *harness) {
	t.Helper()
	gate := make(chan struct{})
	h.backend.startGate["a"] = gate

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		h.ctrl.Play(context.Background(), soundA, "ha")
	}()
	require.Eventually(t, func() bool {
		active, ok := h.ctrl.Active()
		return ok && active == "ha"
	}, time.Second, time.Millisecond)

	h.ctrl.Play(context.Background(), soundB, "hb")
	close(gate)
	select {
	case <-firstDone:
	case <-time.After(5 * time.Second):
		t.Fatal("first Play never returned")
	}
}

func audibleVoices(h *harness, sounds ...catalog.Sound) int {
	n := 0
	for _, s := range sounds {
		for _, v := range h.backend.voices(s.ID) {
			if v.Playing() {
				n++
			}
		}
	}
	return n
}

func TestPlay_InterruptWhileStartingKeepsOldVoiceSilent(t *testing.T) {
	h := newHarness()

	playWhileStarting(t, h)

	assert.False(t, h.backend.last("a").Playing(), "a must stay silent")
	assert.True(t, h.backend.last("b").Playing())
	assert.Equal(t, 1, audibleVoices(h, soundA, soundB))
	assert.Empty(t, h.reporter.all(), "a pre-empted start is not an error")
	assert.Equal(t, 1, h.hooks.stopCount("ha"))

	active, ok := h.ctrl.Active()
	require.True(t, ok)
	assert.Equal(t, Handle("hb"), active)
}

func TestPlay_InterruptWhileStartingStopsVoiceThatIgnoredStop(t *testing.T) {
	h := newHarness()
	h.backend.forgetStop["a"] = true

	playWhileStarting(t, h)

	assert.False(t, h.backend.last("a").Playing(), "controller must stop the late voice")
	assert.True(t, h.backend.last("b").Playing())
	assert.Equal(t, 1, audibleVoices(h, soundA, soundB))
	assert.Equal(t, []string{"stop:a", "stop:a"}, filterEvents(h.log.all(), "stop:a"))

	active, _ := h.ctrl.Active()
	assert.Equal(t, Handle("hb"), active)

	h.backend.last("a").staleEnd()
	active, ok := h.ctrl.Active()
	require.True(t, ok, "a late callback from a must not clear b")
	assert.Equal(t, Handle("hb"), active)
}

func filterEvents(events []string, want string) []string {
	var out []string
	for _, e := range events {
		if e == want {
			out = append(out, e)
		}
	}
	return out
}

func TestEnded_ClearsSlotOnce(t *testing.T) {
	h := newHarness()
	h.ctrl.Play(context.Background(), soundA, "ha")

	v := h.backend.last("a")
	v.end()
	v.staleEnd()

	_, ok := h.ctrl.Active()
	require.False(t, ok)
	require.Equal(t, 1, h.hooks.stopCount("ha"))
	require.Empty(t, h.reporter.all())
}

func TestEnded_AllowsReplay(t *testing.T) {
	h := newHarness()
	h.ctrl.Play(context.Background(), soundA, "ha")
	h.backend.last("a").end()

	h.ctrl.Play(context.Background(), soundA, "ha")

	require.Len(t, h.backend.voices("a"), 2)
	active, ok := h.ctrl.Active()
	require.True(t, ok)
	require.Equal(t, Handle("ha"), active)
}

func TestPlay_ReplacesCachedVoice(t *testing.T) {
	h := newHarness()

	h.ctrl.Play(context.Background(), soundA, "ha")
	first := h.backend.last("a")
	first.end()
	h.ctrl.Play(context.Background(), soundA, "ha")
	second := h.backend.last("a")

	require.NotSame(t, first, second)
	cached, ok := h.ctrl.Voice("a")
	require.True(t, ok)
	require.Same(t, second, cached.(*fakeVoice))
}

func TestStaleObserver_IsIgnored(t *testing.T) {
	h := newHarness()

	h.ctrl.Play(context.Background(), soundA, "ha")
	stale := h.backend.last("a")
	h.ctrl.Play(context.Background(), soundA, "hb")

	// A late event from the pre-empted voice must not touch hb.
	stale.staleEnd()

	active, ok := h.ctrl.Active()
	require.True(t, ok)
	require.Equal(t, Handle("hb"), active)
	require.Equal(t, 0, h.hooks.stopCount("hb"))
}

func TestFailed_ReportsRuntimeError(t *testing.T) {
	h := newHarness()
	h.ctrl.Play(context.Background(), soundA, "ha")

	h.backend.last("a").fail(errors.New("decode error"))

	_, ok := h.ctrl.Active()
	require.False(t, ok)
	require.Equal(t, 1, h.hooks.stopCount("ha"))

	errs := h.reporter.all()
	require.Len(t, errs, 1)
	var runErr *RuntimeError
	require.ErrorAs(t, errs[0], &runErr)
	require.Equal(t, `Failed to play "Alpha"`, UserMessage(errs[0]))
}

func TestStartError_Classification(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    Kind
		message string
	}{
		{"permission", fmt.Errorf("exec afplay: %w", ErrPermissionDenied), KindPermissionDenied, PermissionMessage},
		{"generic", errors.New("no such file"), KindGeneric, `Failed to play "Alpha"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.backend.startErr["a"] = tt.err

			h.ctrl.Play(context.Background(), soundA, "ha")

			require.Equal(t, []string{"new:a", "playing:ha", "stopped:ha"}, h.log.all())
			_, ok := h.ctrl.Active()
			require.False(t, ok)

			errs := h.reporter.all()
			require.Len(t, errs, 1)
			var startErr *StartError
			require.ErrorAs(t, errs[0], &startErr)
			require.Equal(t, tt.kind, startErr.Kind)
			require.Equal(t, tt.message, UserMessage(errs[0]))
		})
	}
}

func TestStop_ClearsActive(t *testing.T) {
	h := newHarness()
	h.ctrl.Play(context.Background(), soundA, "ha")

	h.ctrl.Stop()
	h.ctrl.Stop()

	_, ok := h.ctrl.Active()
	require.False(t, ok)
	require.Equal(t, 1, h.hooks.stopCount("ha"))
	require.False(t, h.backend.last("a").Playing())
}

func TestPreload_RegistersAndLoads(t *testing.T) {
	h := newHarness()
	h.backend.loadErr["b"] = errors.New("offline")

	done := h.ctrl.Preload(context.Background(), []catalog.Sound{soundA, soundB})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("preload did not finish")
	}

	for _, id := range []string{"a", "b"} {
		v, ok := h.ctrl.Voice(id)
		require.True(t, ok, id)
		require.True(t, v.(*fakeVoice).loaded, id)
	}
	require.Empty(t, h.reporter.all(), "preload errors are silent")
}

func TestPreload_KeepsPlayingVoiceCached(t *testing.T) {
	h := newHarness()
	h.ctrl.Play(context.Background(), soundA, "ha")
	playing := h.backend.last("a")

	<-h.ctrl.Preload(context.Background(), []catalog.Sound{soundA})

	cached, ok := h.ctrl.Voice("a")
	require.True(t, ok)
	require.Same(t, playing, cached.(*fakeVoice))
	require.True(t, playing.Playing())
}

func TestUserMessage_FallsBackToID(t *testing.T) {
	err := &RuntimeError{Sound: catalog.Sound{ID: "x"}, Err: errors.New("boom")}
	require.Equal(t, `Failed to play "x"`, UserMessage(err))
	require.Equal(t, "plain", UserMessage(errors.New("plain")))
}

// TestProperty_AtMostOneTriggerPlaying drives random play/end/fail/stop
// sequences and checks the single-voice invariants after every step.
func TestProperty_AtMostOneTriggerPlaying(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := newHarness()
		sounds := []catalog.Sound{soundA, soundB, {ID: "c", Name: "Charlie", File: "c.mp3"}}
		handles := []Handle{"h0", "h1", "h2"}
		if rapid.Bool().Draw(t, "cFailsToStart") {
			h.backend.startErr["c"] = ErrPermissionDenied
		}

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 3).Draw(t, fmt.Sprintf("op-%d", i)) {
			case 0:
				idx := rapid.IntRange(0, len(handles)-1).Draw(t, fmt.Sprintf("idx-%d", i))
				h.ctrl.Play(context.Background(), sounds[idx], handles[idx])
			case 1:
				for _, s := range sounds {
					if v := h.backend.last(s.ID); v != nil {
						v.end()
					}
				}
			case 2:
				for _, s := range sounds {
					if v := h.backend.last(s.ID); v != nil {
						v.fail(errors.New("stream error"))
					}
				}
			case 3:
				h.ctrl.Stop()
			}

			if live := h.hooks.live(); live > 1 {
				t.Fatalf("step %d: %d triggers marked playing", i, live)
			}

			audible := 0
			for _, s := range sounds {
				for _, v := range h.backend.voices(s.ID) {
					if v.Playing() {
						audible++
					}
				}
			}
			if audible > 1 {
				t.Fatalf("step %d: %d voices audible", i, audible)
			}

			_, active := h.ctrl.Active()
			if active != (h.hooks.live() == 1) || active != (audible == 1) {
				t.Fatalf("step %d: slot active=%v, marked=%d, audible=%d", i, active, h.hooks.live(), audible)
			}
		}
	})
}

// TestProperty_RepeatedPlayIsIdempotent checks that a repeated activation of
// the active trigger produces no side effects.
func TestProperty_RepeatedPlayIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := newHarness()
		repeats := rapid.IntRange(2, 10).Draw(t, "repeats")

		h.ctrl.Play(context.Background(), soundA, "ha")
		h.log.reset()
		for i := 1; i < repeats; i++ {
			h.ctrl.Play(context.Background(), soundA, "ha")
		}

		if events := h.log.all(); len(events) != 0 {
			t.Fatalf("repeated play produced side effects: %v", events)
		}
	})
}

func TestUserMessage_PermissionText(t *testing.T) {
	err := &StartError{Sound: soundA, Kind: KindPermissionDenied, Err: ErrPermissionDenied}
	require.Equal(t, "Please interact with the soundboard first to enable audio playback", UserMessage(err))
}
