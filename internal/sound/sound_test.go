package sound

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/creek-soundboard/internal/catalog"
	"github.com/zjrosen/creek-soundboard/internal/playback"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses shell script players")
	}
}

// writeScript creates an executable shell script named name in dir.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return p
}

// mediaServer serves /audio/*.mp3 and counts requests per path.
// /audio/slow.mp3 takes 300ms.
type mediaServer struct {
	*httptest.Server
	mu     sync.Mutex
	counts map[string]int
}

func newMediaServer(t *testing.T) *mediaServer {
	t.Helper()
	m := &mediaServer{counts: map[string]int{}}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.counts[r.URL.Path]++
		m.mu.Unlock()
		switch r.URL.Path {
		case "/audio/missing.mp3":
			http.NotFound(w, r)
			return
		case "/audio/slow.mp3":
			time.Sleep(300 * time.Millisecond)
		}
		time.Sleep(10 * time.Millisecond)
		_, _ = w.Write([]byte("ID3" + r.URL.Path))
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *mediaServer) count(p string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[p]
}

func (m *mediaServer) spool(t *testing.T) *Spool {
	base, err := url.Parse(m.URL + "/")
	require.NoError(t, err)
	resolve := func(ref string) (string, error) {
		u, err := url.Parse(ref)
		if err != nil {
			return "", err
		}
		return base.ResolveReference(u).String(), nil
	}
	return NewSpool(m.Client(), resolve, t.TempDir())
}

type recorder struct {
	ended  chan struct{}
	failed chan error
}

func newRecorder() *recorder {
	return &recorder{ended: make(chan struct{}, 1), failed: make(chan error, 1)}
}

func (r *recorder) Ended()           { r.ended <- struct{}{} }
func (r *recorder) Failed(err error) { r.failed <- err }

func TestPlayer_Args(t *testing.T) {
	cases := []struct {
		name string
		want []string
	}{
		{"afplay", []string{"a.mp3"}},
		{"paplay", []string{"a.mp3"}},
		{"aplay", []string{"-q", "a.mp3"}},
		{"ffplay", []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "a.mp3"}},
		{"mpv", []string{"a.mp3"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Player{Path: "/usr/bin/" + tc.name, args: argsByName[tc.name]}
			require.Equal(t, tc.name, p.Name())
			require.Equal(t, tc.want, p.Args("a.mp3"))
		})
	}
}

func TestPlayer_PowershellQuotes(t *testing.T) {
	args := powershellArgs(`C:\it's.wav`)
	require.Equal(t, "-Command", args[2])
	require.Contains(t, args[3], `'C:\it''s.wav'`)
}

func TestDetectPlayer_Override(t *testing.T) {
	skipOnWindows(t)
	path := writeScript(t, t.TempDir(), "ffplay", "exit 0")

	p, err := DetectPlayer(path)
	require.NoError(t, err)
	require.Equal(t, path, p.Path)
	require.Equal(t, "ffplay", p.Name())
	require.Contains(t, p.Args("x.mp3"), "-autoexit")
}

func TestDetectPlayer_OverrideMissing(t *testing.T) {
	_, err := DetectPlayer(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestDetectPlayer_SearchesPath(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("linux candidate order")
	}
	dir := t.TempDir()
	writeScript(t, dir, "aplay", "exit 0")
	writeScript(t, dir, "ffplay", "exit 0")
	t.Setenv("PATH", dir)

	p, err := DetectPlayer("")
	require.NoError(t, err)
	require.Equal(t, "ffplay", p.Name(), "ffplay is preferred over aplay")
}

func TestDetectPlayer_NoneInstalled(t *testing.T) {
	skipOnWindows(t)
	t.Setenv("PATH", t.TempDir())

	_, err := DetectPlayer("")
	require.ErrorIs(t, err, ErrNoPlayer)
}

func TestSpool_DownloadsOnce(t *testing.T) {
	m := newMediaServer(t)
	s := m.spool(t)

	var wg sync.WaitGroup
	paths := make([]string, 8)
	for i := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := s.Path(context.Background(), "audio/a.mp3")
			assert.NoError(t, err)
			paths[i] = p
		}()
	}
	wg.Wait()

	for _, p := range paths {
		require.Equal(t, paths[0], p)
	}
	require.Equal(t, ".mp3", filepath.Ext(paths[0]))
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	require.Equal(t, "ID3/audio/a.mp3", string(data))

	_, err = s.Path(context.Background(), "audio/a.mp3")
	require.NoError(t, err)
	require.Equal(t, 1, m.count("/audio/a.mp3"))
}

func TestSpool_RefetchesRemovedFile(t *testing.T) {
	m := newMediaServer(t)
	s := m.spool(t)

	p, err := s.Path(context.Background(), "audio/a.mp3")
	require.NoError(t, err)
	require.NoError(t, os.Remove(p))

	p2, err := s.Path(context.Background(), "audio/a.mp3")
	require.NoError(t, err)
	require.Equal(t, p, p2)
	require.Equal(t, 2, m.count("/audio/a.mp3"))
}

func TestSpool_Errors(t *testing.T) {
	m := newMediaServer(t)
	s := m.spool(t)

	_, err := s.Path(context.Background(), "audio/missing.mp3")
	require.ErrorContains(t, err, "404")

	bad := NewSpool(m.Client(), func(string) (string, error) {
		return "", errors.New("bad ref")
	}, t.TempDir())
	_, err = bad.Path(context.Background(), "x")
	require.ErrorContains(t, err, "bad ref")
}

func TestSpoolName_IgnoresQuery(t *testing.T) {
	require.Equal(t, ".wav", filepath.Ext(spoolName("http://x/a.wav?v=2#t")))
	require.NotEqual(t, spoolName("http://x/a.wav"), spoolName("http://y/a.wav"))
}

func newTestVoice(t *testing.T, script string) (playback.Voice, *mediaServer) {
	t.Helper()
	skipOnWindows(t)
	m := newMediaServer(t)
	player := Player{Path: writeScript(t, t.TempDir(), "player", script)}
	b := NewBackend(player, m.spool(t))
	return b.NewVoice(catalog.Sound{ID: "a", Name: "A", File: "audio/a.mp3"}), m
}

func TestVoice_EndsWhenPlayerExits(t *testing.T) {
	v, _ := newTestVoice(t, `test -f "$1"`)
	rec := newRecorder()

	require.NoError(t, v.Start(context.Background(), rec))
	select {
	case <-rec.ended:
	case err := <-rec.failed:
		t.Fatalf("unexpected failure: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("player never ended")
	}
	require.False(t, v.Playing())
}

func TestVoice_FailsOnNonZeroExit(t *testing.T) {
	v, _ := newTestVoice(t, "exit 3")
	rec := newRecorder()

	require.NoError(t, v.Start(context.Background(), rec))
	select {
	case err := <-rec.failed:
		require.ErrorContains(t, err, "exit status 3")
	case <-rec.ended:
		t.Fatal("expected failure")
	case <-time.After(5 * time.Second):
		t.Fatal("player never exited")
	}
}

func TestVoice_StopSuppressesCallbacks(t *testing.T) {
	v, _ := newTestVoice(t, "sleep 10")
	rec := newRecorder()

	require.NoError(t, v.Start(context.Background(), rec))
	require.True(t, v.Playing())
	v.Stop()
	require.False(t, v.Playing())
	v.Stop()

	select {
	case <-rec.ended:
		t.Fatal("ended after stop")
	case <-rec.failed:
		t.Fatal("failed after stop")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestVoice_StopBeforeStartKeepsSilent(t *testing.T) {
	v, _ := newTestVoice(t, "sleep 10")

	v.Stop()
	err := v.Start(context.Background(), newRecorder())
	require.ErrorIs(t, err, playback.ErrStopped)
	require.False(t, v.Playing())
}

func TestVoice_LoadWarmsSpool(t *testing.T) {
	v, m := newTestVoice(t, "exit 0")

	require.NoError(t, v.Load(context.Background()))
	require.NoError(t, v.Start(context.Background(), newRecorder()))
	require.Equal(t, 1, m.count("/audio/a.mp3"))
}

func TestVoice_PermissionDenied(t *testing.T) {
	skipOnWindows(t)
	m := newMediaServer(t)
	player := filepath.Join(t.TempDir(), "player")
	require.NoError(t, os.WriteFile(player, []byte("#!/bin/sh\n"), 0o644))
	v := NewBackend(Player{Path: player}, m.spool(t)).NewVoice(catalog.Sound{ID: "a", File: "audio/a.mp3"})

	err := v.Start(context.Background(), newRecorder())
	require.ErrorIs(t, err, playback.ErrPermissionDenied)
	require.False(t, v.Playing())
}

func TestVoice_MediaErrorIsGeneric(t *testing.T) {
	skipOnWindows(t)
	m := newMediaServer(t)
	player := Player{Path: writeScript(t, t.TempDir(), "player", "exit 0")}
	v := NewBackend(player, m.spool(t)).NewVoice(catalog.Sound{ID: "x", File: "audio/missing.mp3"})

	err := v.Start(context.Background(), newRecorder())
	require.Error(t, err)
	require.NotErrorIs(t, err, playback.ErrPermissionDenied)
}

func TestBackend_DrivesController(t *testing.T) {
	skipOnWindows(t)

	m := newMediaServer(t)
	player := Player{Path: writeScript(t, t.TempDir(), "player", "exit 0")}
	hooks := &hookRecorder{stopped: make(chan playback.Handle, 1)}
	c := playback.New(NewBackend(player, m.spool(t)), hooks)

	h := playback.NewHandle()
	c.Play(context.Background(), catalog.Sound{ID: "a", Name: "A", File: "audio/a.mp3"}, h)
	select {
	case got := <-hooks.stopped:
		require.Equal(t, h, got)
	case <-time.After(5 * time.Second):
		t.Fatal("trigger never marked stopped")
	}
	_, playing := c.Active()
	require.False(t, playing)
	require.EqualValues(t, 1, hooks.playing.Load())
}

type hookRecorder struct {
	playing atomic.Int32
	stopped chan playback.Handle
}

func (h *hookRecorder) MarkPlaying(playback.Handle)   { h.playing.Add(1) }
func (h *hookRecorder) MarkStopped(hd playback.Handle) { h.stopped <- hd }

func TestBackend_InterruptWhileFirstVoiceLoads(t *testing.T) {
	skipOnWindows(t)

	m := newMediaServer(t)
	player := Player{Path: writeScript(t, t.TempDir(), "player", "sleep 3")}
	hooks := &hookRecorder{stopped: make(chan playback.Handle, 4)}
	c := playback.New(NewBackend(player, m.spool(t)), hooks)
	t.Cleanup(c.Stop)

	slow := catalog.Sound{ID: "slow", Name: "Slow", File: "audio/slow.mp3"}
	fast := catalog.Sound{ID: "fast", Name: "Fast", File: "audio/fast.mp3"}
	ha, hb := playback.NewHandle(), playback.NewHandle()

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		c.Play(context.Background(), slow, ha)
	}()
	require.Eventually(t, func() bool {
		active, ok := c.Active()
		return ok && active == ha
	}, time.Second, 5*time.Millisecond)

	c.Play(context.Background(), fast, hb)
	select {
	case <-firstDone:
	case <-time.After(5 * time.Second):
		t.Fatal("first play never returned")
	}

	active, ok := c.Active()
	require.True(t, ok)
	require.Equal(t, hb, active)

	slowVoice, ok := c.Voice("slow")
	require.True(t, ok)
	fastVoice, ok := c.Voice("fast")
	require.True(t, ok)
	assert.False(t, slowVoice.Playing(), "interrupted voice must stay silent")
	assert.True(t, fastVoice.Playing())

	c.Stop()
	assert.False(t, fastVoice.Playing())
}
