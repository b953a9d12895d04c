package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"

	"github.com/zjrosen/creek-soundboard/internal/catalog"
	"github.com/zjrosen/creek-soundboard/internal/log"
	"github.com/zjrosen/creek-soundboard/internal/playback"
)

var playCmd = &cobra.Command{
	Use:   "play <id>",
	Short: "Play one sound and wait for it to finish",
	Long: `Load the catalog, play the sound with the given id and wait until it
ends. Interrupt stops playback. Exits non-zero if the sound cannot be played.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	a.start(ctx)

	c, err := catalog.Load(ctx, a.client, a.catalogURL)
	if err != nil {
		return err
	}
	s, ok := c.Sound(args[0])
	if !ok {
		return fmt.Errorf("no sound with id %q", args[0])
	}

	backend, err := a.newBackend()
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	rep := &lastError{}
	ctrl := playback.New(waitBackend{Backend: backend, done: done}, logHooks{}, playback.WithReporter(rep))

	fmt.Fprintf(cmd.OutOrStdout(), "Playing %s\n", s.Name)
	ctrl.Play(ctx, s, playback.NewHandle())
	if err := rep.Err(); err != nil {
		return fmt.Errorf("%s: %w", playback.UserMessage(err), err)
	}

	select {
	case err := <-done:
		if err != nil {
			rerr := &playback.RuntimeError{Sound: s, Err: err}
			return fmt.Errorf("%s: %w", playback.UserMessage(rerr), rerr)
		}
		return nil
	case <-ctx.Done():
		ctrl.Stop()
		return nil
	}
}

// waitBackend reports the end of every voice it creates on done.
type waitBackend struct {
	playback.Backend
	done chan<- error
}

func (b waitBackend) NewVoice(s catalog.Sound) playback.Voice {
	return waitVoice{Voice: b.Backend.NewVoice(s), done: b.done}
}

type waitVoice struct {
	playback.Voice
	done chan<- error
}

func (v waitVoice) Start(ctx context.Context, obs playback.Observer) error {
	return v.Voice.Start(ctx, notifyObserver{Observer: obs, done: v.done})
}

// notifyObserver forwards to the controller's observer, then signals done.
type notifyObserver struct {
	playback.Observer
	done chan<- error
}

func (o notifyObserver) Ended() {
	o.Observer.Ended()
	o.done <- nil
}

func (o notifyObserver) Failed(err error) {
	o.Observer.Failed(err)
	o.done <- err
}

// lastError keeps the most recent reported playback error.
type lastError struct {
	mu  sync.Mutex
	err error
}

func (r *lastError) Report(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *lastError) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

type logHooks struct{}

func (logHooks) MarkPlaying(h playback.Handle) { log.Debug(log.CatAudio, "Playing", "handle", h) }
func (logHooks) MarkStopped(h playback.Handle) { log.Debug(log.CatAudio, "Stopped", "handle", h) }
