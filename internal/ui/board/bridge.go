package board

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/creek-soundboard/internal/log"
	"github.com/zjrosen/creek-soundboard/internal/playback"
)

// Bridge turns controller hooks and error reports into tea messages.
//
// The controller calls hooks while holding its lock, so Bridge never blocks:
// messages are queued in call order and delivered by Run.
type Bridge struct {
	mu    sync.Mutex
	queue []tea.Msg
	wake  chan struct{}
}

var (
	_ playback.Hooks    = (*Bridge)(nil)
	_ playback.Reporter = (*Bridge)(nil)
)

// NewBridge creates an idle bridge. Messages queue until Run starts.
func NewBridge() *Bridge {
	return &Bridge{wake: make(chan struct{}, 1)}
}

// MarkPlaying implements playback.Hooks.
func (b *Bridge) MarkPlaying(h playback.Handle) { b.post(PlayingMsg{Handle: h}) }

// MarkStopped implements playback.Hooks.
func (b *Bridge) MarkStopped(h playback.Handle) { b.post(StoppedMsg{Handle: h}) }

// Report implements playback.Reporter.
func (b *Bridge) Report(err error) {
	log.ErrorErr(log.CatAudio, "Playback error", err)
	b.post(ToastMsg{Text: playback.UserMessage(err), Error: true})
}

func (b *Bridge) post(msg tea.Msg) {
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Run delivers queued messages to send, in order, until ctx is done.
// send is usually (*tea.Program).Send.
func (b *Bridge) Run(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.wake:
		}
		b.mu.Lock()
		batch := b.queue
		b.queue = nil
		b.mu.Unlock()
		for _, msg := range batch {
			send(msg)
		}
	}
}
