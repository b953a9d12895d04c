package sound

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"sync"

	"github.com/zjrosen/creek-soundboard/internal/catalog"
	"github.com/zjrosen/creek-soundboard/internal/log"
	"github.com/zjrosen/creek-soundboard/internal/playback"
)

// Backend creates voices that run one player process per playback.
type Backend struct {
	player Player
	spool  *Spool
}

var _ playback.Backend = (*Backend)(nil)

// NewBackend plays through player, reading media from spool.
func NewBackend(player Player, spool *Spool) *Backend {
	return &Backend{player: player, spool: spool}
}

// NewVoice implements playback.Backend.
func (b *Backend) NewVoice(s catalog.Sound) playback.Voice {
	return &voice{backend: b, sound: s}
}

type voice struct {
	backend *Backend
	sound   catalog.Sound

	mu      sync.Mutex
	cmd     *exec.Cmd // running player, nil when idle
	stopped bool
}

func (v *voice) Load(ctx context.Context) error {
	_, err := v.backend.spool.Path(ctx, v.sound.File)
	return err
}

func (v *voice) Start(ctx context.Context, obs playback.Observer) error {
	file, err := v.backend.spool.Path(ctx, v.sound.File)
	if err != nil {
		return startErr(err)
	}

	// Playback outlives ctx; Stop ends it.
	cmd := exec.Command(v.backend.player.Path, v.backend.player.Args(file)...) //nolint:gosec // G204: player is chosen from a fixed list or by the user
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return playback.ErrStopped
	}
	if err := cmd.Start(); err != nil {
		v.mu.Unlock()
		return startErr(err)
	}
	v.cmd = cmd
	v.mu.Unlock()

	log.Debug(log.CatAudio, "Player started", "sound", v.sound.ID, "player", v.backend.player.Name(), "pid", cmd.Process.Pid)
	go v.wait(cmd, obs)
	return nil
}

func (v *voice) wait(cmd *exec.Cmd, obs playback.Observer) {
	err := cmd.Wait()

	v.mu.Lock()
	current := v.cmd == cmd
	if current {
		v.cmd = nil
	}
	v.mu.Unlock()
	if !current {
		return // stopped
	}
	if err != nil {
		obs.Failed(fmt.Errorf("%s: %w", v.backend.player.Name(), err))
		return
	}
	obs.Ended()
}

func (v *voice) Stop() {
	v.mu.Lock()
	cmd := v.cmd
	v.cmd = nil
	v.stopped = true
	v.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func (v *voice) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cmd != nil
}

func startErr(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %v", playback.ErrPermissionDenied, err)
	}
	return err
}
