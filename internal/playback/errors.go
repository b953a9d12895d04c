package playback

import (
	"errors"
	"fmt"

	"github.com/zjrosen/creek-soundboard/internal/catalog"
)

// ErrPermissionDenied is wrapped by backends when the platform refuses to
// start audio (player not executable, audio device not accessible).
var ErrPermissionDenied = errors.New("audio playback not permitted")

// ErrStopped is returned by Voice.Start when the voice was stopped before
// playback began.
var ErrStopped = errors.New("voice stopped before start")

// Kind classifies start failures.
type Kind int

const (
	// KindGeneric covers decode, network and other failures.
	KindGeneric Kind = iota
	// KindPermissionDenied means the platform blocked playback.
	KindPermissionDenied
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	default:
		return "generic"
	}
}

// classify maps a start error to its Kind.
func classify(err error) Kind {
	if errors.Is(err, ErrPermissionDenied) {
		return KindPermissionDenied
	}
	return KindGeneric
}

// StartError indicates a voice could not start playing.
type StartError struct {
	Sound catalog.Sound
	Kind  Kind
	Err   error
}

// Error implements the error interface.
func (e *StartError) Error() string {
	return fmt.Sprintf("starting %q (%s): %v", e.Sound.ID, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *StartError) Unwrap() error { return e.Err }

// RuntimeError indicates a voice failed after it started.
type RuntimeError struct {
	Sound catalog.Sound
	Err   error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("playing %q: %v", e.Sound.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e *RuntimeError) Unwrap() error { return e.Err }

// PermissionMessage is shown when the platform blocks playback.
const PermissionMessage = "Please interact with the soundboard first to enable audio playback"

// UserMessage returns the toast text for a playback error.
func UserMessage(err error) string {
	var startErr *StartError
	if errors.As(err, &startErr) {
		if startErr.Kind == KindPermissionDenied {
			return PermissionMessage
		}
		return failedToPlay(startErr.Sound)
	}
	var runErr *RuntimeError
	if errors.As(err, &runErr) {
		return failedToPlay(runErr.Sound)
	}
	return err.Error()
}

func failedToPlay(s catalog.Sound) string {
	name := s.Name
	if name == "" {
		name = s.ID
	}
	return fmt.Sprintf("Failed to play %q", name)
}
