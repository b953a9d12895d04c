package sound

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrNoPlayer is returned when no supported audio command is installed.
var ErrNoPlayer = errors.New("no audio player found")

// Player is an audio command and the arguments that play one file.
type Player struct {
	Path string
	args func(file string) []string
}

// Name is the base name of the command.
func (p Player) Name() string {
	return strings.TrimSuffix(filepath.Base(p.Path), ".exe")
}

// Args returns the command arguments that play file once and exit.
func (p Player) Args(file string) []string {
	if p.args == nil {
		return []string{file}
	}
	return p.args(file)
}

func fileArg(file string) []string { return []string{file} }

func powershellArgs(file string) []string {
	script := fmt.Sprintf(`(New-Object Media.SoundPlayer '%s').PlaySync()`, strings.ReplaceAll(file, "'", "''"))
	return []string{"-NoProfile", "-NonInteractive", "-Command", script}
}

// argsByName covers every player DetectPlayer can return.
var argsByName = map[string]func(string) []string{
	"afplay": fileArg,
	"paplay": fileArg,
	"aplay":  func(f string) []string { return []string{"-q", f} },
	"ffplay": func(f string) []string {
		return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", f}
	},
	"powershell": powershellArgs,
}

// candidates lists players in preference order for goos.
func candidates(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"afplay", "ffplay"}
	case "windows":
		return []string{"powershell", "ffplay"}
	default:
		return []string{"paplay", "ffplay", "aplay"}
	}
}

// DetectPlayer returns override if set, otherwise the first candidate found
// on PATH for the running platform.
func DetectPlayer(override string) (Player, error) {
	if override != "" {
		path, err := exec.LookPath(override)
		if err != nil {
			return Player{}, fmt.Errorf("audio player %q: %w", override, err)
		}
		p := Player{Path: path}
		p.args = argsByName[p.Name()]
		return p, nil
	}
	for _, name := range candidates(runtime.GOOS) {
		if path, err := exec.LookPath(name); err == nil {
			return Player{Path: path, args: argsByName[name]}, nil
		}
	}
	return Player{}, fmt.Errorf("%w (tried %s)", ErrNoPlayer, strings.Join(candidates(runtime.GOOS), ", "))
}
