package board

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/rivo/uniseg"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/creek-soundboard/internal/catalog"
	"github.com/zjrosen/creek-soundboard/internal/log"
	"github.com/zjrosen/creek-soundboard/internal/playback"
)

// DefaultGlyph stands in for a sound without a usable icon.
const DefaultGlyph = "♫"

// iconGlyph is used for an icon that loaded but matched no keyword.
const iconGlyph = "◆"

// keywordGlyphs maps words in an icon file name to a terminal glyph.
var keywordGlyphs = []struct{ keyword, glyph string }{
	{"rain", "☂"},
	{"thunder", "ϟ"},
	{"storm", "ϟ"},
	{"wind", "∿"},
	{"creek", "≈"},
	{"river", "≈"},
	{"water", "≈"},
	{"wave", "≈"},
	{"bird", "♪"},
	{"fire", "✶"},
	{"bell", "♪"},
	{"night", "☾"},
	{"moon", "☾"},
	{"sun", "☼"},
	{"leaf", "❦"},
	{"forest", "♣"},
}

// maxIconBytes bounds how much of an icon is read to validate it.
const maxIconBytes = 256 << 10

// Button is one rendered trigger for a sound.
type Button struct {
	Sound  catalog.Sound
	Handle playback.Handle
	Glyph  string
}

// ButtonError reports a sound that could not be turned into a button.
type ButtonError struct {
	SoundID string
	Err     error
}

// Error implements the error interface.
func (e *ButtonError) Error() string {
	return fmt.Sprintf("button for %q: %v", e.SoundID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ButtonError) Unwrap() error { return e.Err }

// BuildButtons creates a button per renderable sound, in catalog order.
// Icons are fetched through client; an icon that fails to load falls back to
// DefaultGlyph. Sounds that cannot be rendered are skipped and logged.
func BuildButtons(ctx context.Context, client *http.Client, resolve func(string) (string, error), sounds []catalog.Sound) []Button {
	slots := make([]*Button, len(sounds))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, s := range sounds {
		if strings.TrimSpace(s.Name) == "" {
			err := &ButtonError{SoundID: s.ID, Err: fmt.Errorf("name is blank")}
			log.ErrorErr(log.CatUI, "Skipping sound", err)
			continue
		}
		g.Go(func() error {
			slots[i] = &Button{
				Sound:  s,
				Handle: playback.NewHandle(),
				Glyph:  glyphFor(ctx, client, resolve, s),
			}
			return nil
		})
	}
	_ = g.Wait()

	buttons := make([]Button, 0, len(sounds))
	for _, b := range slots {
		if b != nil {
			buttons = append(buttons, *b)
		}
	}
	return buttons
}

func glyphFor(ctx context.Context, client *http.Client, resolve func(string) (string, error), s catalog.Sound) string {
	if s.Icon == "" {
		return DefaultGlyph
	}
	if g, ok := inlineGlyph(s.Icon); ok {
		return g
	}
	if err := fetchIcon(ctx, client, resolve, s); err != nil {
		log.Debug(log.CatUI, "Icon unavailable, using default", "sound", s.ID, "icon", s.Icon, "error", err)
		return DefaultGlyph
	}
	name := strings.ToLower(path.Base(s.Icon))
	for _, kg := range keywordGlyphs {
		if strings.Contains(name, kg.keyword) {
			return kg.glyph
		}
	}
	return iconGlyph
}

// inlineGlyph accepts an icon that is itself a single character, such as an
// emoji, rather than a file reference.
func inlineGlyph(icon string) (string, bool) {
	if icon[0] < utf8.RuneSelf || uniseg.GraphemeClusterCount(icon) != 1 {
		return "", false
	}
	if w := uniseg.StringWidth(icon); w < 1 || w > 2 {
		return "", false
	}
	return icon, true
}

func fetchIcon(ctx context.Context, client *http.Client, resolve func(string) (string, error), s catalog.Sound) error {
	target, err := resolve(s.Icon)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIconBytes))
	if err != nil {
		return err
	}
	if s.HasVectorIcon() && !strings.Contains(string(body), "<svg") {
		return fmt.Errorf("not an svg document")
	}
	return nil
}
