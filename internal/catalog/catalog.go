// Package catalog loads and validates the sound catalog document.
//
// The catalog is a JSON (or JSONC) document of the form
//
//	{"sounds": [{"id": "a", "name": "Alpha", "file": "/audio/a.mp3", "icon": "/icons/a.svg"}]}
//
// It is read once at startup and treated as read-only afterwards.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/zjrosen/creek-soundboard/internal/log"
)

// VectorIconExt is the icon extension that gets pre-cached at install.
const VectorIconExt = ".svg"

var (
	// ErrDuplicateID is returned when two sounds share an id.
	ErrDuplicateID = errors.New("duplicate sound id")
	// ErrInvalidSound is returned for entries missing an id or file.
	ErrInvalidSound = errors.New("invalid sound")
)

// Sound describes one playable sound.
type Sound struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	File string `json:"file"`
	Icon string `json:"icon,omitempty"` // empty means the fallback glyph
}

// HasVectorIcon reports whether the icon is an SVG reference.
func (s Sound) HasVectorIcon() bool {
	return s.Icon != "" && strings.HasSuffix(s.Icon, VectorIconExt)
}

// Catalog is the ordered list of sounds.
type Catalog struct {
	Sounds []Sound `json:"sounds"`
}

// Len returns the number of sounds.
func (c Catalog) Len() int { return len(c.Sounds) }

// Sound looks up a sound by id.
func (c Catalog) Sound(id string) (Sound, bool) {
	for _, s := range c.Sounds {
		if s.ID == id {
			return s, true
		}
	}
	return Sound{}, false
}

// LoadError indicates the catalog document could not be fetched or parsed.
type LoadError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("loading catalog %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error { return e.Err }

// Parse decodes and validates a catalog document.
// Comments and trailing commas are accepted.
func Parse(data []byte) (Catalog, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Catalog{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var c Catalog
	if err := json.Unmarshal(standardized, &c); err != nil {
		return Catalog{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := Validate(c); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Validate checks that every sound has an id and a file, and that ids are unique.
func Validate(c Catalog) error {
	seen := make(map[string]int, len(c.Sounds))
	for i, s := range c.Sounds {
		if s.ID == "" {
			return fmt.Errorf("sound %d: %w: id is required", i, ErrInvalidSound)
		}
		if s.File == "" {
			return fmt.Errorf("sound %d (%s): %w: file is required", i, s.ID, ErrInvalidSound)
		}
		if prev, ok := seen[s.ID]; ok {
			return fmt.Errorf("sound %d (%s): %w (first seen at %d)", i, s.ID, ErrDuplicateID, prev)
		}
		seen[s.ID] = i
	}
	return nil
}

// Load fetches the catalog document at url with client and parses it.
// Every failure is returned as a *LoadError.
func Load(ctx context.Context, client *http.Client, url string) (Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Catalog{}, &LoadError{URL: url, Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Catalog{}, &LoadError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Catalog{}, &LoadError{URL: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Catalog{}, &LoadError{URL: url, Err: fmt.Errorf("reading body: %w", err)}
	}

	c, err := Parse(data)
	if err != nil {
		return Catalog{}, &LoadError{URL: url, Err: err}
	}

	log.Debug(log.CatCatalog, "Catalog loaded", "url", url, "sounds", c.Len())
	return c, nil
}

// PrecacheURLs returns every audio file plus every vector icon referenced by
// the catalog, deduplicated in first-seen order. Raster icons are not included.
func PrecacheURLs(c Catalog) []string {
	urls := make([]string, 0, len(c.Sounds)*2)
	seen := make(map[string]struct{}, len(c.Sounds)*2)
	add := func(u string) {
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	for _, s := range c.Sounds {
		add(s.File)
	}
	for _, s := range c.Sounds {
		if s.HasVectorIcon() {
			add(s.Icon)
		}
	}
	return urls
}
