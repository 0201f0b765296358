// Package voices discovers reference voices from a directory tree.
//
// Each immediate subdirectory of the root is one voice, identified by its name.
// A voice needs a reference transcript (ref_text.txt, else the first *.txt) and a
// reference clip (first match by extension priority). An optional meta.json or
// meta.toml may provide a display name. Directories missing either file are skipped.
package voices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/espeech/espeech-api/internal/core"
	"github.com/espeech/espeech-api/internal/data"
	"github.com/espeech/espeech-api/internal/domain/model"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/sync/singleflight"
)

// AudioExtensions lists accepted reference clip extensions in priority order.
var AudioExtensions = []string{".wav", ".flac", ".mp3", ".ogg", ".m4a"}

const preferredRefText = "ref_text.txt"

// meta is the optional per-voice metadata file.
type meta struct {
	Name string `json:"name" toml:"name"`
}

// CatalogOptions configures NewCatalog.
type CatalogOptions struct {
	Dir    string
	Logger *slog.Logger
}

// Catalog is a filesystem-backed core.VoiceCatalog. The first access scans the
// root; later accesses use the cached result until Refresh is called.
type Catalog struct {
	dir    string
	logger *slog.Logger

	group singleflight.Group

	mu     sync.RWMutex
	voices map[string]*model.Voice
	loaded bool
}

// NewCatalog creates a catalog rooted at opts.Dir.
func NewCatalog(opts CatalogOptions) *Catalog {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		dir:    opts.Dir,
		logger: logger.With("component", "voice_catalog"),
		voices: map[string]*model.Voice{},
	}
}

// List returns all voices sorted by id.
func (c *Catalog) List(ctx context.Context) ([]*model.Voice, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*model.Voice, 0, len(c.voices))
	for _, v := range c.voices {
		cp := *v
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *model.Voice) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// Get returns the voice with the given id or data.ErrVoiceNotFound.
func (c *Catalog) Get(ctx context.Context, id string) (*model.Voice, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.voices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", data.ErrVoiceNotFound, id)
	}
	cp := *v
	return &cp, nil
}

// Refresh rescans the root. Concurrent refreshes share one scan.
func (c *Catalog) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("scan", func() (any, error) {
		found, scanErr := Discover(c.dir, c.logger)
		if scanErr != nil {
			return nil, scanErr
		}

		c.mu.Lock()
		c.voices = found
		c.loaded = true
		c.mu.Unlock()

		c.logger.InfoContext(ctx, "voice catalog loaded", "dir", c.dir, "voices", len(found))
		return nil, nil
	})
	return err
}

func (c *Catalog) ensureLoaded(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}
	return c.Refresh(ctx)
}

// Discover scans dir and returns the voices found, keyed by id.
// A missing root yields an empty catalog.
func Discover(dir string, logger *slog.Logger) (map[string]*model.Voice, error) {
	if logger == nil {
		logger = slog.Default()
	}
	voices := map[string]*model.Voice{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return voices, nil
		}
		return nil, fmt.Errorf("read voices dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		folder := filepath.Join(dir, entry.Name())

		textPath, audioPath := findRefFiles(folder)
		if textPath == "" || audioPath == "" {
			logger.Debug("skipping incomplete voice directory", "dir", folder)
			continue
		}

		id := entry.Name()
		voices[id] = &model.Voice{
			ID:           id,
			Name:         displayName(folder, id, logger),
			RefTextFile:  filepath.Base(textPath),
			RefAudioFile: filepath.Base(audioPath),
			Dir:          folder,
			RefTextPath:  textPath,
			RefAudioPath: audioPath,
		}
	}
	return voices, nil
}

func findRefFiles(folder string) (textPath, audioPath string) {
	if fileExists(filepath.Join(folder, preferredRefText)) {
		textPath = filepath.Join(folder, preferredRefText)
	} else if matches := sortedGlob(folder, "*.txt"); len(matches) > 0 {
		textPath = matches[0]
	}

	for _, ext := range AudioExtensions {
		if matches := sortedGlob(folder, "*"+ext); len(matches) > 0 {
			audioPath = matches[0]
			break
		}
	}
	return textPath, audioPath
}

func displayName(folder, fallback string, logger *slog.Logger) string {
	var m meta

	if raw, err := os.ReadFile(filepath.Join(folder, "meta.json")); err == nil {
		if jsonErr := json.Unmarshal(raw, &m); jsonErr != nil {
			logger.Warn("invalid voice meta.json", "dir", folder, "error", jsonErr)
		}
	} else if raw, err = os.ReadFile(filepath.Join(folder, "meta.toml")); err == nil {
		if tomlErr := toml.Unmarshal(raw, &m); tomlErr != nil {
			logger.Warn("invalid voice meta.toml", "dir", folder, "error", tomlErr)
		}
	}

	if name := strings.TrimSpace(m.Name); name != "" {
		return name
	}
	return fallback
}

func sortedGlob(folder, pattern string) []string {
	matches, err := filepath.Glob(filepath.Join(folder, pattern))
	if err != nil {
		return nil
	}
	out := matches[:0]
	for _, m := range matches {
		if fileExists(m) {
			out = append(out, m)
		}
	}
	slices.Sort(out)
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

var _ core.VoiceCatalog = (*Catalog)(nil)
