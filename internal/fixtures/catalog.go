// Package fixtures loads post descriptors and canned suggestion lists from a
// directory of YAML files. The local backend uses a Catalog both as its post
// source and as its automated suggestion source.
package fixtures

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Metaculus/metaculus-sub005/internal/backend"
	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
)

// Document is the shape of one fixtures file.
type Document struct {
	Posts       []keyfactor.Post `yaml:"posts"`
	Suggestions []SuggestionSet  `yaml:"suggestions"`
}

// SuggestionSet lists drafts offered for comments on one post. Each key
// factor uses the wire envelope, e.g. `driver: {text: ..., impact_direction: 1}`.
type SuggestionSet struct {
	Post       int64            `yaml:"post"`
	KeyFactors []map[string]any `yaml:"key_factors"`
}

// Catalog is an in-memory post and suggestion index.
type Catalog struct {
	mu          sync.RWMutex
	posts       map[int64]keyfactor.Post
	suggestions map[int64][]keyfactor.Draft
	sources     []string
}

var (
	_ backend.PostSource = (*Catalog)(nil)
	_ backend.Suggester  = (*Catalog)(nil)
)

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		posts:       map[int64]keyfactor.Post{},
		suggestions: map[int64][]keyfactor.Draft{},
	}
}

// ParseDocument decodes and validates a single fixtures payload.
func ParseDocument(data []byte) (Document, map[int64][]keyfactor.Draft, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Document{}, nil, fmt.Errorf("fixtures: payload is empty")
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, nil, fmt.Errorf("fixtures: decode: %w", err)
	}
	for i, p := range doc.Posts {
		if p.ID <= 0 {
			return Document{}, nil, fmt.Errorf("fixtures: post %d: id is required", i)
		}
		if p.Question == nil && len(p.Group) == 0 {
			return Document{}, nil, fmt.Errorf("fixtures: post %d: question or group_of_questions is required", p.ID)
		}
	}
	drafts := map[int64][]keyfactor.Draft{}
	for _, set := range doc.Suggestions {
		for i, raw := range set.KeyFactors {
			d, err := DecodeDraft(raw)
			if err != nil {
				return Document{}, nil, fmt.Errorf("fixtures: post %d suggestion %d: %w", set.Post, i, err)
			}
			drafts[set.Post] = append(drafts[set.Post], d)
		}
	}
	return doc, drafts, nil
}

// DecodeDraft converts one YAML key factor entry through the wire envelope.
func DecodeDraft(raw map[string]any) (keyfactor.Draft, error) {
	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return keyfactor.UnmarshalDraft(payload)
}

// LoadFile merges one YAML file into the catalog.
func (c *Catalog) LoadFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("fixtures: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("fixtures: %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("fixtures: read %s: %w", path, err)
	}
	doc, drafts, err := ParseDocument(data)
	if err != nil {
		return fmt.Errorf("fixtures: %s: %w", path, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range doc.Posts {
		c.posts[p.ID] = p
	}
	for postID, list := range drafts {
		c.suggestions[postID] = append(c.suggestions[postID], list...)
	}
	c.sources = append(c.sources, filepath.Clean(path))
	return nil
}

// LoadDir reads every *.yaml file in dir. A missing directory yields an
// empty catalog.
func LoadDir(dir string) (*Catalog, error) {
	c := NewCatalog()
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return c, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("fixtures: read %s: %w", trimmed, err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && IsYAMLFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := c.LoadFile(filepath.Join(trimmed, name)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add registers a post directly.
func (c *Catalog) Add(p keyfactor.Post, suggestions ...keyfactor.Draft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.posts[p.ID] = p
	c.suggestions[p.ID] = append(c.suggestions[p.ID], suggestions...)
}

// Post implements backend.PostSource.
func (c *Catalog) Post(id int64) (keyfactor.Post, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.posts[id]
	return p, ok
}

// Posts returns every post ordered by id.
func (c *Catalog) Posts() []keyfactor.Post {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]keyfactor.Post, 0, len(c.posts))
	for _, p := range c.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sources lists the files loaded so far.
func (c *Catalog) Sources() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.sources...)
}

// Suggest implements backend.Suggester. Drafts whose target no longer fits
// the post are skipped; every call returns fresh copies.
func (c *Catalog) Suggest(ctx context.Context, post keyfactor.Post, _ backend.CommentRecord) ([]keyfactor.Draft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	list := c.suggestions[post.ID]
	c.mu.RUnlock()
	out := make([]keyfactor.Draft, 0, len(list))
	for _, d := range list {
		if !post.ValidTarget(keyfactor.TargetOf(d)) {
			continue
		}
		out = append(out, d.Clone())
	}
	return out, nil
}

// IsYAMLFile reports whether name has a .yaml or .yml extension.
func IsYAMLFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
