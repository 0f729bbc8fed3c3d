// Package manifest owns the supergraph schema text for the lifetime of the
// process. The text is read once at startup, published into a write-once
// Cell and then shared by reference with every component that needs it.
package manifest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
)

var (
	ErrEmptyManifest    = errors.New("manifest is empty")
	ErrNoManifestPath   = errors.New("manifest path is not set")
	ErrAlreadyPublished = errors.New("manifest already published")
	ErrNotPublished     = errors.New("manifest not published")
)

// Text is the immutable schema text. Values are only created by Load or
// NewText and never modified afterwards, so a *Text can be shared freely
// across goroutines.
type Text struct {
	path   string
	body   string
	digest uint64
}

// NewText wraps in-memory schema text. path is informational only.
func NewText(path, body string) (*Text, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyManifest
	}

	return &Text{
		path:   path,
		body:   body,
		digest: xxhash.Sum64String(body),
	}, nil
}

func (t *Text) Path() string {
	return t.path
}

func (t *Text) String() string {
	return t.body
}

func (t *Text) Len() int {
	return len(t.body)
}

// Digest is the hex xxhash64 of the text. Two manifests that differ only in
// whitespace have different digests.
func (t *Text) Digest() string {
	return strconv.FormatUint(t.digest, 16)
}

// Loader reads manifests from a filesystem.
type Loader struct {
	fs afero.Fs
}

func NewLoader(fs afero.Fs) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Loader{fs: fs}
}

// Load reads the whole file at path synchronously.
func (l *Loader) Load(path string) (*Text, error) {
	if path == "" {
		return nil, ErrNoManifestPath
	}

	b, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read manifest '%s': %w", path, err)
	}

	text, err := NewText(path, string(b))
	if err != nil {
		return nil, fmt.Errorf("manifest '%s': %w", path, err)
	}

	return text, nil
}

// Cell is a write-once slot for the process's manifest. The zero value is
// ready to use. A successful Publish happens-before every Get that observes
// the published value.
type Cell struct {
	text atomic.Pointer[Text]
}

// Publish stores text. Only the first call succeeds; later calls return
// ErrAlreadyPublished and leave the cell unchanged.
func (c *Cell) Publish(text *Text) error {
	if text == nil {
		return ErrEmptyManifest
	}

	if !c.text.CompareAndSwap(nil, text) {
		return ErrAlreadyPublished
	}

	return nil
}

func (c *Cell) Get() (*Text, bool) {
	text := c.text.Load()
	return text, text != nil
}

func (c *Cell) MustGet() *Text {
	text, ok := c.Get()
	if !ok {
		panic(ErrNotPublished)
	}
	return text
}

// LoadAndPublish loads the manifest at path and publishes it into the cell.
func (c *Cell) LoadAndPublish(loader *Loader, path string) (*Text, error) {
	text, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	if err := c.Publish(text); err != nil {
		return nil, err
	}

	return text, nil
}
