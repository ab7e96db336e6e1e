package bundle

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// Builder accumulates named payloads in insertion order and serializes them
// into a single DEFLATE-compressed archive. Filenames are unique within a
// bundle; a later payload replaces an earlier one only when overwrite is
// enabled.
type Builder struct {
	overwrite bool
	names     []string
	entries   map[string][]byte
}

func NewBuilder(overwrite bool) *Builder {
	return &Builder{
		overwrite: overwrite,
		entries:   make(map[string][]byte),
	}
}

func (b *Builder) Has(name string) bool {
	_, ok := b.entries[name]
	return ok
}

// Add stores data under name. When the name already exists the call is a
// no-op unless overwrite is enabled, in which case the later payload wins
// and keeps the original position. Reports whether the payload was stored.
func (b *Builder) Add(name string, data []byte) bool {
	if _, exists := b.entries[name]; exists {
		if !b.overwrite {
			return false
		}
		b.entries[name] = data
		return true
	}

	b.names = append(b.names, name)
	b.entries[name] = data
	return true
}

func (b *Builder) Len() int {
	return len(b.names)
}

func (b *Builder) Names() []string {
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

func (b *Builder) Finalize() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, name := range b.names {
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("create archive entry %s: %w", name, err)
		}
		if _, err := w.Write(b.entries[name]); err != nil {
			return nil, fmt.Errorf("write archive entry %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}
