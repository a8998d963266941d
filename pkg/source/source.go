// Package source tracks the source buffers a compilation unit was parsed
// from, and the positions/ranges the rest of the pipeline attaches to nodes
// and instructions.
package source

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
)

// Pos is a position inside a source buffer.
type Pos struct {
	Line int // 1-based; 0 means unknown
	Col  int // 1-based
	Off  int // byte offset into the buffer
}

// Range is a half-open byte span [Start.Off, End.Off) inside one buffer.
type Range struct {
	Buffer uint32
	Start  Pos
	End    Pos
}

// Valid reports whether the range carries real position information.
func (r Range) Valid() bool { return r.Start.Line > 0 }

// Buffer is one registered source file.
type Buffer struct {
	ID      uint32
	Name    string
	Content []byte
	Hash    uint64
}

// Registry owns all source buffers of a compilation unit. Registering the
// same content twice returns the original buffer, so buffer ids recorded in
// lazy stubs stay stable across repeated registration.
type Registry struct {
	buffers []*Buffer
	byHash  map[uint64]uint32
}

func NewRegistry() *Registry {
	return &Registry{byHash: make(map[uint64]uint32)}
}

// Register adds content under name, deduplicating by content hash.
func (r *Registry) Register(name string, content []byte) *Buffer {
	h := xxhash.Sum64(content)
	if id, ok := r.byHash[h]; ok {
		return r.buffers[id]
	}
	buf := &Buffer{
		ID:      uint32(len(r.buffers)),
		Name:    name,
		Content: content,
		Hash:    h,
	}
	r.buffers = append(r.buffers, buf)
	r.byHash[h] = buf.ID
	return buf
}

// Buffer returns the buffer with the given id, or nil.
func (r *Registry) Buffer(id uint32) *Buffer {
	if r == nil || int(id) >= len(r.buffers) {
		return nil
	}
	return r.buffers[id]
}

func (r *Registry) Len() int { return len(r.buffers) }

// Line extracts the text of a 1-based line from a buffer, without the
// trailing newline. Returns "" when the buffer or line does not exist.
func (r *Registry) Line(id uint32, line int) string {
	buf := r.Buffer(id)
	if buf == nil || line < 1 {
		return ""
	}
	content := buf.Content
	start := 0
	for line > 1 {
		i := bytes.IndexByte(content[start:], '\n')
		if i < 0 {
			return ""
		}
		start += i + 1
		line--
	}
	end := len(content)
	if i := bytes.IndexByte(content[start:], '\n'); i >= 0 {
		end = start + i
	}
	return string(content[start:end])
}
