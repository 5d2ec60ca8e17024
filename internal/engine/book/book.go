package book

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/park285/Connect4-Screen-bot/internal/engine"
)

const FormatVersion = 1

// Entry maps a canonical position key to the column to play.
type Entry struct {
	Key    string `json:"key"`
	Column int    `json:"column"`
}

type File struct {
	Version int     `json:"version"`
	MaxPly  int     `json:"max_ply"`
	Entries []Entry `json:"entries"`
}

// Book is a read-only opening book. The zero value is an empty book.
type Book struct {
	maxPly  int
	entries map[string]int
}

var _ engine.Book = (*Book)(nil)

// Open loads a book file. An empty path yields an empty book.
func Open(path string) (*Book, error) {
	if strings.TrimSpace(path) == "" {
		return &Book{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open opening book %q: %w", path, err)
	}
	defer f.Close()
	b, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("load opening book %q: %w", path, err)
	}
	return b, nil
}

func Read(r io.Reader) (*Book, error) {
	var file File
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode book: %w", err)
	}
	if file.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported book version %d", file.Version)
	}
	return FromFile(&file)
}

func FromFile(file *File) (*Book, error) {
	b := &Book{maxPly: file.MaxPly, entries: make(map[string]int, len(file.Entries))}
	for _, e := range file.Entries {
		if e.Column < 0 || e.Column >= engine.Columns {
			return nil, fmt.Errorf("entry %s: column %d out of range", e.Key, e.Column)
		}
		b.entries[e.Key] = e.Column
	}
	return b, nil
}

func (b *Book) Len() int { return len(b.entries) }

// Lookup returns the book column for pos. Misses and stale entries report found=false.
func (b *Book) Lookup(ctx context.Context, pos engine.Position) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return -1, false, err
	}
	if b == nil || len(b.entries) == 0 {
		return -1, false, nil
	}
	if b.maxPly > 0 && pos.Ply() > b.maxPly {
		return -1, false, nil
	}
	key, mirrored := CanonicalKey(pos)
	col, ok := b.entries[key]
	if !ok {
		return -1, false, nil
	}
	if mirrored {
		col = engine.Columns - 1 - col
	}
	if engine.DropCell(pos.Legal(), col) == 0 {
		return -1, false, nil
	}
	return col, true, nil
}

// CanonicalKey returns the smaller key of pos and its mirror image, and
// whether the mirror was chosen.
func CanonicalKey(pos engine.Position) (string, bool) {
	k := positionKey(pos)
	mk := positionKey(pos.Mirror())
	if mk < k {
		return mk, true
	}
	return k, false
}

func positionKey(pos engine.Position) string {
	return fmt.Sprintf("%012x%012x", pos.Stones[0], pos.Stones[1])
}

func (f *File) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode book: %w", err)
	}
	return nil
}
