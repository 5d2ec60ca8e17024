package book

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/park285/Connect4-Screen-bot/internal/engine"
)

func lowestLegal(_ context.Context, pos engine.Position, _ int) (int, error) {
	legal := pos.Legal()
	for c := 0; c < engine.Columns; c++ {
		if engine.DropCell(legal, c) != 0 {
			return c, nil
		}
	}
	return -1, engine.ErrNoMoves
}

func TestEmptyPathIsEmptyBook(t *testing.T) {
	b, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, found, err := b.Lookup(context.Background(), engine.Position{})
	if err != nil || found {
		t.Fatalf("expected miss, found=%v err=%v", found, err)
	}
}

func TestMissingFileIsError(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLookupMirrorsColumn(t *testing.T) {
	left := engine.Position{Stones: [2]uint64{engine.CellMask(0, 0), 0}}
	key, mirrored := CanonicalKey(left)
	col := 1
	if mirrored {
		col = engine.Columns - 1 - col
	}
	b, err := FromFile(&File{Version: FormatVersion, MaxPly: 4, Entries: []Entry{{Key: key, Column: col}}})
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}

	got, found, err := b.Lookup(context.Background(), left)
	if err != nil || !found || got != 1 {
		t.Fatalf("left lookup: col=%d found=%v err=%v", got, found, err)
	}
	right := left.Mirror()
	got, found, err = b.Lookup(context.Background(), right)
	if err != nil || !found || got != 5 {
		t.Fatalf("mirrored lookup: col=%d found=%v err=%v", got, found, err)
	}
}

func TestLookupBeyondMaxPlyMisses(t *testing.T) {
	pos := engine.Position{Stones: [2]uint64{engine.CellMask(3, 0) | engine.CellMask(3, 2), engine.CellMask(3, 1)}}
	key, _ := CanonicalKey(pos)
	b, err := FromFile(&File{Version: FormatVersion, MaxPly: 2, Entries: []Entry{{Key: key, Column: 3}}})
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if _, found, _ := b.Lookup(context.Background(), pos); found {
		t.Fatalf("expected miss beyond max ply")
	}
}

func TestLookupRejectsFullColumn(t *testing.T) {
	var pos engine.Position
	for r := 0; r < engine.Rows; r++ {
		pos.Stones[r%2] |= engine.CellMask(3, r)
	}
	key, _ := CanonicalKey(pos)
	b, err := FromFile(&File{Version: FormatVersion, Entries: []Entry{{Key: key, Column: 3}}})
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if _, found, _ := b.Lookup(context.Background(), pos); found {
		t.Fatalf("full column must not be suggested")
	}
}

func TestBuildWriteOpenRoundTrip(t *testing.T) {
	file, err := Build(context.Background(), BuildOptions{MaxPly: 2, Picker: lowestLegal})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// ply 0: 1, ply 1: 4 (mirror), ply 2: 7*7 positions folded by mirror
	if len(file.Entries) < 1+4 {
		t.Fatalf("too few entries: %d", len(file.Entries))
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	path := filepath.Join(t.TempDir(), "book.json")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if b.Len() != len(file.Entries) {
		t.Fatalf("len = %d, want %d", b.Len(), len(file.Entries))
	}

	// 0열 국면에 기록된 수(0열)가 좌우 반전되어 6열로 나와야 함
	pos := engine.Position{Stones: [2]uint64{engine.CellMask(6, 0), 0}}
	col, found, err := b.Lookup(context.Background(), pos)
	if err != nil || !found {
		t.Fatalf("lookup: found=%v err=%v", found, err)
	}
	if col != 6 {
		t.Fatalf("expected column 6, got %d", col)
	}
}

func TestBuildRejectsBadPicker(t *testing.T) {
	bad := func(context.Context, engine.Position, int) (int, error) { return 9, nil }
	if _, err := Build(context.Background(), BuildOptions{MaxPly: 1, Picker: bad}); err == nil {
		t.Fatalf("expected error for illegal pick")
	}
}
