package book

import (
	"context"
	"fmt"
	"sort"

	"github.com/park285/Connect4-Screen-bot/internal/engine"
)

// Picker chooses a column for the side to move.
type Picker func(ctx context.Context, pos engine.Position, player int) (int, error)

type BuildOptions struct {
	MaxPly   int
	Picker   Picker
	Progress func(done int)
}

// Build walks every position up to MaxPly stones (player 0 moves first) and
// records Picker's choice for each distinct canonical position.
func Build(ctx context.Context, opts BuildOptions) (*File, error) {
	if opts.Picker == nil {
		return nil, fmt.Errorf("book build: nil picker")
	}
	if opts.MaxPly < 0 || opts.MaxPly >= engine.Cells {
		return nil, fmt.Errorf("book build: max ply %d out of range", opts.MaxPly)
	}
	b := &builder{opts: opts, seen: make(map[string]int)}
	if err := b.walk(ctx, engine.Position{}); err != nil {
		return nil, err
	}

	file := &File{Version: FormatVersion, MaxPly: opts.MaxPly, Entries: make([]Entry, 0, len(b.seen))}
	for k, c := range b.seen {
		file.Entries = append(file.Entries, Entry{Key: k, Column: c})
	}
	sort.Slice(file.Entries, func(i, j int) bool { return file.Entries[i].Key < file.Entries[j].Key })
	return file, nil
}

type builder struct {
	opts BuildOptions
	seen map[string]int
}

func (b *builder) walk(ctx context.Context, pos engine.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ply := pos.Ply()
	if ply > b.opts.MaxPly {
		return nil
	}
	if engine.Aligned(pos.Stones[0]) || engine.Aligned(pos.Stones[1]) {
		return nil
	}
	key, mirrored := CanonicalKey(pos)
	if _, ok := b.seen[key]; ok {
		return nil
	}
	player := ply % 2
	col, err := b.opts.Picker(ctx, pos, player)
	if err != nil {
		return fmt.Errorf("pick at ply %d: %w", ply, err)
	}
	if engine.DropCell(pos.Legal(), col) == 0 {
		return fmt.Errorf("picker returned illegal column %d at ply %d", col, ply)
	}
	if mirrored {
		col = engine.Columns - 1 - col
	}
	b.seen[key] = col
	if b.opts.Progress != nil {
		b.opts.Progress(len(b.seen))
	}

	legal := pos.Legal()
	for c := 0; c < engine.Columns; c++ {
		cell := engine.DropCell(legal, c)
		if cell == 0 {
			continue
		}
		next := pos
		next.Stones[player] |= cell
		if err := b.walk(ctx, next); err != nil {
			return err
		}
	}
	return nil
}
