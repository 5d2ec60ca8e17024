package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Connect4-Screen-bot/internal/engine"
	"github.com/park285/Connect4-Screen-bot/internal/engine/bitboard"
	"github.com/park285/Connect4-Screen-bot/internal/engine/book"
	"github.com/park285/Connect4-Screen-bot/internal/obslog"
)

func main() {
	out := flag.String("out", "book.json", "output file")
	maxPly := flag.Int("max-ply", 8, "deepest position (stones on board) stored")
	hashMB := flag.Int("hash", 256, "transposition table size in MB")
	strong := flag.Bool("strong", false, "store exact-score moves instead of win/draw/loss moves")
	flag.Parse()

	if err := obslog.InitFromEnv(); err != nil {
		panic(err)
	}
	defer obslog.Close()
	logger := obslog.L().Named("bookgen")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	strength := engine.Weak
	if *strong {
		strength = engine.Strong
	}
	solver := bitboard.NewSolver(*hashMB)
	picker := func(ctx context.Context, pos engine.Position, player int) (int, error) {
		b := bitboard.FromPosition(pos)
		return solver.Best(ctx, &b, player, strength)
	}

	start := time.Now()
	file, err := book.Build(ctx, book.BuildOptions{
		MaxPly: *maxPly,
		Picker: picker,
		Progress: func(done int) {
			if done%1000 == 0 {
				logger.Info("bookgen_progress", zap.Int("positions", done), zap.Duration("elapsed", time.Since(start)))
			}
		},
	})
	if err != nil {
		logger.Fatal("bookgen_failed", zap.Error(err))
	}

	f, err := os.Create(*out)
	if err != nil {
		logger.Fatal("bookgen_create_failed", zap.Error(err))
	}
	if err := file.Write(f); err != nil {
		_ = f.Close()
		logger.Fatal("bookgen_write_failed", zap.Error(err))
	}
	if err := f.Close(); err != nil {
		logger.Fatal("bookgen_close_failed", zap.Error(err))
	}
	logger.Info("bookgen_done",
		zap.String("out", *out),
		zap.Int("entries", len(file.Entries)),
		zap.Int("max_ply", *maxPly),
		zap.Stringer("strength", strength),
		zap.Duration("elapsed", time.Since(start)))
}
