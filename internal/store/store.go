// Package store persists finished game sessions.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/Connect4-Screen-bot/internal/domain"
)

var ErrDuplicateGame = errors.New("game already recorded")

type Recorder interface {
	Record(ctx context.Context, rec *domain.GameRecord) error
}

// Multi records to every recorder and joins their errors. A duplicate is not
// reported as a failure.
type Multi struct {
	recorders []Recorder
	logger    *zap.Logger
}

func NewMulti(logger *zap.Logger, recorders ...Recorder) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Multi{logger: logger}
	for _, r := range recorders {
		if r != nil {
			m.recorders = append(m.recorders, r)
		}
	}
	return m
}

func (m *Multi) Len() int { return len(m.recorders) }

func (m *Multi) Record(ctx context.Context, rec *domain.GameRecord) error {
	var errs []error
	for i, r := range m.recorders {
		if err := r.Record(ctx, rec); err != nil {
			if errors.Is(err, ErrDuplicateGame) {
				m.logger.Debug("record_duplicate", zap.String("session_id", rec.SessionUUID), zap.Int("recorder", i))
				continue
			}
			errs = append(errs, fmt.Errorf("recorder %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
