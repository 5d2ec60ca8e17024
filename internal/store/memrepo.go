package store

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/Connect4-Screen-bot/internal/domain"
)

// memrepo keeps records in process when no database is configured.
type memrepo struct {
	mu sync.RWMutex

	nextID    int64
	games     []*domain.GameRecord
	bySession map[string]*domain.GameRecord
}

func NewMemoryRepository() Repository {
	return &memrepo{bySession: make(map[string]*domain.GameRecord)}
}

func (m *memrepo) InsertGame(ctx context.Context, game *domain.GameRecord) (int64, error) {
	if game == nil {
		return 0, ErrDuplicateGame
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bySession[game.SessionUUID]; exists {
		return 0, ErrDuplicateGame
	}
	m.nextID++
	cp := *game
	cp.ID = m.nextID
	cp.Moves = append([]domain.Move(nil), game.Moves...)
	m.games = append(m.games, &cp)
	m.bySession[cp.SessionUUID] = &cp
	return cp.ID, nil
}

func (m *memrepo) GetRecentGames(ctx context.Context, limit int) ([]*domain.GameRecord, error) {
	m.mu.RLock()
	items := append([]*domain.GameRecord(nil), m.games...)
	m.mu.RUnlock()
	// EndedAt desc, 같으면 ID desc
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memrepo) GetGameBySession(ctx context.Context, sessionUUID string) (*domain.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bySession[sessionUUID], nil
}
