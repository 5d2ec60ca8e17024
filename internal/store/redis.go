package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/Connect4-Screen-bot/internal/domain"
)

const (
	keyRecent   = "c4:games:recent"
	keyOutcomes = "c4:games:outcomes"
	ttlGame     = 7 * 24 * time.Hour

	FieldBotWins   = "bot_win"
	FieldBotLosses = "bot_loss"
)

// RedisRecorder keeps a capped list of recent games, a per-session key and
// outcome counters.
type RedisRecorder struct {
	rdb   *redis.Client
	limit int64
}

func NewRedisRecorder(rdb *redis.Client, limit int) *RedisRecorder {
	if limit <= 0 {
		limit = 100
	}
	return &RedisRecorder{rdb: rdb, limit: int64(limit)}
}

// NewRedisClient parses redis://... and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func keyGame(sessionUUID string) string { return "c4:game:" + sessionUUID }

func (s *RedisRecorder) Record(ctx context.Context, rec *domain.GameRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal game record: %w", err)
	}
	key := keyGame(rec.SessionUUID)

	// 게임 키와 목록/카운터는 한 MULTI로 같이 들어가야 재시도가 가능함
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("redis check game: %w", err)
		}
		if n > 0 {
			return ErrDuplicateGame
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, raw, ttlGame)
			p.LPush(ctx, keyRecent, raw)
			p.LTrim(ctx, keyRecent, 0, s.limit-1)
			p.HIncrBy(ctx, keyOutcomes, rec.Outcome, 1)
			switch {
			case rec.BotWon():
				p.HIncrBy(ctx, keyOutcomes, FieldBotWins, 1)
			case rec.Outcome == domain.OutcomeWin:
				p.HIncrBy(ctx, keyOutcomes, FieldBotLosses, 1)
			}
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDuplicateGame), errors.Is(err, redis.TxFailedErr):
		// WATCH 실패는 같은 세션이 동시에 기록된 경우뿐
		return ErrDuplicateGame
	default:
		return fmt.Errorf("redis record game: %w", err)
	}
}

func (s *RedisRecorder) Recent(ctx context.Context, n int) ([]*domain.GameRecord, error) {
	if n <= 0 {
		n = 10
	}
	raws, err := s.rdb.LRange(ctx, keyRecent, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.GameRecord, 0, len(raws))
	for _, raw := range raws {
		var g domain.GameRecord
		if err := json.Unmarshal([]byte(raw), &g); err != nil {
			return nil, fmt.Errorf("decode recent game: %w", err)
		}
		out = append(out, &g)
	}
	return out, nil
}

func (s *RedisRecorder) Game(ctx context.Context, sessionUUID string) (*domain.GameRecord, error) {
	raw, err := s.rdb.Get(ctx, keyGame(sessionUUID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g domain.GameRecord
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Stats returns the outcome counters, e.g. {"win": 3, "bot_win": 2, "draw": 1}.
func (s *RedisRecorder) Stats(ctx context.Context) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, keyOutcomes).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}
