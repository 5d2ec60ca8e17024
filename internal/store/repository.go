package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/Connect4-Screen-bot/internal/domain"
)

type Repository interface {
	InsertGame(ctx context.Context, game *domain.GameRecord) (int64, error)
	GetRecentGames(ctx context.Context, limit int) ([]*domain.GameRecord, error)
	GetGameBySession(ctx context.Context, sessionUUID string) (*domain.GameRecord, error)
}

// RepositoryRecorder adapts a Repository to Recorder.
type RepositoryRecorder struct{ Repo Repository }

func (r RepositoryRecorder) Record(ctx context.Context, rec *domain.GameRecord) error {
	id, err := r.Repo.InsertGame(ctx, rec)
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

const Schema = `
CREATE TABLE IF NOT EXISTS c4_games (
	id            BIGSERIAL PRIMARY KEY,
	session_uuid  TEXT NOT NULL UNIQUE,
	bot_player    SMALLINT NOT NULL,
	outcome       TEXT NOT NULL,
	winner        SMALLINT NOT NULL,
	moves         JSONB NOT NULL,
	columns       TEXT NOT NULL,
	ply           INTEGER NOT NULL,
	strong_from   INTEGER NOT NULL,
	table_resets  INTEGER NOT NULL,
	detail        TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ NOT NULL,
	duration_ms   BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS c4_games_ended_at_idx ON c4_games (ended_at DESC);
`

// OpenPostgres opens and pings a lib/pq connection.
func OpenPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create c4_games: %w", err)
	}
	return nil
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) InsertGame(ctx context.Context, game *domain.GameRecord) (int64, error) {
	if game == nil {
		return 0, fmt.Errorf("nil game record")
	}
	moves, err := json.Marshal(game.Moves)
	if err != nil {
		return 0, fmt.Errorf("marshal moves: %w", err)
	}

	const query = `
		INSERT INTO c4_games (
			session_uuid,
			bot_player,
			outcome,
			winner,
			moves,
			columns,
			ply,
			strong_from,
			table_resets,
			detail,
			started_at,
			ended_at,
			duration_ms
		)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (session_uuid) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(
		ctx,
		query,
		game.SessionUUID,
		game.BotPlayer,
		game.Outcome,
		game.Winner,
		moves,
		game.Columns(),
		game.Ply,
		game.StrongFrom,
		game.TableResets,
		game.Detail,
		game.StartedAt,
		game.EndedAt,
		game.Duration.Milliseconds(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return 0, ErrDuplicateGame
	}
	if err != nil {
		return 0, fmt.Errorf("insert c4 game: %w", err)
	}
	return id.Int64, nil
}

const selectColumns = `
	id,
	session_uuid,
	bot_player,
	outcome,
	winner,
	moves,
	ply,
	strong_from,
	table_resets,
	detail,
	started_at,
	ended_at,
	duration_ms`

func (r *repository) GetRecentGames(ctx context.Context, limit int) ([]*domain.GameRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `SELECT`+selectColumns+` FROM c4_games ORDER BY ended_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select c4 games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.GameRecord, 0, limit)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate c4 games: %w", err)
	}
	return games, nil
}

func (r *repository) GetGameBySession(ctx context.Context, sessionUUID string) (*domain.GameRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+selectColumns+` FROM c4_games WHERE session_uuid = $1`, sessionUUID)
	g, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(s scanner) (*domain.GameRecord, error) {
	var (
		g          domain.GameRecord
		movesJSON  []byte
		durationMS int64
	)
	if err := s.Scan(
		&g.ID,
		&g.SessionUUID,
		&g.BotPlayer,
		&g.Outcome,
		&g.Winner,
		&movesJSON,
		&g.Ply,
		&g.StrongFrom,
		&g.TableResets,
		&g.Detail,
		&g.StartedAt,
		&g.EndedAt,
		&durationMS,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan c4 game: %w", err)
	}
	if len(movesJSON) > 0 {
		if err := json.Unmarshal(movesJSON, &g.Moves); err != nil {
			return nil, fmt.Errorf("unmarshal moves: %w", err)
		}
	}
	g.Duration = time.Duration(durationMS) * time.Millisecond
	return &g, nil
}
