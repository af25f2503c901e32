package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgxpool.Pool the provider needs. pgxmock
// satisfies it in tests.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresProvider implements Provider on a pgx connection pool.
type PostgresProvider struct {
	db DB
}

// NewPostgresProvider opens a pool for dsn and pings it to verify the
// connection is usable.
func NewPostgresProvider(ctx context.Context, dsn string) (*PostgresProvider, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresProvider{db: pool}, nil
}

// NewPostgresProviderWithDB wraps an existing connection, used by tests.
func NewPostgresProviderWithDB(db DB) *PostgresProvider {
	return &PostgresProvider{db: db}
}

const saveProgramQuery = `
	INSERT INTO programs (collection_id, title, feed_url, artwork_url, genre_ids, episode_count, delisted, fetched_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (collection_id) DO UPDATE SET
		title = EXCLUDED.title,
		feed_url = EXCLUDED.feed_url,
		artwork_url = EXCLUDED.artwork_url,
		genre_ids = EXCLUDED.genre_ids,
		episode_count = EXCLUDED.episode_count,
		delisted = EXCLUDED.delisted,
		fetched_at = EXCLUDED.fetched_at
	RETURNING id
`

// SaveProgram upserts the program keyed by collection id and returns the
// generated row id.
func (p *PostgresProvider) SaveProgram(ctx context.Context, program Program) (string, error) {
	var id string
	err := p.db.QueryRow(ctx, saveProgramQuery,
		program.CollectionID,
		program.Title,
		program.FeedURL,
		program.ArtworkURL,
		program.GenreIDs,
		program.EpisodeCount,
		program.Delisted,
		program.FetchedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert program: %w", err)
	}
	return id, nil
}

const saveRankQuery = `
	INSERT INTO ranks (genre_id, collection_id, position)
	VALUES ($1, $2, $3)
	ON CONFLICT (genre_id, collection_id) DO UPDATE SET position = EXCLUDED.position
`

// SaveRank records one chart position.
func (p *PostgresProvider) SaveRank(ctx context.Context, r Rank) error {
	_, err := p.db.Exec(ctx, saveRankQuery, r.GenreID, r.CollectionID, r.Position)
	if err != nil {
		return fmt.Errorf("insert rank: %w", err)
	}
	return nil
}

const saveTagQuery = `
	INSERT INTO tags (name)
	VALUES ($1)
	ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
	RETURNING id
`

// SaveTag upserts the tag and returns its row id.
func (p *PostgresProvider) SaveTag(ctx context.Context, name string) (string, error) {
	var id string
	if err := p.db.QueryRow(ctx, saveTagQuery, name).Scan(&id); err != nil {
		return "", fmt.Errorf("insert tag: %w", err)
	}
	return id, nil
}

// Close shuts down the connection pool.
func (p *PostgresProvider) Close() error {
	p.db.Close()
	return nil
}
