// Package store persists guilds, users and their locations in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"popmap/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// brings its schema up to date.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	logger.Debug("store opened", "path", dbPath)

	return store, nil
}

func (s *SQLiteStore) UpsertGuild(ctx context.Context, g domain.Guild) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guilds (id, name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name`,
		g.ID, g.Name, g.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) GetGuild(ctx context.Context, id string) (*domain.Guild, error) {
	var g domain.Guild
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM guilds WHERE id = ?`, id,
	).Scan(&g.ID, &g.Name, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, role, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

func (s *SQLiteStore) UpsertUser(ctx context.Context, u domain.User) error {
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, role, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET role=excluded.role`,
		u.ID, string(u.Role), u.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) SetLocation(ctx context.Context, loc domain.Location) error {
	if loc.UpdatedAt.IsZero() {
		loc.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO locations (guild_id, user_id, country_code, subdivision_code, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(guild_id, user_id) DO UPDATE SET
			country_code=excluded.country_code,
			subdivision_code=excluded.subdivision_code,
			updated_at=excluded.updated_at`,
		loc.GuildID, loc.UserID, loc.CountryCode, loc.SubdivisionCode, loc.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) GetLocation(ctx context.Context, guildID, userID string) (*domain.Location, error) {
	var loc domain.Location
	err := s.db.QueryRowContext(ctx,
		`SELECT l.guild_id, g.name, l.user_id, l.country_code, l.subdivision_code, l.updated_at
		 FROM locations l JOIN guilds g ON g.id = l.guild_id
		 WHERE l.guild_id = ? AND l.user_id = ?`, guildID, userID,
	).Scan(&loc.GuildID, &loc.GuildName, &loc.UserID, &loc.CountryCode, &loc.SubdivisionCode, &loc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

func (s *SQLiteStore) DeleteLocation(ctx context.Context, guildID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM locations WHERE guild_id = ? AND user_id = ?`, guildID, userID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListUserLocations(ctx context.Context, userID string) ([]domain.Location, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.guild_id, g.name, l.user_id, l.country_code, l.subdivision_code, l.updated_at
		 FROM locations l JOIN guilds g ON g.id = l.guild_id
		 WHERE l.user_id = ? ORDER BY g.name`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locs []domain.Location
	for rows.Next() {
		var loc domain.Location
		if err := rows.Scan(&loc.GuildID, &loc.GuildName, &loc.UserID, &loc.CountryCode, &loc.SubdivisionCode, &loc.UpdatedAt); err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	return locs, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
