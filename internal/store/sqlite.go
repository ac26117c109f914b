package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	log "github.com/sirupsen/logrus"

	"github.com/besafe/digital-sister/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers from concurrent sessions.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        nickname_key TEXT UNIQUE NOT NULL,
        nickname TEXT NOT NULL,
        created_at INTEGER NOT NULL -- unix nanoseconds
    );

    CREATE TABLE IF NOT EXISTS reports (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT UNIQUE NOT NULL, -- UUID
        user_id TEXT NOT NULL,
        created_at INTEGER NOT NULL, -- unix nanoseconds
        payload TEXT NOT NULL -- JSON encoded domain.Report
    );

    CREATE INDEX IF NOT EXISTS idx_reports_user_created ON reports (user_id, created_at);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods
func (s *SQLiteStore) FindUserByKey(ctx context.Context, key string) (*domain.User, error) {
	var (
		user    domain.User
		created int64
	)
	err := s.db.QueryRowContext(ctx, "SELECT id, nickname, created_at FROM users WHERE nickname_key = ?", key).Scan(&user.ID, &user.Nickname, &created)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	user.CreatedAt = time.Unix(0, created).UTC()
	return &user, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, key string, u domain.User) (*domain.User, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, nickname_key, nickname, created_at) VALUES (?, ?, ?, ?) ON CONFLICT(nickname_key) DO NOTHING",
		string(u.ID), key, u.Nickname, u.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	stored, err := s.FindUserByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("user %q vanished after insert", key)
	}
	return stored, nil
}

// Report methods
func (s *SQLiteStore) AppendReport(ctx context.Context, userID domain.UserID, r domain.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	stmt, err := s.db.PrepareContext(ctx, "INSERT INTO reports (id, user_id, created_at, payload) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare report insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, string(r.ID), string(userID), r.CreatedAt.UnixNano(), string(payload))
	if err != nil {
		return fmt.Errorf("failed to execute report insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListReportsByUser(ctx context.Context, userID domain.UserID, limit int) ([]domain.Report, error) {
	if userID == UnassignedUserID {
		return []domain.Report{}, nil
	}
	query := `
        SELECT payload
        FROM reports
        WHERE user_id = ?
        ORDER BY created_at DESC, seq DESC
    `
	args := []any{string(userID)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := []domain.Report{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		var r domain.Report
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("Skipping report with unreadable payload")
			continue
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// ImportSnapshot copies users and reports into the database. A snapshot user
// whose nickname key is already taken is merged into the stored user: its
// reports are imported under the stored id. Reports whose id already exists
// are left untouched.
func (s *SQLiteStore) ImportSnapshot(ctx context.Context, snap *Snapshot) (users int, reports int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	storedIDs := make(map[domain.UserID]domain.UserID, len(snap.Users))
	for key, u := range snap.Users {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO users (id, nickname_key, nickname, created_at) VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING",
			string(u.ID), key, u.Nickname, u.CreatedAt.UnixNano())
		if err != nil {
			return 0, 0, fmt.Errorf("failed to import user %s: %w", u.ID, err)
		}
		affected, _ := res.RowsAffected()
		users += int(affected)

		var stored string
		if err := tx.QueryRowContext(ctx, "SELECT id FROM users WHERE nickname_key = ?", key).Scan(&stored); err != nil {
			return 0, 0, fmt.Errorf("failed to resolve imported user %q: %w", key, err)
		}
		if domain.UserID(stored) != u.ID {
			log.WithFields(log.Fields{"snapshot_user_id": u.ID, "user_id": stored}).Info("Merging imported user into existing user")
		}
		storedIDs[u.ID] = domain.UserID(stored)
	}

	for userID, list := range snap.Reports {
		target := userID
		if stored, ok := storedIDs[userID]; ok {
			target = stored
		}
		for _, r := range list {
			r.UserID = target
			payload, err := json.Marshal(r)
			if err != nil {
				return 0, 0, fmt.Errorf("failed to marshal report %s: %w", r.ID, err)
			}
			res, err := tx.ExecContext(ctx,
				"INSERT INTO reports (id, user_id, created_at, payload) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING",
				string(r.ID), string(target), r.CreatedAt.UnixNano(), string(payload))
			if err != nil {
				return 0, 0, fmt.Errorf("failed to import report %s: %w", r.ID, err)
			}
			affected, _ := res.RowsAffected()
			reports += int(affected)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return users, reports, nil
}
