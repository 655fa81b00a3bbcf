package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "pkkwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// timeFormat is RFC 3339 with a fixed-width fraction. Timestamps are TEXT
// columns compared lexicographically (ORDER BY created_at), and variable
// fraction lengths would break chronological order within a second.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) PutSubscription(ctx context.Context, rec SubscriptionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions(id, pkk, name, surname, created_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(pkk) DO UPDATE SET name=excluded.name, surname=excluded.surname`,
		rec.ID, rec.PKK, rec.Name, rec.Surname, rec.CreatedAt.UTC().Format(timeFormat),
	)
	return err
}

func (s *sqliteStore) DeleteSubscription(ctx context.Context, pkk string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE pkk = ?`, pkk)
	return err
}

func (s *sqliteStore) ListSubscriptions(ctx context.Context) ([]SubscriptionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pkk, name, surname, created_at FROM subscriptions ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SubscriptionRecord
	for rows.Next() {
		var rec SubscriptionRecord
		var created string
		if err := rows.Scan(&rec.ID, &rec.PKK, &rec.Name, &rec.Surname, &created); err != nil {
			return nil, err
		}
		rec.CreatedAt = parseTime(created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutContact(ctx context.Context, rec ContactRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts(id, pkk, email, push_token, updated_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(pkk) DO UPDATE SET email=excluded.email, push_token=excluded.push_token, updated_at=excluded.updated_at`,
		rec.ID, rec.PKK, nullStr(rec.Email), nullStr(rec.PushToken), rec.UpdatedAt.UTC().Format(timeFormat),
	)
	return err
}

func (s *sqliteStore) DeleteContact(ctx context.Context, pkk string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE pkk = ?`, pkk)
	return err
}

func (s *sqliteStore) ListContacts(ctx context.Context) ([]ContactRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pkk, email, push_token, updated_at FROM contacts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ContactRecord
	for rows.Next() {
		var rec ContactRecord
		var email, token sql.NullString
		var updated string
		if err := rows.Scan(&rec.ID, &rec.PKK, &email, &token, &updated); err != nil {
			return nil, err
		}
		rec.Email = email.String
		rec.PushToken = token.String
		rec.UpdatedAt = parseTime(updated)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutWatermark(ctx context.Context, rec WatermarkRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watermarks(id, pkk, history_len, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(pkk) DO UPDATE SET history_len=excluded.history_len, updated_at=excluded.updated_at`,
		rec.ID, rec.PKK, rec.HistoryLen, rec.UpdatedAt.UTC().Format(timeFormat),
	)
	return err
}

func (s *sqliteStore) DeleteWatermark(ctx context.Context, pkk string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM watermarks WHERE pkk = ?`, pkk)
	return err
}

func (s *sqliteStore) ListWatermarks(ctx context.Context) ([]WatermarkRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pkk, history_len, updated_at FROM watermarks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WatermarkRecord
	for rows.Next() {
		var rec WatermarkRecord
		var updated string
		if err := rows.Scan(&rec.ID, &rec.PKK, &rec.HistoryLen, &updated); err != nil {
			return nil, err
		}
		rec.UpdatedAt = parseTime(updated)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
