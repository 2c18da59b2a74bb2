package store

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

	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/cowin"
	logx "github.com/abhijithasokan/cowin-slot-availability-telegram-bot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

var ErrNotFound = errors.New("store: not found")

type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store: sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
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

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertSubscriber inserts or replaces a subscriber's onboarding data.
// A re-onboarding user keeps their subscription flag.
func (s *Store) UpsertSubscriber(ctx context.Context, sub Subscriber) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers(user_id, username, full_name, subscribed, area_type, area_code, min_age, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   username=excluded.username,
		   full_name=excluded.full_name,
		   area_type=excluded.area_type,
		   area_code=excluded.area_code,
		   min_age=excluded.min_age,
		   updated_at=excluded.updated_at`,
		sub.UserID, nullStr(sub.Username), nullStr(sub.FullName), boolInt(sub.Subscribed),
		string(sub.AreaType), sub.AreaCode, sub.MinAge, now, now,
	)
	return err
}

// SetSubscribed pauses or resumes updates for a subscriber (soft toggle).
func (s *Store) SetSubscribed(ctx context.Context, userID int64, subscribed bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET subscribed=?, updated_at=? WHERE user_id=?`,
		boolInt(subscribed), time.Now().UTC().Format(time.RFC3339), userID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetSubscriber(ctx context.Context, userID int64) (*Subscriber, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, full_name, subscribed, area_type, area_code, min_age
		 FROM subscribers WHERE user_id=?`, userID)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ActiveSubscribers returns the snapshot of subscribers participating in a
// cycle. Callers treat it as consistent for the whole cycle.
func (s *Store) ActiveSubscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, username, full_name, subscribed, area_type, area_code, min_age
		 FROM subscribers WHERE subscribed=1 ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

// AreaUpdates loads every segment's last-broadcast record.
func (s *Store) AreaUpdates(ctx context.Context) (map[AreaKey]AreaUpdate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT area_type, area_code, min_age, summary, sent_at FROM area_updates`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[AreaKey]AreaUpdate)
	for rows.Next() {
		var (
			areaType string
			rec      AreaUpdate
			sentMS   int64
		)
		if err := rows.Scan(&areaType, &rec.Key.AreaCode, &rec.Key.MinAge, &rec.Summary, &sentMS); err != nil {
			return nil, err
		}
		rec.Key.AreaType = cowin.AreaType(areaType)
		rec.SentAt = time.UnixMilli(sentMS)
		out[rec.Key] = rec
	}
	return out, rows.Err()
}

// CommitCycle applies every staged area record and the delivery accounting
// for one broadcast cycle in a single transaction. A crash before this commit
// re-notifies next cycle (at-least-once) instead of losing state.
func (s *Store) CommitCycle(ctx context.Context, updates []AreaUpdate, delivered []int64, at time.Time) error {
	if len(updates) == 0 && len(delivered) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range updates {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO area_updates(area_type, area_code, min_age, summary, sent_at)
			 VALUES(?,?,?,?,?)
			 ON CONFLICT(area_type, area_code, min_age) DO UPDATE SET
			   summary=excluded.summary, sent_at=excluded.sent_at`,
			string(rec.Key.AreaType), rec.Key.AreaCode, rec.Key.MinAge,
			rec.Summary, rec.SentAt.UnixMilli(),
		); err != nil {
			return err
		}
	}

	ms := at.UnixMilli()
	for _, userID := range delivered {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO broadcast_stats(user_id, messages_sent, last_sent_at)
			 VALUES(?,1,?)
			 ON CONFLICT(user_id) DO UPDATE SET
			   messages_sent=messages_sent+1, last_sent_at=excluded.last_sent_at`,
			userID, ms,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) GetBroadcastStats(ctx context.Context, userID int64) (*BroadcastStats, error) {
	var (
		st BroadcastStats
		ms sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, messages_sent, last_sent_at FROM broadcast_stats WHERE user_id=?`,
		userID).Scan(&st.UserID, &st.MessagesSent, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if ms.Valid {
		st.LastSentAt = time.UnixMilli(ms.Int64)
	}
	return &st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row rowScanner) (*Subscriber, error) {
	var (
		sub        Subscriber
		username   sql.NullString
		fullName   sql.NullString
		subscribed int
		areaType   string
	)
	if err := row.Scan(&sub.UserID, &username, &fullName, &subscribed, &areaType, &sub.AreaCode, &sub.MinAge); err != nil {
		return nil, err
	}
	sub.Username = username.String
	sub.FullName = fullName.String
	sub.Subscribed = subscribed != 0
	sub.AreaType = cowin.AreaType(areaType)
	return &sub, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
