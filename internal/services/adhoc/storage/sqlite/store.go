// Package sqlite provides SQLite-backed persistence for ad-hoc sessions.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/gathering.space/internal/platform/id"
	sqlitemigrate "github.com/louisbranch/gathering.space/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/gathering.space/internal/services/adhoc/domain"
	"github.com/louisbranch/gathering.space/internal/services/adhoc/storage"
	"github.com/louisbranch/gathering.space/internal/services/adhoc/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

const settingAdhocEnabled = "adhoc_enabled"

// Store provides SQLite-backed session, roster, and binding persistence.
type Store struct {
	sqlDB *sql.DB
	newID func() (string, error)
}

// Open opens an ad-hoc SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, newID: id.NewID}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateSession persists a new session row and returns its identifier.
func (s *Store) CreateSession(ctx context.Context, input storage.NewSessionInput) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}

	input.BindingID = strings.TrimSpace(input.BindingID)
	input.CreatedBy = strings.TrimSpace(input.CreatedBy)
	if input.BindingID == "" {
		return "", fmt.Errorf("binding id is required")
	}
	if input.CreatedBy == "" {
		return "", fmt.Errorf("creator is required")
	}
	if input.Status == "" {
		input.Status = domain.StatusLive
	}
	if !input.EndsAt.After(input.StartsAt) {
		return "", fmt.Errorf("session window end must follow start")
	}

	sessionID, err := s.newID()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO sessions (
	id,
	binding_id,
	game_id,
	game_name,
	status,
	ad_hoc,
	created_by,
	starts_at,
	ends_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		sessionID,
		input.BindingID,
		nullableString(input.GameID),
		input.GameName,
		string(input.Status),
		boolToInt(input.AdHoc),
		input.CreatedBy,
		input.StartsAt.UTC().UnixMilli(),
		input.EndsAt.UTC().UnixMilli(),
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return sessionID, nil
}

// GetSession returns one session row.
func (s *Store) GetSession(ctx context.Context, sessionID string) (storage.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SessionRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SessionRecord{}, fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return storage.SessionRecord{}, fmt.Errorf("session id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, binding_id, game_id, game_name, status, ad_hoc, created_by, starts_at, ends_at, canceled_at
FROM sessions
WHERE id = ?
`, sessionID)
	record, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SessionRecord{}, storage.ErrNotFound
		}
		return storage.SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	return record, nil
}

// UpdateSessionStatus performs a conditional status transition.
//
// The transition is a single conditional UPDATE so concurrent claimers cannot
// both observe the `from` status; exactly one caller wins.
func (s *Store) UpdateSessionStatus(ctx context.Context, sessionID string, from, to domain.Status) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, fmt.Errorf("session id is required")
	}
	if _, err := domain.ParseStatus(string(from)); err != nil {
		return false, err
	}
	if _, err := domain.ParseStatus(string(to)); err != nil {
		return false, err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE sessions
SET status = ?, updated_at = ?
WHERE id = ? AND status = ? AND canceled_at IS NULL
`,
		string(to),
		time.Now().UTC().UnixMilli(),
		sessionID,
		string(from),
	)
	if err != nil {
		return false, fmt.Errorf("update session status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update session status rows: %w", err)
	}
	return affected == 1, nil
}

// ExtendSessionWindow sets the session end time.
func (s *Store) ExtendSessionWindow(ctx context.Context, sessionID string, endsAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE sessions
SET ends_at = ?, updated_at = ?
WHERE id = ?
`,
		endsAt.UTC().UnixMilli(),
		time.Now().UTC().UnixMilli(),
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("extend session window: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("extend session window rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListLiveSessions returns non-cancelled live sessions for startup recovery.
func (s *Store) ListLiveSessions(ctx context.Context) ([]storage.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, binding_id, game_id, game_name, status, ad_hoc, created_by, starts_at, ends_at, canceled_at
FROM sessions
WHERE status = ? AND canceled_at IS NULL
ORDER BY starts_at ASC, id ASC
`, string(domain.StatusLive))
	if err != nil {
		return nil, fmt.Errorf("list live sessions: %w", err)
	}
	defer rows.Close()

	var records []storage.SessionRecord
	for rows.Next() {
		record, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan live session: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate live sessions: %w", err)
	}
	return records, nil
}

// FindOverlappingScheduledSession returns a non-ad-hoc session for the binding
// and game whose window overlaps [from, to).
//
// A nil game only matches scheduled sessions without a game of their own; the
// null bucket does not inherit game-specific schedules.
func (s *Store) FindOverlappingScheduledSession(ctx context.Context, bindingID string, gameID *string, from, to time.Time) (storage.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SessionRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SessionRecord{}, fmt.Errorf("storage is not configured")
	}
	bindingID = strings.TrimSpace(bindingID)
	if bindingID == "" {
		return storage.SessionRecord{}, fmt.Errorf("binding id is required")
	}

	game := nullableString(gameID)
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, binding_id, game_id, game_name, status, ad_hoc, created_by, starts_at, ends_at, canceled_at
FROM sessions
WHERE binding_id = ?
  AND ad_hoc = 0
  AND canceled_at IS NULL
  AND ((? IS NULL AND game_id IS NULL) OR game_id = ?)
  AND ends_at > ?
  AND starts_at < ?
ORDER BY ends_at DESC
LIMIT 1
`,
		bindingID,
		game,
		game,
		from.UTC().UnixMilli(),
		to.UTC().UnixMilli(),
	)
	record, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SessionRecord{}, storage.ErrNotFound
		}
		return storage.SessionRecord{}, fmt.Errorf("find overlapping scheduled session: %w", err)
	}
	return record, nil
}

// MarkSessionCanceled stamps a session as cancelled out of band.
func (s *Store) MarkSessionCanceled(ctx context.Context, sessionID string, canceledAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE sessions
SET canceled_at = ?, updated_at = ?
WHERE id = ? AND canceled_at IS NULL
`,
		canceledAt.UTC().UnixMilli(),
		time.Now().UTC().UnixMilli(),
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("mark session canceled: %w", err)
	}
	if _, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("mark session canceled rows: %w", err)
	}
	return nil
}

// AddParticipant records a member as present. Adding a member who already has
// an open presence span is a no-op.
func (s *Store) AddParticipant(ctx context.Context, sessionID string, member domain.Member, joinedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	memberID := strings.TrimSpace(member.ID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if memberID == "" {
		return fmt.Errorf("member id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO participants (session_id, member_id, display_name, joined_at)
SELECT ?, ?, ?, ?
WHERE NOT EXISTS (
	SELECT 1 FROM participants
	WHERE session_id = ? AND member_id = ? AND left_at IS NULL
)
`,
		sessionID,
		memberID,
		member.DisplayName,
		joinedAt.UTC().UnixMilli(),
		sessionID,
		memberID,
	)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

// MarkParticipantLeft stamps the member's open presence span.
func (s *Store) MarkParticipantLeft(ctx context.Context, sessionID, memberID string, leftAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	memberID = strings.TrimSpace(memberID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if memberID == "" {
		return fmt.Errorf("member id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
UPDATE participants
SET left_at = ?
WHERE session_id = ? AND member_id = ? AND left_at IS NULL
`,
		leftAt.UTC().UnixMilli(),
		sessionID,
		memberID,
	)
	if err != nil {
		return fmt.Errorf("mark participant left: %w", err)
	}
	return nil
}

// FinalizeParticipants stamps every open presence span for the session.
func (s *Store) FinalizeParticipants(ctx context.Context, sessionID string, endedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
UPDATE participants
SET left_at = ?
WHERE session_id = ? AND left_at IS NULL
`,
		endedAt.UTC().UnixMilli(),
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("finalize participants: %w", err)
	}
	return nil
}

// ListRoster returns all presence spans for the session, oldest first.
func (s *Store) ListRoster(ctx context.Context, sessionID string) ([]storage.RosterEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT session_id, member_id, display_name, joined_at, left_at
FROM participants
WHERE session_id = ?
ORDER BY joined_at ASC, id ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	defer rows.Close()

	var entries []storage.RosterEntry
	for rows.Next() {
		var entry storage.RosterEntry
		var joinedAt int64
		var leftAt sql.NullInt64
		if err := rows.Scan(
			&entry.SessionID,
			&entry.MemberID,
			&entry.DisplayName,
			&joinedAt,
			&leftAt,
		); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		entry.JoinedAt = time.UnixMilli(joinedAt).UTC()
		if leftAt.Valid {
			left := time.UnixMilli(leftAt.Int64).UTC()
			entry.LeftAt = &left
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster: %w", err)
	}
	return entries, nil
}

// GetBinding returns one channel binding.
func (s *Store) GetBinding(ctx context.Context, bindingID string) (storage.BindingRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.BindingRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.BindingRecord{}, fmt.Errorf("storage is not configured")
	}
	bindingID = strings.TrimSpace(bindingID)
	if bindingID == "" {
		return storage.BindingRecord{}, fmt.Errorf("binding id is required")
	}

	var record storage.BindingRecord
	var gameID sql.NullString
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, game_id, min_players, grace_period_minutes, notification_target, fallback_organizer_id
FROM bindings
WHERE id = ?
`, bindingID)
	if err := row.Scan(
		&record.ID,
		&gameID,
		&record.MinPlayers,
		&record.GracePeriodMinutes,
		&record.NotificationTarget,
		&record.FallbackOrganizerID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.BindingRecord{}, storage.ErrNotFound
		}
		return storage.BindingRecord{}, fmt.Errorf("get binding: %w", err)
	}
	if gameID.Valid {
		record.GameID = &gameID.String
	}
	return record, nil
}

// PutBinding creates or replaces one channel binding.
func (s *Store) PutBinding(ctx context.Context, record storage.BindingRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		return fmt.Errorf("binding id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO bindings (id, game_id, min_players, grace_period_minutes, notification_target, fallback_organizer_id)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	game_id = excluded.game_id,
	min_players = excluded.min_players,
	grace_period_minutes = excluded.grace_period_minutes,
	notification_target = excluded.notification_target,
	fallback_organizer_id = excluded.fallback_organizer_id
`,
		record.ID,
		nullableString(record.GameID),
		record.MinPlayers,
		record.GracePeriodMinutes,
		record.NotificationTarget,
		record.FallbackOrganizerID,
	)
	if err != nil {
		return fmt.Errorf("put binding: %w", err)
	}
	return nil
}

// AdhocEnabled reports the coordinator feature switch. Absent rows default to
// enabled.
func (s *Store) AdhocEnabled(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}

	var value string
	row := s.sqlDB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, settingAdhocEnabled)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("read adhoc setting: %w", err)
	}
	return value != "false", nil
}

// SetAdhocEnabled stores the coordinator feature switch.
func (s *Store) SetAdhocEnabled(ctx context.Context, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	value := "true"
	if !enabled {
		value = "false"
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO settings (key, value) VALUES (?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value
`, settingAdhocEnabled, value)
	if err != nil {
		return fmt.Errorf("write adhoc setting: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (storage.SessionRecord, error) {
	var record storage.SessionRecord
	var gameID sql.NullString
	var adHoc int
	var statusValue string
	var startsAt, endsAt int64
	var canceledAt sql.NullInt64

	if err := row.Scan(
		&record.ID,
		&record.BindingID,
		&gameID,
		&record.GameName,
		&statusValue,
		&adHoc,
		&record.CreatedBy,
		&startsAt,
		&endsAt,
		&canceledAt,
	); err != nil {
		return storage.SessionRecord{}, err
	}

	status, err := domain.ParseStatus(statusValue)
	if err != nil {
		return storage.SessionRecord{}, err
	}
	record.Status = status
	record.AdHoc = adHoc != 0
	if gameID.Valid {
		record.GameID = &gameID.String
	}
	record.StartsAt = time.UnixMilli(startsAt).UTC()
	record.EndsAt = time.UnixMilli(endsAt).UTC()
	if canceledAt.Valid {
		canceled := time.UnixMilli(canceledAt.Int64).UTC()
		record.CanceledAt = &canceled
	}
	return record, nil
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

var (
	_ storage.SessionStore     = (*Store)(nil)
	_ storage.ParticipantStore = (*Store)(nil)
	_ storage.BindingStore     = (*Store)(nil)
	_ storage.SettingsStore    = (*Store)(nil)
)
