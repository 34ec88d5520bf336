package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGStore persists sessions and preferences in Postgres so a restarted
// or horizontally scaled portal keeps its sessions.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func OpenPG(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing pool, used by tests with sqlmock.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) DB() *sql.DB { return s.db }

func (s *PGStore) Save(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		insert into portal_sessions(id, user_id, access_token, refresh_token, user_json, org_json, roles_json, portal, currency, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,coalesce(nullif($10, timestamptz 'epoch'), now()),now())
		on conflict (id) do update set
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			user_json = excluded.user_json,
			org_json = excluded.org_json,
			roles_json = excluded.roles_json,
			portal = excluded.portal,
			currency = excluded.currency,
			updated_at = now()
	`, rec.ID, rec.UserID, rec.AccessToken, rec.RefreshToken, rec.UserJSON, rec.OrgJSON, rec.RolesJSON, rec.Portal, rec.Currency, rec.CreatedAt)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Record, error) {
	rec := &Record{}
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, access_token, coalesce(refresh_token,''), user_json, org_json, roles_json, coalesce(portal,''), coalesce(currency,''), created_at, updated_at
		from portal_sessions where id=$1
	`, id).Scan(&rec.ID, &rec.UserID, &rec.AccessToken, &rec.RefreshToken, &rec.UserJSON, &rec.OrgJSON, &rec.RolesJSON, &rec.Portal, &rec.Currency, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `delete from portal_sessions where id=$1`, id)
	return err
}

func (s *PGStore) SavePreference(ctx context.Context, userID string, pref Preference) error {
	_, err := s.db.ExecContext(ctx, `
		insert into portal_preferences(user_id, portal, currency, updated_at)
		values ($1,$2,$3,now())
		on conflict (user_id) do update set
			portal = excluded.portal,
			currency = excluded.currency,
			updated_at = now()
	`, userID, pref.Portal, pref.Currency)
	return err
}

func (s *PGStore) FindPreference(ctx context.Context, userID string) (Preference, error) {
	var pref Preference
	err := s.db.QueryRowContext(ctx, `
		select coalesce(portal,''), coalesce(currency,'')
		from portal_preferences where user_id=$1
	`, userID).Scan(&pref.Portal, &pref.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return Preference{}, ErrNotFound
	}
	if err != nil {
		return Preference{}, err
	}
	return pref, nil
}
