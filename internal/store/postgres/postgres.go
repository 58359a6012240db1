// Package postgres implements store.Store on PostgreSQL through sqlx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/vkinder/internal/model"
	"github.com/m3rciful/vkinder/internal/store"
)

const (
	selectUserSQL = `
SELECT id, state, profile_id, first_name, last_name, nickname, sex, birthday, birthday_raw,
       city_id, city, online, has_photo, url
FROM users WHERE id = $1`

	upsertUserSQL = `
INSERT INTO users (id, state, profile_id, first_name, last_name, nickname, sex, birthday,
                   birthday_raw, city_id, city, online, has_photo, url)
VALUES (:id, :state, :profile_id, :first_name, :last_name, :nickname, :sex, :birthday,
        :birthday_raw, :city_id, :city, :online, :has_photo, :url)
ON CONFLICT (id) DO UPDATE SET
    state = EXCLUDED.state,
    profile_id = EXCLUDED.profile_id,
    first_name = EXCLUDED.first_name,
    last_name = EXCLUDED.last_name,
    nickname = EXCLUDED.nickname,
    sex = EXCLUDED.sex,
    birthday = EXCLUDED.birthday,
    birthday_raw = EXCLUDED.birthday_raw,
    city_id = EXCLUDED.city_id,
    city = EXCLUDED.city,
    online = EXCLUDED.online,
    has_photo = EXCLUDED.has_photo,
    url = EXCLUDED.url,
    updated_at = now()`

	selectProgressSQL = `
SELECT user_id, last_state, last_found_id, last_fav_index, last_fav_id,
       last_blacklist_index, last_blacklist_id
FROM user_progress WHERE user_id = $1`

	upsertProgressSQL = `
INSERT INTO user_progress (user_id, last_state, last_found_id, last_fav_index, last_fav_id,
                           last_blacklist_index, last_blacklist_id)
VALUES (:user_id, :last_state, :last_found_id, :last_fav_index, :last_fav_id,
        :last_blacklist_index, :last_blacklist_id)
ON CONFLICT (user_id) DO UPDATE SET
    last_state = EXCLUDED.last_state,
    last_found_id = EXCLUDED.last_found_id,
    last_fav_index = EXCLUDED.last_fav_index,
    last_fav_id = EXCLUDED.last_fav_id,
    last_blacklist_index = EXCLUDED.last_blacklist_index,
    last_blacklist_id = EXCLUDED.last_blacklist_id`

	selectAuthSQL = `
SELECT user_id, profile_id, access_token, refresh_token, device_id, expires_at, scope
FROM auth_data WHERE user_id = $1`

	upsertAuthSQL = `
INSERT INTO auth_data (user_id, profile_id, access_token, refresh_token, device_id, expires_at, scope)
VALUES (:user_id, :profile_id, :access_token, :refresh_token, :device_id, :expires_at, :scope)
ON CONFLICT (user_id) DO UPDATE SET
    profile_id = EXCLUDED.profile_id,
    access_token = EXCLUDED.access_token,
    refresh_token = EXCLUDED.refresh_token,
    device_id = EXCLUDED.device_id,
    expires_at = EXCLUDED.expires_at,
    scope = EXCLUDED.scope`

	deleteAuthSQL = `DELETE FROM auth_data WHERE user_id = $1`
)

// List statements are formatted with the table name of the list kind.
const (
	addEntrySQL    = `INSERT INTO %s (user_id, profile_id) VALUES ($1, $2) ON CONFLICT (user_id, profile_id) DO NOTHING`
	deleteEntrySQL = `DELETE FROM %s WHERE user_id = $1 AND profile_id = $2`
	countEntrySQL  = `SELECT count(*) FROM %s WHERE user_id = $1`
	entryAtSQL     = `SELECT user_id, profile_id, created_at FROM %s WHERE user_id = $1 ORDER BY seq OFFSET $2 LIMIT 1`
	entryIDsSQL    = `SELECT profile_id FROM %s WHERE user_id = $1 ORDER BY seq`
)

// Store is a PostgreSQL backed store.Store.
type Store struct {
	db *sqlx.DB
}

// New wraps an open connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Begin starts a read-committed transaction.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) Commit() error   { return t.tx.Commit() }
func (t *pgTx) Rollback() error { return t.tx.Rollback() }

type userRow struct {
	ID          int64        `db:"id"`
	State       string       `db:"state"`
	ProfileID   int64        `db:"profile_id"`
	FirstName   string       `db:"first_name"`
	LastName    string       `db:"last_name"`
	Nickname    string       `db:"nickname"`
	Sex         int          `db:"sex"`
	Birthday    sql.NullTime `db:"birthday"`
	BirthdayRaw string       `db:"birthday_raw"`
	CityID      int64        `db:"city_id"`
	City        string       `db:"city"`
	Online      bool         `db:"online"`
	HasPhoto    bool         `db:"has_photo"`
	URL         string       `db:"url"`
}

func toUserRow(u model.User) userRow {
	p := u.Profile
	row := userRow{
		ID:          u.ID,
		State:       string(u.State),
		ProfileID:   p.ID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Nickname:    p.Nickname,
		Sex:         int(p.Sex),
		BirthdayRaw: p.BirthdayRaw,
		CityID:      p.CityID,
		City:        p.City,
		Online:      p.Online,
		HasPhoto:    p.HasPhoto,
		URL:         p.URL,
	}
	if p.Birthday != nil {
		row.Birthday = sql.NullTime{Time: *p.Birthday, Valid: true}
	}
	return row
}

func (r userRow) model() model.User {
	u := model.User{
		ID:    r.ID,
		State: model.UserState(r.State),
		Profile: model.Profile{
			ID:          r.ProfileID,
			FirstName:   r.FirstName,
			LastName:    r.LastName,
			Nickname:    r.Nickname,
			Sex:         model.Sex(r.Sex),
			BirthdayRaw: r.BirthdayRaw,
			CityID:      r.CityID,
			City:        r.City,
			Online:      r.Online,
			HasPhoto:    r.HasPhoto,
			URL:         r.URL,
		},
	}
	if r.Birthday.Valid {
		b := r.Birthday.Time
		u.Profile.Birthday = &b
	}
	return u
}

type progressRow struct {
	UserID             int64  `db:"user_id"`
	LastState          string `db:"last_state"`
	LastFoundID        int64  `db:"last_found_id"`
	LastFavIndex       int    `db:"last_fav_index"`
	LastFavID          int64  `db:"last_fav_id"`
	LastBlacklistIndex int    `db:"last_blacklist_index"`
	LastBlacklistID    int64  `db:"last_blacklist_id"`
}

type authRow struct {
	UserID       int64        `db:"user_id"`
	ProfileID    int64        `db:"profile_id"`
	AccessToken  string       `db:"access_token"`
	RefreshToken string       `db:"refresh_token"`
	DeviceID     string       `db:"device_id"`
	ExpiresAt    sql.NullTime `db:"expires_at"`
	Scope        string       `db:"scope"`
}

type entryRow struct {
	UserID    int64     `db:"user_id"`
	ProfileID int64     `db:"profile_id"`
	CreatedAt time.Time `db:"created_at"`
}

func (t *pgTx) GetUser(ctx context.Context, id int64) (model.User, error) {
	var row userRow
	if err := t.tx.GetContext(ctx, &row, selectUserSQL, id); err != nil {
		return model.User{}, wrap("get user", err)
	}
	return row.model(), nil
}

func (t *pgTx) SaveUser(ctx context.Context, u model.User) error {
	_, err := t.tx.NamedExecContext(ctx, upsertUserSQL, toUserRow(u))
	return wrap("save user", err)
}

func (t *pgTx) GetProgress(ctx context.Context, userID int64) (model.Progress, error) {
	var row progressRow
	err := t.tx.GetContext(ctx, &row, selectProgressSQL, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewProgress(userID), nil
	}
	if err != nil {
		return model.Progress{}, wrap("get progress", err)
	}
	return model.Progress{
		UserID:             row.UserID,
		LastState:          model.UserState(row.LastState),
		LastFoundID:        row.LastFoundID,
		LastFavIndex:       row.LastFavIndex,
		LastFavID:          row.LastFavID,
		LastBlacklistIndex: row.LastBlacklistIndex,
		LastBlacklistID:    row.LastBlacklistID,
	}, nil
}

func (t *pgTx) SaveProgress(ctx context.Context, p model.Progress) error {
	_, err := t.tx.NamedExecContext(ctx, upsertProgressSQL, progressRow{
		UserID:             p.UserID,
		LastState:          string(p.LastState),
		LastFoundID:        p.LastFoundID,
		LastFavIndex:       p.LastFavIndex,
		LastFavID:          p.LastFavID,
		LastBlacklistIndex: p.LastBlacklistIndex,
		LastBlacklistID:    p.LastBlacklistID,
	})
	return wrap("save progress", err)
}

func (t *pgTx) GetAuth(ctx context.Context, userID int64) (model.AuthRecord, error) {
	var row authRow
	if err := t.tx.GetContext(ctx, &row, selectAuthSQL, userID); err != nil {
		return model.AuthRecord{}, wrap("get auth", err)
	}
	rec := model.AuthRecord{
		UserID:       row.UserID,
		ProfileID:    row.ProfileID,
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		DeviceID:     row.DeviceID,
		Scope:        row.Scope,
	}
	if row.ExpiresAt.Valid {
		rec.ExpiresAt = row.ExpiresAt.Time
	}
	return rec, nil
}

func (t *pgTx) SaveAuth(ctx context.Context, rec model.AuthRecord) error {
	row := authRow{
		UserID:       rec.UserID,
		ProfileID:    rec.ProfileID,
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		DeviceID:     rec.DeviceID,
		ExpiresAt:    sql.NullTime{Time: rec.ExpiresAt, Valid: !rec.ExpiresAt.IsZero()},
		Scope:        rec.Scope,
	}
	_, err := t.tx.NamedExecContext(ctx, upsertAuthSQL, row)
	return wrap("save auth", err)
}

func (t *pgTx) DeleteAuth(ctx context.Context, userID int64) error {
	_, err := t.tx.ExecContext(ctx, deleteAuthSQL, userID)
	return wrap("delete auth", err)
}

func (t *pgTx) AddEntry(ctx context.Context, kind model.ListKind, userID, profileID int64) error {
	_, err := t.tx.ExecContext(ctx, listSQL(addEntrySQL, kind), userID, profileID)
	return wrap("add "+kind.String(), err)
}

func (t *pgTx) DeleteEntry(ctx context.Context, kind model.ListKind, userID, profileID int64) error {
	_, err := t.tx.ExecContext(ctx, listSQL(deleteEntrySQL, kind), userID, profileID)
	return wrap("delete "+kind.String(), err)
}

func (t *pgTx) CountEntries(ctx context.Context, kind model.ListKind, userID int64) (int, error) {
	var n int
	err := t.tx.GetContext(ctx, &n, listSQL(countEntrySQL, kind), userID)
	return n, wrap("count "+kind.String(), err)
}

func (t *pgTx) EntryAt(ctx context.Context, kind model.ListKind, userID int64, index int) (model.ListEntry, error) {
	var row entryRow
	if err := t.tx.GetContext(ctx, &row, listSQL(entryAtSQL, kind), userID, index); err != nil {
		return model.ListEntry{}, wrap("get "+kind.String()+" entry", err)
	}
	return model.ListEntry(row), nil
}

func (t *pgTx) EntryIDs(ctx context.Context, kind model.ListKind, userID int64) ([]int64, error) {
	var ids []int64
	err := t.tx.SelectContext(ctx, &ids, listSQL(entryIDsSQL, kind), userID)
	return ids, wrap("list "+kind.String(), err)
}

// listSQL binds a statement template to the table of kind.
func listSQL(tmpl string, kind model.ListKind) string {
	table := "favorite"
	if kind == model.Blacklist {
		table = "blacklist"
	}
	return fmt.Sprintf(tmpl, table)
}

func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("postgres: %s: %w", op, store.ErrNotFound)
	case isForeignKeyViolation(err):
		return fmt.Errorf("postgres: %s: %w: %w", op, store.ErrUnknownUser, err)
	default:
		return fmt.Errorf("postgres: %s: %w", op, err)
	}
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
