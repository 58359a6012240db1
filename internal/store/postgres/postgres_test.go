package postgres

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/m3rciful/vkinder/internal/model"
	"github.com/m3rciful/vkinder/internal/store"
)

func TestListSQL(t *testing.T) {
	assert.Equal(t, "SELECT count(*) FROM favorite WHERE user_id = $1", listSQL(countEntrySQL, model.Favorites))
	assert.Equal(t, "SELECT count(*) FROM blacklist WHERE user_id = $1", listSQL(countEntrySQL, model.Blacklist))
}

func TestUserRowRoundTrip(t *testing.T) {
	birthday := time.Date(1995, time.May, 4, 0, 0, 0, 0, time.UTC)
	u := model.User{
		ID:    11,
		State: model.StateFavoriteList,
		Profile: model.Profile{
			ID: 22, FirstName: "Ivan", Sex: model.SexMale, Birthday: &birthday,
			CityID: 1, City: "Moscow", Online: true, URL: "https://vk.com/id22",
		},
	}
	row := toUserRow(u)
	assert.True(t, row.Birthday.Valid)
	assert.Equal(t, u, row.model())

	u.Profile.Birthday = nil
	assert.False(t, toUserRow(u).Birthday.Valid)
}

func TestWrapMapsNoRows(t *testing.T) {
	assert.NoError(t, wrap("get user", nil))
	assert.ErrorIs(t, wrap("get user", sql.ErrNoRows), store.ErrNotFound)
	err := wrap("save user", fmt.Errorf("conn reset"))
	assert.EqualError(t, err, "postgres: save user: conn reset")
}

func TestWrapMapsForeignKeyViolation(t *testing.T) {
	fk := &pq.Error{Code: "23503", Message: `insert or update on table "auth_data" violates foreign key constraint`}
	err := wrap("save auth", fk)
	assert.ErrorIs(t, err, store.ErrUnknownUser)
	assert.ErrorAs(t, err, new(*pq.Error))

	assert.NotErrorIs(t, wrap("save auth", &pq.Error{Code: "23505"}), store.ErrUnknownUser)
}
