package vk

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/vkinder/internal/model"
	"github.com/m3rciful/vkinder/internal/provider"
)

const profileFields = "sex,bdate,city,online,has_photo,domain,nickname"

// searchPageSize is the largest page users.search returns.
const searchPageSize = 1000

// API sort orders of users.search.
const (
	sortPopularity   = 0
	sortRegistration = 1
)

type cityJSON struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type userJSON struct {
	ID          int64     `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Nickname    string    `json:"nickname"`
	Domain      string    `json:"domain"`
	Sex         int       `json:"sex"`
	BDate       string    `json:"bdate"`
	City        *cityJSON `json:"city"`
	Online      int       `json:"online"`
	HasPhoto    int       `json:"has_photo"`
	Deactivated string    `json:"deactivated"`
	IsClosed    bool      `json:"is_closed"`
	CanAccess   bool      `json:"can_access_closed"`
}

func (u userJSON) profile() model.Profile {
	p := model.Profile{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Nickname:  u.Nickname,
		Sex:       model.Sex(u.Sex),
		Online:    u.Online == 1,
		HasPhoto:  u.HasPhoto == 1,
		URL:       profileURL(u.ID, u.Domain),
	}
	if p.Sex != model.SexFemale && p.Sex != model.SexMale {
		p.Sex = model.SexUnknown
	}
	if u.City != nil {
		p.CityID, p.City = u.City.ID, u.City.Title
	}
	p.Birthday, p.BirthdayRaw = parseBirthday(u.BDate)
	return p
}

func profileURL(id int64, domain string) string {
	if domain == "" {
		domain = "id" + idString(id)
	}
	return "https://vk.com/" + domain
}

var birthdayLayouts = []string{"2.1.2006", "02.01.2006"}

// parseBirthday returns the full date when the year is published, and the raw value otherwise.
func parseBirthday(raw string) (*time.Time, string) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, ""
	}
	for _, layout := range birthdayLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return &t, s
		}
	}
	return nil, s
}

// GetProfile fetches one profile with the service token.
func (c *Client) GetProfile(ctx context.Context, id int64) (model.Profile, error) {
	var users []userJSON
	params := url.Values{"user_ids": {idString(id)}, "fields": {profileFields}}
	if err := c.call(ctx, "users.get", c.serviceToken, params, &users); err != nil {
		return model.Profile{}, err
	}
	if len(users) == 0 || users[0].Deactivated != "" {
		return model.Profile{}, &provider.Error{Op: "users.get", Msg: fmt.Sprintf("profile %d is unavailable", id), Err: provider.ErrNotFound}
	}
	return users[0].profile(), nil
}

// Search runs one users.search page and returns the ids of open profiles.
func (c *Client) Search(ctx context.Context, token string, q model.SearchQuery) ([]int64, error) {
	params := url.Values{
		"count":    {strconv.Itoa(searchPageSize)},
		"sort":     {strconv.Itoa(searchSort(q.Sort))},
		"sex":      {strconv.Itoa(int(q.Sex))},
		"age_from": {strconv.Itoa(q.AgeMin)},
		"age_to":   {strconv.Itoa(q.AgeMax)},
	}
	if q.CityID != 0 {
		params.Set("city", idString(q.CityID))
	}
	if q.Online {
		params.Set("online", "1")
	}
	if q.HasPhoto {
		params.Set("has_photo", "1")
	}

	var page struct {
		Count int        `json:"count"`
		Items []userJSON `json:"items"`
	}
	if err := c.call(ctx, "users.search", token, params, &page); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(page.Items))
	for _, u := range page.Items {
		if u.IsClosed && !u.CanAccess {
			continue
		}
		ids = append(ids, u.ID)
	}
	return ids, nil
}

func searchSort(s model.SearchSort) int {
	if s == model.SortNewest {
		return sortRegistration
	}
	return sortPopularity
}

// ValidateToken reports whether token is accepted by the API.
func (c *Client) ValidateToken(ctx context.Context, token string) bool {
	if strings.TrimSpace(token) == "" {
		return false
	}
	var users []userJSON
	return c.call(ctx, "users.get", token, url.Values{}, &users) == nil && len(users) > 0
}

// AccessRights returns the permissions requested from users.
func (c *Client) AccessRights() string {
	return c.rights
}
