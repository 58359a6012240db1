// Package model holds the data shared by the dialog engine, the search pipeline and the stores.
package model

import (
	"fmt"
	"time"
)

// Sex of a profile as reported by the social network.
type Sex int

const (
	SexUnknown Sex = 0
	SexFemale  Sex = 1
	SexMale    Sex = 2
)

// Opposite returns the sex searched for on behalf of s.
func (s Sex) Opposite() (Sex, bool) {
	switch s {
	case SexFemale:
		return SexMale, true
	case SexMale:
		return SexFemale, true
	default:
		return SexUnknown, false
	}
}

// UserState is the persisted dialog state of a bot user.
type UserState string

const (
	StateNewUser      UserState = "new_user"
	StateMainMenu     UserState = "main_menu"
	StateSearching    UserState = "searching"
	StateFavoriteList UserState = "favorite_list"
	StateBlacklist    UserState = "blacklist"
	StateAuth         UserState = "auth"
)

// Valid reports whether s names one of the known states.
func (s UserState) Valid() bool {
	switch s {
	case StateNewUser, StateMainMenu, StateSearching, StateFavoriteList, StateBlacklist, StateAuth:
		return true
	}
	return false
}

// Profile is a snapshot of a social network profile.
type Profile struct {
	ID        int64
	FirstName string
	LastName  string
	Nickname  string
	Sex       Sex
	// Birthday is set only when the full date including year is known.
	Birthday *time.Time
	// BirthdayRaw keeps a partial date such as "21.9" when the year is hidden.
	BirthdayRaw string
	CityID      int64
	City        string
	Online      bool
	HasPhoto    bool
	URL         string
}

// DisplayName returns "First Last" or an id-based fallback.
func (p Profile) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	default:
		return fmt.Sprintf("id%d", p.ID)
	}
}

// Age returns full years at now when the birthday is known.
func (p Profile) Age(now time.Time) (int, bool) {
	if p.Birthday == nil {
		return 0, false
	}
	b := *p.Birthday
	age := now.Year() - b.Year()
	if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
		age--
	}
	return max(age, 0), true
}

// User is a bot user together with the profile it is linked to.
type User struct {
	// ID identifies the user on the messaging transport.
	ID      int64
	State   UserState
	Profile Profile
}

// Linked reports whether the user has a social network profile attached.
func (u User) Linked() bool {
	return u.Profile.ID != 0
}

// Progress keeps per-user navigation positions.
type Progress struct {
	UserID             int64
	LastState          UserState
	LastFoundID        int64
	LastFavIndex       int
	LastFavID          int64
	LastBlacklistIndex int
	LastBlacklistID    int64
}

// NewProgress returns the defaults applied when a user has no progress yet.
func NewProgress(userID int64) Progress {
	return Progress{UserID: userID, LastState: StateMainMenu}
}

// ListKind selects one of the two per-user candidate lists.
type ListKind int

const (
	Favorites ListKind = iota + 1
	Blacklist
)

// Other returns the list a candidate is removed from when added to k.
func (k ListKind) Other() ListKind {
	if k == Favorites {
		return Blacklist
	}
	return Favorites
}

func (k ListKind) String() string {
	switch k {
	case Favorites:
		return "favorite"
	case Blacklist:
		return "blacklist"
	default:
		return fmt.Sprintf("ListKind(%d)", int(k))
	}
}

// ListEntry is one candidate stored in a favorite list or a blacklist.
type ListEntry struct {
	UserID    int64
	ProfileID int64
	CreatedAt time.Time
}

// AuthRecord stores the OAuth grant that links a bot user to a profile.
type AuthRecord struct {
	UserID       int64
	ProfileID    int64
	AccessToken  string
	RefreshToken string
	DeviceID     string
	ExpiresAt    time.Time
	Scope        string
}

// Expired reports whether the access token must be refreshed at now.
func (r AuthRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// SearchSort is the ordering of a search pass.
type SearchSort int

const (
	SortRelevance SearchSort = iota
	SortNewest
)

// SearchQuery describes the candidate filter derived from the requester's profile.
type SearchQuery struct {
	Sex      Sex
	CityID   int64
	AgeMin   int
	AgeMax   int
	Online   bool
	HasPhoto bool
	Sort     SearchSort
}

// Matches reports whether p still satisfies q at now. A hidden birthday passes the age check.
func (q SearchQuery) Matches(p Profile, now time.Time) bool {
	if q.Sex != SexUnknown && p.Sex != q.Sex {
		return false
	}
	if q.CityID != 0 && p.CityID != q.CityID {
		return false
	}
	if q.Online && !p.Online {
		return false
	}
	if q.HasPhoto && !p.HasPhoto {
		return false
	}
	if age, ok := p.Age(now); ok && (age < q.AgeMin || age > q.AgeMax) {
		return false
	}
	return true
}

// Photo is a profile photo with its popularity.
type Photo struct {
	ID      int64
	OwnerID int64
	Likes   int
	URL     string
}
