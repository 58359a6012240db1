// Package provider declares the external social network and authorization services.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/m3rciful/vkinder/internal/model"
)

var (
	// ErrToken reports a missing, expired or revoked user access token.
	ErrToken = errors.New("provider: access token rejected")
	// ErrNotFound reports a deleted, banned or hidden profile.
	ErrNotFound = errors.New("provider: profile not found")
	// ErrRefresh reports a grant that can no longer be refreshed.
	ErrRefresh = errors.New("provider: refresh rejected")
)

// Error is a provider failure that is neither a token nor a not-found error.
type Error struct {
	Op   string
	Code int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Code != 0:
		return fmt.Sprintf("provider: %s: code %d: %s: %v", e.Op, e.Code, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("provider: %s: %v", e.Op, e.Err)
	case e.Code != 0:
		return fmt.Sprintf("provider: %s: code %d: %s", e.Op, e.Code, e.Msg)
	default:
		return fmt.Sprintf("provider: %s: %s", e.Op, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind classifies provider errors for the dialog engine.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindToken
	KindNotFound
	KindProvider
)

// Kind classifies err.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrToken):
		return KindToken
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindProvider
	}
}

// ProfileProvider reads profiles, photos and search results from the social network.
type ProfileProvider interface {
	// GetProfile returns the profile with the given id using the service credentials.
	GetProfile(ctx context.Context, id int64) (model.Profile, error)
	// GetPhotos returns up to limit profile photos, most liked first when byLikes is set.
	GetPhotos(ctx context.Context, token string, ownerID int64, byLikes bool, limit int) ([]model.Photo, error)
	// Search returns candidate ids matching q in the provider's order.
	Search(ctx context.Context, token string, q model.SearchQuery) ([]int64, error)
	// ValidateToken reports whether token is accepted by the provider.
	ValidateToken(ctx context.Context, token string) bool
	// AccessRights returns the scope the bot requests from users.
	AccessRights() string
}

// AuthProvider issues authorization links and refreshes grants.
type AuthProvider interface {
	// AuthLink returns the URL the user opens to grant the requested rights.
	AuthLink(ctx context.Context, userID int64, rights string) (string, error)
	// Refresh exchanges the refresh token of rec for a new grant.
	Refresh(ctx context.Context, rec model.AuthRecord) (model.AuthRecord, error)
}
