// Package response defines the semantic replies produced by dialog states.
package response

import (
	"github.com/m3rciful/vkinder/internal/menu"
	"github.com/m3rciful/vkinder/internal/model"
)

// Kind identifies the reply variant.
type Kind int

const (
	KindUnknownCommand Kind = iota + 1
	KindGreetNewUser
	KindMenuHelp
	KindSelectMenu
	KindUserSexMissing
	KindUserCityMissing
	KindUserBirthdayMissing
	KindSearchFailed
	KindSearchError
	KindSearchResult
	KindAuthRequired
	KindAuthNotCompleted
	KindAddedToFavorite
	KindAddToFavoriteFailed
	KindAddedToBlacklist
	KindAddToBlacklistFailed
	KindFavoriteListFailed
	KindFavoriteListEmpty
	KindFavoriteResult
	KindBlacklistFailed
	KindBlacklistEmpty
	KindBlacklistResult
	KindYourProfile
	KindPhotoFailed
	KindServiceError
	KindText
	KindKeyboard
	KindAttachMedia
)

var kindNames = map[Kind]string{
	KindUnknownCommand:       "unknown_command",
	KindGreetNewUser:         "greet_new_user",
	KindMenuHelp:             "menu_help",
	KindSelectMenu:           "select_menu",
	KindUserSexMissing:       "user_sex_missing",
	KindUserCityMissing:      "user_city_missing",
	KindUserBirthdayMissing:  "user_birthday_missing",
	KindSearchFailed:         "search_failed",
	KindSearchError:          "search_error",
	KindSearchResult:         "search_result",
	KindAuthRequired:         "auth_required",
	KindAuthNotCompleted:     "auth_not_completed",
	KindAddedToFavorite:      "added_to_favorite",
	KindAddToFavoriteFailed:  "add_to_favorite_failed",
	KindAddedToBlacklist:     "added_to_blacklist",
	KindAddToBlacklistFailed: "add_to_blacklist_failed",
	KindFavoriteListFailed:   "favorite_list_failed",
	KindFavoriteListEmpty:    "favorite_list_empty",
	KindFavoriteResult:       "favorite_result",
	KindBlacklistFailed:      "blacklist_failed",
	KindBlacklistEmpty:       "blacklist_empty",
	KindBlacklistResult:      "blacklist_result",
	KindYourProfile:          "your_profile",
	KindPhotoFailed:          "photo_failed",
	KindServiceError:         "service_error",
	KindText:                 "text",
	KindKeyboard:             "keyboard",
	KindAttachMedia:          "attach_media",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Response is one reply of a turn. Only the payload fields of its Kind are set.
type Response struct {
	Kind Kind
	// AllowSquash lets the renderer merge the reply with its neighbours.
	AllowSquash bool

	Profile  *model.Profile
	Index    int
	Total    int
	Name     string
	Text     string
	Tokens   []menu.Token
	Keyboard *menu.Keyboard
	Media    []model.Photo
}

// Standalone returns a copy of r that is always rendered as its own message.
func (r Response) Standalone() Response {
	r.AllowSquash = false
	return r
}

func simple(k Kind) Response {
	return Response{Kind: k, AllowSquash: true}
}

// UnknownCommand tells the user the input was not recognized.
func UnknownCommand() Response { return simple(KindUnknownCommand) }

// GreetNewUser welcomes a first-time user by name.
func GreetNewUser(name string) Response {
	r := simple(KindGreetNewUser)
	r.Name = name
	return r
}

// MenuHelp lists what each of tokens does.
func MenuHelp(tokens []menu.Token) Response {
	r := simple(KindMenuHelp)
	r.Tokens = tokens
	return r
}

// SelectMenu prompts for the next action.
func SelectMenu() Response { return simple(KindSelectMenu) }

// UserSexMissing asks the user to fill in the profile sex.
func UserSexMissing() Response { return simple(KindUserSexMissing) }

// UserCityMissing asks the user to fill in the profile city.
func UserCityMissing() Response { return simple(KindUserCityMissing) }

// UserBirthdayMissing asks the user to publish a full birth date.
func UserBirthdayMissing() Response { return simple(KindUserBirthdayMissing) }

// SearchFailed reports that no candidate was found.
func SearchFailed() Response { return simple(KindSearchFailed) }

// SearchError reports a provider or store failure during search.
func SearchError() Response { return simple(KindSearchError) }

// SearchResult presents a found candidate.
func SearchResult(p model.Profile) Response {
	r := simple(KindSearchResult)
	r.Profile = &p
	return r
}

// AuthRequired asks the user to authorize the bot.
func AuthRequired() Response { return simple(KindAuthRequired) }

// AuthNotCompleted reports that no valid grant arrived yet.
func AuthNotCompleted() Response { return simple(KindAuthNotCompleted) }

// Added confirms that a candidate was put into kind.
func Added(kind model.ListKind) Response {
	if kind == model.Blacklist {
		return simple(KindAddedToBlacklist)
	}
	return simple(KindAddedToFavorite)
}

// AddFailed reports that a candidate could not be put into kind.
func AddFailed(kind model.ListKind) Response {
	if kind == model.Blacklist {
		return simple(KindAddToBlacklistFailed)
	}
	return simple(KindAddToFavoriteFailed)
}

// ListFailed reports that kind could not be read.
func ListFailed(kind model.ListKind) Response {
	if kind == model.Blacklist {
		return simple(KindBlacklistFailed)
	}
	return simple(KindFavoriteListFailed)
}

// ListEmpty reports that kind has no entries.
func ListEmpty(kind model.ListKind) Response {
	if kind == model.Blacklist {
		return simple(KindBlacklistEmpty)
	}
	return simple(KindFavoriteListEmpty)
}

// ListResult presents entry index (1-based) of total from kind.
func ListResult(kind model.ListKind, p model.Profile, index, total int) Response {
	r := simple(KindFavoriteResult)
	if kind == model.Blacklist {
		r.Kind = KindBlacklistResult
	}
	r.Profile = &p
	r.Index = index
	r.Total = total
	return r
}

// YourProfile presents the requester's own profile.
func YourProfile(p model.Profile) Response {
	r := simple(KindYourProfile)
	r.Profile = &p
	return r
}

// PhotoFailed reports that photos could not be loaded.
func PhotoFailed() Response { return simple(KindPhotoFailed) }

// ServiceError reports an internal failure outside of search.
func ServiceError() Response { return simple(KindServiceError) }

// Text carries literal text.
func Text(s string) Response {
	r := simple(KindText)
	r.Text = s
	return r
}

// Keyboard replaces the active keyboard.
func Keyboard(kb menu.Keyboard) Response {
	r := simple(KindKeyboard)
	r.Keyboard = &kb
	return r
}

// AttachMedia appends photos to the current message.
func AttachMedia(photos []model.Photo) Response {
	r := simple(KindAttachMedia)
	r.Media = photos
	return r
}
