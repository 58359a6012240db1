package vk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/vkinder/internal/model"
	"github.com/m3rciful/vkinder/internal/provider"
)

type apiStub struct {
	mu      sync.Mutex
	replies map[string]string
	forms   map[string]url.Values
}

func newAPI(t *testing.T, replies map[string]string) (*Client, *apiStub) {
	t.Helper()
	stub := &apiStub{replies: replies, forms: map[string]url.Values{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		method := r.URL.Path[len("/method/"):]
		stub.mu.Lock()
		stub.forms[method] = r.PostForm
		body, ok := stub.replies[method]
		stub.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{APIURL: srv.URL + "/method", ServiceToken: "service", RPS: 1000}, srv.Client())
	require.NoError(t, err)
	return c, stub
}

func (s *apiStub) form(method string) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forms[method]
}

func TestGetProfile(t *testing.T) {
	c, stub := newAPI(t, map[string]string{
		"users.get": `{"response":[{"id":7,"first_name":"Anna","last_name":"Ivanova","sex":1,"bdate":"21.9.1995",
			"city":{"id":42,"title":"Kazan"},"online":1,"has_photo":1,"domain":"anna"}]}`,
	})
	p, err := c.GetProfile(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, int64(7), p.ID)
	assert.Equal(t, model.SexFemale, p.Sex)
	assert.Equal(t, int64(42), p.CityID)
	assert.Equal(t, "Kazan", p.City)
	assert.True(t, p.Online)
	assert.True(t, p.HasPhoto)
	assert.Equal(t, "https://vk.com/anna", p.URL)
	require.NotNil(t, p.Birthday)
	assert.Equal(t, time.Date(1995, time.September, 21, 0, 0, 0, 0, time.UTC), *p.Birthday)

	form := stub.form("users.get")
	assert.Equal(t, "service", form.Get("access_token"))
	assert.Equal(t, DefaultVersion, form.Get("v"))
	assert.Equal(t, "7", form.Get("user_ids"))
}

func TestParseBirthday(t *testing.T) {
	b, raw := parseBirthday("21.9")
	assert.Nil(t, b)
	assert.Equal(t, "21.9", raw)

	b, _ = parseBirthday("01.02.2000")
	require.NotNil(t, b)
	assert.Equal(t, time.February, b.Month())

	b, raw = parseBirthday(" ")
	assert.Nil(t, b)
	assert.Empty(t, raw)
}

func TestDeactivatedProfileIsNotFound(t *testing.T) {
	c, _ := newAPI(t, map[string]string{
		"users.get": `{"response":[{"id":7,"first_name":"DELETED","deactivated":"deleted"}]}`,
	})
	_, err := c.GetProfile(context.Background(), 7)
	assert.Equal(t, provider.KindNotFound, provider.Kind(err))
}

func TestErrorCodes(t *testing.T) {
	cases := []struct {
		body string
		want provider.ErrorKind
	}{
		{`{"error":{"error_code":18,"error_msg":"User was deleted or banned"}}`, provider.KindNotFound},
		{`{"error":{"error_code":30,"error_msg":"This profile is private"}}`, provider.KindNotFound},
		{`{"error":{"error_code":113,"error_msg":"Invalid user id"}}`, provider.KindNotFound},
		{`{"error":{"error_code":6,"error_msg":"Too many requests per second"}}`, provider.KindProvider},
	}
	for _, tc := range cases {
		c, _ := newAPI(t, map[string]string{"users.get": tc.body})
		_, err := c.GetProfile(context.Background(), 1)
		assert.Equal(t, tc.want, provider.Kind(err), tc.body)
	}
}

func TestAuthFailureDependsOnToken(t *testing.T) {
	authFailed := `{"error":{"error_code":5,"error_msg":"User authorization failed: invalid access_token"}}`
	c, _ := newAPI(t, map[string]string{"users.get": authFailed, "photos.get": authFailed})

	_, err := c.GetProfile(context.Background(), 1)
	assert.Equal(t, provider.KindProvider, provider.Kind(err))
	assert.NotErrorIs(t, err, provider.ErrToken)

	_, err = c.GetPhotos(context.Background(), "user-token", 1, true, 3)
	assert.Equal(t, provider.KindToken, provider.Kind(err))
}

func TestHTTPFailureIsProviderError(t *testing.T) {
	c, _ := newAPI(t, map[string]string{})
	_, err := c.GetProfile(context.Background(), 1)
	var perr *provider.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusNotFound, perr.Code)
}

func TestSearch(t *testing.T) {
	c, stub := newAPI(t, map[string]string{
		"users.search": `{"response":{"count":3,"items":[
			{"id":5,"is_closed":false},
			{"id":6,"is_closed":true,"can_access_closed":false},
			{"id":7,"is_closed":true,"can_access_closed":true}]}}`,
	})
	ids, err := c.Search(context.Background(), "user-token", model.SearchQuery{
		Sex: model.SexFemale, CityID: 42, AgeMin: 29, AgeMax: 31, Online: true, HasPhoto: true, Sort: model.SortNewest,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 7}, ids)

	form := stub.form("users.search")
	assert.Equal(t, "user-token", form.Get("access_token"))
	assert.Equal(t, "1", form.Get("sex"))
	assert.Equal(t, "42", form.Get("city"))
	assert.Equal(t, "29", form.Get("age_from"))
	assert.Equal(t, "31", form.Get("age_to"))
	assert.Equal(t, "1", form.Get("online"))
	assert.Equal(t, "1", form.Get("has_photo"))
	assert.Equal(t, "1", form.Get("sort"))
}

func TestGetPhotosSortsByLikes(t *testing.T) {
	c, _ := newAPI(t, map[string]string{
		"photos.get": `{"response":{"count":4,"items":[
			{"id":1,"owner_id":5,"likes":{"count":3},"sizes":[{"url":"s1","width":10,"height":10},{"url":"b1","width":100,"height":100}]},
			{"id":2,"owner_id":5,"likes":{"count":10},"sizes":[{"url":"b2","width":100,"height":100}]},
			{"id":3,"owner_id":5,"likes":{"count":1},"sizes":[]},
			{"id":4,"owner_id":5,"likes":{"count":7},"sizes":[{"url":"b4","width":50,"height":50}]}]}}`,
	})
	photos, err := c.GetPhotos(context.Background(), "tok", 5, true, 3)
	require.NoError(t, err)
	require.Len(t, photos, 3)
	assert.Equal(t, []int64{2, 4, 1}, []int64{photos[0].ID, photos[1].ID, photos[2].ID})
	assert.Equal(t, "b1", photos[2].URL)
}

func TestValidateToken(t *testing.T) {
	c, _ := newAPI(t, map[string]string{"users.get": `{"response":[{"id":1}]}`})
	assert.True(t, c.ValidateToken(context.Background(), "tok"))
	assert.False(t, c.ValidateToken(context.Background(), ""))

	bad, _ := newAPI(t, map[string]string{"users.get": `{"error":{"error_code":5,"error_msg":"invalid"}}`})
	assert.False(t, bad.ValidateToken(context.Background(), "tok"))
}

func TestNewRequiresServiceToken(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)

	c, err := New(Config{ServiceToken: "s"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultRights, c.AccessRights())
}
