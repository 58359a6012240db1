package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestBuildPoller(t *testing.T) {
	lp, ok := BuildPoller(PollerOptions{}).(*tele.LongPoller)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, lp.Timeout)
	assert.Equal(t, []string{"message", "callback_query"}, lp.AllowedUpdates)

	lp, ok = BuildPoller(PollerOptions{RunMode: "longpoll", LongPollTimeoutSeconds: 25}).(*tele.LongPoller)
	require.True(t, ok)
	assert.Equal(t, 25*time.Second, lp.Timeout)

	wh, ok := BuildPoller(PollerOptions{
		RunMode: "Webhook",
		Webhook: WebhookOptions{Listen: "0.0.0.0", Port: 8443, URL: "https://bot.example/hook"},
	}).(*tele.Webhook)
	require.True(t, ok)
	assert.Equal(t, "0.0.0.0:8443", wh.Listen)
	assert.Equal(t, "https://bot.example/hook", wh.Endpoint.PublicURL)
}

func TestRegistryCommands(t *testing.T) {
	reg := NewRegistry()
	noop := func(tele.Context) error { return nil }

	require.NoError(t, reg.RegisterCommand("/start", Command{Handler: noop, Description: "Main menu", Aliases: []string{"begin"}}))
	require.NoError(t, reg.RegisterCommand("/stats", Command{Handler: noop, Description: "Stats", AdminOnly: true}))
	assert.Error(t, reg.RegisterCommand("/start", Command{Handler: noop, Description: "again"}))
	assert.Error(t, reg.RegisterCommand("help", Command{Handler: noop, Description: "Help"}))
	assert.Error(t, reg.RegisterCommand("/empty", Command{Description: "no handler"}))

	assert.Equal(t, []tele.Command{{Text: "start", Description: "Main menu"}}, reg.ListCommands(true))
	assert.Len(t, reg.ListCommands(false), 2)

	key, _, ok := reg.LookupCommand("/start@vkinder_bot")
	require.True(t, ok)
	assert.Equal(t, "/start", key)
	key, _, ok = reg.LookupCommand("begin")
	require.True(t, ok)
	assert.Equal(t, "/start", key)
	_, _, ok = reg.LookupCommand("Search")
	assert.False(t, ok)
}

func TestRegistryCallbacks(t *testing.T) {
	reg := NewRegistry()
	noop := func(tele.Context) error { return nil }

	require.NoError(t, reg.RegisterCallback("menu", noop))
	assert.Error(t, reg.RegisterCallback("menu", noop))
	assert.Error(t, reg.RegisterCallback("", noop))

	_, ok := reg.GetCallback("menu")
	assert.True(t, ok)
	assert.Equal(t, []string{"menu"}, reg.ListCallbacks())
	assert.NotNil(t, reg.CallbackNotFound())
}

func TestDeleteWebhook(t *testing.T) {
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		path, body = r.URL.Path, r.PostForm.Get("drop_pending_updates")
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer srv.Close()

	require.NoError(t, deleteWebhook(context.Background(), srv.Client(), srv.URL, "123:abc"))
	assert.Equal(t, "/bot123:abc/deleteWebhook", path)
	assert.Equal(t, "false", body)

	assert.Error(t, deleteWebhook(context.Background(), srv.Client(), srv.URL, " "))
}
