package router

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/vkinder/core/telegram"
	"github.com/m3rciful/vkinder/core/telegram/teletest"
)

func record(into *[]string, name string) tele.HandlerFunc {
	return func(tele.Context) error {
		*into = append(*into, name)
		return nil
	}
}

func TestTextRoutes(t *testing.T) {
	var got []string
	reg := tg.NewRegistry()
	require.NoError(t, reg.RegisterCommand("/start", tg.Command{Handler: record(&got, "start"), Description: "Main menu", Aliases: []string{"begin"}}))
	require.NoError(t, reg.RegisterCommand("/stats", tg.Command{Handler: record(&got, "stats"), Description: "Stats", AdminOnly: true}))
	reg.SetTextFallback(record(&got, "fallback"))

	routes := TextRoutes(reg, TextOptions{NonText: record(&got, "non_text")})
	require.Equal(t, tele.OnText, routes[0].Endpoint)

	require.NoError(t, routes[0].Handler(teletest.Message(1, "begin")))
	require.NoError(t, routes[0].Handler(teletest.Message(1, "Search")))
	require.NoError(t, routes[0].Handler(teletest.Message(1, "stats")))
	require.NoError(t, routes[1].Handler(teletest.Message(1, "")))
	assert.Equal(t, []string{"start", "fallback", "fallback", "non_text"}, got)
}

func TestTextRoutesWithoutFallback(t *testing.T) {
	var got []string
	routes := TextRoutes(nil, TextOptions{UnknownText: record(&got, "unknown")})
	require.NoError(t, routes[0].Handler(teletest.Message(1, "hi")))
	assert.Equal(t, []string{"unknown"}, got)
}

func TestCallbackRoute(t *testing.T) {
	var got []string
	reg := tg.NewRegistry()
	require.NoError(t, reg.RegisterCallback("menu", record(&got, "menu")))
	reg.SetCallbackNotFound(record(&got, "not_found"))
	route := CallbackRoute(reg)

	c := teletest.Callback(1, "menu", "next")
	require.NoError(t, route.Handler(c))
	assert.Equal(t, 1, c.Responded())

	require.NoError(t, route.Handler(teletest.Callback(1, "legacy", "x")))
	assert.Equal(t, []string{"menu", "not_found"}, got)
}

func TestCommandRoutesGateAdmin(t *testing.T) {
	var got []string
	reg := tg.NewRegistry()
	require.NoError(t, reg.RegisterCommand("/stats", tg.Command{Handler: record(&got, "stats"), Description: "Stats", AdminOnly: true}))

	routes := CommandRoutes(reg, CommandRouteOptions{AdminID: 9, OnAdminReject: record(&got, "rejected")})
	require.Len(t, routes, 1)
	assert.Equal(t, "/stats", routes[0].Endpoint)

	require.NoError(t, routes[0].Handler(teletest.Message(9, "/stats")))
	require.NoError(t, routes[0].Handler(teletest.Message(3, "/stats")))
	assert.Equal(t, []string{"stats", "rejected"}, got)
}

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string  { return "rate limited" }

type plainErr struct{}

func (*plainErr) Error() string { return "plain" }

func TestDeriveErrorCode(t *testing.T) {
	assert.Equal(t, "RATE_LIMITED", deriveErrorCode(fmt.Errorf("wrap: %w", codedErr{})))
	assert.Equal(t, "PLAINERR", deriveErrorCode(fmt.Errorf("wrap: %w", &plainErr{})))
	assert.Equal(t, "ERRORSTRING", deriveErrorCode(errors.New("x")))
	assert.Empty(t, deriveErrorCode(nil))
	assert.Equal(t, "help", normalizeHandlerName("/Help"))
}
