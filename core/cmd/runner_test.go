package cmd

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	coreconfig "github.com/m3rciful/vkinder/core/config"
	coretelegram "github.com/m3rciful/vkinder/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type fakeApp struct {
	services []func(context.Context) error
	closed   atomic.Bool
}

func (a *fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{}, nil
}

func (a *fakeApp) Services() []func(context.Context) error { return a.services }

func (a *fakeApp) Close() error {
	a.closed.Store(true)
	return nil
}

func baseOptions(app *fakeApp) Options {
	return Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(string) (ConfigCarrier, error) {
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap:      func(context.Context, ConfigCarrier) (TelegramApp, error) { return app, nil },
		ShutdownLogger: func() error { return nil },
		Signals:        []os.Signal{syscall.SIGUSR1},
	}
}

func TestRunRequiresHooks(t *testing.T) {
	assert.Error(t, Run(Options{}))
	assert.Error(t, Run(Options{LoadConfig: func(string) (ConfigCarrier, error) { return nil, nil }}))
}

func TestRunRequiresConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	opts := baseOptions(&fakeApp{})
	opts.DefaultConfigPath = ""
	assert.ErrorContains(t, Run(opts), "CONFIG_PATH")
}

func TestRunStopsServicesWhenBotFails(t *testing.T) {
	boom := errors.New("telegram down")
	var serviceStopped atomic.Bool
	app := &fakeApp{services: []func(context.Context) error{
		func(ctx context.Context) error {
			<-ctx.Done()
			serviceStopped.Store(true)
			return nil
		},
	}}
	opts := baseOptions(app)
	opts.RunTelegram = func(ctx context.Context, ro coretelegram.RunOptions) error {
		assert.NotNil(t, ro.OnStart)
		assert.NotNil(t, ro.OnStop)
		return boom
	}

	assert.ErrorIs(t, Run(opts), boom)
	assert.True(t, serviceStopped.Load())
	assert.True(t, app.closed.Load())
}

func TestRunWrapsBootstrapError(t *testing.T) {
	opts := baseOptions(&fakeApp{})
	opts.Bootstrap = func(context.Context, ConfigCarrier) (TelegramApp, error) {
		return nil, errors.New("no db")
	}
	assert.ErrorContains(t, Run(opts), "bootstrap failed: no db")
}
