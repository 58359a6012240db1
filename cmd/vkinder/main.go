package main

import (
	"context"
	"log"

	corecmd "github.com/m3rciful/vkinder/core/cmd"
	"github.com/m3rciful/vkinder/internal/app"
	"github.com/m3rciful/vkinder/internal/config"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: func(ctx context.Context, cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return app.New(ctx, cfg.(*config.Config), app.Options{})
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
