package main

import (
	"fmt"
	"log"
	"os"

	"giftpool/core/bootstrap"
	"giftpool/core/buildinfo"
	corecmd "giftpool/core/cmd"
	"giftpool/internal/bot"
	"giftpool/internal/store"
)

func main() {
	log.Printf("giftpool %s (%s)", buildinfo.Version, buildinfo.Commit)

	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config/config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return bot.LoadConfig(path)
		},
		Bootstrap: func(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			cfg, ok := carrier.(*bot.Config)
			if !ok {
				return nil, fmt.Errorf("unexpected config type %T", carrier)
			}
			res, err := bootstrap.Run(bootstrap.Options{
				Config:   cfg.CoreConfig(),
				Database: cfg.Database,
			})
			if err != nil {
				return nil, err
			}
			return bot.New(cfg, store.NewPostgres(res.DB)), nil
		},
	})
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
