package main

import (
	"context"
	"log"

	"github.com/USSTM/microservice/internal/config"
	"github.com/USSTM/microservice/internal/container"
	"github.com/USSTM/microservice/internal/logging"
	"github.com/USSTM/microservice/internal/service"
)

func main() {
	cmd := service.LetsGo("microservice", config.New(), run)
	if err := cmd.Execute(); err != nil {
		log.Fatalf("Microservice failed: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	c, err := container.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Cleanup()

	api := c.API

	if len(cfg.APIs.Serve) == 0 && len(cfg.APIs.Clients) > 0 {
		if err := api.LoadClients(ctx, cfg.APIs.Path, cfg.APIs.Clients); err != nil {
			return err
		}
		logging.Info("Loaded client apis, nothing to serve", "clients", cfg.APIs.Clients)
		return nil
	}

	if err := api.LoadAPIs(cfg.APIs.Path, cfg.APIs.Ignore); err != nil {
		return err
	}
	if cfg.Docs.Publish {
		if err := api.PublishAPIs(cfg.Docs.Prefix); err != nil {
			return err
		}
	}

	return api.Start(ctx, cfg.APIs.Serve...)
}
