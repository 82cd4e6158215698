package main

import (
	"context"
	"strings"
	"sync"

	"github.com/JakeFAU/feedscout/internal/config"
	"github.com/JakeFAU/feedscout/internal/server"
)

type buildFunc func(ctx context.Context, cfg *config.Config) (*server.App, error)

type commandContext struct {
	configFlag *string
	build      buildFunc

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		build: func(ctx context.Context, cfg *config.Config) (*server.App, error) {
			return server.Build(ctx, cfg)
		},
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = &cfg
	})
	return c.config, c.configErr
}

// withApp builds the application for one command and closes it afterwards.
func (c *commandContext) withApp(ctx context.Context, fn func(*server.App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	app, err := c.build(ctx, cfg)
	if err != nil {
		return err
	}
	runErr := fn(app)
	closeErr := app.Close()
	if runErr != nil {
		return runErr
	}
	return closeErr
}
