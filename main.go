// Package main runs clubsync inside PocketBase: the report API, the
// scheduling webhooks, and the nightly batch sync.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/jsvm"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/pocketbase/pocketbase/tools/hook"

	"github.com/syc/clubsync/config"
	"github.com/syc/clubsync/logging"
	"github.com/syc/clubsync/sync"
)

func main() {
	// Format: 2026-01-06T14:05:52Z [clubsync] LEVEL message
	logging.Init("clubsync")

	cfg, err := config.Load(os.Getenv("CLUBSYNC_CONFIG"))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	app := pocketbase.New()

	var hooksDir string
	app.RootCmd.PersistentFlags().StringVar(
		&hooksDir,
		"hooksDir",
		"",
		"the directory with the JS app hooks",
	)

	var migrationsDir string
	app.RootCmd.PersistentFlags().StringVar(
		&migrationsDir,
		"migrationsDir",
		"",
		"the directory with the user defined migrations",
	)

	var automigrate bool
	app.RootCmd.PersistentFlags().BoolVar(
		&automigrate,
		"automigrate",
		true,
		"enable/disable auto migrations",
	)

	jsvm.MustRegister(app, jsvm.Config{
		HooksDir:      hooksDir,
		MigrationsDir: migrationsDir,
	})

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		TemplateLang: migratecmd.TemplateLangJS,
		Automigrate:  automigrate,
		Dir:          migrationsDir,
	})

	var services *sync.Services

	app.OnServe().Bind(&hook.Handler[*core.ServeEvent]{
		Func: func(e *core.ServeEvent) error {
			slog.Info("Initializing clubsync services")
			if err := sync.EnsureWorkbookCollection(e.App); err != nil {
				return err
			}
			if err := sync.EnsureRunLogCollection(e.App); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			services, err = sync.NewServices(ctx, e.App, cfg)
			if err != nil {
				return err
			}
			sync.RegisterRoutes(e, services)

			return e.Next()
		},
	})

	// Start the scheduler once routes are up.
	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		go func() {
			time.Sleep(2 * time.Second)

			slog.Info("Starting sync scheduler")
			if err := services.Start(); err != nil {
				slog.Error("Failed to start sync scheduler", "error", err)
			}
		}()

		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		if services != nil {
			if err := services.Close(); err != nil {
				slog.Warn("Failed to close services", "error", err)
			}
		}
		return e.Next()
	})

	if err := app.Start(); err != nil {
		slog.Error("Failed to start application", "error", err)
		os.Exit(1)
	}
}
