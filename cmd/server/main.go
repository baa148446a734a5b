package main

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/realvista/backend/internal/server"
	"github.com/realvista/backend/modules"
	"github.com/realvista/backend/pkg/application"
	"github.com/realvista/backend/pkg/configuration"
	"github.com/realvista/backend/pkg/eventbus"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	if err := modules.Load(app, modules.BuiltInModules...); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}
	if err := applySchemas(ctx, pool, app); err != nil {
		log.Fatalf("failed to apply schemas: %v", err)
	}

	serverInstance, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
		Pool:          pool,
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}
	log.Printf("Listening on: %s\n", conf.Origin)
	if err := serverInstance.Start(conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

// applySchemas executes every embedded schema file registered by the loaded
// modules. The statements are idempotent, so startup is safe to repeat.
func applySchemas(ctx context.Context, pool *pgxpool.Pool, app application.Application) error {
	for _, schema := range app.Schemas() {
		err := fs.WalkDir(schema, ".", func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || filepath.Ext(path) != ".sql" {
				return nil
			}
			raw, err := schema.ReadFile(path)
			if err != nil {
				return err
			}
			_, err = pool.Exec(ctx, string(raw))
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}
