//go:build integration_test

// Package pgtest runs PostgreSQL in a container with db/schema.sql applied.
package pgtest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/victornm/riffle/internal/postgres"
)

const (
	image = "postgres:16-alpine"
	name  = "riffle"
	user  = "riffle"
	pass  = "riffle"
)

// Start runs a fresh database and returns a pool connected to it. Calling stop
// closes the pool and terminates the container.
func Start(ctx context.Context) (db *pgxpool.Pool, stop func(), err error) {
	schema, err := schemaPath()
	if err != nil {
		return nil, nil, err
	}

	c, err := tcpostgres.Run(ctx, image,
		tcpostgres.WithDatabase(name),
		tcpostgres.WithUsername(user),
		tcpostgres.WithPassword(pass),
		tcpostgres.WithInitScripts(schema),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(45*time.Second),
		),
	)
	if err != nil {
		if c != nil {
			_ = c.Terminate(ctx)
		}
		return nil, nil, fmt.Errorf("start postgres container: %w", err)
	}

	terminate := func() {
		if err := c.Terminate(context.Background()); err != nil {
			fmt.Printf("pgtest: terminate container: %v\n", err)
		}
	}

	host, err := c.Host(ctx)
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("container host: %w", err)
	}

	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("container port: %w", err)
	}

	db, err = postgres.Connect(ctx, postgres.Config{
		Addr: net.JoinHostPort(host, port.Port()),
		User: user,
		Pass: pass,
		Name: name,
	})
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("connect: %w", err)
	}

	return db, func() {
		db.Close()
		terminate()
	}, nil
}

func schemaPath() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("pgtest: locate source file")
	}

	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", "..", "db", "schema.sql")), nil
}
