// Command projection-runner demonstrates a long-running plain projector
// (C7) wired against SQLite storage, supervised by runner.Runner so it sits
// alongside an embedded NATS wake channel and shuts down gracefully on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"

	"github.com/plaenen/projector/internal/config"
	"github.com/plaenen/projector/pkg/domain"
	"github.com/plaenen/projector/pkg/projector"
	"github.com/plaenen/projector/pkg/projector/notify"
	"github.com/plaenen/projector/pkg/runner"
	"github.com/plaenen/projector/pkg/runtime/embeddednats"
	"github.com/plaenen/projector/pkg/secrets"
	"github.com/plaenen/projector/pkg/store/sqlite"

	natsinfra "github.com/plaenen/projector/pkg/infrastructure/nats"
)

type wordCount struct {
	Total int `json:"total"`
}

func main() {
	ctx := context.Background()
	logger := slog.Default()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	dsn := cfg.SQLiteDSN
	if cfg.SecretsURL != "" {
		resolver := secrets.NewKeeperResolver()
		defer resolver.Close()
		resolved, err := resolver.Resolve(ctx, cfg.SecretsURL)
		if err != nil {
			log.Fatal(err)
		}
		dsn = resolved
	}

	eventStore, err := sqlite.NewEventStore(dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer eventStore.Close()

	control := sqlite.NewControlStore(eventStore.DB())
	monitorStore := sqlite.NewMonitor(eventStore.DB())

	natsService := embeddednats.New(embeddednats.WithLogger(runner.NewSlogLogger(logger)))
	if err := natsService.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer natsService.Stop(ctx)

	conn, err := natsinfra.ConnectToEmbedded(natsService.Server())
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()
	waker := notify.NewNATSWaker(conn, "projector.wake")

	builder, err := projector.New("word-count")
	if err != nil {
		log.Fatal(err)
	}
	builder, err = builder.Init(func() (any, error) { return &wordCount{}, nil })
	if err != nil {
		log.Fatal(err)
	}
	builder, err = builder.FromAll()
	if err != nil {
		log.Fatal(err)
	}
	builder, err = builder.WhenAny(countWords)
	if err != nil {
		log.Fatal(err)
	}
	builder = builder.
		WithLogger(logger).
		WithLockTimeout(cfg.LockTimeout).
		WithPersistBlockSize(cfg.PersistBlock).
		WithIdleSleep(cfg.IdleSleep).
		WithNotifier(waker)

	p, err := builder.Build(eventStore, control, control, control, monitorStore)
	if err != nil {
		log.Fatal(err)
	}

	svc := runner.New([]runner.Service{
		natsService,
		projector.NewService("word-count", p),
	}, runner.WithLogger(runner.NewSlogLogger(logger)))

	if err := svc.Run(ctx); err != nil {
		log.Fatal(err)
	}
}

func countWords(ctx context.Context, event *domain.Event, state any) (any, error) {
	wc, _ := state.(*wordCount)
	if wc == nil {
		wc = &wordCount{}
	}
	var payload map[string]any
	if err := json.Unmarshal(event.Payload, &payload); err == nil {
		wc.Total += len(payload)
	}
	return wc, nil
}
