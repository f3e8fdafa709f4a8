package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"carchat/internal/app/commands"
	chatapp "carchat/internal/app/handlers/chat"
	"carchat/internal/app/middleware"
	appoutbox "carchat/internal/app/outbox"
	"carchat/internal/app/policies"
	"carchat/internal/app/queries"
	"carchat/internal/app/uow"
	domainchat "carchat/internal/domain/chat"
	"carchat/internal/domain/listings"
	amqpbroker "carchat/internal/infra/broker/amqp"
	"carchat/internal/infra/broker/kafka"
	"carchat/internal/infra/config"
	mongostore "carchat/internal/infra/db/mongo"
	"carchat/internal/infra/db/postgres"
	"carchat/internal/infra/db/scylla"
	ginserver "carchat/internal/infra/http/gin"
	"carchat/internal/infra/inbox"
	"carchat/internal/infra/obs"
	"carchat/internal/infra/outbox"
	"carchat/internal/infra/realtime"
	"carchat/internal/infra/storage/memory"
)

type application struct {
	handlers ginserver.Handlers
	hub      *realtime.Hub

	readiness []func(context.Context) error
	runners   []func(context.Context) error
	closers   []func()
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// storage is what a store driver contributes to the command pipeline.
type storage struct {
	factory     uow.UoWFactory
	outbox      appoutbox.Outbox
	idempotency middleware.IdempotencyStore
	inbox       kafka.Inbox
	// deliver receives the publisher once it is known. Drivers with a durable outbox start a worker.
	deliver func(appoutbox.Publisher)
}

func buildApplication(ctx context.Context, cfg config.Config, metrics *obs.Metrics, logger *slog.Logger) (*application, error) {
	app := &application{logger: logger, hub: realtime.NewHub(logger)}

	catalog, err := app.buildCatalog(ctx, cfg)
	if err != nil {
		app.close()
		return nil, err
	}
	store, err := app.buildStorage(ctx, cfg, metrics)
	if err != nil {
		app.close()
		return nil, err
	}

	resolver := &chatapp.ContextResolver{Catalog: catalog, Logger: logger}
	titles := chatapp.ConversationTitles{UoWFactory: store.factory, Resolver: resolver}

	push := policies.NewMessagePush{Titles: titles.Title, Logger: logger}
	if cfg.AMQPURL != "" {
		client, err := amqpbroker.Dial(ctx, amqpbroker.Config{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange, Producer: "carchat"}, logger)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("amqp: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		app.readiness = append(app.readiness, client.Ping)
		push.Notifier = amqpbroker.NewNotifier(client)
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		app.closers = append(app.closers, func() { _ = producer.Close() })
		store.deliver(appoutbox.MultiPublisher{producer, push})

		// Every instance relays chat events to its own sockets, hence a group per host.
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, realtimeGroup(cfg.KafkaRealtimeGroup), nil,
			kafka.Relay{Inbox: store.inbox, Target: app.hub}, logger)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		app.closers = append(app.closers, func() { _ = consumer.Close() })
		topics := []string{appoutbox.TopicFor(cfg.KafkaTopicPrefix, domainchat.EventMessageSent)}
		app.runners = append(app.runners, func(ctx context.Context) error { return consumer.Run(ctx, topics) })
	} else {
		store.deliver(appoutbox.MultiPublisher{app.hub, push})
	}

	cmdBus := commands.NewInMemoryBus()
	qBus := queries.NewInMemoryBus()
	chatapp.Register(cmdBus, qBus, chatapp.Dependencies{
		UoWFactory:      store.factory,
		Outbox:          store.outbox,
		Encoder:         appoutbox.JSONEventEncoder{},
		Resolver:        resolver,
		ConflictBackoff: cfg.ConflictBackoff(),
		Hooks:           metrics,
		Logger:          logger,
	})

	commandBus := middleware.ChainCommands(cmdBus,
		middleware.ObserveCommands(metrics),
		middleware.Retry(middleware.RetryPolicy{
			Retryable: domainchat.IsRetryable,
			Backoff:   cfg.RetryBackoff,
			OnRetry: func(cmd commands.Command, attempt int, err error) {
				metrics.StoreRetried(cmd.Key())
				logger.Debug("retrying command", "command", cmd.Key(), "attempt", attempt, "error", err)
			},
		}),
		middleware.RequireActor(),
		middleware.OutboxFlush(store.outbox),
		middleware.Transaction(store.factory, nil),
		middleware.Idempotency(store.idempotency, nil),
	)
	queryBus := middleware.ChainQueries(qBus,
		middleware.ObserveQueries(metrics),
		middleware.QueryRequireActor(),
	)

	chat := ginserver.ChatHandler{Commands: commandBus, Queries: queryBus, Logger: logger}
	app.handlers = ginserver.Handlers{
		Chat: chat,
		Stream: ginserver.StreamHandler{
			Chat: chat,
			Hub:  app.hub,
			Upgrader: websocket.Upgrader{
				ReadBufferSize:  1024,
				WriteBufferSize: 1024,
				CheckOrigin:     func(*http.Request) bool { return true },
			},
			Logger: logger,
		},
		SendLimiter: ginserver.SendRateLimit(cfg.SendRatePerSec, cfg.SendBurst),
	}
	return app, nil
}

func (a *application) buildCatalog(ctx context.Context, cfg config.Config) (listings.Catalog, error) {
	if cfg.CatalogDriver == config.CatalogPostgres {
		pool, err := postgres.NewPool(ctx, cfg.CatalogDSN, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		a.readiness = append(a.readiness, pool.Ping)
		return postgres.NewCatalog(pool), nil
	}
	catalog := memory.NewCatalog()
	if cfg.ListingsFixtures != "" {
		n, err := catalog.LoadFixtures(cfg.ListingsFixtures)
		if err != nil {
			a.logger.Warn("listing fixtures load failed", "error", err, "path", cfg.ListingsFixtures)
		} else {
			a.logger.Info("listing fixtures loaded", "count", n, "path", cfg.ListingsFixtures)
		}
	}
	return catalog, nil
}

func (a *application) buildStorage(ctx context.Context, cfg config.Config, metrics *obs.Metrics) (storage, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, err := mongostore.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return storage{}, fmt.Errorf("mongo: %w", err)
		}
		a.closers = append(a.closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Close(closeCtx)
		})
		a.readiness = append(a.readiness, client.Ping)

		factory := mongostore.NewFactory(client.DB)
		idem := mongostore.NewIdempotencyStore(client.DB, cfg.IdempotencyTTL)
		queue := outbox.NewStore(client.DB)
		seen := inbox.NewStore(client.DB, realtimeGroup(cfg.KafkaRealtimeGroup), 0)
		for _, ensure := range []func(context.Context) error{factory.EnsureIndexes, idem.EnsureIndexes, queue.EnsureIndexes, seen.EnsureIndexes} {
			if err := ensure(ctx); err != nil {
				return storage{}, fmt.Errorf("mongo indexes: %w", err)
			}
		}
		return storage{
			factory:     factory,
			outbox:      queue,
			idempotency: idem,
			inbox:       seen,
			deliver: func(pub appoutbox.Publisher) {
				worker := &outbox.Worker{
					Queue:       queue,
					Producer:    pub,
					Interval:    cfg.OutboxPollInterval,
					TopicPrefix: cfg.KafkaTopicPrefix,
					Source:      "app://carchat",
					Backoff:     cfg.RetryBackoff,
					Wake:        queue.Wake(),
					Observer:    metrics,
					Logger:      a.logger,
				}
				a.runners = append(a.runners, worker.Run)
			},
		}, nil

	case config.StoreScylla:
		session, err := scylla.NewSession(ctx, cfg, a.logger)
		if err != nil {
			return storage{}, err
		}
		chatStore := scylla.NewStore(session, a.logger)
		a.closers = append(a.closers, chatStore.Close)
		a.readiness = append(a.readiness, chatStore.Ping)
		return a.inMemoryDelivery(cfg, scylla.Factory{Store: chatStore}), nil

	default:
		return a.inMemoryDelivery(cfg, memory.Factory{Store: memory.NewChatStore()}), nil
	}
}

// inMemoryDelivery pairs factory with the process-local outbox, idempotency and inbox stores.
func (a *application) inMemoryDelivery(cfg config.Config, factory uow.UoWFactory) storage {
	box := memory.NewOutbox(nil, a.logger)
	box.TopicPrefix = cfg.KafkaTopicPrefix
	return storage{
		factory:     factory,
		outbox:      box,
		idempotency: memory.NewIdempotencyStore(cfg.IdempotencyTTL),
		inbox:       memory.NewInbox(),
		deliver:     func(pub appoutbox.Publisher) { box.Publisher = pub },
	}
}

func (a *application) ready(ctx context.Context) error {
	for _, check := range a.readiness {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *application) startBackground(ctx context.Context) {
	for _, run := range a.runners {
		a.wg.Add(1)
		go func(run func(context.Context) error) {
			defer a.wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("background worker stopped", "error", err)
			}
		}(run)
	}
}

func (a *application) wait() {
	a.wg.Wait()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func realtimeGroup(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return base
	}
	return base + "-" + host
}
