package cli

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/contact"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/lock"
	"github.com/Ramsey-B/fern/pkg/processor"
	"github.com/Ramsey-B/fern/pkg/routes"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

const (
	depTracing       = "tracing"
	depStore         = "store"
	depRedis         = "redis"
	depGraph         = "graph"
	depKafkaProducer = "kafka-producer"
	depIdentity      = "identity"
	depKafkaConsumer = "kafka-consumer"
	depHTTP          = "http"
)

// App owns every long lived dependency of the serve command.
type App struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup
	checker *health.Checker

	store     identity.Store
	locker    identity.Locker
	listeners []identity.Listener
	service   *identity.Service

	server    *http.Server
	serverErr chan error
}

func NewApp(cfg *config.Config, logger ectologger.Logger) *App {
	a := &App{
		cfg:       cfg,
		logger:    logger,
		startup:   startup.NewStartup(logger, cfg.StartupMaxAttempts),
		checker:   health.NewChecker(cfg.Version),
		serverErr: make(chan error, 1),
	}
	a.register()
	return a
}

func (a *App) register() {
	cfg := a.cfg
	identityRequires := []string{depStore}

	if cfg.TracingEnabled {
		a.startup.AddDependency(a.tracingDependency())
		identityRequires = append(identityRequires, depTracing)
	}
	a.startup.AddDependency(a.storeDependency())
	if cfg.RedisEnabled {
		a.startup.AddDependency(a.redisDependency())
		identityRequires = append(identityRequires, depRedis)
	}
	if cfg.GraphEnabled {
		a.startup.AddDependency(a.graphDependency())
		identityRequires = append(identityRequires, depGraph)
	}
	if cfg.KafkaProducerEnabled {
		a.startup.AddDependency(a.producerDependency())
		identityRequires = append(identityRequires, depKafkaProducer)
	}

	a.startup.AddDependency(&startup.Dependency{
		Name:     depIdentity,
		Requires: identityRequires,
		StartFunc: func(ctx context.Context) error {
			opts := []identity.Option{identity.WithListeners(a.listeners...)}
			if a.locker != nil {
				opts = append(opts, identity.WithLocker(a.locker))
			}
			a.service = identity.NewService(a.store, a.logger, opts...)
			return nil
		},
	})

	if cfg.KafkaConsumerEnabled {
		a.startup.AddDependency(a.consumerDependency())
	}
	a.startup.AddDependency(a.httpDependency())
}

func (a *App) tracingDependency() startup.StartupDependency {
	var shutdown func(context.Context) error
	return &startup.Dependency{
		Name: depTracing,
		StartFunc: func(ctx context.Context) error {
			var err error
			shutdown, err = tracing.Setup(ctx, a.cfg.AppName, a.cfg.Version, exporters.OTLPConfig{
				Endpoint: a.cfg.TracingEndpoint,
				Protocol: a.cfg.TracingProtocol,
				Insecure: a.cfg.TracingInsecure,
				Timeout:  a.cfg.TracingTimeout,
			})
			return err
		},
		StopFunc: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	}
}

func (a *App) storeDependency() startup.StartupDependency {
	var db database.DB
	return &startup.Dependency{
		Name: depStore,
		StartFunc: func(ctx context.Context) error {
			if a.cfg.UsesMemoryStore() {
				a.logger.Warn("Using the in-memory contact store; contacts are lost on restart")
				a.store = identity.NewMemoryStore()
				return nil
			}

			var err error
			db, err = openDatabase(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			if a.cfg.DatabaseMigrateOnStart {
				if err := newMigrationService(a.cfg, a.logger).MigratePostgres(db); err != nil {
					_ = db.Close()
					return errors.Wrap(err, "failed to migrate database")
				}
			}

			a.store = contact.NewRepository(db, a.logger)
			a.checker.AddCheck("database", db.PingContext)
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if db == nil {
				return nil
			}
			return db.Close()
		},
	}
}

func (a *App) redisDependency() startup.StartupDependency {
	var client *lock.Client
	return &startup.Dependency{
		Name: depRedis,
		StartFunc: func(ctx context.Context) error {
			var err error
			client, err = lock.NewClient(ctx, lock.Config{
				Host:     a.cfg.RedisHost,
				Port:     a.cfg.RedisPort,
				Password: a.cfg.RedisPassword,
				DB:       a.cfg.RedisDB,
			}, a.logger)
			if err != nil {
				return err
			}
			a.locker = lock.NewLocker(client, a.cfg.RedisLockPrefix, a.cfg.RedisLockTTL, a.cfg.RedisLockWaitTimeout)
			a.checker.AddCheck("redis", func(context.Context) error { return client.Ping() })
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if client == nil {
				return nil
			}
			return client.Close()
		},
	}
}

func (a *App) graphDependency() startup.StartupDependency {
	var client *graph.Client
	return &startup.Dependency{
		Name: depGraph,
		StartFunc: func(ctx context.Context) error {
			var err error
			client, err = graph.NewClient(graph.Config{
				Host:     a.cfg.GraphDBHost,
				Port:     a.cfg.GraphDBPort,
				Username: a.cfg.GraphDBUser,
				Password: a.cfg.GraphDBPassword,
			}, a.logger)
			if err != nil {
				return err
			}
			if err := client.VerifyConnectivity(ctx); err != nil {
				_ = client.Close(ctx)
				return errors.Wrap(err, "graph database unreachable")
			}
			a.listeners = append(a.listeners, graph.NewProjector(client, a.logger))
			a.checker.AddCheck("graph", client.Ping)
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if client == nil {
				return nil
			}
			return client.Close(ctx)
		},
	}
}

func (a *App) producerDependency() startup.StartupDependency {
	var producer *kafka.Producer
	return &startup.Dependency{
		Name: depKafkaProducer,
		StartFunc: func(ctx context.Context) error {
			producer = kafka.NewProducer(kafka.ProducerConfig{
				Brokers:      a.cfg.KafkaBrokers,
				Topic:        a.cfg.KafkaOutputTopic,
				BatchSize:    a.cfg.KafkaBatchSize,
				BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
				RequiredAcks: a.cfg.KafkaRequiredAcks,
				Compression:  a.cfg.KafkaCompression,
			}, a.logger)
			a.listeners = append(a.listeners, events.NewEmitter(producer, a.logger))
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			if producer == nil {
				return nil
			}
			return producer.Close()
		},
	}
}

func (a *App) consumerDependency() startup.StartupDependency {
	var proc *processor.Processor
	return &startup.Dependency{
		Name:     depKafkaConsumer,
		Requires: []string{depIdentity},
		StartFunc: func(ctx context.Context) error {
			proc = processor.NewProcessor(processor.Config{
				Consumer: kafka.ConsumerConfig{
					Brokers:       a.cfg.KafkaBrokers,
					Topic:         a.cfg.KafkaInputTopic,
					ConsumerGroup: a.cfg.KafkaConsumerGroup,
				},
				Workers:    a.cfg.KafkaWorkerCount,
				MaxRetries: a.cfg.KafkaMaxRetries,
			}, a.service, a.logger)
			a.checker.AddCheck("kafka-consumer", func(context.Context) error {
				if !proc.Healthy() {
					return errors.New("consumer is rejoining its group")
				}
				return nil
			})
			return proc.Start(ctx)
		},
		StopFunc: func(ctx context.Context) error {
			if proc == nil {
				return nil
			}
			return proc.Stop()
		},
	}
}

func (a *App) httpDependency() startup.StartupDependency {
	return &startup.Dependency{
		Name:     depHTTP,
		Requires: []string{depIdentity},
		StartFunc: func(ctx context.Context) error {
			e := routes.NewServer(routes.ServerConfig{
				AppName:      a.cfg.AppName,
				AllowOrigins: a.cfg.AllowOrigins,
				AllowMethods: a.cfg.AllowMethods,
			}, routes.Dependencies{
				Identifier: a.service,
				Lister:     a.service,
				Checker:    a.checker,
				Logger:     a.logger,
			})

			a.server = &http.Server{
				Addr:              net.JoinHostPort("", strconv.Itoa(a.cfg.Port)),
				Handler:           e,
				ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
				WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
				IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
				ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
				MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
			}

			listener, err := net.Listen("tcp", a.server.Addr)
			if err != nil {
				return errors.Wrapf(err, "failed to listen on %s", a.server.Addr)
			}
			go func() {
				if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.serverErr <- err
				}
			}()

			a.checker.SetReady(true)
			a.logger.Infof("HTTP server listening on %s", a.server.Addr)
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			a.checker.SetReady(false)
			if a.server == nil {
				return nil
			}
			return a.server.Shutdown(ctx)
		},
	}
}

// Run starts every dependency, blocks until ctx is done or the HTTP server
// fails, then stops everything within the shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	if err := a.startup.Start(ctx); err != nil {
		a.stop()
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutdown signal received")
	case runErr = <-a.serverErr:
		a.logger.WithError(runErr).Error("HTTP server failed")
	}

	if err := a.stop(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *App) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	return a.startup.Stop(ctx)
}

func openDatabase(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (database.DB, error) {
	return database.Open(ctx, cfg.DatabaseDSN(), database.PoolOptions{
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
}

func newMigrationService(cfg *config.Config, logger ectologger.Logger) *database.MigrationService {
	version := uint(0)
	if cfg.DatabaseMigrationVersion > 0 {
		version = uint(cfg.DatabaseMigrationVersion)
	}
	return database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             version,
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
}
