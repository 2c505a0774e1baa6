package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/cdl-core/internal/api"
	"github.com/nerrad567/cdl-core/internal/audit"
	"github.com/nerrad567/cdl-core/internal/auth"
	"github.com/nerrad567/cdl-core/internal/events"
	"github.com/nerrad567/cdl-core/internal/experiment"
	"github.com/nerrad567/cdl-core/internal/infrastructure/config"
	"github.com/nerrad567/cdl-core/internal/infrastructure/database"
	"github.com/nerrad567/cdl-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/cdl-core/internal/infrastructure/logging"
	"github.com/nerrad567/cdl-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/cdl-core/internal/result"
	"github.com/nerrad567/cdl-core/migrations"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), configPath)
	},
}

// run is the server lifecycle, separated from the command for testability.
// It returns nil on a clean shutdown after ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting CDL Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	metrics := api.NewMetrics(nil)
	hub := api.NewHub(cfg.WebSocket, log.With("component", "websocket"))
	publisher := events.FanOut{hub}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
			"topic_prefix", mqttClient.Topics().Prefix,
		)
		publisher = append(publisher, mqtt.NewEventSink(mqttClient, cfg.MQTT, log))
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var telemetry result.Telemetry
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	accounts := auth.NewAccountService(
		auth.NewUserRepository(db.DB),
		auth.NewSessionRepository(db.DB),
		cfg.Security.JWT.Secret,
		cfg.AccessTokenTTL(),
		log.With("component", "auth"),
	)

	resultRepo := result.NewSQLiteRepository(db.DB)
	experiments := experiment.NewService(experiment.Deps{
		Repo:      experiment.NewSQLiteRepository(db.DB),
		Results:   resultRepo,
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    log.With("component", "experiment"),
	})
	results := result.NewService(result.Deps{
		Repo:        resultRepo,
		Experiments: experiments,
		Publisher:   publisher,
		Telemetry:   telemetry,
		Metrics:     metrics,
		Logger:      log.With("component", "result"),
	})

	// The audit writer outlives the API server so that entries produced by
	// the last in-flight requests are still flushed.
	auditRepo := audit.NewSQLiteRepository(db.DB)
	auditWriter := audit.NewWriter(auditRepo, cfg.Audit.BufferSize, log.With("component", "audit"))
	auditCtx, stopAudit := context.WithCancel(context.Background())
	go auditWriter.Run(auditCtx)
	defer func() {
		stopAudit()
		<-auditWriter.Done()
		log.Info("audit log flushed")
	}()

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log.With("component", "api"),
		DB:          db,
		Accounts:    accounts,
		Experiments: experiments,
		Results:     results,
		AuditRepo:   auditRepo,
		AuditWriter: auditWriter,
		Hub:         hub,
		Metrics:     metrics,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server (drains requests)
	// 2. Audit writer
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database

	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// healthCheck verifies every configured connection. mqttClient and
// influxClient are nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
