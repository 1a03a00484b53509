package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/eddielth/pt100-south/api"
	"github.com/eddielth/pt100-south/bus"
	"github.com/eddielth/pt100-south/config"
	"github.com/eddielth/pt100-south/logger"
	"github.com/eddielth/pt100-south/mqtt"
	"github.com/eddielth/pt100-south/plugin"
	"github.com/eddielth/pt100-south/service"
	"github.com/eddielth/pt100-south/storage"
	"github.com/eddielth/pt100-south/transformer"
	"github.com/eddielth/pt100-south/validator"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path of the configuration file")
	flag.Parse()

	// .env feeds the PT100_* overrides
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := logger.InitFromConfig(cfg.Logger.Level, cfg.Logger.FilePath, cfg.Logger.MaxSize, cfg.Logger.MaxBackups, cfg.Logger.Console); err != nil {
		log.Printf("failed to initialise logger: %v", err)
	}
	defer logger.Close()

	probeBus, err := newBus(cfg.Bus)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}

	engine := plugin.NewEngine(probeBus)
	if err := engine.Initialize(cfg.PluginConfiguration()); err != nil {
		logger.Error("failed to initialise plugin: %v", err)
		engine.Shutdown()
		os.Exit(1)
	}
	defer engine.Shutdown()

	transformerManager, err := transformer.NewManager(cfg.Transformers)
	if err != nil {
		logger.Error("failed to initialise transformers: %v", err)
		os.Exit(1)
	}

	storageManager := storage.NewManager(initStorageBackends(cfg))
	defer storageManager.Close()

	var readingValidator validator.Validator
	if cfg.Validator.Enabled {
		readingValidator = &validator.RangeValidator{Field: cfg.Validator.Field, Min: cfg.Validator.Min, Max: cfg.Validator.Max}
	}

	svc := service.New(service.Options{
		Engine:       engine,
		Transformers: transformerManager,
		Validator:    readingValidator,
		Storage:      storageManager,
		PollTimeout:  cfg.Poll.Timeout,
	})

	if cfg.MQTT.Enabled {
		mqttManager, err := mqtt.NewManager(cfg.MQTT, svc.Reconfigure)
		if err != nil {
			logger.Error("failed to initialise MQTT: %v", err)
			os.Exit(1)
		}
		if err := mqttManager.Start(); err != nil {
			logger.Error("failed to start MQTT: %v", err)
			os.Exit(1)
		}
		// The storage manager closes it on shutdown
		storageManager.AddBackend(mqttManager)
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API.Listen, svc)
		apiServer.Start()
	}

	err = config.WatchConfig(*configPath, func(newCfg *config.Config) error {
		logger.Info("applying new configuration...")

		for asset, transformerCfg := range newCfg.Transformers {
			if err := transformerManager.ReloadTransformer(asset, transformerCfg); err != nil {
				logger.Error("failed to reload transformer %s: %v", asset, err)
			}
		}

		return svc.Apply(newCfg.PluginConfiguration())
	})
	if err != nil {
		logger.Warn("failed to watch configuration file: %v", err)
	} else {
		logger.Info("watching configuration file %s", *configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("%s %s started", plugin.Name, plugin.Version)
	svc.Run(ctx)

	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop API server: %v", err)
		}
	}

	logger.Info("service stopped")
}

func newBus(cfg config.BusConfig) (plugin.Bus, error) {
	switch cfg.Type {
	case "", "sim":
		return bus.NewSim(cfg.Sim), nil
	default:
		return nil, fmt.Errorf("unsupported bus type: %s", cfg.Type)
	}
}

// initStorageBackends opens every enabled sink; a sink that fails to open is skipped
func initStorageBackends(cfg *config.Config) []storage.StorageBackend {
	var backends []storage.StorageBackend

	if cfg.Storage.File.Enabled {
		fileStorage, err := storage.NewFileStorage(cfg.Storage.File.Path)
		if err != nil {
			logger.Error("failed to initialise file storage: %v", err)
		} else {
			backends = append(backends, fileStorage)
		}
	}

	if cfg.Storage.Database.Enabled {
		dbStorage, err := storage.NewDatabaseStorage(cfg.Storage.Database.Type, cfg.Storage.Database.DSN)
		if err != nil {
			logger.Error("failed to initialise database storage: %v", err)
		} else {
			backends = append(backends, dbStorage)
		}
	}

	if cfg.Kafka.Enabled {
		kafkaStorage, err := storage.NewKafkaStorage(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Error("failed to initialise kafka storage: %v", err)
		} else {
			backends = append(backends, kafkaStorage)
		}
	}

	return backends
}
