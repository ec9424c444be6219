package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"audioclass/audio"
	"audioclass/db"
	qhttp "audioclass/http"
	"audioclass/logging"
	"audioclass/ml"
	"audioclass/monitoring"
)

type Config struct {
	Http struct {
		Port           int      `yaml:"port"`
		TimeoutSeconds int      `yaml:"timeout_seconds"`
		MaxUploadMB    int64    `yaml:"max_upload_mb"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		BatchLimit     int      `yaml:"batch_limit"`
	} `yaml:"http"`
	Models struct {
		Dir            string   `yaml:"dir"`
		Features       []string `yaml:"features"`
		Folds          int      `yaml:"folds"`
		DefaultFeature string   `yaml:"default_feature"`
		Watch          bool     `yaml:"watch"`
	} `yaml:"models"`
	Storage struct {
		HistoryPath string `yaml:"history_path"`
	} `yaml:"storage"`
	Uploads struct {
		Dir  string `yaml:"dir"`
		Keep bool   `yaml:"keep"`
	} `yaml:"uploads"`
	Cache struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
	Audio audio.Config   `yaml:"audio"`
	Log   logging.Config `yaml:"log"`
}

func main() {
	// 1. Load config
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Set up logging
	logger, err := logging.Setup(config.Log)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logger.Sync()

	// 3. Initialize history database
	if err := db.InitDB(config.Storage.HistoryPath); err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("history database ready", zap.String("path", config.Storage.HistoryPath))

	// 4. Load model bundles
	dims := make(map[string]int)
	for _, feature := range config.Models.Features {
		d, err := audio.Dim(feature, config.Audio)
		if err != nil {
			logger.Fatal("bad feature in config", zap.Error(err))
		}
		dims[feature] = d
	}
	registry, err := ml.LoadRegistry(config.Models.Dir, config.Models.Features, config.Models.Folds, dims)
	if err != nil {
		logger.Fatal("failed to load models", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Models.Watch {
		if err := registry.Watch(ctx); err != nil {
			logger.Warn("artifact watcher disabled", zap.Error(err))
		}
	}

	// 5. Event hub and classifier
	hub := monitoring.NewHub()
	go hub.Run(ctx)

	classifier, err := ml.NewClassifier(registry, config.Audio, db.Store{}, hub,
		config.Cache.Size, config.Models.DefaultFeature)
	if err != nil {
		logger.Fatal("failed to build classifier", zap.Error(err))
	}

	// 6. Start HTTP server
	qhttp.SetService(classifier)
	qhttp.SetInfoSource(registry.Info)
	qhttp.SetDefaultFeature(classifier.DefaultFeature())
	qhttp.SetBatchLimit(config.Http.BatchLimit)
	qhttp.SetUploadPolicy(config.Uploads.Dir, config.Uploads.Keep)

	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           config.Http.Port,
		Timeout:        time.Duration(config.Http.TimeoutSeconds) * time.Second,
		MaxUploadBytes: config.Http.MaxUploadMB << 20,
		AllowedOrigins: config.Http.AllowedOrigins,
	}, hub)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 7. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	if err := server.Stop(); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}

	logger.Info("exiting")
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Http.Port == 0 {
		config.Http.Port = 8000
	}
	if config.Http.TimeoutSeconds == 0 {
		config.Http.TimeoutSeconds = 60
	}
	if config.Http.MaxUploadMB == 0 {
		config.Http.MaxUploadMB = 64
	}
	if len(config.Http.AllowedOrigins) == 0 {
		config.Http.AllowedOrigins = []string{"*"}
	}
	if config.Models.Dir == "" {
		config.Models.Dir = "models"
	}
	if len(config.Models.Features) == 0 {
		config.Models.Features = []string{audio.FeatureMFCC, audio.FeatureMel, audio.FeatureConcat}
	}
	if config.Models.Folds == 0 {
		config.Models.Folds = 5
	}
	if config.Models.DefaultFeature == "" {
		config.Models.DefaultFeature = audio.FeatureConcat
	}
	if config.Storage.HistoryPath == "" {
		config.Storage.HistoryPath = "results/history.db"
	}
	if config.Uploads.Dir == "" {
		config.Uploads.Dir = "uploads"
	}
	if config.Audio == (audio.Config{}) {
		config.Audio = audio.DefaultConfig()
	}
}
