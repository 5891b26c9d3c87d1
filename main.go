package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"health-alert-inference/alerts"
	"health-alert-inference/analytics"
	"health-alert-inference/cache"
	"health-alert-inference/config"
	"health-alert-inference/handlers"
	"health-alert-inference/inference"
	"health-alert-inference/models"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	buildVersion      = "1.0.0"
	cfgFile           string
	logLevel          string
	defaultConfigName = ".health-alert-inference"
	opts              = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "health-alert-inference",
	Short: "Score patient telemetry for anomalies and raise health alerts",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run()
	},
	SilenceUsage: true,
}

type historyBackend interface {
	analytics.HistoryStore
	handlers.Pinger
	Close() error
}

func initConfig() {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigName(defaultConfigName)
	}
	cfgErr := v.ReadInConfig()

	initLogger()

	if cfgErr != nil {
		if _, notFound := cfgErr.(viper.ConfigFileNotFoundError); !notFound {
			log.Errorf("Read config error: %v", cfgErr)
		}
	}
	if err := config.ApplyViper(rootCmd.Flags(), v, config.EnvPrefix); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
}

func initLogger() {
	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		ll = log.InfoLevel
	}
	log.SetLevel(ll)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, PadLevelText: true, DisableQuote: true})
}

func initFlags() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is ./%s.yaml or $HOME/%s.yaml)", defaultConfigName, defaultConfigName))
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warning, error")
	opts.BindFlags(rootCmd.Flags())
}

func main() {
	initFlags()

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run() error {
	if err := opts.Validate(); err != nil {
		return err
	}
	log.Infof("Starting health-alert-inference %s", buildVersion)

	ctx := context.Background()

	// A failed load keeps the service up; predictions answer 500 until restart.
	var scorer analytics.Scorer
	threshold := analytics.DefaultThreshold
	model, err := loadModel(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to load model, predictions are disabled")
	} else {
		scorer = model.Pipeline
		threshold = model.Threshold
		log.Infof("Model loaded, threshold (tau) = %.4f", threshold)
	}
	handlers.SetModelLoaded(scorer != nil)

	history, err := newHistory(ctx)
	if err != nil {
		return err
	}
	defer history.Close()

	publisher, err := newPublisher()
	if err != nil {
		return err
	}
	dispatcher := alerts.NewDispatcher(publisher, opts.Alerts.Workers, opts.Alerts.QueueSize, handlers.RecordAlertFailure)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			log.WithError(err).Warn("Failed to close alert publisher")
		}
	}()

	clk := clock.New()
	engine := analytics.NewEngine(analytics.EngineConfig{
		Scorer:        scorer,
		Threshold:     threshold,
		Window:        opts.History.Window,
		MinPeriods:    opts.History.MinPeriods,
		History:       history,
		RecordHistory: opts.History.Record,
		Clock:         clk,
		OnAlert: func(event models.AlertEvent) {
			handlers.RecordAlert()
			dispatcher.Submit(event)
		},
		OnFallback: handlers.RecordFallback,
	})

	predictHandler := handlers.NewPredictHandler(engine, clk, buildVersion)
	router := handlers.NewRouter(predictHandler, handlers.NewProbes(engine, history), opts.CORS.AllowedOrigins)

	srv := &http.Server{
		Addr:           opts.ListenAddress(),
		Handler:        router,
		ReadTimeout:    opts.Server.ReadTimeout,
		WriteTimeout:   opts.Server.WriteTimeout,
		IdleTimeout:    opts.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return errors.Wrap(err, "server failed to start")
	case <-quit:
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server forced to shutdown")
	}

	log.Info("Server exited")
	return nil
}

func loadModel(ctx context.Context) (*inference.Model, error) {
	var src inference.ArtifactSource = inference.DirSource{Dir: opts.Artifacts.Dir}
	if s3 := opts.Artifacts.S3; s3.Bucket != "" {
		s3src, err := inference.NewS3Source(inference.S3Options{
			Endpoint:  s3.Endpoint,
			Bucket:    s3.Bucket,
			Prefix:    s3.Prefix,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			UseSSL:    s3.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		src = s3src
	}
	return inference.LoadModel(ctx, src, opts.Artifacts.PipelineFile, opts.Artifacts.ThresholdFile)
}

func newHistory(ctx context.Context) (historyBackend, error) {
	if opts.Redis.Addr == "" {
		log.Info("No redis.addr configured, keeping patient history in memory")
		return cache.NewMemoryStore(opts.History.MaxEntries), nil
	}
	rc, err := cache.NewRedisClient(ctx, cache.RedisOptions{
		Addr:       opts.Redis.Addr,
		Password:   opts.Redis.Password,
		DB:         opts.Redis.DB,
		MaxEntries: opts.History.MaxEntries,
		TTL:        opts.History.TTL,
	})
	if err != nil {
		return nil, err
	}
	log.Infof("Connected to Redis at %s", opts.Redis.Addr)
	return rc, nil
}

func newPublisher() (alerts.Publisher, error) {
	if len(opts.Kafka.Brokers) == 0 {
		log.Info("No kafka.brokers configured, alerts are only logged")
		return alerts.LogPublisher{}, nil
	}
	return alerts.NewKafkaPublisher(alerts.KafkaOptions{
		Brokers: opts.Kafka.Brokers,
		Topic:   opts.Kafka.Topic,
	})
}
