package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/civicbridge/platform/pkg/common/config"
	"github.com/civicbridge/platform/pkg/common/database"
	"github.com/civicbridge/platform/pkg/common/kafka"
	"github.com/civicbridge/platform/pkg/common/logger"
	"github.com/civicbridge/platform/pkg/importer"
	"github.com/civicbridge/platform/pkg/mapper"
	"github.com/civicbridge/platform/pkg/odk"
	"github.com/civicbridge/platform/pkg/registry"
	"github.com/gorilla/mux"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	repo := registry.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate registry tables")
	}

	catalog, err := registry.LoadCatalog(cfg.LookupCatalogPath)
	if err != nil {
		logger.Log.WithError(err).Warn("falling back to built-in lookup catalog")
	}
	if err := repo.Seed(context.Background(), catalog); err != nil {
		logger.Log.WithError(err).Fatal("failed to seed lookup tables")
	}

	runs := importer.NewRunRepository(db)
	if err := runs.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate import run journal")
	}

	client := odk.NewClient(odk.Options{
		BaseURL:   cfg.ODKBaseURL,
		Email:     cfg.ODKEmail,
		Password:  cfg.ODKPassword,
		ProjectID: cfg.ODKProjectID,
		FormID:    cfg.ODKFormID,
		Timeout:   cfg.ODKRequestTimeout,
	})

	fieldMapper, err := mapper.New(cfg.MappingExpression, cfg.TargetRegistry)
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid mapping expression")
	}

	expander := importer.NewExpander(repo, cfg.TargetRegistry)
	media := importer.NewMediaImporter(client, cfg.BackendID)

	svc := importer.NewService(client, fieldMapper, expander, media, repo, cfg.ODKFormID).
		WithRunJournal(runs).
		WithCursor(importer.NewCursorStore(database.GetRedis(), cfg.ODKFormID))

	if cfg.ImportEventTopic != "" {
		producer := kafka.NewProducer(cfg.ImportEventTopic)
		defer producer.Close()
		svc.WithEvents(producer)
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	importer.NewHandler(svc, cfg.MaxRequestBody).Register(api)
	registry.NewHandler(repo).Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Bridge Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Bridge Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("failed to close postgres")
	}
	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Error("failed to close redis")
	}

	logger.Log.Info("Bridge Service stopped")
}
