// Command sentinel runs the support response verification service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/supportquality/sentinel/internal/api"
	"github.com/supportquality/sentinel/internal/config"
	"github.com/supportquality/sentinel/internal/database"
	"github.com/supportquality/sentinel/internal/embed"
	"github.com/supportquality/sentinel/internal/ingest"
	"github.com/supportquality/sentinel/internal/llm"
	"github.com/supportquality/sentinel/internal/pipeline"
	"github.com/supportquality/sentinel/internal/retrieval"
	"github.com/supportquality/sentinel/internal/vectorstore"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	generateConfig := flag.Bool("generate-config", false, "write a sample configuration file and exit")
	ingestDir := flag.Bool("ingest", false, "ingest the configured knowledge directory before serving")
	flag.Parse()

	if *generateConfig {
		if err := config.GenerateSample(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Sample configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	setupLogging(&cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := llm.NewProvider(&cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create LLM provider")
	}
	log.Info().Str("provider", provider.Name()).Msg("LLM provider ready")

	store, err := database.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer store.Close()

	embedder := embed.NewManager(provider, cfg.LLM.EmbeddingModel, cfg.LLM.EmbeddingDims,
		time.Duration(cfg.Retrieval.EmbeddingCacheTTL)*time.Second)

	vstore := vectorstore.NewStore(ctx, &cfg.VectorStore, cfg.LLM.EmbeddingDims)
	defer vstore.Close()
	log.Info().Str("store", vstore.Name()).Msg("Vector store ready")

	engine := retrieval.NewEngine(provider, embedder, vstore, cfg)
	basic := retrieval.NewBasicRetriever(vstore)
	pipe := pipeline.New(provider, engine, basic, cfg)
	processor := ingest.NewProcessor(embedder, vstore, &cfg.Ingest)

	if *ingestDir {
		results, err := processor.ProcessDirectory(ctx, cfg.Ingest.DataDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Knowledge base ingestion failed")
		}
		log.Info().Int("documents", len(results)).Msg("Knowledge base ingested")
	}

	router := api.NewRouter(cfg, pipe, processor, vstore, store)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

func setupLogging(cfg *config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if cfg.Format == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
