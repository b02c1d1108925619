package cli

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gkobilansky/moment-meter/internal/config"
	"github.com/gkobilansky/moment-meter/internal/engine"
	"github.com/gkobilansky/moment-meter/internal/ingest"
	"github.com/gkobilansky/moment-meter/internal/metrics"
	"github.com/gkobilansky/moment-meter/internal/server"
	"github.com/gkobilansky/moment-meter/internal/store"
)

var (
	port        int
	funnelsFile string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the moment-meter HTTP server.

The server provides:
  - Ingestion endpoints for interactions and outcomes
  - Query API for effectiveness, funnels, A/B tests, cohorts and journeys
  - Prometheus metrics and a health check

When MM_KAFKA_BROKERS is set, events are also consumed from Kafka.

Example:
  mm serve --port 8080 --funnels funnels.yaml`,
	RunE: runServe,
}

func init() {
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().IntVarP(&port, "port", "p", cfg.Port, "port to listen on")
		cmd.Flags().StringVar(&funnelsFile, "funnels", cfg.FunnelsFile, "YAML file with named funnel definitions")
	}
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	// Open database
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	m := metrics.New()
	e := engine.New(engine.WithLogger(log), engine.WithMetrics(m))
	defer e.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Replay before subscribing, or everything would be written twice
	res, err := store.Replay(ctx, s, e)
	if err != nil {
		return fmt.Errorf("failed to load database: %w", err)
	}
	log.Info("event log loaded",
		zap.Int("interactions", res.Interactions),
		zap.Int("outcomes", res.Outcomes),
		zap.Int("tests", res.Tests),
		zap.Int("funnels", res.Funnels),
	)
	e.Subscribe(store.Persister(s, log))

	if funnelsFile != "" {
		defs, err := config.LoadFunnels(funnelsFile)
		if err != nil {
			return err
		}
		for _, def := range defs {
			e.DefineFunnel(def.ID, def.Steps)
		}
		log.Info("funnels defined", zap.Int("count", len(defs)), zap.String("file", funnelsFile))
	}

	var wg sync.WaitGroup
	if cfg.KafkaEnabled() {
		reader, err := ingest.NewReader(ingest.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		})
		if err != nil {
			return err
		}
		consumer := ingest.NewConsumer(reader, e, m, log.With(zap.String("topic", cfg.KafkaTopic)))

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				log.Error("kafka consumer failed", zap.Error(err))
			}
		}()
	}

	srv := server.New(e, s, server.Options{
		Port:      port,
		TokenFile: getTokenFilePath(),
		Logger:    log,
		Metrics:   m,
	})

	err = srv.Run(ctx, true)
	stop()
	wg.Wait()
	return err
}
