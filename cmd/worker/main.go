package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pdfa-converter/internal/artifact"
	"pdfa-converter/internal/config"
	"pdfa-converter/internal/engine"
	"pdfa-converter/internal/jobs"
	"pdfa-converter/internal/pdftag"
	"pdfa-converter/internal/pipeline"
	"pdfa-converter/internal/queue"
	"pdfa-converter/internal/store"
	"pdfa-converter/internal/telemetry"
	workerproc "pdfa-converter/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		log.Fatalf("create work dir: %v", err)
	}

	q := queue.NewRedisQueue(cfg)
	manager := jobs.NewManager(st, q, jobs.Options{
		RetentionWindow: cfg.RetentionWindow,
		SweepInterval:   cfg.RetentionSweepInterval,
	})

	publisher, err := artifact.NewPublisher(ctx, cfg)
	if err != nil {
		log.Fatalf("init result publisher: %v", err)
	}

	pl := &pipeline.Pipeline{
		Office:    engine.NewOfficeCmd(cfg.OfficeBinary, cfg.OfficeTimeout),
		OCR:       engine.NewOCRCmd(cfg.OCRBinary, cfg.OCRTimeout),
		Assembler: engine.NewAssemblerCmd(cfg.AssemblerBinary, 0),
		Tags:      &pdftag.Detector{},
		Publisher: publisher,
	}

	processor := workerproc.NewProcessor(cfg, q, manager, pl)

	go manager.RunRetentionSweep(ctx)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	log.Printf("worker started with workers=%d visibility=%s max_runtime=%s", cfg.WorkerCount, cfg.VisibilityTimeout, cfg.JobMaxRuntime)
	if err := processor.Run(ctx); err != nil && err != context.Canceled {
		log.Printf("worker stopped: %v", err)
	}
}
