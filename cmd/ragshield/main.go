package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/TryMightyAI/ragshield/pkg/baseline"
	"github.com/TryMightyAI/ragshield/pkg/config"
	"github.com/TryMightyAI/ragshield/pkg/corpus"
	"github.com/TryMightyAI/ragshield/pkg/detect"
	"github.com/TryMightyAI/ragshield/pkg/logger"
	"github.com/TryMightyAI/ragshield/pkg/metrics"
	"github.com/TryMightyAI/ragshield/pkg/quarantine"
	"github.com/TryMightyAI/ragshield/pkg/server"
	"github.com/TryMightyAI/ragshield/pkg/sink"
)

const Version = server.Version

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		port := "8080"
		if len(os.Args) > 2 {
			port = os.Args[2]
		}
		runServe(port)
	case "scan":
		if len(os.Args) < 3 {
			fmt.Println("Usage: ragshield scan <corpus.jsonl>")
			os.Exit(1)
		}
		runScan(os.Args[2])
	case "report":
		if len(os.Args) < 3 {
			fmt.Println("Usage: ragshield report <corpus.jsonl>")
			os.Exit(1)
		}
		runReport(os.Args[2])
	case "version":
		fmt.Printf("RAG-Shield v%s\n", Version)
		fmt.Println("Poisoning detection engine for RAG document corpora")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("RAG-Shield v%s - RAG corpus poisoning detection\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  ragshield serve [port]        Start HTTP gateway (default: 8080)")
	fmt.Println("  ragshield scan <corpus.jsonl> Scan a JSONL corpus and print the scan report")
	fmt.Println("  ragshield report <corpus.jsonl> Scan a JSONL corpus and print baseline reports")
	fmt.Println("  ragshield version             Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  RAGSHIELD_ENV            production | development (default: development)")
	fmt.Println("  RAGSHIELD_POLICY_FILE    YAML policy file, hot-reloaded on change")
	fmt.Println("  RAGSHIELD_INDEX_PATH     Persistent corpus index directory (default: in-memory)")
	fmt.Println("  RAGSHIELD_REDIS_ADDR     Shared quarantine store (default: in-process)")
	fmt.Println("  RAGSHIELD_POSTGRES_DSN   Audit-trail database (default: log only)")
}

// engine is the fully wired detection stack shared by both modes.
type engine struct {
	pipeline    *detect.Pipeline
	coordinator *quarantine.Coordinator
	policies    *config.Provider
	index       *corpus.Index
	log         *zap.Logger
	closers     []func()
}

func (e *engine) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// rescanner re-scores an indexed document for quarantine verification.
// It runs on a pipeline without a quarantine handler, so verification
// can never recurse into another remediation.
type rescanner struct {
	pipeline *detect.Pipeline
	index    *corpus.Index
}

func (r *rescanner) Rescan(ctx context.Context, documentID string) (*detect.Verdict, error) {
	doc, ok := r.index.Get(documentID)
	if !ok {
		return nil, fmt.Errorf("document %s not indexed", documentID)
	}
	return r.pipeline.ScanDocument(ctx, doc)
}

func buildEngine(ctx context.Context) (*engine, error) {
	log, err := logger.New(config.GetEnv("RAGSHIELD_ENV", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	e := &engine{log: log}
	e.closers = append(e.closers, func() { _ = log.Sync() })

	// Policy: static defaults, or a hot-reloaded file when configured.
	if path := config.GetEnv("RAGSHIELD_POLICY_FILE", ""); path != "" {
		e.policies, err = config.NewFileProvider(path, log)
		if err != nil {
			return nil, fmt.Errorf("load policy: %w", err)
		}
		e.closers = append(e.closers, func() { e.policies.Close() })
		log.Info("policy file loaded", zap.String("path", path))
	} else {
		e.policies = config.NewStaticProvider(config.NewDefaultPolicy())
	}

	e.index, err = corpus.OpenIndex(config.GetEnv("RAGSHIELD_INDEX_PATH", ""))
	if err != nil {
		return nil, err
	}

	var store quarantine.RecordStore = quarantine.NewMemoryStore()
	if addr := config.GetEnv("RAGSHIELD_REDIS_ADDR", ""); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		rs := quarantine.NewRedisStore(client)
		if err := rs.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis at %s: %w", addr, err)
		}
		store = rs
		e.closers = append(e.closers, func() { _ = client.Close() })
		log.Info("quarantine store: redis", zap.String("addr", addr))
	}

	sinks := sink.Multi{sink.NewLogSink(log)}
	if dsn := config.GetEnv("RAGSHIELD_POSTGRES_DSN", ""); dsn != "" {
		pg, err := sink.NewPostgresSink(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("postgres sink: %w", err)
		}
		sinks = append(sinks, pg)
		e.closers = append(e.closers, pg.Close)
		log.Info("audit sink: postgres")
	}

	// The verification pipeline is wired into the coordinator after both
	// exist: re-scans share extractors and baselines with the main
	// pipeline but never trigger remediation themselves.
	verify := &rescanner{index: e.index}
	e.coordinator = quarantine.NewCoordinator(quarantine.CoordinatorOptions{
		Store:    store,
		Storage:  e.index,
		Rescan:   verify,
		Policies: e.policies,
		Sink:     sinks,
		Logger:   log,
	})

	// The coordinator's purge ledger feeds replay detection, so content
	// purged once is flagged when it tries to re-enter the corpus.
	extractors := detect.DefaultExtractors(e.coordinator)

	verify.pipeline = detect.NewPipeline(detect.PipelineOptions{
		Extractors: extractors,
		Policies:   e.policies,
		Logger:     log,
	})
	e.pipeline = detect.NewPipeline(detect.PipelineOptions{
		Extractors: extractors,
		Tracker:    verify.pipeline.Tracker(),
		Policies:   e.policies,
		Sink:       sinks,
		Quarantine: e.coordinator,
		Ingest:     e.index,
		Logger:     log,
	})

	return e, nil
}

func runServe(port string) {
	metrics.Register()
	ctx := context.Background()

	e, err := buildEngine(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ragshield: %v\n", err)
		os.Exit(1)
	}
	defer e.close()

	srv := server.New(server.Options{
		Pipeline:    e.pipeline,
		Coordinator: e.coordinator,
		Policies:    e.policies,
		Logger:      e.log,
	})

	if err := srv.Listen(":" + port); err != nil {
		e.log.Fatal("http server stopped", zap.Error(err))
	}
}

func runScan(path string) {
	metrics.Register()
	ctx := context.Background()

	e, err := buildEngine(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ragshield: %v\n", err)
		os.Exit(1)
	}
	defer e.close()

	feed, err := corpus.OpenJSONLFeed(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ragshield: %v\n", err)
		os.Exit(1)
	}
	defer feed.Close()

	report, err := e.pipeline.Run(ctx, feed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ragshield: scan aborted: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))

	if report.Quarantined > 0 || report.Indeterminate > 0 {
		os.Exit(2)
	}
}

// runReport scans the corpus and prints the statistical summary of every
// observed population instead of the decision counts.
func runReport(path string) {
	metrics.Register()
	ctx := context.Background()

	e, err := buildEngine(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ragshield: %v\n", err)
		os.Exit(1)
	}
	defer e.close()

	feed, err := corpus.OpenJSONLFeed(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ragshield: %v\n", err)
		os.Exit(1)
	}
	defer feed.Close()

	if _, err := e.pipeline.Run(ctx, feed); err != nil {
		fmt.Fprintf(os.Stderr, "ragshield: scan aborted: %v\n", err)
		os.Exit(1)
	}

	tracker := e.pipeline.Tracker()
	outlierZ := e.policies.Snapshot().OutlierZ
	reports := map[string]baseline.Report{}
	for _, name := range tracker.Names() {
		snap, ok := tracker.SnapshotOf(name)
		if !ok {
			continue
		}
		report, err := snap.Report(outlierZ)
		if err != nil {
			continue
		}
		reports[name] = report
	}

	out, _ := json.MarshalIndent(reports, "", "  ")
	fmt.Println(string(out))
}
