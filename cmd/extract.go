package main

import (
	"context"
	"encoding/json"
	"io"
	"os/signal"
	"slices"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/healthmetrics-cli/internal/config"
	"github.com/sells-group/healthmetrics-cli/internal/cost"
	"github.com/sells-group/healthmetrics-cli/internal/document"
	"github.com/sells-group/healthmetrics-cli/internal/mapper"
	"github.com/sells-group/healthmetrics-cli/internal/model"
	"github.com/sells-group/healthmetrics-cli/internal/monitoring"
	"github.com/sells-group/healthmetrics-cli/internal/orchestrator"
	"github.com/sells-group/healthmetrics-cli/internal/provider"
	"github.com/sells-group/healthmetrics-cli/internal/resilience"
)

var (
	extractHints       []string
	extractConcurrency int
	extractTextfile    string
)

var extractCmd = &cobra.Command{
	Use:   "extract [files...]",
	Short: "Extract health metrics from documents",
	Long:  "Reads each file (or stdin when none are given), extracts metrics through the configured providers and prints one JSON result per document.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initExtraction(cfg)
		if err != nil {
			return err
		}
		if err := env.checkHints(extractHints); err != nil {
			return err
		}

		docs, err := loadDocuments(ctx, env.Loader, args, cmd.InOrStdin())
		if err != nil {
			return err
		}

		concurrency := extractConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentDocuments
		}

		results, runErr := processDocuments(ctx, docs, extractHints, concurrency, func(ctx context.Context, req model.ExtractionRequest) (*model.MetricSet, error) {
			return env.Orchestrator.ExtractMetrics(ctx, req)
		})

		if err := writeResults(cmd.OutOrStdout(), results); err != nil {
			return err
		}

		textfile := extractTextfile
		if textfile == "" {
			textfile = cfg.Monitoring.MetricsTextfile
		}
		if textfile != "" {
			if err := env.Collector.WriteTextfile(textfile); err != nil {
				zap.L().Warn("extract: failed to write metrics textfile", zap.Error(err))
			}
		}
		env.Alerter.Check(ctx, env.Collector)

		return runErr
	},
}

func init() {
	extractCmd.Flags().StringSliceVar(&extractHints, "hint", nil, "canonical metric names the documents are expected to contain")
	extractCmd.Flags().IntVar(&extractConcurrency, "concurrency", 0, "documents processed in parallel (default batch.max_concurrent_documents)")
	extractCmd.Flags().StringVar(&extractTextfile, "metrics-textfile", "", "write Prometheus metrics to this file after the run")
	rootCmd.AddCommand(extractCmd)
}

// extractionEnv holds the collaborators built from config for one run.
type extractionEnv struct {
	Resolver     *config.Resolver
	Mapper       *mapper.Mapper
	Loader       *document.Loader
	Collector    *monitoring.Collector
	Alerter      *monitoring.Alerter
	Orchestrator *orchestrator.Orchestrator
}

// initExtraction validates cfg and wires the orchestrator. Configuration
// problems are reported here, before any document is read.
func initExtraction(cfg *config.Config) (*extractionEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	resolver := config.NewResolver(cfg)
	if err := resolver.Validate(); err != nil {
		return nil, err
	}

	m, err := mapper.FromConfig(cfg.Mapping)
	if err != nil {
		return nil, err
	}

	registry := provider.NewDefaultRegistry()
	for _, name := range resolver.PriorityOrder() {
		if _, ok := registry.Get(name); !ok {
			return nil, config.InvalidConfig("providers."+name, "no provider implementation registered")
		}
		if !m.HasProvider(name) {
			return nil, config.MappingError("mapping.providers."+name, "no mapping rules for provider")
		}
	}

	loader, err := document.FromConfig(cfg.Document)
	if err != nil {
		return nil, err
	}

	collector := monitoring.NewCollector()
	b := cfg.Extraction.Backoff
	orch := orchestrator.New(resolver, registry, m,
		orchestrator.WithBackoff(resilience.FromBackoffConfig(b.InitialMs, b.MaxMs, b.Multiplier, b.JitterFraction)),
		orchestrator.WithObserver(collector),
		orchestrator.WithCalculator(cost.NewCalculator(cost.DefaultRates())),
	)

	return &extractionEnv{
		Resolver:     resolver,
		Mapper:       m,
		Loader:       loader,
		Collector:    collector,
		Alerter:      monitoring.NewAlerter(cfg.Monitoring),
		Orchestrator: orch,
	}, nil
}

func (e *extractionEnv) checkHints(hints []string) error {
	known := make([]string, 0, len(e.Mapper.Metrics()))
	for _, def := range e.Mapper.Metrics() {
		known = append(known, def.Name)
	}
	for _, h := range hints {
		if !slices.Contains(known, h) {
			return eris.Errorf("extract: unknown metric hint %q (known: %s)", h, strings.Join(known, ", "))
		}
	}
	return nil
}

// inputDoc is one document ready for extraction.
type inputDoc struct {
	Source string
	Text   string
}

// loadDocuments reads every path, or stdin when paths is empty.
func loadDocuments(ctx context.Context, loader *document.Loader, paths []string, stdin io.Reader) ([]inputDoc, error) {
	if len(paths) == 0 {
		text, err := loader.Read(stdin)
		if err != nil {
			return nil, err
		}
		return []inputDoc{{Source: "-", Text: text}}, nil
	}

	docs := make([]inputDoc, 0, len(paths))
	for _, p := range paths {
		text, err := loader.Load(ctx, p)
		if err != nil {
			return nil, err
		}
		docs = append(docs, inputDoc{Source: p, Text: text})
	}
	return docs, nil
}

// documentResult is the JSON output for one document.
type documentResult struct {
	Source  string           `json:"source"`
	Metrics *model.MetricSet `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// extractFunc is the callback signature for running extraction on one request.
type extractFunc func(ctx context.Context, req model.ExtractionRequest) (*model.MetricSet, error)

// processDocuments extracts docs concurrently. Results keep input order. A
// failed document does not abort the others; the returned error summarizes
// failures.
func processDocuments(ctx context.Context, docs []inputDoc, hints []string, concurrency int, extract extractFunc) ([]documentResult, error) {
	zap.L().Info("processing documents",
		zap.Int("documents", len(docs)),
		zap.Int("concurrency", concurrency),
	)

	results := make([]documentResult, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	var succeeded, failed atomic.Int64

	for i, doc := range docs {
		g.Go(func() error {
			req := model.NewExtractionRequest(doc.Text, hints...)
			req.Source = doc.Source
			log := zap.L().With(zap.String("source", doc.Source), zap.String("request_id", req.ID))

			set, err := extract(gctx, req)
			results[i] = documentResult{Source: doc.Source, Metrics: set}
			if err != nil {
				failed.Add(1)
				results[i].Error = err.Error()
				log.Error("extraction failed", zap.Error(err))
				return nil
			}

			succeeded.Add(1)
			log.Info("extraction succeeded", zap.String("provider", set.Provider), zap.Int("metrics", set.Len()))
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("documents complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)

	if n := failed.Load(); n > 0 {
		return results, eris.Errorf("extract: %d of %d document(s) failed", n, len(docs))
	}
	return results, nil
}

func writeResults(out io.Writer, results []documentResult) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return eris.Wrap(err, "extract: write results")
	}
	return nil
}
