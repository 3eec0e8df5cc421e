// Package app wires configuration, logging and the analysis components into
// the contextanalyzer command line.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"contextanalyzer/internal/config"
	"contextanalyzer/internal/domain"
	"contextanalyzer/internal/hybrid"
	"contextanalyzer/internal/logging"
	"contextanalyzer/internal/refresh"
	"contextanalyzer/internal/server"
	"contextanalyzer/internal/vectorsearch"
)

const shutdownTimeout = 10 * time.Second

var version = "dev"

func Main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "contextanalyzer",
		Short: "Classify customer issues with pattern rules and an LLM",
		Long: `contextanalyzer classifies free-text customer issues into a fixed
category and intent vocabulary. A deterministic pattern analyzer always runs;
when an LLM is configured its answer is merged with the pattern result.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $CONFIG_PATH or config.yaml)")

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newAnalyzeCommand(opts))
	root.AddCommand(newIndexCommand(opts))
	return root
}

// setup loads config and builds the components. aiOff forces pattern-only.
func (o *rootOptions) setup(ctx context.Context, aiOff bool) (*Components, error) {
	var (
		cfg config.Config
		err error
	)
	if aiOff {
		// The loader validates LLM credentials only while AI is enabled.
		if err := os.Setenv("AI_ENABLED", "false"); err != nil {
			return nil, err
		}
	}
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return Build(ctx, cfg, logger)
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the refresh schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := opts.setup(ctx, false)
			if err != nil {
				return err
			}
			defer c.Close()
			defer c.Logger.Sync()

			job := refresh.NewJob(c.Pattern, c.Logger, c.Caches...)
			if _, err := refresh.Start(ctx, c.Config.RefreshSchedule, job); err != nil {
				return err
			}

			srv, err := server.NewServer(server.Deps{
				Hybrid:     c.Hybrid,
				Classifier: c.Classifier,
				Embeddings: c.Embeddings,
				Search:     c.Search,
				DB:         c.DB,
				Logger:     c.Logger,
			}, server.Config{Host: c.Config.HTTPHost, Port: c.Config.HTTPPort})
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

type analyzeOptions struct {
	title       string
	description string
	impact      string
	patternOnly bool
	noCache     bool
}

func newAnalyzeCommand(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one issue and print the result as JSON",
		Long: `Analyze one issue and print the hybrid result as JSON.

Examples:
  # Pattern rules only, no LLM call
  contextanalyzer analyze --pattern-only --title "Need capacity increase for East US" \
    --description "capacity needed urgently"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := root.setup(cmd.Context(), opts.patternOnly)
			if err != nil {
				return err
			}
			defer c.Close()

			result := c.Hybrid.Analyze(cmd.Context(), hybrid.Request{
				Title:       opts.title,
				Description: opts.description,
				Impact:      opts.impact,
				UseCache:    !opts.noCache,
			})
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&opts.title, "title", "", "issue title (required)")
	cmd.Flags().StringVar(&opts.description, "description", "", "issue description (required)")
	cmd.Flags().StringVar(&opts.impact, "impact", "", "business impact statement")
	cmd.Flags().BoolVar(&opts.patternOnly, "pattern-only", false, "skip the LLM")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "bypass the classification cache")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

type indexOptions struct {
	collection string
	file       string
	force      bool
	query      string
	topK       int
	threshold  float64
}

// IndexOutput is what the index command prints.
type IndexOutput struct {
	Collection string                   `json:"collection"`
	Index      vectorsearch.IndexResult `json:"index"`
	Query      string                   `json:"query,omitempty"`
	Results    []domain.SearchResult    `json:"results,omitempty"`
}

func newIndexCommand(root *rootOptions) *cobra.Command {
	opts := &indexOptions{}
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index items from a JSON file and optionally search them",
		Long: `Index items from a JSON file into an in-memory collection and
optionally run a search against it. The file holds either an array of
{id, title, description, metadata} objects or {"items": [...]}.

Examples:
  contextanalyzer index --file issues.json --query "GPU quota in East US"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := loadItems(opts.file)
			if err != nil {
				return err
			}
			c, err := root.setup(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Close()

			collection := opts.collection
			if collection == "" {
				collection = c.Config.SimilarIssuesCollection
			}
			out := IndexOutput{Collection: collection, Query: opts.query}
			out.Index, err = c.Search.Index(cmd.Context(), collection, items, opts.force)
			if err != nil {
				return err
			}
			if opts.query != "" {
				out.Results, err = c.Search.Search(cmd.Context(), opts.query, collection, opts.topK, opts.threshold)
				if err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&opts.collection, "collection", "", "collection name (default similar_issues_collection)")
	cmd.Flags().StringVar(&opts.file, "file", "", "items JSON file (required)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "rebuild the collection")
	cmd.Flags().StringVar(&opts.query, "query", "", "search query to run after indexing")
	cmd.Flags().IntVar(&opts.topK, "top-k", vectorsearch.DefaultTopK, "maximum search results")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "minimum similarity")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func loadItems(path string) ([]vectorsearch.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}
	var items []vectorsearch.Item
	if err := json.Unmarshal(data, &items); err == nil {
		return items, nil
	}
	var wrapped struct {
		Items []vectorsearch.Item `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse items %s: %w", path, err)
	}
	return wrapped.Items, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
