// Command filesearch indexes local documents and searches them by meaning.
//
//	filesearch [-config file] index <dir>
//	filesearch [-config file] search [-k N] [-json] <query>
//	filesearch [-config file] recent [-n N]
//	filesearch [-config file] stats
//	filesearch [-config file] forget <path>
//	filesearch [-config file] serve
//	filesearch [-config file] config
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/viant/filesearch/catalog"
	"github.com/viant/filesearch/config"
	"github.com/viant/filesearch/embed"
	"github.com/viant/filesearch/extract"
	"github.com/viant/filesearch/index"
	"github.com/viant/filesearch/index/bruteforce"
	"github.com/viant/filesearch/ingest"
	"github.com/viant/filesearch/server"
	"github.com/viant/filesearch/service"
	"github.com/viant/filesearch/similarity"
)

const usage = `usage: filesearch [-config file] <command> [args]

commands:
  index <dir>                 ingest a directory tree
  search [-k N] [-json] <q>   rank indexed files against a query
  recent [-n N]               list recently modified files
  stats                       show catalog totals
  forget <path>               drop a file from the catalog
  serve                       run the HTTP API
  config [file]               print the effective configuration, or write it to file
`

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("filesearch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "filesearch.yaml", "config file (missing file = defaults)")
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "config" {
		var err error
		if len(rest) > 0 {
			err = config.Save(rest[0], cfg)
		} else {
			err = cfg.Write(stdout)
		}
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("cannot start", "error", err)
		return 1
	}
	defer app.close()

	switch cmd {
	case "index":
		err = app.index(ctx, rest, stdout)
	case "search":
		err = app.search(ctx, rest, stdout, stderr)
	case "recent":
		err = app.recent(ctx, rest, stdout, stderr)
	case "stats":
		err = app.stats(ctx, stdout)
	case "forget":
		err = app.forget(ctx, rest, stdout)
	case "serve":
		err = app.serve(ctx)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
	if err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(stderr, usage)
			return 2
		}
		logger.Error(cmd+" failed", "error", err)
		return 1
	}
	return 0
}

var errUsage = errors.New("usage")

type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	catalog *catalog.Catalog
	svc     *service.Service
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	emb, err := newEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}
	metric, err := bruteforce.ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}

	var catOpts []catalog.Option
	catOpts = append(catOpts, catalog.WithLogger(logger))
	if cfg.Dimension > 0 {
		catOpts = append(catOpts, catalog.WithDimension(cfg.Dimension))
	}
	cat, err := catalog.Open(ctx, cfg.Database, catOpts...)
	if err != nil {
		return nil, err
	}

	ingestOpts := []ingest.Option{
		ingest.WithWorkers(cfg.Workers),
		ingest.WithLogger(logger),
	}
	extractor := extract.Default(logger)
	switch {
	case cfg.AllFiles():
		ingestOpts = append(ingestOpts, ingest.WithExtensions())
	case len(cfg.Extensions) > 0:
		ingestOpts = append(ingestOpts, ingest.WithExtensions(cfg.Extensions...))
	default:
		// only files some extractor understands
		ingestOpts = append(ingestOpts, ingest.WithExtensions(extractor.Extensions()...))
	}
	if cfg.Embedder.RatePerSecond > 0 {
		ingestOpts = append(ingestOpts, ingest.WithRateLimit(cfg.Embedder.RatePerSecond, cfg.Embedder.Burst))
	}
	ingester := ingest.New(cat, extractor, emb, ingestOpts...)

	engine := similarity.New(cat,
		similarity.WithLogger(logger),
		similarity.WithIndex(func() index.Index { return bruteforce.New(bruteforce.WithMetric(metric)) }),
	)
	return &app{
		cfg:     cfg,
		logger:  logger,
		catalog: cat,
		svc:     service.New(cat, emb, ingester, engine, logger),
	}, nil
}

func (a *app) close() {
	if err := a.catalog.Close(); err != nil {
		a.logger.Warn("closing catalog", "error", err)
	}
}

func (a *app) index(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errUsage
	}
	report, err := a.svc.Index(ctx, args[0])
	printReport(stdout, report)
	return err
}

func (a *app) search(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(stderr)
	k := fs.Int("k", a.cfg.TopK, "number of results")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil || fs.NArg() == 0 {
		return errUsage
	}
	results, err := a.svc.Search(ctx, strings.Join(fs.Args(), " "), *k)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	if len(results) == 0 {
		fmt.Fprintln(stdout, "no results")
		return nil
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tNAME\tPATH")
	for _, r := range results {
		fmt.Fprintf(w, "%.4f\t%s\t%s\n", r.Score, r.Name, r.Path)
	}
	return w.Flush()
}

func (a *app) recent(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("recent", flag.ContinueOnError)
	fs.SetOutput(stderr)
	n := fs.Int("n", 20, "number of files (0 = all)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	records, err := a.svc.Recent(ctx, *n)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODIFIED\tNAME\tPATH")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\n", time.Unix(r.LastModified, 0).Format(time.DateTime), r.Name, r.Path)
	}
	return w.Flush()
}

func (a *app) stats(ctx context.Context, stdout io.Writer) error {
	st, err := a.svc.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "files: %d\nembedded: %d\ndimension: %d\n", st.Files, st.Embedded, st.Dimension)
	return nil
}

func (a *app) forget(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errUsage
	}
	removed, err := a.svc.Forget(ctx, args[0])
	if err != nil {
		return err
	}
	if removed {
		fmt.Fprintln(stdout, "removed")
	} else {
		fmt.Fprintln(stdout, "not in catalog")
	}
	return nil
}

func (a *app) serve(ctx context.Context) error {
	srv := server.New(server.Config{Addr: a.cfg.Server.Addr, DefaultTopK: a.cfg.TopK}, a.svc, a.logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func printReport(w io.Writer, r ingest.Report) {
	fmt.Fprintf(w, "discovered: %d\nembedded: %d\nupdated: %d\nunchanged: %d\nempty: %d\nfailed: %d\n",
		r.Discovered, r.Embedded, r.Updated, r.SkippedUnchanged, r.SkippedEmpty, r.SkippedFailed)
	for _, fe := range r.Errors {
		fmt.Fprintf(w, "  %s: %s\n", fe.Path, fe.Err)
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func newEmbedder(cfg *config.Config, logger *slog.Logger) (embed.Embedder, error) {
	e := cfg.Embedder
	switch e.Provider {
	case config.ProviderHash:
		return embed.NewHash(e.Dimension), nil
	case config.ProviderOllama:
		client := &http.Client{Timeout: time.Duration(e.TimeoutSecs) * time.Second}
		return embed.NewOllama(embed.OllamaConfig{
			BaseURL:  e.BaseURL,
			Model:    e.Model,
			Token:    cfg.APIKey(),
			MaxChars: e.MaxChars,
		}, client, logger), nil
	case config.ProviderOpenAI:
		return embed.NewOpenAI(embed.OpenAIConfig{
			APIKey:   cfg.APIKey(),
			BaseURL:  e.BaseURL,
			Model:    e.Model,
			MaxChars: e.MaxChars,
		}, logger)
	}
	return nil, fmt.Errorf("unknown embedder provider %q", e.Provider)
}
