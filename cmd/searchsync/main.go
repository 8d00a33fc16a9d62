// Command searchsync replays a MongoDB oplog dump into a SQLite search
// index.
//
//	searchsync -config searchsync.yaml -oplog oplog.bson
//	searchsync -db index.sqlite -admin count
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/viant/searchsync/bulk"
	"github.com/viant/searchsync/config"
	"github.com/viant/searchsync/docsync"
	"github.com/viant/searchsync/engine"
	"github.com/viant/searchsync/index"
	"github.com/viant/searchsync/search"
	"github.com/viant/searchsync/searchadmin"
)

var logger = loggo.GetLogger("searchsync.cmd")

type options struct {
	configPath  string
	dsn         string
	oplog       string
	admin       string
	metricsAddr string
	logging     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, gnuflag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "searchsync: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := gnuflag.NewFlagSet("searchsync", gnuflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&opts.dsn, "db", "", "SQLite index path, overrides backend.dsn")
	fs.StringVar(&opts.oplog, "oplog", "", "BSON oplog dump to apply")
	fs.StringVar(&opts.admin, "admin", "", "run an admin operation (commit, wipe, count, fields) and exit")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	fs.StringVar(&opts.logging, "logging-config", "<root>=INFO", "loggo logging configuration")
	if err := fs.Parse(true, args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, errors.Errorf("unexpected arguments %v", fs.Args())
	}
	return opts, nil
}

func loadConfig(opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if opts.dsn != "" {
		cfg.Backend.DSN = opts.dsn
	}
	if opts.metricsAddr != "" {
		cfg.MetricsAddr = opts.metricsAddr
	}
	return cfg, errors.Trace(cfg.Validate())
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	if err := loggo.ConfigureLoggers(opts.logging); err != nil {
		return errors.Annotate(err, "configuring logging")
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return errors.Trace(err)
	}

	if err := engine.RegisterSearchFunctions(); err != nil {
		return errors.Trace(err)
	}
	db, err := engine.OpenFile(cfg.Backend.DSN, cfg.Backend.BusyTimeout)
	if err != nil {
		return errors.Annotatef(err, "opening %q", cfg.Backend.DSN)
	}
	defer db.Close()
	backend, err := search.New(ctx, db, search.Options{UniqueKey: cfg.Backend.UniqueKey, Strict: cfg.Backend.Strict})
	if err != nil {
		return errors.Trace(err)
	}
	if err := defineFields(ctx, backend, cfg.Backend); err != nil {
		return errors.Trace(err)
	}
	if err := searchadmin.Register(db, backend); err != nil {
		return errors.Trace(err)
	}

	if opts.admin != "" {
		return runAdmin(ctx, cfg.Backend, opts.admin, stdout)
	}

	metrics := bulk.NewMetrics()
	if cfg.MetricsAddr != "" {
		stopMetrics, err := serveMetrics(cfg.MetricsAddr, metrics)
		if err != nil {
			return errors.Trace(err)
		}
		defer stopMetrics()
	}
	return replay(ctx, cfg, backend, metrics, opts.oplog, stdout)
}

func defineFields(ctx context.Context, backend *search.Backend, cfg config.Backend) error {
	for _, f := range cfg.Fields {
		if err := backend.DefineField(ctx, f.Name, f.Info()); err != nil {
			return errors.Annotatef(err, "defining field %q", f.Name)
		}
	}
	for _, f := range cfg.DynamicFields {
		if err := backend.DefineDynamicField(ctx, f.Name, f.Info()); err != nil {
			return errors.Annotatef(err, "defining dynamic field %q", f.Name)
		}
	}
	return nil
}

// runAdmin goes through a separate handle so its connections see the
// search_admin module.
func runAdmin(ctx context.Context, cfg config.Backend, op string, stdout io.Writer) error {
	db, err := engine.OpenFile(cfg.DSN, cfg.BusyTimeout)
	if err != nil {
		return errors.Trace(err)
	}
	defer db.Close()
	rows, err := searchadmin.Exec(ctx, db, op)
	if err != nil {
		return errors.Trace(err)
	}
	for _, row := range rows {
		fmt.Fprintln(stdout, row)
	}
	return nil
}

func serveMetrics(addr string, metrics *bulk.Metrics) (func(), error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(metrics); err != nil {
		return nil, errors.Annotate(err, "registering metrics")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("metrics server: %v", err)
		}
	}()
	logger.Infof("serving metrics on %s", addr)
	return func() { _ = srv.Close() }, nil
}

func replay(ctx context.Context, cfg *config.Config, backend *search.Backend, metrics *bulk.Metrics, oplog string, stdout io.Writer) error {
	transformer, err := cfg.Sync.Transformer()
	if err != nil {
		return errors.Trace(err)
	}
	mgr, err := docsync.NewManager(ctx, docsync.Config{
		Backend:            backend,
		RequireSchema:      cfg.Sync.RequireSchema,
		Transformer:        transformer,
		UniqueKeyField:     cfg.Sync.UniqueKeyField,
		TimestampField:     cfg.Sync.TimestampField,
		NamespaceField:     cfg.Sync.NamespaceField,
		BulkFlushThreshold: cfg.Sync.BulkFlushThreshold,
		AutoCommit:         cfg.Sync.AutoCommit,
		AutoCommitInterval: cfg.Sync.AutoCommitInterval,
		Retry:              cfg.Sync.Retry.Policy(),
		Metrics:            metrics,
	})
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err := mgr.Stop(); err != nil {
			logger.Errorf("stopping document manager: %v", err)
		}
	}()

	if _, _, err := mgr.Resume(ctx); err != nil {
		return errors.Trace(err)
	}
	if oplog != "" {
		f, err := os.Open(oplog)
		if err != nil {
			return errors.Annotatef(err, "opening oplog dump")
		}
		defer f.Close()
		n, err := mgr.ApplyAll(ctx, docsync.NewReader(f))
		if err != nil {
			return errors.Trace(err)
		}
		logger.Infof("read %d oplog entries from %s", n, oplog)
	}
	if _, err := mgr.Commit(ctx); err != nil {
		return errors.Trace(err)
	}
	stats := mgr.Stats()
	fmt.Fprintf(stdout, "flushed %d documents in %d flushes, dropped %d\n", stats.Flushed, stats.Flushes, stats.Dropped)

	last, ok, err := mgr.LastDocument(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if !ok {
		fmt.Fprintln(stdout, "index holds no applied document")
		return nil
	}
	fmt.Fprintf(stdout, "last applied: %s\n", describe(last))
	return nil
}

func describe(doc index.Document) string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%v", k, doc[k])
	}
	return out
}
