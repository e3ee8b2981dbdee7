// Command signup_export computes one signup list and prints it as JSON or
// writes it as a CSV/PDF sheet.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/noah-isme/member-signups/internal/models"
	"github.com/noah-isme/member-signups/internal/rpc"
	"github.com/noah-isme/member-signups/internal/service"
	"github.com/noah-isme/member-signups/pkg/config"
	"github.com/noah-isme/member-signups/pkg/logger"
	"github.com/noah-isme/member-signups/pkg/storage"
)

type options struct {
	mainEvent     string
	otherEvents   []string
	questions     map[string]string
	multiQuestion []string
	limit         int
	format        string
	outputDir     string
	dedup         string
	prune         time.Duration
	listDatabases bool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	opts, err := parseFlags(os.Args[1:], cfg)
	if err != nil {
		log.Fatalf("invalid arguments: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, opts, logr, os.Stdout); err != nil {
		logr.Fatal("signup export failed", zap.Error(err))
	}
}

func parseFlags(args []string, cfg *config.Config) (options, error) {
	opts := options{}
	fs := pflag.NewFlagSet("signup_export", pflag.ContinueOnError)
	fs.StringVarP(&opts.mainEvent, "main", "m", cfg.Signups.MainEventCode, "main event code")
	fs.StringSliceVarP(&opts.otherEvents, "other", "o", cfg.Signups.OtherEventCodes, "previous course event codes")
	fs.StringToStringVarP(&opts.questions, "question", "q", nil, "question label with a scalar default, label=default")
	fs.StringSliceVar(&opts.multiQuestion, "multi-question", nil, "question labels answered with several options")
	fs.IntVarP(&opts.limit, "limit", "l", cfg.Signups.Limit, "only the first N registrations (0 for all)")
	fs.StringVarP(&opts.format, "format", "f", service.FormatJSON, "json, csv or pdf")
	fs.StringVar(&opts.outputDir, "out", cfg.Exports.OutputDir, "directory for csv/pdf sheets")
	fs.StringVar(&opts.dedup, "dedup", cfg.Signups.DedupRule, "registration dedup rule: recency or precedence")
	fs.DurationVar(&opts.prune, "prune", 0, "remove sheets in --out older than this before writing")
	fs.BoolVar(&opts.listDatabases, "list-databases", false, "list databases on the member service and exit")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.mainEvent == "" && !opts.listDatabases {
		return opts, fmt.Errorf("--main is required")
	}
	switch opts.format {
	case service.FormatJSON, service.FormatCSV, service.FormatPDF:
	default:
		return opts, fmt.Errorf("unknown format %q", opts.format)
	}
	return opts, nil
}

// query turns flags into a SignupQuery. Multi-option questions default to an
// empty list, the rest to their given scalar.
func (o options) query() service.SignupQuery {
	questions := make(map[string]interface{}, len(o.questions)+len(o.multiQuestion))
	for label, def := range o.questions {
		questions[label] = def
	}
	for _, label := range o.multiQuestion {
		questions[strings.TrimSpace(label)] = []interface{}{}
	}
	q := service.SignupQuery{
		MainEventCode:   o.mainEvent,
		OtherEventCodes: o.otherEvents,
		Questions:       questions,
	}
	if o.limit > 0 {
		limit := o.limit
		q.Limit = &limit
	}
	return q
}

func run(ctx context.Context, cfg *config.Config, opts options, logr *zap.Logger, stdout io.Writer) error {
	remote, err := rpc.NewXMLRPCRequester(cfg.MemberService.BaseURL(), rpc.Credentials{
		Database: cfg.MemberService.Database,
		Login:    cfg.MemberService.Login,
		Password: cfg.MemberService.Password,
	}, nil, logr)
	if err != nil {
		return err
	}
	defer remote.Close() //nolint:errcheck

	if opts.listDatabases {
		names, err := remote.ListDatabases(ctx)
		if err != nil {
			return err
		}
		sort.Strings(names)
		_, err = fmt.Fprintln(stdout, strings.Join(names, "\n"))
		return err
	}

	signups := service.NewSignupService(service.SignupServiceParams{
		Requester: remote,
		Logger:    logr,
		Config: service.SignupServiceConfig{
			MatchThreshold: cfg.Signups.MatchThreshold,
			DedupRule:      opts.dedup,
		},
	})
	result, err := signups.Compute(ctx, opts.query())
	if err != nil {
		return err
	}
	return write(result, opts, cfg, logr, stdout)
}

func write(result *models.SignupResult, opts options, cfg *config.Config, logr *zap.Logger, stdout io.Writer) error {
	if opts.format == service.FormatJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	store, err := storage.NewLocalStorage(opts.outputDir)
	if err != nil {
		return err
	}
	if opts.prune > 0 {
		removed, err := store.CleanupOlderThan(opts.prune)
		if err != nil {
			return err
		}
		logr.Info("pruned old sheets", zap.Int("removed", len(removed)))
	}
	exports := service.NewExportService(store, service.ExportConfig{Title: cfg.Exports.PDFTitle}, logr, nil, nil)
	path, err := exports.Store(result, opts.format)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, path)
	return err
}
