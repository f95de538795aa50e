package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"taxlien/internal"
	"taxlien/internal/config"
	"taxlien/internal/connectors"
	"taxlien/internal/countyfeed"
	"taxlien/internal/listener"
	"taxlien/internal/logging"
	"taxlien/internal/pipeline"
	"taxlien/internal/scoring"
	"taxlien/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	must(err)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engine := scoring.NewEngine(nil, cfg.ScoringWorkers)
	cmd, args := os.Args[1], os.Args[2:]

	// run works on files only and never opens the database.
	if cmd == "run" {
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "input list (.csv, .xlsx, .html, .pdf)")
		output := fs.String("output", "", "output path (.xlsx or .csv)")
		_ = fs.Parse(args)
		if *input == "" || *output == "" {
			must(fmt.Errorf("--input and --output are required"))
		}
		res, err := pipeline.RunOnce(ctx, engine, *input, *output)
		must(err)
		fmt.Printf("run done rows=%d quality=%.1f average=%.1f output=%s\n",
			res.Report.TotalRows, res.Report.QualityScore, res.Stats.AverageScore, *output)
		return
	}

	must(os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755))
	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	importer := pipeline.NewImportService(db, cfg, engine, logger)

	switch cmd {
	case "import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "list to import")
		force := fs.Bool("force", false, "store even when data quality is below MIN_QUALITY_SCORE")
		_ = fs.Parse(args)
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		blob, err := os.ReadFile(*file)
		must(err)
		res, err := importer.Import(ctx, pipeline.ImportRequest{Filename: filepath.Base(*file), Content: blob, Source: "upload", Force: *force})
		var qerr *pipeline.QualityError
		if errors.As(err, &qerr) {
			printJSON(qerr.Report)
			must(fmt.Errorf("%w (use --force to import anyway)", err))
		}
		must(err)
		printJSON(res)
	case "datasets":
		list, err := db.ListDatasets()
		must(err)
		printJSON(list)
	case "dataset:status":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int("id", 0, "dataset id")
		_ = fs.Parse(args)
		ds, err := db.GetDataset(*id)
		must(err)
		printJSON(ds)
	case "dataset:delete":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int("id", 0, "dataset id")
		_ = fs.Parse(args)
		must(db.DeleteDataset(*id))
		fmt.Printf("dataset %d deleted\n", *id)
	case "properties":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		f := storage.PropertyFilter{}
		var minScore, maxScore optInt
		var minEquity, maxEquity, minAmount, maxAmount optFloat
		fs.IntVar(&f.DatasetID, "dataset", 0, "dataset id")
		fs.Var(&minScore, "min-score", "minimum investment score")
		fs.Var(&maxScore, "max-score", "maximum investment score")
		fs.Var(&minEquity, "min-equity", "minimum equity ratio")
		fs.Var(&maxEquity, "max-equity", "maximum equity ratio")
		fs.Var(&minAmount, "min-amount", "minimum delinquent amount")
		fs.Var(&maxAmount, "max-amount", "maximum delinquent amount")
		fs.StringVar(&f.PropertyType, "type", "", "residential|commercial|raw_land|multi_family|unknown")
		fs.StringVar(&f.Location, "location", "", "substring of location or address")
		fs.StringVar(&f.SortBy, "sort", "investment_score", "investment_score|equity_ratio|delinquent_amount|delinquency_age|created_at|parcel_id")
		fs.StringVar(&f.SortOrder, "order", "desc", "asc|desc")
		fs.IntVar(&f.Page, "page", 1, "page number")
		fs.IntVar(&f.Limit, "limit", cfg.PageSizeDefault, "page size")
		_ = fs.Parse(args)
		f.MinScore, f.MaxScore = minScore.v, maxScore.v
		f.MinEquityRatio, f.MaxEquityRatio = minEquity.v, maxEquity.v
		f.MinAmount, f.MaxAmount = minAmount.v, maxAmount.v
		f.Limit = cfg.ClampLimit(f.Limit)
		page, err := db.QueryProperties(f)
		must(err)
		printJSON(page)
	case "property":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int("id", 0, "property id")
		_ = fs.Parse(args)
		detail, err := db.GetProperty(*id)
		must(err)
		printJSON(detail)
	case "watch:add":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int("id", 0, "property id")
		notes := fs.String("notes", "", "free-form notes")
		priority := fs.String("priority", string(internal.PriorityMedium), "low|medium|high")
		_ = fs.Parse(args)
		var notesPtr *string
		if strings.TrimSpace(*notes) != "" {
			notesPtr = notes
		}
		entry, err := db.Watch(*id, notesPtr, internal.WatchPriority(strings.ToLower(*priority)))
		must(err)
		printJSON(entry)
	case "watch:remove":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int("id", 0, "property id")
		_ = fs.Parse(args)
		must(db.Unwatch(*id))
		fmt.Printf("property %d removed from watchlist\n", *id)
	case "watchlist":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		page := fs.Int("page", 1, "page number")
		limit := fs.Int("limit", cfg.PageSizeDefault, "page size")
		_ = fs.Parse(args)
		list, pg, err := db.Watchlist(*page, cfg.ClampLimit(*limit))
		must(err)
		printJSON(map[string]any{"watchlist": list, "pagination": pg})
	case "export:csv", "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", "", "output path")
		datasetID := fs.Int("dataset", 0, "dataset id (default: all)")
		var minScore optInt
		fs.Var(&minScore, "min-score", "minimum investment score")
		_ = fs.Parse(args)
		if strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--out is required"))
		}
		stored, err := db.ExportProperties(storage.ExportFilter{DatasetID: *datasetID, MinScore: minScore.v})
		must(err)
		if cmd == "export:csv" {
			must(pipeline.ExportCSVFile(pipeline.Unwrap(stored), *out))
		} else {
			must(pipeline.ExportXLSX(pipeline.Unwrap(stored), *out))
		}
		fmt.Printf("exported %d rows to %s\n", len(stored), *out)
	case "analytics":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		datasetID := fs.Int("dataset", 0, "dataset id")
		kind := fs.String("kind", "portfolio", "portfolio|trends|location|risk")
		_ = fs.Parse(args)
		var result any
		switch *kind {
		case "portfolio":
			result, err = db.Portfolio(*datasetID)
		case "trends":
			result, err = db.Trends(*datasetID)
		case "location":
			result, err = db.Locations(*datasetID)
		case "risk":
			result, err = db.Risk(*datasetID, time.Now().UTC(), cfg.ApproachingSaleDays)
		default:
			err = fmt.Errorf("unsupported analytics kind: %s", *kind)
		}
		must(err)
		printJSON(result)
	case "feed:refresh":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		force := fs.Bool("force", false, "ignore FEED_REFRESH_HOURS and unchanged-file checks")
		_ = fs.Parse(args)
		svc := countyfeed.NewSyncService(db, cfg, importer, logger)
		res, err := svc.Refresh(ctx, *force)
		must(err)
		printJSON(res)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.MailListenerLabel, "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(args)
		conn, err := connectors.New(*provider, cfg)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.InboxRawDir, conn, logger)
		result, err := fetch.FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d known=%d\n", *provider, result.Fetched, result.Stored, result.Known)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "", "only this provider (gmail|imap)")
		messageID := fs.String("messageId", "", "specific message-id")
		id := fs.Int("id", 0, "reprocess a stored email by id")
		batch := fs.Int("batch", cfg.MailListenerProcessBatch, "batch size")
		_ = fs.Parse(args)
		processor := pipeline.NewMailProcessingService(db, importer, logger)
		if *id > 0 {
			res, err := processor.ProcessByID(ctx, *id)
			must(err)
			printJSON(res)
			return
		}
		if strings.TrimSpace(*messageID) != "" {
			if *provider == "" {
				must(fmt.Errorf("--provider is required with --messageId"))
			}
			res, err := processor.ProcessByProviderMessageID(ctx, *provider, *messageID)
			must(err)
			printJSON(res)
			return
		}
		results, err := processor.ProcessPending(ctx, *batch, *provider)
		must(err)
		printJSON(results)
	case "mail:listen":
		s := listener.NewService(db, cfg, importer, logger)
		logger.Info("listener started", zap.String("provider", cfg.MailListenerProvider), zap.Int("intervalSec", cfg.MailListenerIntervalSec))
		must(s.Run(ctx))
	default:
		usage()
		os.Exit(1)
	}
}

func printJSON(v any) {
	blob, err := json.MarshalIndent(v, "", "  ")
	must(err)
	fmt.Println(string(blob))
}

func usage() {
	fmt.Println("usage: taxlien <command>")
	fmt.Println("commands:")
	fmt.Println("  import --file=roll.csv [--force]")
	fmt.Println("  datasets")
	fmt.Println("  dataset:status --id=1")
	fmt.Println("  dataset:delete --id=1")
	fmt.Println("  properties [--dataset=1] [--min-score=60] [--max-score] [--min-equity] [--max-equity]")
	fmt.Println("             [--min-amount] [--max-amount] [--type] [--location] [--sort] [--order] [--page] [--limit]")
	fmt.Println("  property --id=1")
	fmt.Println("  watch:add --id=1 [--notes=...] [--priority=low|medium|high]")
	fmt.Println("  watch:remove --id=1")
	fmt.Println("  watchlist [--page=1] [--limit=50]")
	fmt.Println("  export:csv --out=./out/properties.csv [--dataset=1] [--min-score=60]")
	fmt.Println("  export:xlsx --out=./out/properties.xlsx [--dataset=1] [--min-score=60]")
	fmt.Println("  analytics --dataset=1 --kind=portfolio|trends|location|risk")
	fmt.Println("  feed:refresh [--force]")
	fmt.Println("  mail:fetch [--provider=gmail|imap] [--label=INBOX] [--max=50]")
	fmt.Println("  mail:process [--provider=gmail|imap] [--messageId=...|--id=N] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  run --input=roll.csv --output=./out/scored.xlsx")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
