package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taxlien/internal"
	"taxlien/internal/config"
	"taxlien/internal/inference"
	"taxlien/internal/logging"
	"taxlien/internal/scoring"
	"taxlien/internal/source"
	"taxlien/internal/storage"
)

// QualityError rejects a batch whose validation score is under the configured minimum.
type QualityError struct {
	Report  internal.ValidationReport
	Minimum float64
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("data quality %.1f below minimum %.1f (%d of %d rows valid)",
		e.Report.QualityScore, e.Minimum, e.Report.ValidRows, e.Report.TotalRows)
}

type ImportService struct {
	db     *storage.DB
	cfg    config.Config
	engine *scoring.Engine
	log    *zap.Logger
}

func NewImportService(db *storage.DB, cfg config.Config, engine *scoring.Engine, logger *zap.Logger) *ImportService {
	if engine == nil {
		engine = scoring.NewEngine(nil, cfg.ScoringWorkers)
	}
	return &ImportService{db: db, cfg: cfg, engine: engine, log: logging.OrNop(logger)}
}

type ImportRequest struct {
	Filename string
	Content  []byte
	// Source tags where the file came from: upload, feed or mail.
	Source string
	// Force stores the batch even when it fails the quality gate.
	Force   bool
	EmailID int
}

type ImportResult struct {
	DatasetID int                       `json:"datasetId"`
	UID       string                    `json:"uid"`
	TraceID   string                    `json:"traceId"`
	Mapping   internal.ColumnMapping    `json:"columnMapping"`
	Report    internal.ValidationReport `json:"report"`
	Stats     internal.PortfolioStats   `json:"stats"`
}

func (s *ImportService) Import(ctx context.Context, req ImportRequest) (ImportResult, error) {
	start := time.Now()
	trace := traceID()
	log := s.log.With(zap.String("trace", trace), zap.String("file", req.Filename))

	table, err := source.Read(req.Filename, req.Content)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read %s: %w", req.Filename, err)
	}
	readDone := time.Now()

	parsed := inference.Parse(table.Headers, table.Rows)
	log.Debug("columns inferred", zap.Any("mapping", parsed.Mapping), zap.Float64("quality", parsed.Report.QualityScore))
	if parsed.Report.QualityScore < s.cfg.MinQualityScore && !req.Force {
		log.Warn("batch rejected", zap.Float64("quality", parsed.Report.QualityScore), zap.Int("rows", parsed.Report.TotalRows))
		return ImportResult{}, &QualityError{Report: parsed.Report, Minimum: s.cfg.MinQualityScore}
	}
	parseDone := time.Now()

	ds, err := s.db.CreateDataset(req.Filename, firstNonEmpty(req.Source, "upload"), len(parsed.Records), parsed.Mapping, parsed.Report)
	if err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{DatasetID: ds.ID, UID: ds.UID, TraceID: trace, Mapping: parsed.Mapping, Report: parsed.Report}

	analyzed, stored, err := s.store(ctx, ds.ID, parsed.Records)
	if err != nil {
		if uerr := s.db.UpdateDatasetStatus(ds.ID, internal.DatasetFailed, 0); uerr != nil {
			log.Error("mark dataset failed", zap.Int("dataset", ds.ID), zap.Error(uerr))
		}
		return res, err
	}
	scoreDone := time.Now()

	res.Stats = scoring.Aggregate(analyzed)
	if err := s.db.PutAnalysis(ds.ID, "portfolio", res.Stats); err != nil {
		log.Warn("cache portfolio stats", zap.Error(err))
	}

	timings := map[string]float64{
		"readMs":  float64(readDone.Sub(start).Milliseconds()),
		"parseMs": float64(parseDone.Sub(readDone).Milliseconds()),
		"scoreMs": float64(scoreDone.Sub(parseDone).Milliseconds()),
		"totalMs": float64(time.Since(start).Milliseconds()),
	}
	counts := map[string]int{
		"rows":       parsed.Report.TotalRows,
		"valid":      parsed.Report.ValidRows,
		"stored":     stored,
		"highScores": res.Stats.ScoreDistribution.High,
	}
	if err := s.db.InsertRun(trace, ds.ID, req.EmailID, timings, counts); err != nil {
		log.Warn("record run", zap.Error(err))
	}

	log.Info("dataset imported",
		zap.Int("dataset", ds.ID),
		zap.Int("rows", stored),
		zap.Float64("quality", parsed.Report.QualityScore),
		zap.Float64("averageScore", res.Stats.AverageScore),
	)
	return res, nil
}

func (s *ImportService) store(ctx context.Context, datasetID int, records []internal.TypedPropertyRecord) ([]internal.AnalyzedProperty, int, error) {
	analyzed, err := s.engine.AnalyzeBatch(ctx, records)
	if err != nil {
		return nil, 0, err
	}
	n, err := s.db.InsertProperties(datasetID, analyzed)
	if err != nil {
		return nil, 0, fmt.Errorf("store properties: %w", err)
	}
	if err := s.db.UpdateDatasetStatus(datasetID, internal.DatasetCompleted, n); err != nil {
		return nil, 0, err
	}
	return analyzed, n, nil
}

func traceID() string {
	return uuid.NewString()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
