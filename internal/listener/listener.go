// Package listener polls a mailbox and turns list emails into scored datasets.
package listener

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"taxlien/internal/config"
	"taxlien/internal/connectors"
	"taxlien/internal/logging"
	"taxlien/internal/pipeline"
	"taxlien/internal/storage"
	"taxlien/internal/util"
)

type Service struct {
	db        *storage.DB
	cfg       config.Config
	log       *zap.Logger
	mail      *pipeline.MailProcessingService
	connector func(provider string, cfg config.Config) (connectors.MailConnector, error)
}

func NewService(db *storage.DB, cfg config.Config, importer *pipeline.ImportService, logger *zap.Logger) *Service {
	logger = logging.OrNop(logger)
	return &Service{
		db:        db,
		cfg:       cfg,
		log:       logger,
		mail:      pipeline.NewMailProcessingService(db, importer, logger),
		connector: connectors.New,
	}
}

// CycleResult summarises one fetch and process pass.
type CycleResult struct {
	Fetch    connectors.FetchResult `json:"fetch"`
	Emails   int                    `json:"emails"`
	Datasets []int                  `json:"datasets"`
	Exported []string               `json:"exported,omitempty"`
}

// Run repeats Cycle every MAIL_LISTENER_INTERVAL_SEC until ctx is done. Cycle errors are logged, not fatal.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		if _, err := s.Cycle(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("listener cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func (s *Service) Cycle(ctx context.Context) (CycleResult, error) {
	res := CycleResult{Datasets: []int{}}
	provider := strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
	conn, err := s.connector(provider, s.cfg)
	if err != nil {
		return res, err
	}

	fetch := connectors.NewFetchService(s.db, s.cfg.InboxRawDir, conn, s.log)
	res.Fetch, err = fetch.FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return res, err
	}

	results, err := s.mail.ProcessPending(ctx, s.cfg.MailListenerProcessBatch, provider)
	res.Emails = len(results)
	for _, r := range results {
		res.Datasets = append(res.Datasets, r.DatasetIDs...)
	}
	if err != nil {
		return res, err
	}

	if s.cfg.MailListenerAutoExport {
		for _, id := range res.Datasets {
			path, err := s.exportDataset(id)
			if err != nil {
				return res, err
			}
			res.Exported = append(res.Exported, path)
		}
	}

	s.log.Info("listener cycle done",
		zap.String("provider", provider),
		zap.Int("fetched", res.Fetch.Fetched),
		zap.Int("stored", res.Fetch.Stored),
		zap.Int("emails", res.Emails),
		zap.Int("datasets", len(res.Datasets)),
	)
	return res, nil
}

func (s *Service) exportDataset(id int) (string, error) {
	ds, err := s.db.GetDataset(id)
	if err != nil {
		return "", err
	}
	props, err := s.db.ExportProperties(storage.ExportFilter{DatasetID: id})
	if err != nil {
		return "", err
	}
	base := strings.TrimSuffix(ds.Filename, filepath.Ext(ds.Filename))
	outputPath := filepath.Join(s.cfg.OutputDir, "listener", fmt.Sprintf("%d_%s.xlsx", id, util.SanitizeFilename(base)))
	if err := pipeline.ExportXLSX(pipeline.Unwrap(props), outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}
