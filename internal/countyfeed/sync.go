package countyfeed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"taxlien/internal/config"
	"taxlien/internal/logging"
	"taxlien/internal/pipeline"
	"taxlien/internal/source"
	"taxlien/internal/storage"
)

const (
	lastRefreshKey = "feed.last_refresh"
	fileHashPrefix = "feed.sha256."
)

type SyncService struct {
	db       *storage.DB
	client   *Client
	importer *pipeline.ImportService
	cfg      config.Config
	log      *zap.Logger
}

func NewSyncService(db *storage.DB, cfg config.Config, importer *pipeline.ImportService, logger *zap.Logger) *SyncService {
	return &SyncService{db: db, client: NewClient(cfg), importer: importer, cfg: cfg, log: logging.OrNop(logger)}
}

type RefreshResult struct {
	Skipped    bool  `json:"skipped"`
	Files      int   `json:"files"`
	Unchanged  int   `json:"unchanged"`
	Rejected   int   `json:"rejected"`
	DatasetIDs []int `json:"datasetIds"`
}

// Refresh pulls the configured feed unless the last refresh is younger than FEED_REFRESH_HOURS.
// Files whose content hash matches the previous import are not imported again.
func (s *SyncService) Refresh(ctx context.Context, force bool) (RefreshResult, error) {
	res := RefreshResult{DatasetIDs: []int{}}
	if err := s.cfg.Require("FEED_URL", s.cfg.FeedURL); err != nil {
		return res, err
	}

	if !force {
		last, err := s.db.GetMetadata(lastRefreshKey)
		if err != nil {
			return res, err
		}
		if last != nil {
			if parsed, err := time.Parse(time.RFC3339, *last); err == nil {
				if time.Since(parsed) < time.Duration(s.cfg.FeedRefreshHours)*time.Hour {
					res.Skipped = true
					return res, nil
				}
			}
		}
	}

	files, err := s.client.Fetch(ctx, s.cfg.FeedURL)
	if err != nil {
		return res, err
	}
	res.Files = len(files)

	for _, f := range files {
		sum := sha256.Sum256(f.Content)
		hash := hex.EncodeToString(sum[:])
		key := fileHashPrefix + f.URL
		if prev, err := s.db.GetMetadata(key); err != nil {
			return res, err
		} else if prev != nil && *prev == hash && !force {
			res.Unchanged++
			continue
		}

		out, err := s.importer.Import(ctx, pipeline.ImportRequest{Filename: f.Name, Content: f.Content, Source: "feed"})
		var qerr *pipeline.QualityError
		switch {
		case errors.As(err, &qerr):
			res.Rejected++
			s.log.Warn("feed file rejected", zap.String("file", f.Name), zap.Float64("quality", qerr.Report.QualityScore))
			continue
		case errors.Is(err, source.ErrMalformed), errors.Is(err, source.ErrUnsupported):
			res.Rejected++
			s.log.Warn("feed file unreadable", zap.String("file", f.Name), zap.Error(err))
			continue
		case err != nil:
			return res, fmt.Errorf("import %s: %w", f.Name, err)
		}
		res.DatasetIDs = append(res.DatasetIDs, out.DatasetID)
		if err := s.db.SetMetadata(key, hash); err != nil {
			return res, err
		}
	}

	s.log.Info("feed refreshed", zap.Int("files", res.Files), zap.Int("imported", len(res.DatasetIDs)), zap.Int("unchanged", res.Unchanged))
	return res, s.db.SetMetadata(lastRefreshKey, time.Now().UTC().Format(time.RFC3339))
}
