package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"go.uber.org/zap"

	"taxlien/internal"
	"taxlien/internal/logging"
	"taxlien/internal/source"
	"taxlien/internal/storage"
)

const (
	EmailFetched   = "fetched"
	EmailProcessed = "processed"
	EmailSkipped   = "skipped"
	EmailFailed    = "failed"
)

// MailProcessingService turns fetched emails into datasets, one per list attachment.
type MailProcessingService struct {
	db       *storage.DB
	importer *ImportService
	log      *zap.Logger
}

func NewMailProcessingService(db *storage.DB, importer *ImportService, logger *zap.Logger) *MailProcessingService {
	return &MailProcessingService{db: db, importer: importer, log: logging.OrNop(logger)}
}

type MailResult struct {
	EmailID    int    `json:"emailId"`
	Status     string `json:"status"`
	DatasetIDs []int  `json:"datasetIds"`
	Rejected   int    `json:"rejected"`
}

func (s *MailProcessingService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (MailResult, error) {
	email, err := s.db.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return MailResult{}, err
	}
	if email == nil {
		return MailResult{}, fmt.Errorf("email %s/%s: %w", provider, messageID, storage.ErrNotFound)
	}
	return s.ProcessEmail(ctx, *email)
}

// ProcessByID reprocesses one stored email regardless of its status.
func (s *MailProcessingService) ProcessByID(ctx context.Context, id int) (MailResult, error) {
	email, err := s.db.GetEmailByID(id)
	if err != nil {
		return MailResult{}, err
	}
	if email == nil {
		return MailResult{}, fmt.Errorf("email %d: %w", id, storage.ErrNotFound)
	}
	return s.ProcessEmail(ctx, *email)
}

// ProcessPending handles up to limit fetched emails, oldest first, optionally only from provider.
func (s *MailProcessingService) ProcessPending(ctx context.Context, limit int, provider string) ([]MailResult, error) {
	pending, err := s.db.ListEmailsByStatus(EmailFetched, limit)
	if err != nil {
		return nil, err
	}
	var out []MailResult
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.ProcessEmail(ctx, email)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			s.log.Warn("email failed", zap.Int("email", email.ID), zap.Error(err))
			res.Status = EmailFailed
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *MailProcessingService) ProcessEmail(ctx context.Context, email internal.EmailRow) (MailResult, error) {
	start := time.Now()
	log := s.log.With(zap.Int("email", email.ID), zap.String("provider", email.Provider))
	res := MailResult{EmailID: email.ID, DatasetIDs: []int{}}

	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		_ = s.db.UpdateEmailStatus(email.ID, EmailFailed)
		return res, fmt.Errorf("read email %d: %w", email.ID, err)
	}
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		_ = s.db.UpdateEmailStatus(email.ID, EmailFailed)
		return res, fmt.Errorf("parse email %d: %w", email.ID, err)
	}

	names := make([]string, 0, len(env.Attachments))
	for _, att := range env.Attachments {
		names = append(names, strings.TrimSpace(att.FileName))
	}
	detect := DetectDelinquencyList(firstNonEmpty(env.GetHeader("Subject"), email.Subject), env.Text, env.HTML, names)
	if !detect.IsList {
		log.Info("email skipped", zap.Float64("score", detect.Score))
		return s.finish(email.ID, res, EmailSkipped, start)
	}

	for _, att := range env.Attachments {
		name := strings.TrimSpace(att.FileName)
		if !source.Supported(name) {
			continue
		}
		out, err := s.importer.Import(ctx, ImportRequest{Filename: name, Content: att.Content, Source: "mail", EmailID: email.ID})
		var qerr *QualityError
		switch {
		case errors.As(err, &qerr):
			res.Rejected++
			log.Warn("attachment rejected", zap.String("attachment", name), zap.Float64("quality", qerr.Report.QualityScore))
		case errors.Is(err, source.ErrMalformed):
			res.Rejected++
			log.Warn("attachment unreadable", zap.String("attachment", name), zap.Error(err))
		case err != nil:
			_ = s.db.UpdateEmailStatus(email.ID, EmailFailed)
			return res, err
		default:
			res.DatasetIDs = append(res.DatasetIDs, out.DatasetID)
		}
	}

	// A body table with no usable attachment still counts as a list.
	if len(res.DatasetIDs) == 0 && res.Rejected == 0 && strings.Contains(strings.ToLower(env.HTML), "<table") {
		out, err := s.importer.Import(ctx, ImportRequest{Filename: fmt.Sprintf("email-%d.html", email.ID), Content: []byte(env.HTML), Source: "mail", EmailID: email.ID})
		if err == nil {
			res.DatasetIDs = append(res.DatasetIDs, out.DatasetID)
		} else {
			res.Rejected++
			log.Warn("body table rejected", zap.Error(err))
		}
	}

	status := EmailProcessed
	if len(res.DatasetIDs) == 0 {
		status = EmailSkipped
	}
	log.Info("email processed", zap.Int("datasets", len(res.DatasetIDs)), zap.Int("rejected", res.Rejected))
	return s.finish(email.ID, res, status, start)
}

func (s *MailProcessingService) finish(emailID int, res MailResult, status string, start time.Time) (MailResult, error) {
	res.Status = status
	if err := s.db.UpdateEmailStatus(emailID, status); err != nil {
		return res, err
	}
	if status == EmailSkipped {
		_ = s.db.InsertRun(traceID(), 0, emailID, map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}, map[string]int{"datasets": 0, "rejected": res.Rejected})
	}
	return res, nil
}
