package connectors

import (
	"context"

	"go.uber.org/zap"

	"taxlien/internal/logging"
	"taxlien/internal/storage"
)

type FetchService struct {
	connector MailConnector
	store     *MailStoreService
	log       *zap.Logger
}

type FetchResult struct {
	Fetched int `json:"fetched"`
	Stored  int `json:"stored"`
	Known   int `json:"known"`
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, logger *zap.Logger) *FetchService {
	return &FetchService{
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
		log:       logging.OrNop(logger),
	}
}

func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		row, known, err := s.store.Store(msg)
		if err != nil {
			return res, err
		}
		if known {
			res.Known++
			continue
		}
		res.Stored++
		s.log.Debug("email stored", zap.Int("email", row.ID), zap.String("subject", row.Subject))
	}
	return res, nil
}
