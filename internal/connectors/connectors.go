// Package connectors pulls raw messages from a mailbox and stores them for processing.
package connectors

import (
	"context"
	"fmt"
	"strings"

	"taxlien/internal"
	"taxlien/internal/config"
	"taxlien/internal/connectors/gmail"
	"taxlien/internal/connectors/imap"
)

type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// New builds the connector for provider ("gmail" or "imap").
func New(provider string, cfg config.Config) (MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmail.NewConnector(cfg)
	case "imap":
		return imap.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}
