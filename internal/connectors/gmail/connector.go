package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"taxlien/internal"
	"taxlien/internal/config"
)

// listQuery narrows the inbox to messages that can carry a list.
const listQuery = "has:attachment OR delinquent OR \"tax sale\""

type Connector struct {
	service *gmail.Service
}

func NewConnector(cfg config.Config) (*Connector, error) {
	required := [][2]string{
		{"GMAIL_CLIENT_ID", cfg.GmailClientID},
		{"GMAIL_CLIENT_SECRET", cfg.GmailClientSecret},
		{"GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken},
	}
	for _, r := range required {
		if err := cfg.Require(r[0], r[1]); err != nil {
			return nil, err
		}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	ctx := context.Background()
	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}
	return &Connector{service: svc}, nil
}

func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	listResp, err := c.service.Users.Messages.List("me").
		LabelIds(label).
		Q(listQuery).
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	out := make([]internal.FetchedMailMessage, 0, len(listResp.Messages))
	for _, ref := range listResp.Messages {
		if ref.Id == "" {
			continue
		}
		msg, err := c.service.Users.Messages.Get("me", ref.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		if msg.Raw == "" {
			continue
		}
		raw, err := decodeBase64URL(msg.Raw)
		if err != nil {
			return nil, err
		}
		out = append(out, toFetched(ref.Id, raw, msg.InternalDate))
	}
	return out, nil
}

// toFetched reads the envelope headers from the raw message itself.
func toFetched(gmailID string, raw []byte, internalDateMs int64) internal.FetchedMailMessage {
	fetched := internal.FetchedMailMessage{Provider: "gmail", MessageID: gmailID, Raw: raw}
	received := time.Now().UTC()
	if internalDateMs > 0 {
		received = time.UnixMilli(internalDateMs).UTC()
	}

	if parsed, err := mail.ReadMessage(bytes.NewReader(raw)); err == nil {
		h := parsed.Header
		if id := h.Get("Message-ID"); id != "" {
			fetched.MessageID = id
		}
		fetched.Subject = decodeHeader(h.Get("Subject"))
		fetched.From = decodeHeader(h.Get("From"))
		if t, err := h.Date(); err == nil {
			received = t.UTC()
		}
	}
	fetched.ReceivedAt = received.Format(time.RFC3339)
	return fetched
}

func decodeHeader(value string) string {
	var dec mime.WordDecoder
	if out, err := dec.DecodeHeader(value); err == nil {
		return out
	}
	return value
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail raw payload: %w", err)
}
