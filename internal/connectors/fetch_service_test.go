package connectors

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"taxlien/internal"
	"taxlien/internal/config"
	"taxlien/internal/storage"
)

type fakeConnector struct {
	messages []internal.FetchedMailMessage
}

func (f fakeConnector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	if len(f.messages) > max {
		return f.messages[:max], nil
	}
	return f.messages, nil
}

func TestFetchAndStore(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	conn := fakeConnector{messages: []internal.FetchedMailMessage{
		{Provider: "imap", MessageID: "<a@county>", Subject: "Delinquent list", From: "tax@county", ReceivedAt: "2025-05-01T00:00:00Z", Raw: []byte("Subject: a\r\n\r\nbody a")},
		{Provider: "imap", MessageID: "<b@county>", Subject: "Auction", From: "tax@county", ReceivedAt: "2025-05-02T00:00:00Z", Raw: []byte("Subject: b\r\n\r\nbody b")},
	}}
	rawDir := filepath.Join(tmp, "raw")
	svc := NewFetchService(db, rawDir, conn, nil)

	res, err := svc.FetchAndStore(context.Background(), "INBOX", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetched != 2 || res.Stored != 2 || res.Known != 0 {
		t.Fatalf("res=%+v", res)
	}
	files, _ := os.ReadDir(rawDir)
	if len(files) != 2 {
		t.Fatalf("files=%d", len(files))
	}

	row, err := db.GetEmailByProviderMessageID("imap", "<a@county>")
	if err != nil || row == nil {
		t.Fatalf("row=%v err=%v", row, err)
	}
	if err := db.UpdateEmailStatus(row.ID, "processed"); err != nil {
		t.Fatal(err)
	}

	res, err = svc.FetchAndStore(context.Background(), "INBOX", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Stored != 0 || res.Known != 2 {
		t.Fatalf("res=%+v", res)
	}
	row, _ = db.GetEmailByID(row.ID)
	if row.Status != "processed" {
		t.Fatalf("status=%s", row.Status)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New("pop3", config.Config{}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := New("imap", config.Config{}); err == nil {
		t.Fatal("expected missing IMAP_HOST error")
	}
}
