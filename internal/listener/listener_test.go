package listener

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taxlien/internal"
	"taxlien/internal/config"
	"taxlien/internal/connectors"
	"taxlien/internal/pipeline"
	"taxlien/internal/scoring"
	"taxlien/internal/storage"
)

type fakeConnector []internal.FetchedMailMessage

func (f fakeConnector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	return f, nil
}

const listEmail = "From: tax@county.example\r\n" +
	"Subject: Delinquent tax sale list\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"B\"\r\n\r\n" +
	"--B\r\nContent-Type: text/plain\r\n\r\nParcels for the June auction.\r\n" +
	"--B\r\nContent-Type: text/csv\r\nContent-Disposition: attachment; filename=\"june roll.csv\"\r\n\r\n" +
	"Parcel,Amount Owed,Land Value\r\nA-1,1000,5000\r\nA-2,2500,9000\r\n" +
	"--B--\r\n"

func newTestService(t *testing.T, msgs fakeConnector) (*Service, config.Config) {
	t.Helper()
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{
		InboxRawDir:              filepath.Join(tmp, "raw"),
		OutputDir:                filepath.Join(tmp, "out"),
		MinQualityScore:          50,
		MailListenerProvider:     "imap",
		MailListenerLabel:        "INBOX",
		MailListenerFetchMax:     10,
		MailListenerProcessBatch: 10,
		MailListenerAutoExport:   true,
	}
	engine := scoring.NewEngine(func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }, 1)
	svc := NewService(db, cfg, pipeline.NewImportService(db, cfg, engine, nil), nil)
	svc.connector = func(string, config.Config) (connectors.MailConnector, error) { return msgs, nil }
	return svc, cfg
}

func TestCycleImportsAndExports(t *testing.T) {
	svc, cfg := newTestService(t, fakeConnector{
		{Provider: "imap", MessageID: "<roll@county>", Subject: "Delinquent tax sale list", ReceivedAt: "2025-05-30T00:00:00Z", Raw: []byte(listEmail)},
	})

	res, err := svc.Cycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetch.Stored != 1 || res.Emails != 1 || len(res.Datasets) != 1 {
		t.Fatalf("res=%+v", res)
	}
	if len(res.Exported) != 1 || !strings.HasPrefix(res.Exported[0], filepath.Join(cfg.OutputDir, "listener")) {
		t.Fatalf("exported=%v", res.Exported)
	}
	if !strings.HasSuffix(res.Exported[0], "_june_roll.xlsx") {
		t.Fatalf("name=%s", res.Exported[0])
	}
	if _, err := os.Stat(res.Exported[0]); err != nil {
		t.Fatal(err)
	}

	res, err = svc.Cycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetch.Known != 1 || res.Emails != 0 {
		t.Fatalf("second res=%+v", res)
	}
}

func TestCycleConnectorError(t *testing.T) {
	svc, _ := newTestService(t, nil)
	svc.connector = func(string, config.Config) (connectors.MailConnector, error) {
		return nil, errors.New("no credentials")
	}
	if _, err := svc.Cycle(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx); err != nil {
		t.Fatal(err)
	}
}
