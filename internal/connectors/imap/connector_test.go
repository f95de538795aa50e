package imap

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"
)

func TestToFetched(t *testing.T) {
	msg := &imap.Message{
		Uid:          42,
		InternalDate: time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC),
		Envelope: &imap.Envelope{
			MessageId: "<roll@county>",
			Subject:   "Tax sale list",
			From: []*imap.Address{
				{PersonalName: "Treasurer", MailboxName: "tax", HostName: "county.example"},
				nil,
				{MailboxName: "clerk", HostName: "county.example"},
			},
		},
	}
	got := toFetched(msg, []byte("raw"))
	if got.MessageID != "<roll@county>" || got.ReceivedAt != "2025-06-02T09:30:00Z" {
		t.Fatalf("got=%+v", got)
	}
	if got.From != "Treasurer <tax@county.example>, clerk@county.example" {
		t.Fatalf("from=%q", got.From)
	}

	bare := toFetched(&imap.Message{Uid: 7}, nil)
	if bare.MessageID != "imap-7" || bare.Provider != "imap" {
		t.Fatalf("bare=%+v", bare)
	}
}
