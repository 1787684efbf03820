package replaylog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/resinker/internal/scheduler"
	"github.com/roach88/resinker/internal/value"
)

func record(eventType, userID string) scheduler.Record {
	payload := value.NewObject()
	payload.Set("user_id", value.String(userID))
	return scheduler.Record{
		EventType: eventType,
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Payload:   payload,
	}
}

func TestWriteAndReadAllRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.db")
	log, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	if err := log.Write(record("UserSignedUp", "u1")); err != nil {
		t.Fatal(err)
	}
	if err := log.Write(record("UserLoggedIn", "u1")); err != nil {
		t.Fatal(err)
	}

	rows, err := log.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].EventType != "UserSignedUp" || rows[1].EventType != "UserLoggedIn" {
		t.Fatalf("unexpected order: %+v", rows)
	}
	if rows[0].Seq != 1 || rows[1].Seq != 2 {
		t.Fatalf("unexpected sequence numbers: %+v", rows)
	}
}

func TestDiffDetectsMismatch(t *testing.T) {
	a := []StoredRecord{{Seq: 1, EventType: "UserSignedUp", Payload: `{"user_id":"u1"}`}}
	b := []StoredRecord{{Seq: 1, EventType: "UserSignedUp", Payload: `{"user_id":"u2"}`}}
	if diff := Diff(a, b); diff == "" {
		t.Fatal("expected a diff for mismatched payload")
	}
	if diff := Diff(a, a); diff != "" {
		t.Fatalf("expected no diff for identical sequences, got %q", diff)
	}
}

func TestDiffDetectsCountMismatch(t *testing.T) {
	a := []StoredRecord{{Seq: 1, EventType: "UserSignedUp"}}
	if diff := Diff(a, nil); diff == "" {
		t.Fatal("expected a diff for differing record counts")
	}
}

func TestOpenTruncatesPreviousRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.db")
	log, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := log.Write(record("UserSignedUp", "u1")); err != nil {
		t.Fatal(err)
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	log2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer log2.Close()

	rows, err := log2.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected Open to truncate previous run's records, got %d rows", len(rows))
	}
}
