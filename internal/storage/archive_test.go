package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"studyguider/internal/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func TestArchiveRecordsTranscriptInOrder(t *testing.T) {
	archive := NewArchive(openTestDB(t))
	ctx := context.Background()

	if err := archive.Record(ctx, "abc", "req-1",
		models.NewMessage(models.RoleUser, "What is GPA?"),
		models.NewMessage(models.RoleAssistant, "Grade point average.")); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := archive.Record(ctx, "other", "req-2", models.NewMessage(models.RoleUser, "hi")); err != nil {
		t.Fatalf("record: %v", err)
	}

	msgs, err := archive.Transcript(ctx, "abc")
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != models.RoleUser || msgs[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected roles %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].Content != "Grade point average." {
		t.Fatalf("unexpected content %q", msgs[1].Content)
	}
}

func TestArchiveDeleteSession(t *testing.T) {
	archive := NewArchive(openTestDB(t))
	ctx := context.Background()
	if err := archive.Record(ctx, "abc", "", models.NewMessage(models.RoleUser, "hi")); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := archive.DeleteSession(ctx, "abc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	msgs, err := archive.Transcript(ctx, "abc")
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty transcript, got %d", len(msgs))
	}
}

func TestOpenFileDatabaseAndMigrateTwice(t *testing.T) {
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	for i := 0; i < 2; i++ {
		if err := Migrate(db, "sqlite"); err != nil {
			t.Fatalf("migrate #%d: %v", i, err)
		}
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("postgres", "dsn"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
	if _, err := Open("sqlite3", ""); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
	if err := Migrate(nil, "oracle"); err == nil {
		t.Fatalf("expected migrate error for unsupported driver")
	}
}

func TestMySQLDSNEnablesParseTime(t *testing.T) {
	dsn, err := mysqlDSN("chat:secret@tcp(127.0.0.1:3306)/studyguider?charset=utf8mb4")
	if err != nil {
		t.Fatalf("mysql dsn: %v", err)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Fatalf("expected parseTime=true in %q", dsn)
	}
	if !strings.Contains(dsn, "charset=utf8mb4") || !strings.Contains(dsn, "/studyguider") {
		t.Fatalf("dsn lost its settings: %q", dsn)
	}

	if _, err := mysqlDSN("not a dsn"); err == nil {
		t.Fatalf("expected error for malformed dsn")
	}
}
