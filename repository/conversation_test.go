package repository

import (
	"strings"
	"testing"

	"github.com/team-mirai/mirai-gikai-sub000/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost dbname=mirai_test sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("failed to open dry-run db: %v", err)
	}
	return db
}

func TestTranscriptQueryOrdersTiesBySequence(t *testing.T) {
	var messages []models.InterviewMessage
	stmt := transcriptQuery(dryRunDB(t), "session-1").Find(&messages).Statement

	sql := stmt.SQL.String()
	if !strings.Contains(sql, "ORDER BY created_at ASC,seq ASC") {
		t.Errorf("expected created_at then seq ordering, got %s", sql)
	}
	if !strings.Contains(sql, `"interview_messages"."deleted_at" IS NULL`) {
		t.Errorf("expected soft-deleted rows excluded, got %s", sql)
	}
	if len(stmt.Vars) != 1 || stmt.Vars[0] != "session-1" {
		t.Errorf("expected the session id bound, got %v", stmt.Vars)
	}
}
