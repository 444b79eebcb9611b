package database

import (
	"testing"

	"weblast/internal/config"
	"weblast/internal/models"
)

func TestOpenNoneDisablesLog(t *testing.T) {
	db, err := Open(&config.Config{DBDriver: "none"})
	if err != nil || db != nil {
		t.Fatalf("Open(none) = %v, %v", db, err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(&config.Config{DBDriver: "oracle"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestRecentMessages(t *testing.T) {
	db, err := Open(&config.Config{DBDriver: "sqlite", DBPath: t.TempDir() + "/log.db"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	rows := []models.Message{
		{RunID: "r1", WaID: "111", Content: "first", Type: "text", Status: "sent"},
		{RunID: "r2", WaID: "222", Content: "second", Type: "text", Status: "sent"},
		{RunID: "r1", WaID: "111", Content: "third", Type: "image", Status: "failed"},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	all, err := RecentMessages(db, "", 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(all) != 3 || all[0].Content != "third" {
		t.Fatalf("all = %+v", all)
	}

	r1, err := RecentMessages(db, "r1", 1)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(r1) != 1 || r1[0].Content != "third" {
		t.Fatalf("r1 = %+v", r1)
	}
}
