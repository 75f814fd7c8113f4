// SPDX-License-Identifier: AGPL-3.0-only
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/firoagni/ai-development-tutorials/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndGetExchanges(t *testing.T) {
	s := newTestStore(t)

	now := time.Now().Truncate(time.Microsecond)
	e := &model.Exchange{
		SessionID:  "01HZX3",
		Question:   "Who triggered the last build of XYZ 1.2?",
		Answer:     "Mark Twain",
		Model:      "gpt-4o-mini",
		ModelCalls: 3,
		ToolCalls:  2,
		Trimmed:    2,
		Usage:      model.Usage{InputTokens: 300, OutputTokens: 40, TotalTokens: 340},
		StartTime:  now,
		EndTime:    now.Add(2 * time.Second),
		Duration:   "2s",
	}

	if err := s.SaveExchange(e); err != nil {
		t.Fatalf("SaveExchange: %v", err)
	}

	got, err := s.GetExchanges("01HZX3", 1)
	if err != nil {
		t.Fatalf("GetExchanges: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 exchange, got %d", len(got))
	}
	g := got[0]
	if g.Answer != "Mark Twain" {
		t.Errorf("Answer = %q, want %q", g.Answer, "Mark Twain")
	}
	if g.ModelCalls != 3 || g.ToolCalls != 2 || g.Trimmed != 2 {
		t.Errorf("counters = %d/%d/%d, want 3/2/2", g.ModelCalls, g.ToolCalls, g.Trimmed)
	}
	if g.Usage != e.Usage {
		t.Errorf("Usage = %+v, want %+v", g.Usage, e.Usage)
	}
	if !g.StartTime.Equal(now) {
		t.Errorf("StartTime = %v, want %v", g.StartTime, now)
	}
	if g.Duration != "2s" {
		t.Errorf("Duration = %q, want %q", g.Duration, "2s")
	}
}

func TestGetExchangesEmpty(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetExchanges("nonexistent", 10)
	if err != nil {
		t.Fatalf("GetExchanges: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no exchanges, got %d", len(got))
	}
}

func TestGetExchangesOrderingAndLimit(t *testing.T) {
	s := newTestStore(t)

	now := time.Now().Truncate(time.Microsecond)
	for i := 0; i < 5; i++ {
		e := &model.Exchange{
			SessionID: "s1",
			Question:  fmt.Sprintf("q%d", i),
			StartTime: now.Add(time.Duration(i) * time.Minute),
			EndTime:   now.Add(time.Duration(i)*time.Minute + time.Second),
		}
		if err := s.SaveExchange(e); err != nil {
			t.Fatalf("SaveExchange %d: %v", i, err)
		}
	}
	if err := s.SaveExchange(&model.Exchange{SessionID: "s2", Question: "other", StartTime: now, EndTime: now}); err != nil {
		t.Fatalf("SaveExchange: %v", err)
	}

	got, err := s.GetExchanges("s1", 3)
	if err != nil {
		t.Fatalf("GetExchanges: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 exchanges, got %d", len(got))
	}
	for i, want := range []string{"q4", "q3", "q2"} {
		if got[i].Question != want {
			t.Errorf("got[%d].Question = %q, want %q", i, got[i].Question, want)
		}
	}

	got, err = s.GetExchanges("s1", 0)
	if err != nil {
		t.Fatalf("GetExchanges: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected limit 0 to clamp to 1, got %d", len(got))
	}
}

func TestErrorExchangeIsStored(t *testing.T) {
	s := newTestStore(t)

	now := time.Now()
	if err := s.SaveExchange(&model.Exchange{SessionID: "s", Question: "q", Error: "openai provider: 503", StartTime: now, EndTime: now}); err != nil {
		t.Fatalf("SaveExchange: %v", err)
	}
	got, err := s.GetExchanges("s", 1)
	if err != nil {
		t.Fatalf("GetExchanges: %v", err)
	}
	if got[0].Error != "openai provider: 503" || got[0].Answer != "" {
		t.Errorf("unexpected exchange %+v", got[0])
	}
}

func TestSecondWriterIsRejected(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	first, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}

	if _, err := NewSQLiteStore(dbPath); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked for second writer, got %v", err)
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	again, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("expected lock to be released after Close, got %v", err)
	}
	_ = again.Close()
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := runMigrations(s.db); err != nil {
		t.Fatalf("second runMigrations: %v", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil && err != sql.ErrNoRows {
		t.Fatalf("read version: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("version = %d, want %d", version, len(migrations))
	}
	_ = s.Close()
}
