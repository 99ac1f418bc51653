package report

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"clockpoint/internal/models"
)

func TestBuildWorkbook(t *testing.T) {
	recs := []models.EntryRecord{
		record("s1", bob, "e1", start.Add(time.Minute), models.EntryIn),
		record("s1", bob, "e2", start.Add(30*time.Minute), models.EntryOut),
		record("s1", carol, "e3", start.Add(2*time.Minute), models.EntryIn),
	}
	sessions := PairAll(GroupSessions(recs), stop.Add(time.Hour))
	second := SmartSession{ID: "s2", StartAt: start.Add(24 * time.Hour), StopAt: stop.Add(24 * time.Hour), Entries: []SmartEntry{}}
	sessions = append(sessions, second)

	wb, err := BuildWorkbook(context.Background(), sessions, nil, time.UTC)
	if err != nil {
		t.Fatalf("BuildWorkbook: %v", err)
	}
	defer wb.Close()

	full, err := wb.Rows(SheetFullData)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(full) != 3 {
		t.Fatalf("expected header + 2 pairs, got %d rows", len(full))
	}
	if full[2][3] != "carol" || full[2][8] != "2024-03-04 09:00:00" || full[2][9] != "yes" {
		t.Fatalf("unexpected synthesized row %v", full[2])
	}

	att, err := wb.Rows(SheetAttendance)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(att) != 3 {
		t.Fatalf("expected header + 2 users, got %d rows", len(att))
	}
	wantBob := []string{"bob", "", "", "bob@x", "P", "A", "1", "1"}
	if len(att[1]) != len(wantBob) {
		t.Fatalf("unexpected bob row %v", att[1])
	}
	for i := range wantBob {
		if att[1][i] != wantBob[i] {
			t.Fatalf("bob row = %v, want %v", att[1], wantBob)
		}
	}

	var buf bytes.Buffer
	if _, err := wb.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	reopened, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer reopened.Close()
	if sheets := reopened.GetSheetList(); len(sheets) != 2 || sheets[0] != SheetFullData || sheets[1] != SheetAttendance {
		t.Fatalf("unexpected sheets %v", sheets)
	}
}

func TestBuildWorkbookCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sessions := []SmartSession{{ID: "s1", StartAt: start, StopAt: stop, Entries: []SmartEntry{}}}
	users := []UserInfo{{ID: "bob", Username: "bob"}}
	if _, err := BuildWorkbook(ctx, sessions, users, nil); err == nil {
		t.Fatalf("expected cancellation error")
	}
}
