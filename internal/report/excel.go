package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
)

const (
	SheetFullData   = "Full Data"
	SheetAttendance = "Attendance List"

	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	timeLayout = "2006-01-02 15:04:05"
)

// Workbook is a rendered two-sheet attendance report.
type Workbook struct {
	file *excelize.File
}

// BuildWorkbook renders sessions into the "Full Data" and "Attendance List"
// sheets. Rows for both sheets are computed concurrently; users lists the
// attendance rows and defaults to every user seen in sessions.
func BuildWorkbook(ctx context.Context, sessions []SmartSession, users []UserInfo, loc *time.Location) (*Workbook, error) {
	if loc == nil {
		loc = time.UTC
	}
	if users == nil {
		users = smartUsers(sessions)
	}

	var full, attendance [][]interface{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := fullDataRows(ctx, sessions, loc)
		full = rows
		return err
	})
	g.Go(func() error {
		rows, err := attendanceRows(ctx, sessions, users, loc)
		attendance = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetFullData); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetAttendance); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := writeRows(f, SheetFullData, full); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeRows(f, SheetAttendance, attendance); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Workbook{file: f}, nil
}

func (w *Workbook) WriteTo(out io.Writer) (int64, error) {
	return w.file.WriteTo(out)
}

func (w *Workbook) Close() error {
	return w.file.Close()
}

// Rows returns the cell values of sheet, for inspection.
func (w *Workbook) Rows(sheet string) ([][]string, error) {
	return w.file.GetRows(sheet)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func fullDataRows(ctx context.Context, sessions []SmartSession, loc *time.Location) ([][]interface{}, error) {
	rows := [][]interface{}{{
		"Session", "Session Start", "Session Stop",
		"Username", "First Name", "Last Name", "Email",
		"Clock In", "Clock Out", "Synthesized",
	}}
	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, e := range s.Entries {
			clockOut := ""
			if e.ClockOut != nil {
				clockOut = e.ClockOut.In(loc).Format(timeLayout)
			}
			rows = append(rows, []interface{}{
				s.ID, s.StartAt.In(loc).Format(timeLayout), s.StopAt.In(loc).Format(timeLayout),
				e.User.Username, e.User.FirstName, e.User.LastName, e.User.Email,
				e.ClockIn.In(loc).Format(timeLayout), clockOut, synthesized(e),
			})
		}
	}
	return rows, nil
}

func synthesized(e SmartEntry) string {
	if e.Synthesized {
		return "yes"
	}
	return "no"
}

func attendanceRows(ctx context.Context, sessions []SmartSession, users []UserInfo, loc *time.Location) ([][]interface{}, error) {
	header := []interface{}{"Username", "First Name", "Last Name", "Email"}
	present := make([]map[string]bool, len(sessions))
	for i, s := range sessions {
		header = append(header, s.StartAt.In(loc).Format(timeLayout))
		present[i] = make(map[string]bool, len(s.Entries))
		for _, e := range s.Entries {
			present[i][e.User.ID] = true
		}
	}
	header = append(header, "Present", "Absent")

	rows := [][]interface{}{header}
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := []interface{}{u.Username, u.FirstName, u.LastName, u.Email}
		var p, a int
		for i := range sessions {
			if present[i][u.ID] {
				row = append(row, "P")
				p++
			} else {
				row = append(row, "A")
				a++
			}
		}
		rows = append(rows, append(row, p, a))
	}
	return rows, nil
}

func smartUsers(sessions []SmartSession) []UserInfo {
	plain := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		var entries []Entry
		for _, e := range s.Entries {
			entries = append(entries, Entry{User: e.User})
		}
		plain = append(plain, Session{Entries: entries})
	}
	return Users(plain)
}
