package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"clockpoint/internal/authz"
	"clockpoint/internal/models"
	"clockpoint/internal/report"
	"clockpoint/internal/storage"
)

// ReportArchive keeps a copy of generated spreadsheets.
type ReportArchive interface {
	ArchiveReport(ctx context.Context, key string, data []byte) error
}

type ReportService struct {
	store   Store
	authz   *authz.Evaluator
	archive ReportArchive
	loc     *time.Location
	now     func() time.Time
	log     zerolog.Logger
}

// NewReportService builds the service; archive may be nil.
func NewReportService(store Store, evaluator *authz.Evaluator, archive ReportArchive, loc *time.Location, log zerolog.Logger) *ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportService{store: store, authz: evaluator, archive: archive, loc: loc, now: time.Now, log: log}
}

func (s *ReportService) WithClock(now func() time.Time) *ReportService {
	s.now = now
	return s
}

type Report struct {
	Sessions []report.Session
	Smart    []report.SmartSession
	// Own is set when the actor may only see its own entries.
	Own bool
}

// scope applies the actor's report permissions to f. Members holding only
// view_own_report see their own entries.
func (s *ReportService) scope(ctx context.Context, actor models.User, groupID string, f models.ReportFilter) (models.ReportFilter, bool, error) {
	grant, err := s.authz.Resolve(ctx, actor.ID, groupID)
	if err != nil {
		return f, false, err
	}
	switch {
	case grant.Permissions.Has(models.PermViewReport):
		return f, false, nil
	case grant.Permissions.Has(models.PermViewOwnReport):
		if len(f.UserIDs) > 0 && !contains(f.UserIDs, actor.ID) {
			return f, true, ErrReportEmpty
		}
		f.UserIDs = []string{actor.ID}
		return f, true, nil
	}
	return f, false, authz.Denied(models.PermViewReport)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Build fetches the matching entries, grouped by session. When smart is
// set, entries are also paired.
func (s *ReportService) Build(ctx context.Context, actor models.User, groupID string, f models.ReportFilter, smart bool) (Report, error) {
	f, own, err := s.scope(ctx, actor, groupID, f)
	if err != nil {
		return Report{}, err
	}
	records, err := s.store.Sessions().EntryRecords(ctx, groupID, f)
	if err != nil {
		return Report{}, fmt.Errorf("load entries: %w", err)
	}
	if len(records) == 0 {
		return Report{}, ErrReportEmpty
	}

	out := Report{Sessions: report.GroupSessions(records), Own: own}
	if smart {
		out.Smart = report.PairAll(out.Sessions, s.now())
	}
	return out, nil
}

// Spreadsheet renders the smart report as an xlsx document. Attendance rows
// cover every group member, or only the actor for own-report access.
func (s *ReportService) Spreadsheet(ctx context.Context, actor models.User, groupID string, f models.ReportFilter) ([]byte, error) {
	rep, err := s.Build(ctx, actor, groupID, f, true)
	if err != nil {
		return nil, err
	}

	users, err := s.attendees(ctx, actor, groupID, f, rep.Own)
	if err != nil {
		return nil, err
	}

	wb, err := report.BuildWorkbook(ctx, rep.Smart, users, s.loc)
	if err != nil {
		return nil, fmt.Errorf("build workbook: %w", err)
	}
	defer func() {
		if cerr := wb.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("close workbook failed")
		}
	}()

	var buf bytes.Buffer
	if _, err := wb.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	data := buf.Bytes()

	if s.archive != nil {
		key := storage.ReportKey(groupID, s.now())
		if err := s.archive.ArchiveReport(context.WithoutCancel(ctx), key, data); err != nil {
			s.log.Warn().Err(err).Str("group_id", groupID).Str("key", key).Msg("archive report failed")
		}
	}
	return data, nil
}

func (s *ReportService) attendees(ctx context.Context, actor models.User, groupID string, f models.ReportFilter, own bool) ([]report.UserInfo, error) {
	if own {
		return []report.UserInfo{report.NewUserInfo(actor)}, nil
	}
	members, err := s.store.Members().ListByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	users := make([]report.UserInfo, 0, len(members))
	for _, m := range members {
		if len(f.UserIDs) > 0 && !contains(f.UserIDs, m.User.ID) {
			continue
		}
		users = append(users, report.NewUserInfo(m.User))
	}
	if len(users) == 0 {
		// former members only: fall back to the users seen in the entries
		return nil, nil
	}
	return users, nil
}
