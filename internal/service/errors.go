package service

import (
	"clockpoint/internal/apperr"
	"clockpoint/internal/security"
)

var (
	ErrDuplicateUser           = apperr.New(apperr.KindConflict, "duplicate_user", "a user with this email or username already exists")
	ErrDuplicateGroup          = apperr.New(apperr.KindConflict, "duplicate_group", "a group with this name already exists")
	ErrDuplicateRole           = apperr.New(apperr.KindConflict, "duplicate_role", "role already exists in this group")
	ErrDuplicateRolePermission = apperr.New(apperr.KindConflict, "duplicate_role_permission", "permission listed twice for a role")
	ErrDuplicateSchedule       = apperr.New(apperr.KindConflict, "duplicate_schedule", "an identical schedule already exists")
	ErrAlreadyMember           = apperr.New(apperr.KindConflict, "already_member", "user is already a member of this group")

	ErrInvalidCredentials = apperr.New(apperr.KindUnauthorized, "invalid_credentials", "invalid email or password")
	ErrUserGone           = apperr.New(apperr.KindUnauthorized, "token_user_gone", "token owner no longer exists")

	ErrTokenNotAssociated = apperr.New(apperr.KindForbidden, "token_not_associated", "token is not associated with this user")
	ErrOwnerCannotLeave   = apperr.New(apperr.KindForbidden, "owner_cannot_leave", "the group owner cannot leave the group")
	ErrCannotKickOwner    = apperr.New(apperr.KindForbidden, "cannot_kick_owner", "the group owner cannot be removed")
	ErrSelfClockEntry     = apperr.New(apperr.KindForbidden, "self_clock_entry", "cannot clock in with your own QR code")

	ErrPasswordMismatch       = apperr.New(apperr.KindBadRequest, "password_mismatch", "passwords do not match")
	ErrWeakPassword           = apperr.New(apperr.KindBadRequest, "weak_password", "password is too weak")
	ErrInvalidPermission      = apperr.New(apperr.KindBadRequest, "invalid_permission", "unknown permission")
	ErrDurationTooLong        = apperr.New(apperr.KindBadRequest, "duration_too_long", "duration must be between 1 and 960 minutes")
	ErrNoWeekday              = apperr.New(apperr.KindBadRequest, "no_weekday", "at least one weekday must be selected")
	ErrInvalidEntryType       = apperr.New(apperr.KindBadRequest, "invalid_entry_type", "entry type must be IN or OUT")
	ErrInvalidTimeOfDay       = apperr.New(apperr.KindBadRequest, "invalid_time_of_day", "start_at must be HH:MM")
	ErrCannotKickSelf         = apperr.New(apperr.KindBadRequest, "cannot_kick_self", "use leave to exit a group")
	ErrSessionExpired         = apperr.New(apperr.KindBadRequest, "session_expired", "clock session has expired")
	ErrUserAlreadyClockedIn   = apperr.New(apperr.KindBadRequest, "user_already_clocked_in", "user is already clocked in")
	ErrUserAlreadyClockedOut  = apperr.New(apperr.KindBadRequest, "user_already_clocked_out", "user is already clocked out")
	ErrClockOutWithoutClockIn = apperr.New(apperr.KindBadRequest, "clock_out_without_clock_in", "cannot clock out before clocking in")

	ErrUserNotFound     = apperr.New(apperr.KindNotFound, "user_not_found", "user not found")
	ErrGroupNotFound    = apperr.New(apperr.KindNotFound, "group_not_found", "group not found")
	ErrRoleNotFound     = apperr.New(apperr.KindNotFound, "role_not_found", "role not found")
	ErrMemberNotFound   = apperr.New(apperr.KindNotFound, "member_not_found", "user is not a member of this group")
	ErrScheduleNotFound = apperr.New(apperr.KindNotFound, "schedule_not_found", "schedule not found")
	ErrSessionNotFound  = apperr.New(apperr.KindNotFound, "session_not_found", "clock session not found")
	ErrReportEmpty      = apperr.New(apperr.KindNotFound, "report_empty", "no entries match the given filters")

	ErrAmbiguousScheduleUpdate = apperr.New(apperr.KindUnprocessable, "ambiguous_schedule_update", "start_at and duration must be updated together")
	ErrUserNotInGroup          = apperr.New(apperr.KindUnprocessable, "user_not_in_group", "user is not a member of the session's group")
)

// weakPassword lists every failed strength rule as a field error.
func weakPassword(field string, warnings []string) error {
	fields := make([]apperr.FieldError, 0, len(warnings))
	for _, w := range warnings {
		fields = append(fields, apperr.FieldError{Name: field, Message: w, ErrorCode: w})
	}
	return ErrWeakPassword.WithFields(fields...)
}

func checkPassword(field, password string) error {
	if warnings := security.ValidateStrength(password); len(warnings) > 0 {
		return weakPassword(field, warnings)
	}
	return nil
}
