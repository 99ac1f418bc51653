package handlers

import (
	"time"

	"clockpoint/internal/models"
	"clockpoint/internal/service"
)

type messageResponse struct {
	Message string `json:"message"`
}

type userResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	FirstName     string    `json:"firstName"`
	SecondName    *string   `json:"secondName"`
	LastName      string    `json:"lastName"`
	PhoneNumber   *string   `json:"phoneNumber"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	Token         string    `json:"token,omitempty"`
	ActivateToken string    `json:"activateToken,omitempty"`
}

type userEnvelope struct {
	User userResponse `json:"user"`
}

func newUserResponse(u models.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		FirstName:   u.FirstName,
		SecondName:  u.SecondName,
		LastName:    u.LastName,
		PhoneNumber: u.PhoneNumber,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
	}
}

func newAuthResponse(res service.AuthResult) userEnvelope {
	user := newUserResponse(res.User)
	user.Token = res.AccessToken
	user.ActivateToken = res.ActivateToken
	return userEnvelope{User: user}
}

type groupResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newGroupResponse(g models.Group) groupResponse {
	return groupResponse{ID: g.ID, Name: g.Name, Description: g.Description, CreatedAt: g.CreatedAt}
}

type membershipResponse struct {
	GroupUserID string              `json:"groupUserId"`
	Group       groupResponse       `json:"group"`
	Role        models.RoleName     `json:"role"`
	Permissions []models.Permission `json:"permissions"`
	JoinedAt    time.Time           `json:"joinedAt"`
}

func newMembershipResponse(m models.Membership) membershipResponse {
	return membershipResponse{
		GroupUserID: m.GroupUser.ID,
		Group:       newGroupResponse(m.Group),
		Role:        m.Role.Name,
		Permissions: m.Permissions.Sorted(),
		JoinedAt:    m.GroupUser.CreatedAt,
	}
}

type memberResponse struct {
	GroupUserID string          `json:"groupUserId"`
	User        userResponse    `json:"user"`
	Role        models.RoleName `json:"role"`
	JoinedAt    time.Time       `json:"joinedAt"`
}

func newMemberResponse(m models.Member) memberResponse {
	return memberResponse{
		GroupUserID: m.GroupUser.ID,
		User:        newUserResponse(m.User),
		Role:        m.Role,
		JoinedAt:    m.GroupUser.CreatedAt,
	}
}

type sessionResponse struct {
	ID      string    `json:"id"`
	GroupID string    `json:"groupId"`
	StartAt time.Time `json:"startAt"`
	StopAt  time.Time `json:"stopAt"`
}

func newSessionResponse(s models.ClockSession) sessionResponse {
	return sessionResponse{ID: s.ID, GroupID: s.GroupID, StartAt: s.StartAt, StopAt: s.StopAt}
}

type scheduleResponse struct {
	ID          string `json:"id"`
	GroupID     string `json:"groupId"`
	GroupUserID string `json:"groupUserId"`
	StartAt     string `json:"startAt"`
	StopAt      string `json:"stopAt"`
	Duration    int    `json:"duration"`
	Monday      bool   `json:"monday"`
	Tuesday     bool   `json:"tuesday"`
	Wednesday   bool   `json:"wednesday"`
	Thursday    bool   `json:"thursday"`
	Friday      bool   `json:"friday"`
	Saturday    bool   `json:"saturday"`
	Sunday      bool   `json:"sunday"`
}

func newScheduleResponse(s models.ClockSchedule) scheduleResponse {
	return scheduleResponse{
		ID:          s.ID,
		GroupID:     s.GroupID,
		GroupUserID: s.GroupUserID,
		StartAt:     s.StartAt.String(),
		StopAt:      s.StopAt.String(),
		Duration:    int(s.Duration() / time.Minute),
		Monday:      s.Days.Monday,
		Tuesday:     s.Days.Tuesday,
		Wednesday:   s.Days.Wednesday,
		Thursday:    s.Days.Thursday,
		Friday:      s.Days.Friday,
		Saturday:    s.Days.Saturday,
		Sunday:      s.Days.Sunday,
	}
}

type entryResponse struct {
	ID      string           `json:"id"`
	ClockAt time.Time        `json:"clockAt"`
	Type    models.EntryType `json:"type"`
}

type qrResponse struct {
	Token     string           `json:"token"`
	Group     groupResponse    `json:"group"`
	SessionID string           `json:"sessionId"`
	EntryType models.EntryType `json:"entryType"`
	ExpiresAt time.Time        `json:"expiresAt"`
}
