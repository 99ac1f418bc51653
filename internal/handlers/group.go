package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clockpoint/internal/middleware"
	"clockpoint/internal/models"
	"clockpoint/internal/service"
)

type customRoleRequest struct {
	Role        models.RoleName     `json:"role" binding:"required"`
	Permissions []models.Permission `json:"permissions"`
}

type createGroupRequest struct {
	Name        string              `json:"name" binding:"required"`
	Description *string             `json:"description"`
	CustomRoles []customRoleRequest `json:"customRoles" binding:"dive"`
}

func (h HandlerSet) CreateGroup(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	var req createGroupRequest
	if !bindJSON(c, &req) {
		return
	}

	input := service.CreateGroupInput{Name: req.Name, Description: req.Description}
	for _, role := range req.CustomRoles {
		input.CustomRoles = append(input.CustomRoles, service.CustomRole{Name: role.Role, Permissions: role.Permissions})
	}

	membership, err := h.groups.CreateGroup(c.Request.Context(), user, input)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newMembershipResponse(membership))
}

func (h HandlerSet) GetGroup(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	name, ok := requiredQuery(c, "name")
	if !ok {
		return
	}
	membership, err := h.groups.GetGroup(c.Request.Context(), user, name)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newMembershipResponse(membership))
}

func (h HandlerSet) ListGroups(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	memberships, err := h.groups.ListGroups(c.Request.Context(), user)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	resp := make([]membershipResponse, 0, len(memberships))
	for _, m := range memberships {
		resp = append(resp, newMembershipResponse(m))
	}
	c.JSON(http.StatusOK, resp)
}

type inviteRequest struct {
	GroupID string   `json:"groupId" binding:"required"`
	Emails  []string `json:"emails" binding:"required,min=1"`
}

type inviteResponse struct {
	GroupID    string   `json:"groupId"`
	Recipients []string `json:"recipients"`
}

// Invite answers once the invitations are queued; delivery happens in the
// mail worker.
func (h HandlerSet) Invite(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	var req inviteRequest
	if !bindJSON(c, &req) {
		return
	}
	recipients, err := h.groups.Invite(c.Request.Context(), user, req.GroupID, req.Emails)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, inviteResponse{GroupID: req.GroupID, Recipients: recipients})
}

func (h HandlerSet) AcceptInvite(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	raw, ok := requiredQuery(c, "invite_token")
	if !ok {
		return
	}
	membership, err := h.groups.AcceptInvite(c.Request.Context(), user, raw)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newMembershipResponse(membership))
}

type editGroupRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h HandlerSet) EditGroup(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	var req editGroupRequest
	if !bindJSON(c, &req) {
		return
	}
	group, err := h.groups.EditGroup(c.Request.Context(), user, c.Param("group_id"), service.EditGroupInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newGroupResponse(group))
}

func (h HandlerSet) DeleteGroup(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	if err := h.groups.DeleteGroup(c.Request.Context(), user, c.Param("group_id")); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "group deleted"})
}

func (h HandlerSet) ListMembers(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	members, err := h.groups.Members(c.Request.Context(), user, c.Param("group_id"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	resp := make([]memberResponse, 0, len(members))
	for _, m := range members {
		resp = append(resp, newMemberResponse(m))
	}
	c.JSON(http.StatusOK, resp)
}

func (h HandlerSet) LeaveGroup(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	if err := h.groups.Leave(c.Request.Context(), user, c.Param("group_id")); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "left group"})
}

func (h HandlerSet) KickMember(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	if err := h.groups.Kick(c.Request.Context(), user, c.Param("group_id"), c.Param("user_id")); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "member removed"})
}

type assignRoleRequest struct {
	Role models.RoleName `json:"role" binding:"required"`
}

func (h HandlerSet) AssignRole(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	var req assignRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	membership, err := h.groups.AssignRole(c.Request.Context(), user, c.Param("group_id"), c.Param("user_id"), req.Role)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newMembershipResponse(membership))
}
