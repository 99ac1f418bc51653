package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clockpoint/internal/middleware"
	"clockpoint/internal/service"
)

type registerRequest struct {
	Email       string  `json:"email" binding:"required"`
	Password    string  `json:"password" binding:"required"`
	FirstName   string  `json:"firstName" binding:"required"`
	SecondName  *string `json:"secondName"`
	LastName    string  `json:"lastName" binding:"required"`
	Username    string  `json:"username" binding:"required"`
	PhoneNumber *string `json:"phoneNumber"`
}

func (h HandlerSet) RegisterUser(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		SecondName:  req.SecondName,
		LastName:    req.LastName,
		Username:    req.Username,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newAuthResponse(result))
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newAuthResponse(result))
}

func (h HandlerSet) Refresh(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	result, err := h.auth.Refresh(c.Request.Context(), user)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newAuthResponse(result))
}

func (h HandlerSet) Activate(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	raw, ok := requiredQuery(c, "activate_account_token")
	if !ok {
		return
	}
	if err := h.auth.Activate(c.Request.Context(), user, raw); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "account activated"})
}

type changePasswordRequest struct {
	Password           string `json:"password" binding:"required"`
	NewPassword        string `json:"newPassword" binding:"required"`
	ConfirmNewPassword string `json:"confirmNewPassword" binding:"required"`
}

func (h HandlerSet) ChangePassword(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	err := h.auth.ChangePassword(c.Request.Context(), user, service.ChangePasswordInput{
		Password:           req.Password,
		NewPassword:        req.NewPassword,
		ConfirmNewPassword: req.ConfirmNewPassword,
	})
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "password changed"})
}

func (h HandlerSet) DeleteAccount(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	if err := h.auth.Delete(c.Request.Context(), user); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "account deleted"})
}

type resetRequest struct {
	Email string `json:"email" binding:"required"`
}

// RequestReset always answers 200 so callers cannot probe for accounts.
func (h HandlerSet) RequestReset(c *gin.Context) {
	var req resetRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.auth.RequestReset(c.Request.Context(), req.Email); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "if the address is registered, a reset link has been sent"})
}

type confirmResetRequest struct {
	NewPassword        string `json:"newPassword" binding:"required"`
	ConfirmNewPassword string `json:"confirmNewPassword" binding:"required"`
}

func (h HandlerSet) ConfirmReset(c *gin.Context) {
	raw, ok := requiredQuery(c, "reset_token")
	if !ok {
		return
	}
	var req confirmResetRequest
	if !bindJSON(c, &req) {
		return
	}

	err := h.auth.ConfirmReset(c.Request.Context(), service.ResetPasswordInput{
		Token:              raw,
		NewPassword:        req.NewPassword,
		ConfirmNewPassword: req.ConfirmNewPassword,
	})
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "password reset"})
}
