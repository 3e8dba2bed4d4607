package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/assetgate/adapters/kyc"
	"github.com/layer-3/assetgate/core"
	"github.com/layer-3/assetgate/internal/logger"
	"github.com/layer-3/assetgate/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	kycService  *service.KYCService
	logger      *logger.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, kycService *service.KYCService, logger *logger.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		kycService:  kycService,
		logger:      logger,
	}
}

type challengeRequest struct {
	Address   string `json:"address" binding:"required"`
	Signature string `json:"signature" binding:"required"`
	Message   string `json:"message" binding:"required"`
	// Timestamp is informational, milliseconds since epoch.
	Timestamp int64 `json:"timestamp"`
}

func (r challengeRequest) challenge() core.WalletChallenge {
	ch := core.WalletChallenge{
		Address:   r.Address,
		Signature: r.Signature,
		Message:   r.Message,
	}
	if r.Timestamp > 0 {
		ch.Timestamp = time.UnixMilli(r.Timestamp)
	}
	return ch
}

func badRequest(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
}

// Wallet handles wallet login
func (h *AuthHandlers) Wallet(c *gin.Context) {
	var req challengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	session, err := h.authService.AuthenticateWithWallet(c.Request.Context(), req.challenge())
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newSessionView(session))
}

// Email handles email and password login
func (h *AuthHandlers) Email(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	session, err := h.authService.AuthenticateWithEmail(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newSessionView(session))
}

// Register creates an email and password account
func (h *AuthHandlers) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Name     string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	session, err := h.authService.RegisterWithEmail(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newSessionView(session))
}

// Profile binds an email and profile data to a wallet
func (h *AuthHandlers) Profile(c *gin.Context) {
	var req struct {
		challengeRequest
		Email string            `json:"email" binding:"required"`
		Name  string            `json:"name"`
		Extra map[string]string `json:"extra"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	session, err := h.authService.CompleteProfile(c.Request.Context(), req.challenge(), req.Email, req.Name, req.Extra)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newSessionView(session))
}

// Refresh handles token refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	session, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": session.AccessToken,
		"token_type":   "Bearer",
		"expires_in":   int64(session.ExpiresIn / time.Second),
	})
}

// Logout handles session logout
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// VerifyEmail consumes an email verification code
func (h *AuthHandlers) VerifyEmail(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	identity, err := h.authService.VerifyEmail(c.Request.Context(), req.Code)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newIdentityView(identity))
}

// ResendVerification sends a fresh verification code
func (h *AuthHandlers) ResendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if err := h.authService.ResendVerificationEmail(c.Request.Context(), req.Email); err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Verification email sent"})
}

// ResetPassword requests a reset link. The response does not depend on
// whether the email is registered.
func (h *AuthHandlers) ResetPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req.Email); err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "If the email is registered, a reset link was sent"})
}

// ConfirmPasswordReset sets a new password with a reset token
func (h *AuthHandlers) ConfirmPasswordReset(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	if err := h.authService.ConfirmPasswordReset(c.Request.Context(), req.Token, req.Password); err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// Me returns information about the authenticated user
func (h *AuthHandlers) Me(c *gin.Context) {
	identity, ok := core.IdentityFromContext(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}

	c.JSON(http.StatusOK, newIdentityView(identity))
}

// ChangePassword replaces the password of the authenticated user
func (h *AuthHandlers) ChangePassword(c *gin.Context) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	identity, ok := core.IdentityFromContext(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), identity.ID, req.OldPassword, req.NewPassword); err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// AssignRole changes the role of another identity
func (h *AuthHandlers) AssignRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	role, err := core.ParseRole(req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Unknown role"})
		return
	}

	actor, _ := core.IdentityFromContext(c.Request.Context())
	target, err := h.authService.AssignRole(c.Request.Context(), actor, c.Param("id"), role)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newIdentityView(target))
}

// AdminPing confirms admin access
func (h *AuthHandlers) AdminPing(c *gin.Context) {
	identity, _ := core.IdentityFromContext(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"authorized": true, "role": identity.Role.String()})
}

// PersonaWebhook accepts signed Persona inquiry events
func (h *AuthHandlers) PersonaWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c)
		return
	}

	identity, err := h.kycService.ProcessPersonaWebhook(c.Request.Context(), body, c.GetHeader(kyc.PersonaSignatureHeader))
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(identity.KYCStatus)})
}

// DiditWebhook accepts signed Didit session events
func (h *AuthHandlers) DiditWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c)
		return
	}

	identity, err := h.kycService.ProcessDiditWebhook(c.Request.Context(), body, c.GetHeader(kyc.DiditSignatureHeader))
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(identity.KYCStatus)})
}

// SyncDidit pulls the current Didit decision for a session
func (h *AuthHandlers) SyncDidit(c *gin.Context) {
	identity, err := h.kycService.SyncDiditDecision(c.Request.Context(), c.Param("session"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newIdentityView(identity))
}
