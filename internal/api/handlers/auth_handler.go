package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/appfence/appfence/internal/services"
	"github.com/appfence/appfence/internal/unifi"
)

// AuthHandler exposes operator login and the controller login flow.
type AuthHandler struct {
	authService *services.AuthService
	controller  *unifi.Controller
	production  bool
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(authService *services.AuthService, controller *unifi.Controller, production bool) *AuthHandler {
	return &AuthHandler{authService: authService, controller: controller, production: production}
}

// RegisterRoutes registers public auth routes.
func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/auth/login", h.Login)
}

// RegisterProtectedRoutes registers routes that need an operator session.
func (h *AuthHandler) RegisterProtectedRoutes(router *gin.RouterGroup) {
	router.POST("/auth/controller/login", h.ControllerLogin)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates a local operator and issues a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie("auth_token", token, 3600*24, "/", "", h.production, true)

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// ControllerLogin opens a session against the network controller with the
// operator-supplied controller credentials.
func (h *AuthHandler) ControllerLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.controller.Login(c.Request.Context(), req.Username, req.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "controller session established"})
}
