package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/appfence/appfence/internal/apps"
	"github.com/appfence/appfence/internal/rules"
	"github.com/appfence/appfence/internal/unifi"
)

// ControllerHandler exposes read-only controller enumeration (networks,
// clients) and the app catalog for the UI.
type ControllerHandler struct {
	controller *unifi.Controller
	catalog    *apps.Catalog
}

// NewControllerHandler creates a controller handler.
func NewControllerHandler(controller *unifi.Controller, catalog *apps.Catalog) *ControllerHandler {
	return &ControllerHandler{controller: controller, catalog: catalog}
}

// RegisterRoutes registers controller routes on a protected group.
func (h *ControllerHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/controller/networks", h.Networks)
	router.GET("/controller/clients", h.Clients)
	router.GET("/apps", h.Apps)
}

// Networks lists the controller's configured networks.
func (h *ControllerHandler) Networks(c *gin.Context) {
	networks, err := h.controller.ListNetworks(c.Request.Context())
	if err != nil {
		writeControllerError(c, err)
		return
	}
	c.JSON(http.StatusOK, networks)
}

// Clients lists devices known to the controller.
func (h *ControllerHandler) Clients(c *gin.Context) {
	clients, err := h.controller.ListClients(c.Request.Context())
	if err != nil {
		writeControllerError(c, err)
		return
	}
	c.JSON(http.StatusOK, clients)
}

// Apps lists the blockable application names.
func (h *ControllerHandler) Apps(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"apps": h.catalog.Names()})
}

func writeControllerError(c *gin.Context, err error) {
	if errors.Is(err, rules.ErrNotAuthenticated) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
