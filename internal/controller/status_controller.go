package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flairnode-agent/internal/devicecfg"
	"flairnode-agent/internal/model"
	"flairnode-agent/internal/service"
)

type SnapshotSource interface {
	Snapshot() model.ModuleStatusSnapshot
}

type Identity interface {
	ID() int
	SerialNumber() string
}

type ConfigSource interface {
	Current() devicecfg.LiveConfig
}

type StatusController struct {
	health   SnapshotSource
	delivery service.DeliveryService
	identity Identity
	device   ConfigSource
}

// Response is the envelope for every local API reply.
type Response struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func NewResponse(message string, data any) Response {
	return Response{Message: message, Data: data}
}

type StatusResponse struct {
	NodeID       int                        `json:"nodeId"`
	SerialNumber string                     `json:"serialNumber"`
	Health       model.ModuleStatusSnapshot `json:"health"`
}

func NewStatusController(health SnapshotSource, delivery service.DeliveryService, identity Identity, device ConfigSource) *StatusController {
	return &StatusController{
		health:   health,
		delivery: delivery,
		identity: identity,
		device:   device,
	}
}

func RegisterStatusRoutes(router *gin.Engine, controller *StatusController) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", controller.GetStatus)
		v1.GET("/queue", controller.GetQueue)
		v1.GET("/config", controller.GetConfig)
	}
	router.GET("/healthz", controller.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// GetStatus godoc
// @Summary      Device health
// @Description  Returns the latest aggregated module health together with the device identity.
// @Tags         status
// @Produce      json
// @Success      200  {object}  controller.Response
// @Router       /api/v1/status [get]
func (c *StatusController) GetStatus(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, NewResponse("Status retrieved successfully", StatusResponse{
		NodeID:       c.identity.ID(),
		SerialNumber: c.identity.SerialNumber(),
		Health:       c.health.Snapshot(),
	}))
}

// GetQueue godoc
// @Summary      Uplink queue state
// @Tags         status
// @Produce      json
// @Success      200  {object}  controller.Response
// @Router       /api/v1/queue [get]
func (c *StatusController) GetQueue(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, NewResponse("Queue state retrieved successfully", c.delivery.Stats()))
}

// GetConfig godoc
// @Summary      Live device configuration
// @Tags         status
// @Produce      json
// @Success      200  {object}  controller.Response
// @Router       /api/v1/config [get]
func (c *StatusController) GetConfig(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, NewResponse("Configuration retrieved successfully", c.device.Current()))
}

func (c *StatusController) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, NewResponse("ok", nil))
}
