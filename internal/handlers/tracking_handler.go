package handlers

import (
	"strconv"

	"ridepool/internal/middleware"
	"ridepool/internal/services"
	"ridepool/internal/utils"
	"ridepool/internal/validators"
	"ridepool/pkg/logger"

	"github.com/gin-gonic/gin"
)

type TrackingHandler struct {
	trackingService services.TrackingService
	realtimeService services.RealtimeService
	logger          *logger.Logger
}

func NewTrackingHandler(trackingService services.TrackingService, realtimeService services.RealtimeService, log *logger.Logger) *TrackingHandler {
	return &TrackingHandler{
		trackingService: trackingService,
		realtimeService: realtimeService,
		logger:          log.WithField("handler", "tracking"),
	}
}

// UpdateLocation handles POST /rides/:id/location
func (h *TrackingHandler) UpdateLocation(c *gin.Context) {
	driverID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}
	rideID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	var req validators.LocationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if errs := validators.ValidateStruct(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, validationDetails(errs))
		return
	}

	update := &services.LocationUpdate{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Speed:     req.Speed,
		Heading:   req.Heading,
	}

	sample, err := h.trackingService.UpdateLocation(c.Request.Context(), rideID, driverID, update)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Location recorded", sample)
}

// GetLatestLocation handles GET /rides/:id/location
func (h *TrackingHandler) GetLatestLocation(c *gin.Context) {
	rideID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	sample, err := h.trackingService.GetLatest(c.Request.Context(), rideID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Location retrieved", sample)
}

// GetLocationTimeline handles GET /rides/:id/location/timeline
func (h *TrackingHandler) GetLocationTimeline(c *gin.Context) {
	rideID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(utils.ResyncDefaultLimit)))
	if limit < 1 {
		limit = utils.ResyncDefaultLimit
	}
	if limit > utils.LocationSampleWindow {
		limit = utils.LocationSampleWindow
	}

	timeline, err := h.trackingService.GetTimeline(c.Request.Context(), rideID, limit)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Timeline retrieved", timeline)
}

// Resync handles GET /rides/:id/resync. Clients call it after a
// websocket reconnect instead of expecting missed events to replay.
func (h *TrackingHandler) Resync(c *gin.Context) {
	rideID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(utils.ResyncDefaultLimit)))
	snapshot, err := h.realtimeService.Resync(c.Request.Context(), services.SubscriptionPredicate{RideID: &rideID}, limit)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Snapshot retrieved", snapshot)
}
