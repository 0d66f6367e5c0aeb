package handlers

import (
	"ridepool/internal/middleware"
	"ridepool/internal/models"
	"ridepool/internal/services"
	"ridepool/internal/utils"
	"ridepool/internal/validators"
	"ridepool/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RideHandler struct {
	rideService services.RideService
	logger      *logger.Logger
}

func NewRideHandler(rideService services.RideService, log *logger.Logger) *RideHandler {
	return &RideHandler{
		rideService: rideService,
		logger:      log.WithField("handler", "rides"),
	}
}

// CreateRide handles POST /rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	driverID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	var req validators.CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if errs := validators.ValidateCreateRide(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, validationDetails(errs))
		return
	}

	input := &services.CreateRideInput{
		Origin:        locationFromRequest(req.Origin),
		Destination:   locationFromRequest(req.Destination),
		DepartureTime: req.DepartureTime,
		TotalSeats:    req.TotalSeats,
	}

	ride, err := h.rideService.CreateRide(c.Request.Context(), driverID, input)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, "Ride created", ride)
}

// GetRide handles GET /rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	rideID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	ride, err := h.rideService.GetRide(c.Request.Context(), rideID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Ride retrieved", ride)
}

// ListMyRides handles GET /rides
func (h *RideHandler) ListMyRides(c *gin.Context) {
	driverID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	params := utils.GetPaginationParams(c)
	rides, total, err := h.rideService.GetRidesByDriver(c.Request.Context(), driverID, params)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Rides retrieved", rides, &utils.Meta{
		Pagination: utils.NewPaginationMeta(params, total),
		Count:      len(rides),
	})
}

// ListByStatus handles GET /admin/rides?status=
func (h *RideHandler) ListByStatus(c *gin.Context) {
	status := models.RideStatus(c.DefaultQuery("status", string(models.RideStatusScheduled)))
	switch status {
	case models.RideStatusScheduled, models.RideStatusInProgress, models.RideStatusCompleted, models.RideStatusCancelled:
	default:
		utils.BadRequestResponse(c, "Unknown ride status")
		return
	}

	params := utils.GetPaginationParams(c)
	rides, total, err := h.rideService.GetRidesByStatus(c.Request.Context(), status, params)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Rides retrieved", rides, &utils.Meta{
		Pagination: utils.NewPaginationMeta(params, total),
		Count:      len(rides),
	})
}

// StartRide handles POST /rides/:id/start
func (h *RideHandler) StartRide(c *gin.Context) {
	driverID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}
	rideID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	session, err := h.rideService.StartRide(c.Request.Context(), rideID, driverID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	message := "Ride started"
	if session.Resumed {
		message = "Ride already in progress"
	}
	utils.SuccessResponse(c, message, session)
}

// CompleteRide handles POST /rides/:id/complete
func (h *RideHandler) CompleteRide(c *gin.Context) {
	driverID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}
	rideID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	ride, err := h.rideService.CompleteRide(c.Request.Context(), rideID, driverID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Ride completed", ride)
}

// CancelRide handles POST /rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	actorID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}
	rideID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	var req validators.CancelRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if errs := validators.ValidateStruct(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, validationDetails(errs))
		return
	}

	ride, err := h.rideService.CancelRide(c.Request.Context(), rideID, actorID, middleware.CurrentUserRole(c), req.Reason)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Ride cancelled", ride)
}

// PurgeRide handles DELETE /admin/rides/:id
func (h *RideHandler) PurgeRide(c *gin.Context) {
	adminID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}
	rideID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	var req validators.PurgeRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if errs := validators.ValidateStruct(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, validationDetails(errs))
		return
	}

	if err := h.rideService.PurgeRide(c.Request.Context(), rideID, adminID, req.Reason); err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Ride purged", nil)
}

func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+name+" parameter")
		return primitive.NilObjectID, false
	}
	return id, true
}

func locationFromRequest(req validators.LocationRequest) models.Location {
	loc := models.NewPoint(req.Latitude, req.Longitude)
	loc.Address = req.Address
	loc.City = req.City
	return loc
}

func validationDetails(errs validators.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, e := range errs {
		details[e.Field] = e.Message
	}
	return details
}
