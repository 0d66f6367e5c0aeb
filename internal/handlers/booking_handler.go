package handlers

import (
	"ridepool/internal/middleware"
	"ridepool/internal/models"
	"ridepool/internal/services"
	"ridepool/internal/utils"
	"ridepool/internal/validators"
	"ridepool/pkg/logger"

	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	bookingService services.BookingService
	pickupService  services.PickupService
	logger         *logger.Logger
}

func NewBookingHandler(bookingService services.BookingService, pickupService services.PickupService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		bookingService: bookingService,
		pickupService:  pickupService,
		logger:         log.WithField("handler", "bookings"),
	}
}

// RequestBooking handles POST /rides/:id/bookings
func (h *BookingHandler) RequestBooking(c *gin.Context) {
	passengerID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}
	rideID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	var req validators.RequestBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if errs := validators.ValidateRequestBooking(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, validationDetails(errs))
		return
	}

	input := &services.RequestBookingInput{
		SeatsRequested:  req.SeatsRequested,
		PickupLocation:  locationFromRequest(req.PickupLocation),
		DropoffLocation: locationFromRequest(req.DropoffLocation),
	}

	booking, err := h.bookingService.RequestBooking(c.Request.Context(), rideID, passengerID, input)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, "Booking requested", booking)
}

// GetBooking handles GET /bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	requesterID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}
	bookingID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookingService.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	if booking.PassengerID != requesterID && middleware.CurrentUserRole(c) != models.UserRoleAdmin {
		// Drivers read bookings through the ride listing, not directly.
		utils.ForbiddenResponse(c)
		return
	}

	utils.SuccessResponse(c, "Booking retrieved", booking)
}

// ListMyBookings handles GET /bookings
func (h *BookingHandler) ListMyBookings(c *gin.Context) {
	passengerID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	params := utils.GetPaginationParams(c)
	bookings, total, err := h.bookingService.GetBookingsByPassenger(c.Request.Context(), passengerID, params)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Bookings retrieved", bookings, &utils.Meta{
		Pagination: utils.NewPaginationMeta(params, total),
		Count:      len(bookings),
	})
}

// ListRideBookings handles GET /rides/:id/bookings
func (h *BookingHandler) ListRideBookings(c *gin.Context) {
	requesterID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}
	rideID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	bookings, err := h.bookingService.GetBookingsForRide(c.Request.Context(), rideID, requesterID, middleware.CurrentUserRole(c))
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Bookings retrieved", bookings)
}

// ApproveBooking handles POST /bookings/:id/approve
func (h *BookingHandler) ApproveBooking(c *gin.Context) {
	driverID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}
	bookingID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookingService.ApproveBooking(c.Request.Context(), bookingID, driverID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Booking approved", booking)
}

// DeclineBooking handles POST /bookings/:id/decline
func (h *BookingHandler) DeclineBooking(c *gin.Context) {
	driverID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}
	bookingID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	var req validators.DeclineBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if errs := validators.ValidateStruct(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, validationDetails(errs))
		return
	}

	booking, err := h.bookingService.DeclineBooking(c.Request.Context(), bookingID, driverID, req.Reason)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Booking declined", booking)
}

// CancelBooking handles POST /bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actorID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}
	bookingID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	var req validators.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if errs := validators.ValidateStruct(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, validationDetails(errs))
		return
	}

	booking, err := h.bookingService.CancelBooking(c.Request.Context(), bookingID, actorID, middleware.CurrentUserRole(c), req.Reason)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Booking cancelled", booking)
}

// PickUpPassenger handles POST /rides/:id/bookings/:booking_id/pickup
func (h *BookingHandler) PickUpPassenger(c *gin.Context) {
	driverID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}
	rideID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	bookingID, ok := objectIDParam(c, "booking_id")
	if !ok {
		return
	}

	booking, err := h.pickupService.MarkPickedUp(c.Request.Context(), rideID, bookingID, driverID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Passenger picked up", booking)
}

// DropOffPassenger handles POST /rides/:id/bookings/:booking_id/dropoff
func (h *BookingHandler) DropOffPassenger(c *gin.Context) {
	driverID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}
	rideID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	bookingID, ok := objectIDParam(c, "booking_id")
	if !ok {
		return
	}

	booking, err := h.pickupService.MarkDroppedOff(c.Request.Context(), rideID, bookingID, driverID)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Passenger dropped off", booking)
}

// OverrideBooking handles PATCH /admin/bookings/:id
func (h *BookingHandler) OverrideBooking(c *gin.Context) {
	adminID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}
	bookingID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	var req validators.OverrideBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if errs := validators.ValidateStruct(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, validationDetails(errs))
		return
	}

	booking, err := h.bookingService.AdminOverrideBooking(c.Request.Context(), bookingID, adminID, req.Reason, req.Updates)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, "Booking updated", booking)
}
