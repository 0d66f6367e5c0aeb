package routes

import (
	"ridepool/internal/handlers"
	"ridepool/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupBookingRoutes sets up booking decision and lookup routes
func SetupBookingRoutes(r *gin.RouterGroup, secret string, bookingHandler *handlers.BookingHandler) {
	bookings := r.Group("/bookings")
	bookings.Use(middleware.AuthRequired(secret))
	{
		bookings.GET("", bookingHandler.ListMyBookings)
		bookings.GET("/:id", bookingHandler.GetBooking)
		bookings.POST("/:id/cancel", bookingHandler.CancelBooking)

		driver := bookings.Group("")
		driver.Use(middleware.DriverRequired())
		{
			driver.POST("/:id/approve", bookingHandler.ApproveBooking)
			driver.POST("/:id/decline", bookingHandler.DeclineBooking)
		}
	}

	admin := r.Group("/admin/bookings")
	admin.Use(middleware.AuthRequired(secret), middleware.AdminRequired())
	{
		admin.PATCH("/:id", bookingHandler.OverrideBooking)
	}
}
