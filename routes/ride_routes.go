package routes

import (
	"ridepool/internal/handlers"
	"ridepool/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupRideRoutes sets up ride lifecycle and tracking routes
func SetupRideRoutes(r *gin.RouterGroup, secret string, rideHandler *handlers.RideHandler, bookingHandler *handlers.BookingHandler, trackingHandler *handlers.TrackingHandler) {
	rides := r.Group("/rides")
	rides.Use(middleware.AuthRequired(secret))
	{
		rides.GET("/:id", rideHandler.GetRide)
		rides.GET("/:id/location", trackingHandler.GetLatestLocation)
		rides.GET("/:id/location/timeline", trackingHandler.GetLocationTimeline)
		rides.GET("/:id/resync", trackingHandler.Resync)

		// Passenger side
		rides.POST("/:id/bookings", bookingHandler.RequestBooking)

		// Driver side
		driver := rides.Group("")
		driver.Use(middleware.DriverRequired())
		{
			driver.POST("", rideHandler.CreateRide)
			driver.GET("", rideHandler.ListMyRides)
			driver.POST("/:id/start", rideHandler.StartRide)
			driver.POST("/:id/complete", rideHandler.CompleteRide)
			driver.POST("/:id/cancel", rideHandler.CancelRide)
			driver.POST("/:id/location", trackingHandler.UpdateLocation)
			driver.GET("/:id/bookings", bookingHandler.ListRideBookings)
			driver.POST("/:id/bookings/:booking_id/pickup", bookingHandler.PickUpPassenger)
			driver.POST("/:id/bookings/:booking_id/dropoff", bookingHandler.DropOffPassenger)
		}
	}

	admin := r.Group("/admin/rides")
	admin.Use(middleware.AuthRequired(secret), middleware.AdminRequired())
	{
		admin.GET("", rideHandler.ListByStatus)
		admin.DELETE("/:id", rideHandler.PurgeRide)
	}
}
