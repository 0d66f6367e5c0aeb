package validators

type RequestBookingRequest struct {
	SeatsRequested  int             `json:"seats_requested" validate:"required,min=1,max=4"`
	PickupLocation  LocationRequest `json:"pickup_location" validate:"required"`
	DropoffLocation LocationRequest `json:"dropoff_location" validate:"required"`
}

type DeclineBookingRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

type OverrideBookingRequest struct {
	Reason  string                 `json:"reason" validate:"required,max=255"`
	Updates map[string]interface{} `json:"updates" validate:"required,min=1"`
}

func ValidateRequestBooking(req *RequestBookingRequest) ValidationErrors {
	errors := ValidateStruct(req)

	if isSameLocation(req.PickupLocation, req.DropoffLocation) {
		errors = append(errors, ValidationError{
			Field:   "dropoff_location",
			Message: "Pickup and dropoff locations must be different",
		})
	}

	return errors
}
