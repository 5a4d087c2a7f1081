package hostaway

import "strings"

// Reservation is the subset of a Hostaway reservation the dashboard uses.
// Money fields are null on some channels and decode to zero.
type Reservation struct {
	ID                   int64   `json:"id"`
	ListingMapID         int64   `json:"listingMapId"`
	ChannelName          string  `json:"channelName"`
	ChannelReservationID string  `json:"channelReservationId"`
	GuestName            string  `json:"guestName"`
	ArrivalDate          string  `json:"arrivalDate"`
	DepartureDate        string  `json:"departureDate"`
	TotalPrice           float64 `json:"totalPrice"`
	HostPayout           float64 `json:"hostPayout"`
	CleaningFee          float64 `json:"cleaningFee"`
	HostServiceFee       float64 `json:"hostServiceFee"`
	Status               string  `json:"status"`
}

// Cancelled reports whether the stay will not happen
func (r Reservation) Cancelled() bool {
	switch strings.ToLower(r.Status) {
	case "cancelled", "canceled", "declined", "expired":
		return true
	}
	return false
}

// Net is what the host receives: the payout when reported, otherwise the
// total less the host service fee.
func (r Reservation) Net() float64 {
	if r.HostPayout > 0 {
		return r.HostPayout
	}
	return r.TotalPrice - r.HostServiceFee
}

// CalendarDay is one night on a listing calendar
type CalendarDay struct {
	Date        string  `json:"date"`
	IsAvailable int     `json:"isAvailable"`
	Price       float64 `json:"price"`
}

// Available reports whether the night can be booked
func (d CalendarDay) Available() bool {
	return d.IsAvailable != 0
}
