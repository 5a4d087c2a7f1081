package airbnb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/parser"
)

// ListingMapper resolves an Airbnb listing URL to a property id
type ListingMapper interface {
	ByAirbnbListing(listing string) string
}

// ReservationParser reads reservations.json into de-duplicated guests
type ReservationParser struct {
	listings ListingMapper
}

// NewReservationParser returns a reservation parser. listings may be nil.
func NewReservationParser(listings ListingMapper) *ReservationParser {
	return &ReservationParser{listings: listings}
}

// Name returns the parser identifier
func (p *ReservationParser) Name() string {
	return "airbnb-reservations"
}

// CanParse accepts reservations*.json files holding a JSON array
func (p *ReservationParser) CanParse(path string, header []byte) bool {
	return isExportFile(path, reservationsFile) && looksLikeArray(header)
}

type reservationExport struct {
	BookingSessions []bookingSession `json:"bookingSessions"`
}

type bookingSession struct {
	PrimaryGuestProfileURL string        `json:"primaryGuestProfileUrl"`
	HomeInquiries          []homeInquiry `json:"homeInquiries"`
}

type homeInquiry struct {
	UserProfileURL    string `json:"userProfileUrl"`
	StartDate         string `json:"startDate"`
	EndDate           string `json:"endDate"`
	NumberOfGuests    int    `json:"numberOfGuests"`
	NumberOfAdults    int    `json:"numberOfAdults"`
	NumberOfChildren  int    `json:"numberOfChildren"`
	NumberOfPets      int    `json:"numberOfPets"`
	HostingURL        string `json:"hostingUrl"`
	HomeInquiryStatus string `json:"homeInquiryStatus"`
}

// Parse walks [0].bookingSessions[].homeInquiries[] and keeps the first
// inquiry seen for each guest. Inquiries without a profile URL are skipped.
func (p *ReservationParser) Parse(ctx context.Context, r io.Reader, meta *parser.Metadata) (*parser.Result, error) {
	if err := parser.CheckContext(ctx); err != nil {
		return nil, err
	}

	var export []reservationExport
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode reservations%s: reservations.json must be an array: %w", parser.FileInfo(meta), err)
	}

	result := parser.NewResult()
	if len(export) == 0 {
		return result, nil
	}

	seen := make(map[string]bool)
	row := 0
	for _, session := range export[0].BookingSessions {
		for _, inq := range session.HomeInquiries {
			row++
			profile := inq.UserProfileURL
			if profile == "" {
				profile = session.PrimaryGuestProfileURL
			}
			id := lastSegment(profile)
			if id == "" {
				result.Skip(row, "inquiry has no guest profile URL")
				continue
			}
			if seen[id] {
				result.Ignored++
				continue
			}
			seen[id] = true

			status := inq.HomeInquiryStatus
			if status == "" {
				status = "UNKNOWN"
			}
			result.Guests = append(result.Guests, domain.Guest{
				GuestID:    id,
				ProfileURL: profile,
				CheckIn:    inq.StartDate,
				CheckOut:   inq.EndDate,
				Guests:     inq.NumberOfGuests,
				Adults:     inq.NumberOfAdults,
				Children:   inq.NumberOfChildren,
				Pets:       inq.NumberOfPets,
				ListingURL: inq.HostingURL,
				PropertyID: p.propertyFor(inq.HostingURL),
				Status:     status,
			})
		}
	}
	return result, nil
}

func (p *ReservationParser) propertyFor(listingURL string) string {
	if p.listings == nil || listingURL == "" {
		return domain.UnknownProperty
	}
	return p.listings.ByAirbnbListing(listingURL)
}

func lastSegment(url string) string {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}
