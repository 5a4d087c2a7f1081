package domain

import (
	"fmt"
	"strings"
	"time"
)

// Category is an expense category label from the fixed taxonomy.
// Use ValidateCategory to ensure validity before use.
type Category string

const (
	CategoryCleaning           Category = "Cleaning"
	CategoryPropertyManagement Category = "Property Management"
	CategoryMaintenance        Category = "Maintenance"
	CategoryLandscaping        Category = "Landscaping"
	CategoryPoolSpa            Category = "Pool/Spa"
	CategoryInternet           Category = "Internet"
	CategoryElectric           Category = "Electric"
	CategoryWater              Category = "Water"
	CategoryGas                Category = "Gas"
	CategoryMortgage           Category = "Mortgage"
	CategorySupplies           Category = "Supplies"
	CategoryPropertyTax        Category = "Property Tax"
	CategoryInsurance          Category = "Insurance"
	CategoryContractor         Category = "Contractor"
	CategoryHOA                Category = "HOA"
	CategoryPestControl        Category = "Pest Control"
	CategoryInspection         Category = "Inspection"
	CategoryHVAC               Category = "HVAC"
	CategoryMarketing          Category = "Marketing"
	CategoryEventExpenses      Category = "Event Expenses"
	CategoryOwnerDraw          Category = "Owner Draw"
	CategoryOther              Category = "Other"
)

// Source identifies where a revenue record came from. The set is open:
// unknown sources are stored as-is.
type Source string

const (
	SourceAirbnb   Source = "Airbnb"
	SourceVRBO     Source = "VRBO"
	SourceDirect   Source = "Direct"
	SourceHostaway Source = "Hostaway"
	SourceOther    Source = "Other"
)

// UnknownProperty is the property id used until a record is classified.
const UnknownProperty = "unknown"

// Store collection names.
const (
	CollectionRevenue      = "revenue"
	CollectionExpenses     = "expenses"
	CollectionBankAccounts = "bankAccounts"
	CollectionInquiries    = "bookingInquiries"
	CollectionSettings     = "settings"
)

var (
	validCategories = map[Category]struct{}{
		CategoryCleaning: {}, CategoryPropertyManagement: {}, CategoryMaintenance: {},
		CategoryLandscaping: {}, CategoryPoolSpa: {}, CategoryInternet: {},
		CategoryElectric: {}, CategoryWater: {}, CategoryGas: {},
		CategoryMortgage: {}, CategorySupplies: {}, CategoryPropertyTax: {},
		CategoryInsurance: {}, CategoryContractor: {}, CategoryHOA: {},
		CategoryPestControl: {}, CategoryInspection: {}, CategoryHVAC: {},
		CategoryMarketing: {}, CategoryEventExpenses: {}, CategoryOwnerDraw: {},
		CategoryOther: {},
	}

	// utilityCategories feed the utilities average on the dashboard.
	utilityCategories = map[Category]struct{}{
		CategoryElectric: {}, CategoryWater: {}, CategoryGas: {}, CategoryInternet: {},
	}
)

// ValidateCategory reports whether c is part of the taxonomy.
func ValidateCategory(c Category) bool {
	_, ok := validCategories[c]
	return ok
}

// IsUtility reports whether c counts as a utility bill.
func IsUtility(c Category) bool {
	_, ok := utilityCategories[c]
	return ok
}

// ParseSource matches s against the known sources, ignoring case.
func ParseSource(s string) (Source, error) {
	for _, src := range []Source{SourceAirbnb, SourceVRBO, SourceDirect, SourceHostaway, SourceOther} {
		if strings.EqualFold(strings.TrimSpace(s), string(src)) {
			return src, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// Revenue is a canonical revenue record.
//
// Amount is always the net amount credited to the host. GrossAmount and
// ServiceFees are carried separately; ServiceFees = GrossAmount - NetIncome.
type Revenue struct {
	ID               string
	Date             time.Time
	Amount           float64
	GrossAmount      float64
	NetIncome        float64
	ServiceFees      float64
	Source           Source
	PropertyID       string
	Description      string
	MonthlyAggregate bool
	ExternalID       string
	GuestName        string
	ConfirmationCode string
	ImportedAt       time.Time
}

// NewRevenue creates a validated revenue record from a gross and net amount.
// A zero gross is treated as unknown and set to net.
func NewRevenue(date time.Time, gross, net float64, source Source, propertyID, description string) (*Revenue, error) {
	if gross == 0 {
		gross = net
	}
	r := &Revenue{
		Date:        date,
		Amount:      net,
		GrossAmount: gross,
		NetIncome:   net,
		ServiceFees: RoundCents(gross - net),
		Source:      source,
		PropertyID:  propertyID,
		Description: description,
	}
	if r.PropertyID == "" {
		r.PropertyID = UnknownProperty
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the record invariants.
func (r *Revenue) Validate() error {
	if r.Date.IsZero() {
		return fmt.Errorf("%w: revenue date cannot be zero", ErrInvalidRecord)
	}
	if r.Amount <= 0 {
		return fmt.Errorf("%w: revenue amount must be positive, got %.2f", ErrInvalidRecord, r.Amount)
	}
	if r.GrossAmount+0.005 < r.NetIncome {
		return fmt.Errorf("%w: gross %.2f is less than net %.2f", ErrInvalidRecord, r.GrossAmount, r.NetIncome)
	}
	if strings.TrimSpace(string(r.Source)) == "" {
		return fmt.Errorf("%w: revenue source cannot be empty", ErrInvalidRecord)
	}
	return nil
}

// Expense is a canonical expense record. Amount is always positive.
type Expense struct {
	ID          string
	Date        time.Time
	Amount      float64
	Category    Category
	Subcategory string
	Vendor      string
	Description string
	PropertyID  string
	Recurring   bool
	ExternalID  string
	ImportedAt  time.Time
}

// NewExpense creates a validated expense record.
func NewExpense(date time.Time, amount float64, category Category, vendor, description, propertyID string) (*Expense, error) {
	e := &Expense{
		Date:        date,
		Amount:      amount,
		Category:    category,
		Vendor:      vendor,
		Description: description,
		PropertyID:  propertyID,
	}
	if e.PropertyID == "" {
		e.PropertyID = UnknownProperty
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks the record invariants.
func (e *Expense) Validate() error {
	if e.Date.IsZero() {
		return fmt.Errorf("%w: expense date cannot be zero", ErrInvalidRecord)
	}
	if e.Amount <= 0 {
		return fmt.Errorf("%w: expense amount must be positive, got %.2f", ErrInvalidRecord, e.Amount)
	}
	if e.Category == "" {
		return fmt.Errorf("%w: expense category cannot be empty", ErrInvalidRecord)
	}
	return nil
}

// BankAccount is a balance snapshot synced from the accounting platform.
type BankAccount struct {
	ID          string
	Name        string
	Type        string
	Balance     float64
	Active      bool
	ExternalID  string
	LastUpdated time.Time
}

// Guest is a de-duplicated guest parsed from a reservations export.
type Guest struct {
	GuestID    string `json:"guestId"`
	ProfileURL string `json:"profileUrl"`
	CheckIn    string `json:"checkIn,omitempty"`
	CheckOut   string `json:"checkOut,omitempty"`
	Guests     int    `json:"guests"`
	Adults     int    `json:"adults"`
	Children   int    `json:"children"`
	Pets       int    `json:"pets"`
	ListingURL string `json:"listingUrl,omitempty"`
	PropertyID string `json:"propertyId"`
	Status     string `json:"status"`
}

// InquiryStatus tracks a booking inquiry through review.
type InquiryStatus string

const (
	InquiryPending   InquiryStatus = "pending"
	InquiryApproved  InquiryStatus = "approved"
	InquiryPaid      InquiryStatus = "paid"
	InquiryCancelled InquiryStatus = "cancelled"
)

// PriceEstimate is the quote snapshot stored with an inquiry.
type PriceEstimate struct {
	Nights      int     `json:"nights"`
	Subtotal    float64 `json:"subtotal"`
	CleaningFee float64 `json:"cleaningFee"`
	TaxAmount   float64 `json:"taxAmount"`
	Total       float64 `json:"total"`
}

// Inquiry is a guest booking request awaiting manual review.
type Inquiry struct {
	ID              string        `json:"id"`
	PropertyID      string        `json:"propertyId"`
	PropertyName    string        `json:"propertyName"`
	CheckIn         time.Time     `json:"checkIn"`
	CheckOut        time.Time     `json:"checkOut"`
	Guests          int           `json:"guests"`
	GuestName       string        `json:"guestName"`
	GuestEmail      string        `json:"guestEmail"`
	GuestPhone      string        `json:"guestPhone"`
	SpecialRequests string        `json:"specialRequests,omitempty"`
	PriceEstimate   PriceEstimate `json:"priceEstimate"`
	Status          InquiryStatus `json:"status"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// Validate checks required inquiry fields.
func (i *Inquiry) Validate() error {
	if strings.TrimSpace(i.GuestName) == "" {
		return fmt.Errorf("%w: guest name is required", ErrInvalidRecord)
	}
	if !strings.Contains(i.GuestEmail, "@") {
		return fmt.Errorf("%w: a valid guest email is required", ErrInvalidRecord)
	}
	if strings.TrimSpace(i.GuestPhone) == "" {
		return fmt.Errorf("%w: guest phone is required", ErrInvalidRecord)
	}
	if i.PropertyID == "" {
		return fmt.Errorf("%w: property is required", ErrInvalidRecord)
	}
	if !i.CheckIn.Before(i.CheckOut) {
		return fmt.Errorf("%w: check-in must be before check-out", ErrInvalidRecord)
	}
	if i.Guests < 1 {
		return fmt.Errorf("%w: at least one guest is required", ErrInvalidRecord)
	}
	return nil
}
