// Package property holds the property catalog: pricing, capacity, listing
// ids on the booking platforms, and the keywords used to attribute
// accounting transactions to a property.
package property

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
)

//go:embed properties.yaml
var embeddedCatalog []byte

// Property describes one rental
type Property struct {
	ID                string   `yaml:"id" json:"id"`
	Name              string   `yaml:"name" json:"name"`
	Location          string   `yaml:"location" json:"location"`
	Bedrooms          int      `yaml:"bedrooms" json:"bedrooms"`
	MaxGuests         int      `yaml:"max_guests" json:"maxGuests"`
	MinNights         int      `yaml:"min_nights" json:"minNights"`
	BasePrice         float64  `yaml:"base_price" json:"basePrice"`
	CleaningFee       float64  `yaml:"cleaning_fee" json:"cleaningFee"`
	TaxRate           float64  `yaml:"tax_rate" json:"taxRate"`
	HostawayListingID int64    `yaml:"hostaway_listing_id" json:"hostawayListingId,omitempty"`
	AirbnbListingIDs  []string `yaml:"airbnb_listing_ids" json:"-"`
	Keywords          []string `yaml:"keywords" json:"-"`
	ClassKeywords     []string `yaml:"class_keywords" json:"-"`
	MortgagePrincipal float64  `yaml:"mortgage_principal" json:"-"`
	MortgageBalance   float64  `yaml:"mortgage_balance" json:"-"`
	RevenueGoal       float64  `yaml:"revenue_goal" json:"-"`
	ExpenseBudget     float64  `yaml:"expense_budget" json:"-"`
}

// Catalog is an immutable, ordered set of properties
type Catalog struct {
	properties []Property
	byID       map[string]int
}

type catalogFile struct {
	Properties []Property `yaml:"properties"`
}

// NewCatalog parses a YAML catalog
func NewCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse property catalog: %w", err)
	}

	c := &Catalog{byID: make(map[string]int, len(file.Properties))}
	for i, p := range file.Properties {
		if err := validate(p); err != nil {
			return nil, fmt.Errorf("property %d (%s): %w", i, p.ID, err)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("property %d (%s): duplicate id", i, p.ID)
		}
		if p.MinNights < 1 {
			p.MinNights = 1
		}
		p.Keywords = lower(p.Keywords)
		p.ClassKeywords = lower(p.ClassKeywords)
		c.byID[p.ID] = len(c.properties)
		c.properties = append(c.properties, p)
	}
	return c, nil
}

func validate(p Property) error {
	switch {
	case p.ID == "" || p.ID == domain.UnknownProperty:
		return fmt.Errorf("invalid id %q", p.ID)
	case p.BasePrice <= 0:
		return fmt.Errorf("base_price must be positive")
	case p.CleaningFee < 0:
		return fmt.Errorf("cleaning_fee cannot be negative")
	case p.TaxRate < 0 || p.TaxRate >= 1:
		return fmt.Errorf("tax_rate must be in [0,1)")
	case p.MaxGuests < 1:
		return fmt.Errorf("max_guests must be at least 1")
	}
	return nil
}

// LoadEmbedded returns the built-in catalog
func LoadEmbedded() (*Catalog, error) {
	return NewCatalog(embeddedCatalog)
}

// Load returns the catalog at path, or the built-in one when path is empty
func Load(path string) (*Catalog, error) {
	if path == "" {
		return LoadEmbedded()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read property catalog: %w", err)
	}
	return NewCatalog(data)
}

// Get returns the property with the given id
func (c *Catalog) Get(id string) (Property, error) {
	i, ok := c.byID[id]
	if !ok {
		return Property{}, fmt.Errorf("%w: %q", domain.ErrUnknownProperty, id)
	}
	return c.properties[i], nil
}

// All returns the properties in catalog order
func (c *Catalog) All() []Property {
	out := make([]Property, len(c.properties))
	copy(out, c.properties)
	return out
}

// ByAirbnbListing maps a listing URL or bare listing id to a property id.
// The id is the last path segment of the URL; unknown listings map to
// domain.UnknownProperty.
func (c *Catalog) ByAirbnbListing(listing string) string {
	listing = strings.TrimRight(strings.TrimSpace(listing), "/")
	if i := strings.LastIndex(listing, "/"); i >= 0 {
		listing = listing[i+1:]
	}
	if i := strings.IndexAny(listing, "?#"); i >= 0 {
		listing = listing[:i]
	}
	if listing == "" {
		return domain.UnknownProperty
	}
	for _, p := range c.properties {
		for _, id := range p.AirbnbListingIDs {
			if id == listing {
				return p.ID
			}
		}
	}
	return domain.UnknownProperty
}

// ByHostawayListing maps a Hostaway listing id to a property id
func (c *Catalog) ByHostawayListing(id int64) string {
	for _, p := range c.properties {
		if p.HostawayListingID != 0 && p.HostawayListingID == id {
			return p.ID
		}
	}
	return domain.UnknownProperty
}

// Match attributes free text (names, memos, descriptions) to a property by
// keyword, then falls back to the accounting class name.
func (c *Catalog) Match(text, className string) string {
	text = strings.ToLower(text)
	for _, p := range c.properties {
		for _, kw := range p.Keywords {
			if strings.Contains(text, kw) {
				return p.ID
			}
		}
	}
	className = strings.ToLower(className)
	if className == "" {
		return domain.UnknownProperty
	}
	for _, p := range c.properties {
		for _, kw := range p.ClassKeywords {
			if strings.Contains(className, kw) {
				return p.ID
			}
		}
	}
	return domain.UnknownProperty
}

func lower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}
