package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/daya-auto/carsale/internal/shared"
)

// Status tracks where a vehicle is in the sales cycle.
type Status string

const (
	StatusAvailable Status = "available"
	StatusReserved  Status = "reserved"
	StatusSold      Status = "sold"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusAvailable, StatusReserved, StatusSold}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusReserved, StatusSold:
		return true
	}
	return false
}

// ParseStatus normalises raw into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// Section names a group of fields edited together on the detail page.
type Section string

const (
	SectionBasic     Section = "basic"
	SectionFinancial Section = "financial"
	SectionShipping  Section = "shipping"
	SectionPurchaser Section = "purchaser"
)

var (
	ErrInvalidStatus    = errors.New("inventory: invalid status")
	ErrInvalidSection   = errors.New("inventory: invalid section")
	ErrDuplicateChassis = fmt.Errorf("chassis number already registered: %w", shared.ErrConflict)
)

// Vehicle is a car held in the dealership inventory.
type Vehicle struct {
	ID            int64
	ChassisNumber string
	Brand         string
	Model         string
	Year          int
	Grade         string
	Country       string

	PurchasePrice  decimal.Decimal
	CIFValue       decimal.Decimal
	LCValue        decimal.Decimal
	SellingPrice   decimal.Decimal
	NetProfit      decimal.Decimal
	AdvancePayment decimal.Decimal
	RestPayment    decimal.Decimal

	// Legacy pricing columns kept for older records.
	Price       decimal.Decimal
	Tax         decimal.Decimal
	Duty        decimal.Decimal
	TotalAmount decimal.Decimal

	ShippingCompany string
	ShippingDate    *time.Time
	ArrivalDate     *time.Time

	PurchaserName     string
	PurchaserPhone    string
	PurchaserIDNumber string
	PurchaserAddress  string

	Images      []string
	Status      Status
	SoldAt      *time.Time
	AddedBy     int64
	AddedByName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DisplayName is the label used in lists and article links.
func (v Vehicle) DisplayName() string {
	name := strings.TrimSpace(v.Brand + " " + v.Model)
	if v.Year > 0 {
		name += fmt.Sprintf(" (%d)", v.Year)
	}
	return name
}

// CoverImage returns the first image or an empty string.
func (v Vehicle) CoverImage() string {
	if len(v.Images) == 0 {
		return ""
	}
	return v.Images[0]
}

// LandedCost is CIF plus tax and duty.
func (v Vehicle) LandedCost() decimal.Decimal {
	return LandedCost(v)
}

// Input carries the editable fields of a vehicle.
type Input struct {
	ChassisNumber string `validate:"required,max=64"`
	Brand         string `validate:"required,max=64"`
	Model         string `validate:"required,max=64"`
	Year          int
	Grade         string `validate:"max=32"`
	Country       string `validate:"max=80"`

	PurchasePrice  decimal.Decimal
	CIFValue       decimal.Decimal
	LCValue        decimal.Decimal
	SellingPrice   decimal.Decimal
	AdvancePayment decimal.Decimal
	Price          decimal.Decimal
	Tax            decimal.Decimal
	Duty           decimal.Decimal

	ShippingCompany string `validate:"max=120"`
	ShippingDate    *time.Time
	ArrivalDate     *time.Time

	PurchaserName     string `validate:"max=120"`
	PurchaserPhone    string `validate:"max=32"`
	PurchaserIDNumber string `validate:"max=32"`
	PurchaserAddress  string `validate:"max=255"`

	// ImageURLs are already hosted images, as sent by API clients.
	ImageURLs []string `validate:"omitempty,max=4,dive,required"`
}

// InputFromVehicle copies the editable fields of v.
func InputFromVehicle(v Vehicle) Input {
	return Input{
		ChassisNumber:     v.ChassisNumber,
		Brand:             v.Brand,
		Model:             v.Model,
		Year:              v.Year,
		Grade:             v.Grade,
		Country:           v.Country,
		PurchasePrice:     v.PurchasePrice,
		CIFValue:          v.CIFValue,
		LCValue:           v.LCValue,
		SellingPrice:      v.SellingPrice,
		AdvancePayment:    v.AdvancePayment,
		Price:             v.Price,
		Tax:               v.Tax,
		Duty:              v.Duty,
		ShippingCompany:   v.ShippingCompany,
		ShippingDate:      v.ShippingDate,
		ArrivalDate:       v.ArrivalDate,
		PurchaserName:     v.PurchaserName,
		PurchaserPhone:    v.PurchaserPhone,
		PurchaserIDNumber: v.PurchaserIDNumber,
		PurchaserAddress:  v.PurchaserAddress,
		ImageURLs:         append([]string(nil), v.Images...),
	}
}

// Filters narrows the inventory listing.
type Filters struct {
	Search   string
	Brand    string
	Model    string
	Chassis  string
	Country  string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Status   Status
	SortBy   string
	SortDir  string
	Page     int
	PerPage  int
}

// Stats summarises the filtered inventory for the dashboard cards.
type Stats struct {
	Total       int
	Available   int
	Reserved    int
	Sold        int
	TotalProfit decimal.Decimal
}

// ListResult is one page of vehicles.
type ListResult struct {
	Vehicles   []Vehicle
	Pagination shared.Pagination
	Stats      Stats
}
