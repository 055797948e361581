package inventory

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/daya-auto/carsale/internal/platform/httpx"
	"github.com/daya-auto/carsale/internal/rbac"
	"github.com/daya-auto/carsale/internal/shared"
)

// IdempotencyHeader carries the client key that deduplicates creates.
const IdempotencyHeader = "Idempotency-Key"

// MountAPIRoutes registers the JSON API under /api/v1/vehicles.
func (h *Handler) MountAPIRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAny(rbac.PermVehiclesView))
	r.Get("/", h.apiList)
	r.Post("/", h.apiCreate)
	r.Get("/{id}", h.apiGet)
	r.Patch("/{id}", h.apiPatch)
	r.Post("/{id}/status", h.apiStatus)
	r.Delete("/{id}", h.apiDelete)
}

type vehicleJSON struct {
	ID             int64           `json:"id"`
	ChassisNumber  string          `json:"chassis_number"`
	Brand          string          `json:"brand"`
	Model          string          `json:"model"`
	Year           int             `json:"year"`
	Grade          string          `json:"grade,omitempty"`
	Country        string          `json:"country,omitempty"`
	PurchasePrice  decimal.Decimal `json:"purchase_price"`
	CIFValue       decimal.Decimal `json:"cif_value"`
	LCValue        decimal.Decimal `json:"lc_value"`
	SellingPrice   decimal.Decimal `json:"selling_price"`
	NetProfit      decimal.Decimal `json:"net_profit"`
	AdvancePayment decimal.Decimal `json:"advance_payment"`
	RestPayment    decimal.Decimal `json:"rest_payment"`
	Price          decimal.Decimal `json:"price"`
	Tax            decimal.Decimal `json:"tax"`
	Duty           decimal.Decimal `json:"duty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`

	ShippingCompany string `json:"shipping_company,omitempty"`
	ShippingDate    string `json:"shipping_date,omitempty"`
	ArrivalDate     string `json:"arrival_date,omitempty"`

	PurchaserName     string `json:"purchaser_name,omitempty"`
	PurchaserPhone    string `json:"purchaser_phone,omitempty"`
	PurchaserIDNumber string `json:"purchaser_id_number,omitempty"`
	PurchaserAddress  string `json:"purchaser_address,omitempty"`

	Images      []string   `json:"images"`
	Status      Status     `json:"status"`
	SoldAt      *time.Time `json:"sold_at,omitempty"`
	AddedBy     int64      `json:"added_by"`
	AddedByName string     `json:"added_by_name,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toJSON(v Vehicle) vehicleJSON {
	images := v.Images
	if images == nil {
		images = []string{}
	}
	return vehicleJSON{
		ID: v.ID, ChassisNumber: v.ChassisNumber, Brand: v.Brand, Model: v.Model, Year: v.Year,
		Grade: v.Grade, Country: v.Country,
		PurchasePrice: v.PurchasePrice, CIFValue: v.CIFValue, LCValue: v.LCValue,
		SellingPrice: v.SellingPrice, NetProfit: v.NetProfit,
		AdvancePayment: v.AdvancePayment, RestPayment: v.RestPayment,
		Price: v.Price, Tax: v.Tax, Duty: v.Duty, TotalAmount: v.TotalAmount,
		ShippingCompany: v.ShippingCompany, ShippingDate: exportDate(v.ShippingDate), ArrivalDate: exportDate(v.ArrivalDate),
		PurchaserName: v.PurchaserName, PurchaserPhone: v.PurchaserPhone,
		PurchaserIDNumber: v.PurchaserIDNumber, PurchaserAddress: v.PurchaserAddress,
		Images: images, Status: v.Status, SoldAt: v.SoldAt,
		AddedBy: v.AddedBy, AddedByName: v.AddedByName,
		CreatedAt: v.CreatedAt, UpdatedAt: v.UpdatedAt,
	}
}

// vehicleRequest is the create and patch payload. Nil fields are left
// unchanged by a patch and zero on create.
type vehicleRequest struct {
	ChassisNumber     *string          `json:"chassis_number"`
	Brand             *string          `json:"brand"`
	Model             *string          `json:"model"`
	Year              *int             `json:"year"`
	Grade             *string          `json:"grade"`
	Country           *string          `json:"country"`
	PurchasePrice     *decimal.Decimal `json:"purchase_price"`
	CIFValue          *decimal.Decimal `json:"cif_value"`
	LCValue           *decimal.Decimal `json:"lc_value"`
	SellingPrice      *decimal.Decimal `json:"selling_price"`
	AdvancePayment    *decimal.Decimal `json:"advance_payment"`
	Price             *decimal.Decimal `json:"price"`
	Tax               *decimal.Decimal `json:"tax"`
	Duty              *decimal.Decimal `json:"duty"`
	ShippingCompany   *string          `json:"shipping_company"`
	ShippingDate      *string          `json:"shipping_date"`
	ArrivalDate       *string          `json:"arrival_date"`
	PurchaserName     *string          `json:"purchaser_name"`
	PurchaserPhone    *string          `json:"purchaser_phone"`
	PurchaserIDNumber *string          `json:"purchaser_id_number"`
	PurchaserAddress  *string          `json:"purchaser_address"`
	ImageURLs         []string         `json:"image_urls"`
}

// apply copies the set fields of req onto in.
func (req vehicleRequest) apply(in Input) (Input, error) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setAmount := func(dst *decimal.Decimal, src *decimal.Decimal) {
		if src != nil {
			*dst = *src
		}
	}
	setString(&in.ChassisNumber, req.ChassisNumber)
	setString(&in.Brand, req.Brand)
	setString(&in.Model, req.Model)
	setString(&in.Grade, req.Grade)
	setString(&in.Country, req.Country)
	setString(&in.ShippingCompany, req.ShippingCompany)
	setString(&in.PurchaserName, req.PurchaserName)
	setString(&in.PurchaserPhone, req.PurchaserPhone)
	setString(&in.PurchaserIDNumber, req.PurchaserIDNumber)
	setString(&in.PurchaserAddress, req.PurchaserAddress)
	if req.Year != nil {
		in.Year = *req.Year
	}
	setAmount(&in.PurchasePrice, req.PurchasePrice)
	setAmount(&in.CIFValue, req.CIFValue)
	setAmount(&in.LCValue, req.LCValue)
	setAmount(&in.SellingPrice, req.SellingPrice)
	setAmount(&in.AdvancePayment, req.AdvancePayment)
	setAmount(&in.Price, req.Price)
	setAmount(&in.Tax, req.Tax)
	setAmount(&in.Duty, req.Duty)

	verr := shared.NewValidationError(map[string]string{})
	if req.ShippingDate != nil {
		d, err := parseDate(*req.ShippingDate)
		if err != nil {
			verr.Add("ShippingDate", "Use the YYYY-MM-DD format")
		}
		in.ShippingDate = d
	}
	if req.ArrivalDate != nil {
		d, err := parseDate(*req.ArrivalDate)
		if err != nil {
			verr.Add("ArrivalDate", "Use the YYYY-MM-DD format")
		}
		in.ArrivalDate = d
	}
	in.ImageURLs = req.ImageURLs
	return in, verr.Err()
}

type listResponse struct {
	Data       []vehicleJSON `json:"data"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
	Total      int           `json:"total"`
	TotalPages int           `json:"total_pages"`
	Stats      statsJSON     `json:"stats"`
}

type statsJSON struct {
	Total       int             `json:"total"`
	Available   int             `json:"available"`
	Reserved    int             `json:"reserved"`
	Sold        int             `json:"sold"`
	TotalProfit decimal.Decimal `json:"total_profit"`
}

func (h *Handler) apiList(w http.ResponseWriter, r *http.Request) {
	filters, _ := parseFilters(r.URL.Query())
	result, err := h.service.List(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := listResponse{
		Data:       make([]vehicleJSON, 0, len(result.Vehicles)),
		Page:       result.Pagination.Page,
		PerPage:    result.Pagination.PerPage,
		Total:      result.Pagination.Total,
		TotalPages: result.Pagination.TotalPages,
		Stats: statsJSON{
			Total:       result.Stats.Total,
			Available:   result.Stats.Available,
			Reserved:    result.Stats.Reserved,
			Sold:        result.Stats.Sold,
			TotalProfit: result.Stats.TotalProfit,
		},
	}
	for _, v := range result.Vehicles {
		out.Data = append(out.Data, toJSON(v))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) apiGet(w http.ResponseWriter, r *http.Request) {
	id, ok := apiID(w, r)
	if !ok {
		return
	}
	v, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJSON(v))
}

func (h *Handler) apiCreate(w http.ResponseWriter, r *http.Request) {
	var req vehicleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.apply(Input{})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor := rbac.PrincipalFromContext(r.Context())
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	v, replay, err := h.service.CreateIdempotent(r.Context(), actor, key, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusCreated
	if replay {
		w.Header().Set("Idempotent-Replayed", "true")
		status = http.StatusOK
	}
	w.Header().Set("Location", "/api/v1/vehicles/"+strconv.FormatInt(v.ID, 10))
	httpx.JSON(w, status, toJSON(v))
}

func (h *Handler) apiPatch(w http.ResponseWriter, r *http.Request) {
	id, ok := apiID(w, r)
	if !ok {
		return
	}
	var req vehicleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	existing, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.apply(InputFromVehicle(existing))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.Update(r.Context(), rbac.PrincipalFromContext(r.Context()), id, in, nil)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJSON(v))
}

func (h *Handler) apiStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := apiID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.ChangeStatus(r.Context(), rbac.PrincipalFromContext(r.Context()), id, req.Status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJSON(v))
}

func (h *Handler) apiDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := apiID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), rbac.PrincipalFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func apiID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "vehicle not found")
		return 0, false
	}
	return id, true
}
