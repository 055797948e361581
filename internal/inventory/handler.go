package inventory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/daya-auto/carsale/internal/media"
	"github.com/daya-auto/carsale/internal/rbac"
	"github.com/daya-auto/carsale/internal/shared"
	"github.com/daya-auto/carsale/internal/view"
)

// maxUploadMemory is kept in memory while parsing multipart forms; the rest
// spills to temporary files.
const maxUploadMemory = 32 << 20

// PDFRenderer converts an HTML document into PDF bytes.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// ExtraData contributes template values owned by other modules, such as
// reviews on the detail page or recent articles on the dashboard. A zero
// vehicleID asks for dashboard data.
type ExtraData func(ctx context.Context, vehicleID int64) (map[string]any, error)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	pdf       PDFRenderer
	extra     ExtraData
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware, pdf PDFRenderer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac, pdf: pdf}
}

// WithExtraData registers fn as the source of cross-module page data.
func (h *Handler) WithExtraData(fn ExtraData) *Handler {
	h.extra = fn
	return h
}

// MountDashboard registers the dashboard page.
func (h *Handler) MountDashboard(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermVehiclesView)).Get("/", h.dashboard)
}

// MountRoutes registers vehicle routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermVehiclesView))
		r.Get("/", h.redirectToDashboard)
		r.Get("/export.csv", h.exportCSV)
		r.Get("/export.xlsx", h.exportXLSX)
		r.Get("/{id}", h.detail)
		r.Get("/{id}/specsheet.pdf", h.specSheet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermVehiclesCreate))
		r.Get("/new", h.showCreate)
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermVehiclesEditOwn, rbac.PermVehiclesEditAny))
		r.Get("/{id}/edit", h.showEdit)
		r.Post("/{id}", h.update)
		r.Post("/{id}/sections/{section}", h.updateSection)
		r.Post("/{id}/status", h.changeStatus)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermVehiclesDelete))
		r.Post("/{id}/delete", h.delete)
	})
}

type vehicleFormData struct {
	Vehicle Vehicle
	Form    Input
	Errors  map[string]string
	IsEdit  bool
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	filters, query := parseFilters(r.URL.Query())
	result, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list vehicles failed", slog.Any("error", err))
		h.renderError(w, r, http.StatusInternalServerError, "Failed to load vehicles")
		return
	}
	actor := rbac.PrincipalFromContext(r.Context())
	data := map[string]any{
		"Result":   result,
		"Filters":  filters,
		"Query":    query,
		"Statuses": Statuses,
		"Editable": editableSet(actor, result.Vehicles),
	}
	h.mergeExtra(r.Context(), 0, data)
	h.render(w, r, "pages/dashboard.html", "Dashboard", data, http.StatusOK)
}

func (h *Handler) redirectToDashboard(w http.ResponseWriter, r *http.Request) {
	target := "/dashboard"
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) showCreate(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, vehicleFormData{Errors: map[string]string{}}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	in, uploads, errs := h.parseVehicleForm(r)
	data := vehicleFormData{Form: in, Errors: errs}
	if len(errs) > 0 {
		h.renderForm(w, r, data, http.StatusUnprocessableEntity)
		return
	}
	ctx, notice := media.WithNotice(r.Context())
	v, err := h.service.Create(ctx, rbac.PrincipalFromContext(ctx), in, uploads)
	if err != nil {
		h.handleFormError(w, r, data, err)
		return
	}
	h.logger.Info("vehicle created", slog.Int64("id", v.ID), slog.String("chassis", v.ChassisNumber))
	if notice.Used() {
		h.redirectWithFlash(w, r, vehiclePath(v.ID), "warning", "Vehicle saved. The image host was unavailable, so images were stored inline.")
		return
	}
	h.redirectWithFlash(w, r, vehiclePath(v.ID), "success", "Vehicle added")
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	v, ok := h.loadVehicle(w, r)
	if !ok {
		return
	}
	h.renderDetail(w, r, v, "", nil, http.StatusOK)
}

func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	v, ok := h.loadVehicle(w, r)
	if !ok {
		return
	}
	if !CanEdit(rbac.PrincipalFromContext(r.Context()), v) {
		h.renderError(w, r, http.StatusForbidden, "You can only edit vehicles you added")
		return
	}
	h.renderForm(w, r, vehicleFormData{Vehicle: v, Form: InputFromVehicle(v), Errors: map[string]string{}, IsEdit: true}, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	v, ok := h.loadVehicle(w, r)
	if !ok {
		return
	}
	in, uploads, errs := h.parseVehicleForm(r)
	data := vehicleFormData{Vehicle: v, Form: in, Errors: errs, IsEdit: true}
	if len(errs) > 0 {
		h.renderForm(w, r, data, http.StatusUnprocessableEntity)
		return
	}
	ctx, notice := media.WithNotice(r.Context())
	updated, err := h.service.Update(ctx, rbac.PrincipalFromContext(ctx), v.ID, in, uploads)
	if err != nil {
		h.handleFormError(w, r, data, err)
		return
	}
	if notice.Used() {
		h.redirectWithFlash(w, r, vehiclePath(updated.ID), "warning", "Vehicle updated. The image host was unavailable, so images were stored inline.")
		return
	}
	h.redirectWithFlash(w, r, vehiclePath(updated.ID), "success", "Vehicle updated")
}

func (h *Handler) updateSection(w http.ResponseWriter, r *http.Request) {
	v, ok := h.loadVehicle(w, r)
	if !ok {
		return
	}
	section := Section(chi.URLParam(r, "section"))
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid form submission")
		return
	}
	in, errs := parseInputValues(r.PostForm)
	if len(errs) > 0 {
		h.renderDetail(w, r, v, section, errs, http.StatusUnprocessableEntity)
		return
	}
	updated, err := h.service.UpdateSection(r.Context(), rbac.PrincipalFromContext(r.Context()), v.ID, section, in)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSection):
			h.renderError(w, r, http.StatusNotFound, "Unknown section")
		case errors.Is(err, shared.ErrForbidden):
			h.renderError(w, r, http.StatusForbidden, "You can only edit vehicles you added")
		case errors.Is(err, ErrDuplicateChassis):
			h.renderDetail(w, r, v, section, map[string]string{"ChassisNumber": "Chassis number already registered"}, http.StatusConflict)
		default:
			if verr, ok := shared.AsValidation(err); ok {
				h.renderDetail(w, r, v, section, verr.Fields, http.StatusUnprocessableEntity)
				return
			}
			h.logger.Error("update vehicle section failed", slog.Any("error", err), slog.Int64("id", v.ID))
			h.renderError(w, r, http.StatusInternalServerError, shared.UserSafeMessage(err))
		}
		return
	}
	h.redirectWithFlash(w, r, vehiclePath(updated.ID), "success", titleSection(section)+" details saved")
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.vehicleID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid form submission")
		return
	}
	back := localPath(r.PostFormValue("return_to"), vehiclePath(id))
	v, err := h.service.ChangeStatus(r.Context(), rbac.PrincipalFromContext(r.Context()), id, r.PostFormValue("status"))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.renderError(w, r, http.StatusNotFound, "Vehicle not found")
			return
		}
		if errors.Is(err, shared.ErrForbidden) {
			h.renderError(w, r, http.StatusForbidden, "Only the owner or an admin can change this status")
			return
		}
		h.logger.Warn("change vehicle status failed", slog.Any("error", err), slog.Int64("id", id))
		h.redirectWithFlash(w, r, back, "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, back, "success", fmt.Sprintf("%s marked as %s", v.DisplayName(), v.Status))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.vehicleID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), rbac.PrincipalFromContext(r.Context()), id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.renderError(w, r, http.StatusNotFound, "Vehicle not found")
			return
		}
		h.logger.Error("delete vehicle failed", slog.Any("error", err), slog.Int64("id", id))
		h.redirectWithFlash(w, r, vehiclePath(id), "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/dashboard", "success", "Vehicle deleted")
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	vehicles, ok := h.exportRows(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, vehicles); err != nil {
		h.logger.Error("export csv failed", slog.Any("error", err))
		http.Error(w, "Failed to export", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+exportFilename("csv"))
	_, _ = buf.WriteTo(w)
}

func (h *Handler) exportXLSX(w http.ResponseWriter, r *http.Request) {
	vehicles, ok := h.exportRows(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, vehicles); err != nil {
		h.logger.Error("export xlsx failed", slog.Any("error", err))
		http.Error(w, "Failed to export", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+exportFilename("xlsx"))
	_, _ = buf.WriteTo(w)
}

func (h *Handler) exportRows(w http.ResponseWriter, r *http.Request) ([]Vehicle, bool) {
	filters, _ := parseFilters(r.URL.Query())
	vehicles, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("load export rows failed", slog.Any("error", err))
		http.Error(w, "Failed to export", http.StatusInternalServerError)
		return nil, false
	}
	return vehicles, true
}

func (h *Handler) specSheet(w http.ResponseWriter, r *http.Request) {
	v, ok := h.loadVehicle(w, r)
	if !ok {
		return
	}
	if h.pdf == nil {
		http.Error(w, "PDF rendering is not configured", http.StatusServiceUnavailable)
		return
	}
	html, err := h.templates.RenderString("pages/vehicle_specsheet.html", map[string]any{
		"Vehicle":     v,
		"Margin":      ProfitMargin(v),
		"GeneratedAt": time.Now(),
	})
	if err != nil {
		h.logger.Error("render spec sheet html", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	pdf, err := h.pdf.RenderHTML(r.Context(), html)
	if err != nil {
		h.logger.Error("render spec sheet pdf", slog.Any("error", err), slog.Int64("id", v.ID))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename="+strings.ToLower(v.ChassisNumber)+".pdf")
	_, _ = w.Write(pdf)
}

func (h *Handler) loadVehicle(w http.ResponseWriter, r *http.Request) (Vehicle, bool) {
	id, ok := h.vehicleID(w, r)
	if !ok {
		return Vehicle{}, false
	}
	v, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.renderError(w, r, http.StatusNotFound, "Vehicle not found")
			return Vehicle{}, false
		}
		h.logger.Error("get vehicle failed", slog.Any("error", err), slog.Int64("id", id))
		h.renderError(w, r, http.StatusInternalServerError, "Failed to load vehicle")
		return Vehicle{}, false
	}
	return v, true
}

func (h *Handler) vehicleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.renderError(w, r, http.StatusNotFound, "Vehicle not found")
		return 0, false
	}
	return id, true
}

func (h *Handler) parseVehicleForm(r *http.Request) (Input, []media.Image, map[string]string) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return Input{}, nil, map[string]string{"general": "Invalid form submission"}
	}
	in, errs := parseInputValues(r.PostForm)
	uploads, err := media.FromMultipart(r.MultipartForm, "images")
	if err != nil {
		errs["Images"] = err.Error()
	}
	return in, uploads, errs
}

// parseInputValues reads the vehicle form. Blank numbers and dates parse as
// zero values; malformed ones are reported per field.
func parseInputValues(form url.Values) (Input, map[string]string) {
	errs := map[string]string{}
	in := Input{
		ChassisNumber:     form.Get("chassis_number"),
		Brand:             form.Get("brand"),
		Model:             form.Get("model"),
		Grade:             form.Get("grade"),
		Country:           form.Get("country"),
		ShippingCompany:   form.Get("shipping_company"),
		PurchaserName:     form.Get("purchaser_name"),
		PurchaserPhone:    form.Get("purchaser_phone"),
		PurchaserIDNumber: form.Get("purchaser_id_number"),
		PurchaserAddress:  form.Get("purchaser_address"),
	}
	if raw := strings.TrimSpace(form.Get("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			errs["Year"] = "Enter a valid year"
		}
		in.Year = year
	}
	for _, f := range []struct {
		field, name string
		dst         *decimal.Decimal
	}{
		{"PurchasePrice", "purchase_price", &in.PurchasePrice},
		{"CIFValue", "cif_value", &in.CIFValue},
		{"LCValue", "lc_value", &in.LCValue},
		{"SellingPrice", "selling_price", &in.SellingPrice},
		{"AdvancePayment", "advance_payment", &in.AdvancePayment},
		{"Price", "price", &in.Price},
		{"Tax", "tax", &in.Tax},
		{"Duty", "duty", &in.Duty},
	} {
		amount, err := ParseAmount(form.Get(f.name))
		if err != nil {
			errs[f.field] = "Enter a valid amount"
			continue
		}
		*f.dst = amount
	}
	var err error
	if in.ShippingDate, err = parseDate(form.Get("shipping_date")); err != nil {
		errs["ShippingDate"] = "Enter a valid date"
	}
	if in.ArrivalDate, err = parseDate(form.Get("arrival_date")); err != nil {
		errs["ArrivalDate"] = "Enter a valid date"
	}
	return in, errs
}

// ParseAmount parses a money value, accepting thousands separators. Blank
// input is zero.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseFilters reads list filters from a query string and returns them with
// the normalised query used for pagination links.
func parseFilters(q url.Values) (Filters, url.Values) {
	f := Filters{
		Search:  strings.TrimSpace(q.Get("search")),
		Brand:   strings.TrimSpace(q.Get("brand")),
		Model:   strings.TrimSpace(q.Get("model")),
		Chassis: strings.TrimSpace(q.Get("chassis")),
		Country: strings.TrimSpace(q.Get("country")),
		SortBy:  q.Get("sort"),
		SortDir: q.Get("dir"),
	}
	if s, err := ParseStatus(q.Get("status")); err == nil {
		f.Status = s
	}
	if v, err := ParseAmount(q.Get("min_price")); err == nil && q.Get("min_price") != "" {
		f.MinPrice = &v
	}
	if v, err := ParseAmount(q.Get("max_price")); err == nil && q.Get("max_price") != "" {
		f.MaxPrice = &v
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	keep := url.Values{}
	for _, key := range []string{"search", "brand", "model", "chassis", "country", "min_price", "max_price", "status", "sort", "dir", "per_page"} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			keep.Set(key, v)
		}
	}
	return f, keep
}

func editableSet(actor rbac.Principal, vehicles []Vehicle) map[int64]bool {
	out := make(map[int64]bool, len(vehicles))
	for _, v := range vehicles {
		out[v.ID] = CanEdit(actor, v)
	}
	return out
}

func (h *Handler) mergeExtra(ctx context.Context, vehicleID int64, data map[string]any) {
	if h.extra == nil {
		return
	}
	extra, err := h.extra(ctx, vehicleID)
	if err != nil {
		h.logger.Warn("load related page data", slog.Any("error", err), slog.Int64("vehicle_id", vehicleID))
		return
	}
	for k, v := range extra {
		data[k] = v
	}
}

func (h *Handler) handleFormError(w http.ResponseWriter, r *http.Request, data vehicleFormData, err error) {
	switch {
	case errors.Is(err, shared.ErrForbidden):
		h.renderError(w, r, http.StatusForbidden, "You can only edit vehicles you added")
		return
	case errors.Is(err, ErrDuplicateChassis):
		data.Errors["ChassisNumber"] = "Chassis number already registered"
		h.renderForm(w, r, data, http.StatusConflict)
		return
	}
	if verr, ok := shared.AsValidation(err); ok {
		for k, v := range verr.Fields {
			data.Errors[k] = v
		}
		h.renderForm(w, r, data, http.StatusUnprocessableEntity)
		return
	}
	h.logger.Error("save vehicle failed", slog.Any("error", err))
	data.Errors["general"] = shared.UserSafeMessage(err)
	h.renderForm(w, r, data, http.StatusInternalServerError)
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, data vehicleFormData, status int) {
	if data.Errors == nil {
		data.Errors = map[string]string{}
	}
	title := "Add vehicle"
	if data.IsEdit {
		title = "Edit " + data.Vehicle.DisplayName()
	}
	h.render(w, r, "pages/vehicle_form.html", title, data, status)
}

func (h *Handler) renderDetail(w http.ResponseWriter, r *http.Request, v Vehicle, open Section, errs map[string]string, status int) {
	actor := rbac.PrincipalFromContext(r.Context())
	if errs == nil {
		errs = map[string]string{}
	}
	data := map[string]any{
		"Vehicle":       v,
		"CanEdit":       CanEdit(actor, v),
		"CanDelete":     actor.Can(rbac.PermVehiclesDelete),
		"CanReview":     actor.Can(rbac.PermReviewsCreate),
		"CanPDF":        h.pdf != nil,
		"Margin":        ProfitMargin(v),
		"Statuses":      Statuses,
		"OpenSection":   string(open),
		"SectionErrors": errs,
	}
	h.mergeExtra(r.Context(), v.ID, data)
	h.render(w, r, "pages/vehicle_detail.html", v.DisplayName(), data, status)
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.render(w, r, "pages/error.html", http.StatusText(status), map[string]any{"Message": message}, status)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		User:        rbac.CurrentUser(r.Context()),
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err), slog.String("template", template))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func vehiclePath(id int64) string {
	return "/vehicles/" + strconv.FormatInt(id, 10)
}

// localPath returns raw when it is a same-site path, otherwise fallback.
func localPath(raw, fallback string) string {
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") && !strings.Contains(raw, `\`) {
		return raw
	}
	return fallback
}

func titleSection(s Section) string {
	return titleCaser.String(string(s))
}

func exportFilename(ext string) string {
	return "inventory-" + time.Now().Format("20060102") + "." + ext
}
