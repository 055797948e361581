package tariffs

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/daya-auto/carsale/internal/rbac"
	"github.com/daya-auto/carsale/internal/shared"
	"github.com/daya-auto/carsale/internal/view"
)

type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers the tariff admin pages.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermTariffsManage))
		r.Get("/", h.List)
		r.Get("/new", h.Form)
		r.Post("/", h.Create)
		r.Get("/{id}/edit", h.EditForm)
		r.Post("/{id}", h.Update)
		r.Post("/{id}/delete", h.Delete)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{Search: q.Get("search"), SortBy: q.Get("sort"), SortDir: q.Get("dir")}
	list, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list tariffs failed", "error", err)
		http.Error(w, "Failed to load tariffs", http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/tariffs.html", map[string]any{
		"Tariffs": list,
		"Filters": filters,
	}, http.StatusOK)
}

func (h *Handler) Form(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/tariff_form.html", map[string]any{
		"Errors": map[string]string{},
		"Tariff": Tariff{},
	}, http.StatusOK)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	t, errs := parseForm(r)
	if len(errs) > 0 {
		h.render(w, r, "pages/tariff_form.html", map[string]any{"Errors": errs, "Tariff": t}, http.StatusUnprocessableEntity)
		return
	}
	actor := rbac.PrincipalFromContext(r.Context())
	if _, err := h.service.Create(r.Context(), actor.UserID, t); err != nil {
		h.renderFormError(w, r, t, err)
		return
	}
	h.redirectWithFlash(w, r, "/tariffs", "success", "Tariff for "+t.Country+" saved")
}

func (h *Handler) EditForm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid tariff ID", http.StatusBadRequest)
		return
	}
	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.logger.Warn("get tariff failed", "error", err, "id", id)
		http.Error(w, "Tariff not found", http.StatusNotFound)
		return
	}
	h.render(w, r, "pages/tariff_form.html", map[string]any{
		"Errors": map[string]string{},
		"Tariff": t,
	}, http.StatusOK)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid tariff ID", http.StatusBadRequest)
		return
	}
	t, errs := parseForm(r)
	t.ID = id
	if len(errs) > 0 {
		h.render(w, r, "pages/tariff_form.html", map[string]any{"Errors": errs, "Tariff": t}, http.StatusUnprocessableEntity)
		return
	}
	actor := rbac.PrincipalFromContext(r.Context())
	if err := h.service.Update(r.Context(), actor.UserID, id, t); err != nil {
		h.renderFormError(w, r, t, err)
		return
	}
	h.redirectWithFlash(w, r, "/tariffs", "success", "Tariff updated")
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid tariff ID", http.StatusBadRequest)
		return
	}
	actor := rbac.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor.UserID, id); err != nil {
		h.logger.Error("delete tariff failed", "error", err, "id", id)
		h.redirectWithFlash(w, r, "/tariffs", "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/tariffs", "success", "Tariff deleted")
}

func parseForm(r *http.Request) (Tariff, map[string]string) {
	errs := map[string]string{}
	if err := r.ParseForm(); err != nil {
		errs["general"] = "Invalid form submission"
		return Tariff{}, errs
	}
	t := Tariff{Country: r.PostFormValue("country")}
	var err error
	if t.TaxPercentage, err = ParsePercentage(r.PostFormValue("tax_percentage")); err != nil {
		errs["TaxPercentage"] = "Enter a number"
	}
	if t.DutyPercentage, err = ParsePercentage(r.PostFormValue("duty_percentage")); err != nil {
		errs["DutyPercentage"] = "Enter a number"
	}
	return t, errs
}

func (h *Handler) renderFormError(w http.ResponseWriter, r *http.Request, t Tariff, err error) {
	if verr, ok := shared.AsValidation(err); ok {
		h.render(w, r, "pages/tariff_form.html", map[string]any{"Errors": verr.Fields, "Tariff": t}, http.StatusUnprocessableEntity)
		return
	}
	h.logger.Error("save tariff failed", "error", err)
	h.render(w, r, "pages/tariff_form.html", map[string]any{
		"Errors": map[string]string{"general": shared.UserSafeMessage(err)},
		"Tariff": t,
	}, http.StatusInternalServerError)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Tax & duty",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		User:        rbac.CurrentUser(r.Context()),
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render template", "error", err, "template", template)
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
