package articles

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/daya-auto/carsale/internal/media"
	"github.com/daya-auto/carsale/internal/rbac"
	"github.com/daya-auto/carsale/internal/shared"
	"github.com/daya-auto/carsale/internal/view"
)

const maxUploadMemory = 32 << 20

// Handler wires HTTP endpoints for articles and reviews.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers article pages under /articles.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermVehiclesView)).Get("/", h.list)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermArticlesManage))
		r.Get("/new", h.showCreate)
		r.Post("/", h.create)
		r.Get("/{id}/edit", h.showEdit)
		r.Post("/{id}", h.update)
		r.Post("/{id}/delete", h.delete)
	})
}

// MountReviewRoutes registers review actions under /reviews.
func (h *Handler) MountReviewRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermReviewsCreate)).Post("/", h.createReview)
	r.With(h.rbac.RequireAny(rbac.PermReviewsDelete)).Post("/{id}/delete", h.deleteReview)
}

type articleFormData struct {
	Article Article
	Form    ArticleInput
	Errors  map[string]string
	IsEdit  bool
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.All(r.Context())
	if err != nil {
		h.logger.Error("list articles failed", slog.Any("error", err))
		http.Error(w, "Failed to load articles", http.StatusInternalServerError)
		return
	}
	actor := rbac.PrincipalFromContext(r.Context())
	h.render(w, r, "pages/articles.html", "Articles", map[string]any{
		"Articles":  list,
		"CanManage": actor.Can(rbac.PermArticlesManage),
	}, http.StatusOK)
}

func (h *Handler) showCreate(w http.ResponseWriter, r *http.Request) {
	form := ArticleInput{}
	if id, err := strconv.ParseInt(r.URL.Query().Get("vehicle_id"), 10, 64); err == nil && id > 0 {
		form.VehicleID = &id
	}
	h.renderForm(w, r, articleFormData{Form: form, Errors: map[string]string{}}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	form := ArticleInput{
		VehicleName: r.PostFormValue("vehicle_name"),
		Title:       r.PostFormValue("title"),
		Body:        r.PostFormValue("body"),
	}
	errs := map[string]string{}
	if raw := strings.TrimSpace(r.PostFormValue("vehicle_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			errs["Vehicle"] = "Vehicle not found"
		} else {
			form.VehicleID = &id
		}
	}
	uploads, err := media.FromMultipart(r.MultipartForm, "images")
	if err != nil {
		errs["Images"] = err.Error()
	}
	data := articleFormData{Form: form, Errors: errs}
	if len(errs) > 0 {
		h.renderForm(w, r, data, http.StatusUnprocessableEntity)
		return
	}
	a, err := h.service.CreateArticle(r.Context(), rbac.PrincipalFromContext(r.Context()), form, uploads)
	if err != nil {
		h.handleFormError(w, r, data, err)
		return
	}
	target := "/articles"
	if a.VehicleID != nil {
		target = "/vehicles/" + strconv.FormatInt(*a.VehicleID, 10)
	}
	h.redirectWithFlash(w, r, target, "success", "Article published")
}

func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid article ID", http.StatusBadRequest)
		return
	}
	a, err := h.service.GetArticle(r.Context(), id)
	if err != nil {
		h.logger.Warn("get article failed", slog.Any("error", err), slog.Int64("id", id))
		http.Error(w, "Article not found", http.StatusNotFound)
		return
	}
	h.renderForm(w, r, articleFormData{
		Article: a,
		Form:    ArticleInput{VehicleID: a.VehicleID, VehicleName: a.VehicleName, Title: a.Title, Body: a.Body},
		Errors:  map[string]string{},
		IsEdit:  true,
	}, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid article ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	existing, err := h.service.GetArticle(r.Context(), id)
	if err != nil {
		http.Error(w, "Article not found", http.StatusNotFound)
		return
	}
	form := ArticleInput{VehicleID: existing.VehicleID, VehicleName: existing.VehicleName, Title: r.PostFormValue("title"), Body: r.PostFormValue("body")}
	data := articleFormData{Article: existing, Form: form, Errors: map[string]string{}, IsEdit: true}
	if _, err := h.service.UpdateArticle(r.Context(), rbac.PrincipalFromContext(r.Context()), id, form.Title, form.Body); err != nil {
		h.handleFormError(w, r, data, err)
		return
	}
	h.redirectWithFlash(w, r, "/articles", "success", "Article updated")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid article ID", http.StatusBadRequest)
		return
	}
	back := localPath(r.PostFormValue("return_to"), "/articles")
	if err := h.service.DeleteArticle(r.Context(), rbac.PrincipalFromContext(r.Context()), id); err != nil {
		h.logger.Error("delete article failed", slog.Any("error", err), slog.Int64("id", id))
		h.redirectWithFlash(w, r, back, "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, back, "success", "Article deleted")
}

func (h *Handler) createReview(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	vehicleID, err := strconv.ParseInt(r.PostFormValue("vehicle_id"), 10, 64)
	if err != nil || vehicleID <= 0 {
		http.Error(w, "Vehicle not found", http.StatusNotFound)
		return
	}
	back := "/vehicles/" + strconv.FormatInt(vehicleID, 10)
	rating, _ := strconv.Atoi(r.PostFormValue("rating"))
	uploads, err := media.FromMultipart(r.MultipartForm, "images")
	if err != nil {
		h.redirectWithFlash(w, r, back, "error", err.Error())
		return
	}
	_, err = h.service.CreateReview(r.Context(), rbac.PrincipalFromContext(r.Context()), vehicleID, ReviewInput{Rating: rating, Comment: r.PostFormValue("comment")}, uploads)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.Error(w, "Vehicle not found", http.StatusNotFound)
			return
		}
		if verr, ok := shared.AsValidation(err); ok {
			h.redirectWithFlash(w, r, back, "error", reviewMessage(verr))
			return
		}
		h.logger.Error("create review failed", slog.Any("error", err), slog.Int64("vehicle_id", vehicleID))
		h.redirectWithFlash(w, r, back, "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, back, "success", "Thanks for your review")
}

func (h *Handler) deleteReview(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid review ID", http.StatusBadRequest)
		return
	}
	rv, err := h.service.DeleteReview(r.Context(), rbac.PrincipalFromContext(r.Context()), id)
	if err != nil {
		h.logger.Error("delete review failed", slog.Any("error", err), slog.Int64("id", id))
		h.redirectWithFlash(w, r, localPath(r.PostFormValue("return_to"), "/dashboard"), "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/vehicles/"+strconv.FormatInt(rv.VehicleID, 10), "success", "Review deleted")
}

func reviewMessage(verr *shared.ValidationError) string {
	for _, field := range []string{"Rating", "Comment", "Images"} {
		if msg, ok := verr.Fields[field]; ok {
			return field + ": " + msg
		}
	}
	return verr.Error()
}

func (h *Handler) handleFormError(w http.ResponseWriter, r *http.Request, data articleFormData, err error) {
	if verr, ok := shared.AsValidation(err); ok {
		for k, v := range verr.Fields {
			data.Errors[k] = v
		}
		h.renderForm(w, r, data, http.StatusUnprocessableEntity)
		return
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shared.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, shared.ErrNotFound):
		status = http.StatusNotFound
	default:
		h.logger.Error("save article failed", slog.Any("error", err))
	}
	data.Errors["general"] = shared.UserSafeMessage(err)
	h.renderForm(w, r, data, status)
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, data articleFormData, status int) {
	title := "New article"
	if data.IsEdit {
		title = "Edit article"
	}
	h.render(w, r, "pages/article_form.html", title, data, status)
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

func localPath(raw, fallback string) string {
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") && !strings.Contains(raw, `\`) {
		return raw
	}
	return fallback
}
