package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/daya-auto/carsale/internal/platform/httpx"
	"github.com/daya-auto/carsale/internal/rbac"
	"github.com/daya-auto/carsale/internal/shared"
	"github.com/daya-auto/carsale/internal/view"
)

const invalidLoginMessage = "Invalid email or password"

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	tokens         *TokenIssuer
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, tokens *TokenIssuer, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		tokens:         tokens,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Get("/register", h.showRegister)
	r.Post("/register", h.handleRegister)
	r.Post("/logout", h.handleLogout)
}

// MountSettingsRoutes registers the account settings pages. The caller is
// expected to guard them with RequireAuth.
func (h *Handler) MountSettingsRoutes(r chi.Router) {
	r.Get("/", h.showSettings)
	r.Post("/profile", h.handleProfile)
	r.Post("/password", h.handlePassword)
}

// MountAPIRoutes registers the token endpoint.
func (h *Handler) MountAPIRoutes(r chi.Router) {
	r.Post("/token", h.issueToken)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type formPageData struct {
	Form   any
	Errors map[string]string
}

type settingsPageData struct {
	Profile        ProfileInput
	ProfileErrors  map[string]string
	PasswordErrors map[string]string
	IsAdmin        bool
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, tpl, title string, data any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
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
	if err := h.templates.RenderStatus(w, status, tpl, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", tpl), slog.Any("error", err))
	}
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if rbac.PrincipalFromContext(r.Context()).Authenticated() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "pages/login.html", "Sign in", formPageData{Form: loginForm{}})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	verr := shared.ValidateStruct(h.validator, form)
	if verr.Empty() {
		user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
		if err == nil {
			h.startSession(w, r, user, "Welcome back")
			return
		}
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("authenticate", slog.Any("error", err))
		}
		verr.Add("general", invalidLoginMessage)
	}
	form.Password = ""
	h.render(w, r, http.StatusBadRequest, "pages/login.html", "Sign in", formPageData{Form: form, Errors: verr.Fields})
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/register.html", "Create account", formPageData{Form: RegisterInput{}})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := RegisterInput{
		Email:           r.PostFormValue("email"),
		DisplayName:     r.PostFormValue("display_name"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	user, err := h.service.Register(r.Context(), in)
	if err != nil {
		verr, ok := shared.AsValidation(err)
		if !ok {
			h.logger.Error("register", slog.Any("error", err))
			verr = shared.NewValidationError(map[string]string{"general": shared.UserSafeMessage(err)})
		}
		in.Password, in.ConfirmPassword = "", ""
		h.render(w, r, http.StatusUnprocessableEntity, "pages/register.html", "Create account", formPageData{Form: in, Errors: verr.Fields})
		return
	}
	h.startSession(w, r, user, "Account created")
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *User, greeting string) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.sessionManager.Renew(sess)
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: greeting + ", " + user.Name()})
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	h.logger.Info("user signed in", slog.Int64("user_id", user.ID), slog.String("role", string(user.Role)))
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) showSettings(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	h.render(w, r, http.StatusOK, "pages/settings.html", "Settings", settingsPageData{
		Profile: ProfileInput{DisplayName: p.DisplayName, Email: p.Email},
		IsAdmin: p.IsAdmin(),
	})
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	p := rbac.PrincipalFromContext(r.Context())
	in := ProfileInput{DisplayName: r.PostFormValue("display_name"), Email: r.PostFormValue("email")}
	user, err := h.service.UpdateProfile(r.Context(), p.UserID, in)
	if err != nil {
		verr, ok := shared.AsValidation(err)
		if !ok {
			h.logger.Error("update profile", slog.Any("error", err))
			verr = shared.NewValidationError(map[string]string{"general": shared.UserSafeMessage(err)})
		}
		h.render(w, r, http.StatusUnprocessableEntity, "pages/settings.html", "Settings", settingsPageData{Profile: in, ProfileErrors: verr.Fields, IsAdmin: p.IsAdmin()})
		return
	}
	if user.Role != p.Role {
		h.logger.Info("role changed with email", slog.Int64("user_id", user.ID), slog.String("role", string(user.Role)))
	}
	h.redirectWithFlash(w, r, "/settings", "success", "Profile updated")
}

func (h *Handler) handlePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	p := rbac.PrincipalFromContext(r.Context())
	in := PasswordInput{
		Current: r.PostFormValue("current_password"),
		New:     r.PostFormValue("new_password"),
		Confirm: r.PostFormValue("confirm_password"),
	}
	if err := h.service.ChangePassword(r.Context(), p.UserID, in); err != nil {
		verr, ok := shared.AsValidation(err)
		if !ok {
			h.logger.Error("change password", slog.Any("error", err))
			verr = shared.NewValidationError(map[string]string{"general": shared.UserSafeMessage(err)})
		}
		h.render(w, r, http.StatusUnprocessableEntity, "pages/settings.html", "Settings", settingsPageData{
			Profile:        ProfileInput{DisplayName: p.DisplayName, Email: p.Email},
			PasswordErrors: verr.Fields,
			IsAdmin:        p.IsAdmin(),
		})
		return
	}
	h.redirectWithFlash(w, r, "/settings", "success", "Password changed")
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      rbac.Role `json:"role"`
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", invalidLoginMessage)
		return
	}
	token, expires, err := h.tokens.Issue(*user)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tokenResponse{Token: token, TokenType: "Bearer", ExpiresAt: expires, Role: user.Role})
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleRegisterForTest exposes the registration handler for tests.
func (h *Handler) HandleRegisterForTest(w http.ResponseWriter, r *http.Request) {
	h.handleRegister(w, r)
}

// IssueTokenForTest exposes the token endpoint for tests.
func (h *Handler) IssueTokenForTest(w http.ResponseWriter, r *http.Request) {
	h.issueToken(w, r)
}
