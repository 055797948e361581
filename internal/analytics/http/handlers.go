package analytichttp

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/daya-auto/carsale/internal/analytics"
	"github.com/daya-auto/carsale/internal/analytics/export"
	"github.com/daya-auto/carsale/internal/analytics/svg"
	"github.com/daya-auto/carsale/internal/platform/httpx"
	"github.com/daya-auto/carsale/internal/rbac"
	"github.com/daya-auto/carsale/internal/shared"
	"github.com/daya-auto/carsale/internal/view"
)

const requestTimeout = 5 * time.Second

// SummaryService is the analytics contract used by the handler.
type SummaryService interface {
	Summary(ctx context.Context) (analytics.Summary, error)
}

// PDFRenderer converts an HTML document into PDF bytes.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Handler serves the admin analytics dashboard and its exports.
type Handler struct {
	logger    *slog.Logger
	service   SummaryService
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	pdf       PDFRenderer
	csvPool   sync.Pool
	now       func() time.Time
}

// NewHandler constructs the analytics HTTP handler. pdf may be nil.
func NewHandler(logger *slog.Logger, service SummaryService, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware, pdf PDFRenderer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		rbac:      rbac,
		pdf:       pdf,
		now:       time.Now,
	}
	h.csvPool.New = func() any { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// dashboardView is the data handed to pages/analytics.html.
type dashboardView struct {
	Summary    analytics.Summary
	SalesChart template.HTML
	CanPDF     bool
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.load(w, r)
	if !ok {
		return
	}
	vm := dashboardView{Summary: summary, CanPDF: h.pdf != nil}
	chart, err := SalesChart(summary)
	if err != nil {
		h.logger.Warn("render sales chart", slog.Any("error", err))
	}
	vm.SalesChart = chart

	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       "Analytics",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		User:        rbac.CurrentUser(r.Context()),
		Data:        vm,
	}
	if err := h.templates.Render(w, "pages/analytics.html", data); err != nil {
		h.handleServerError(w, "render template", err)
	}
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.load(w, r)
	if !ok {
		return
	}
	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()
	if err := export.WriteSummaryCSV(buf, summary); err != nil {
		h.handleServerError(w, "write summary csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", h.filename("csv")))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("stream csv", slog.Any("error", err))
	}
}

func (h *Handler) handlePDF(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		http.Error(w, "PDF rendering is not configured", http.StatusServiceUnavailable)
		return
	}
	summary, ok := h.load(w, r)
	if !ok {
		return
	}
	chart, _ := SalesChart(summary)
	html, err := h.templates.RenderString("pages/analytics_report.html", map[string]any{
		"Summary":    summary,
		"SalesChart": chart,
	})
	if err != nil {
		h.handleServerError(w, "render report html", err)
		return
	}
	pdf, err := h.pdf.RenderHTML(r.Context(), html)
	if err != nil {
		h.logger.Error("render analytics pdf", slog.Any("error", err))
		http.Error(w, "Failed to render PDF", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", h.filename("pdf")))
	if _, err := w.Write(pdf); err != nil {
		h.logger.Error("stream pdf", slog.Any("error", err))
	}
}

func (h *Handler) handleSummaryJSON(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	summary, err := h.service.Summary(ctx)
	if err != nil {
		h.logger.Error("analytics summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (analytics.Summary, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	summary, err := h.service.Summary(ctx)
	if err != nil {
		h.handleServerError(w, "load summary", err)
		return analytics.Summary{}, false
	}
	return summary, true
}

func (h *Handler) filename(ext string) string {
	return "inventory-analytics-" + h.now().UTC().Format("2006-01-02") + "." + ext
}

func (h *Handler) handleServerError(w http.ResponseWriter, op string, err error) {
	h.logger.Error("analytics handler", slog.String("op", op), slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// SalesChart draws the monthly sales revenue with the sold count above each
// bar.
func SalesChart(s analytics.Summary) (template.HTML, error) {
	bars := make([]svg.Bar, 0, len(s.SalesByMonth))
	for _, m := range s.SalesByMonth {
		revenue, _ := m.Revenue.Float64()
		bars = append(bars, svg.Bar{Label: m.Label, Value: revenue, Caption: fmt.Sprintf("%d sold", m.Count)})
	}
	if len(bars) == 0 {
		return "", nil
	}
	return svg.Bars(svg.DefaultWidth, svg.DefaultHeight, bars, svg.BarOpts{
		Title:       "Sales by month",
		Description: "Revenue from vehicles sold in each of the last six months",
	})
}
