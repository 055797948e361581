package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/daya-auto/carsale/internal/shared"
	"github.com/daya-auto/carsale/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
	money     shared.MoneyFormatter
}

// CurrentUser is the signed-in account as seen by templates.
type CurrentUser struct {
	ID          int64
	Email       string
	DisplayName string
	IsAdmin     bool
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	User        *CurrentUser
	Data        any
}

// Option customises the engine.
type Option func(*Engine)

// WithCurrency sets the ISO 4217 code used by the money helper.
func WithCurrency(code string) Option {
	return func(e *Engine) {
		e.money = shared.NewMoneyFormatter(code)
	}
}

// NewEngine parses the embedded templates.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{money: shared.NewMoneyFormatter("LKR")}
	for _, opt := range opts {
		opt(e)
	}
	tpl, err := template.New("root").Funcs(e.funcMap()).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	e.templates = tpl
	return e, nil
}

// Render executes a named template with a 200 status.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus executes a named template into a buffer and writes it with
// status, so a failing template never produces a half-written page.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil || e.templates == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// RenderString executes name and returns the markup, used for PDF documents.
func (e *Engine) RenderString(name string, data any) (string, error) {
	if e == nil || e.templates == nil {
		return "", fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Money formats amount with the configured currency.
func (e *Engine) Money(amount any) string {
	return e.money.Format(toFloat(amount))
}

func (e *Engine) funcMap() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"formatDay": formatDay,
		"inputDate": func(t *time.Time) string {
			if t == nil || t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02")
		},
		"money":   e.Money,
		"amount":  func(v any) string { return fmt.Sprintf("%.2f", toFloat(v)) },
		"inputAmount": func(v any) string {
			f := toFloat(v)
			if f == 0 {
				return ""
			}
			return fmt.Sprintf("%.2f", f)
		},
		"percent": func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
		"title": func(s string) string {
			if s == "" {
				return s
			}
			return strings.ToUpper(s[:1]) + s[1:]
		},
		"isNegative": func(v any) bool { return toFloat(v) < 0 },
		"active": func(current, prefix string) bool {
			if prefix == "/" {
				return current == "/"
			}
			return strings.HasPrefix(current, prefix)
		},
		"add":   func(a, b int) int { return a + b },
		"seq":   seq,
		"query": func(v url.Values) string { return v.Encode() },
		"withParam": func(v url.Values, key, value string) string {
			out := url.Values{}
			for k, vals := range v {
				out[k] = append([]string(nil), vals...)
			}
			out.Set(key, value)
			return out.Encode()
		},
		"stars": func(n int) string {
			if n < 0 {
				n = 0
			}
			if n > 5 {
				n = 5
			}
			return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
		},
	}
}

func formatDay(v any) string {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format("02 Jan 2006")
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return t.Format("02 Jan 2006")
	}
	return ""
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case decimal.Decimal:
		return val.InexactFloat64()
	case *decimal.Decimal:
		if val == nil {
			return 0
		}
		return val.InexactFloat64()
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return 0
	}
}
