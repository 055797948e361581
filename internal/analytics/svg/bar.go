package svg

import (
	"fmt"
	"html/template"
	"math"
	"strings"
)

// Bars renders a single-series column chart. Negative values are clamped to
// zero.
func Bars(width, height int, bars []Bar, opts BarOpts) (template.HTML, error) {
	if len(bars) == 0 {
		return "", fmt.Errorf("svg: at least one bar required")
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	padding := opts.Padding
	if padding <= 0 {
		padding = DefaultPadding
	}
	ticks := opts.TickCount
	if ticks <= 0 {
		ticks = DefaultTicks
	}
	axis := fallback(opts.AxisColor, "#475569")
	grid := fallback(opts.GridColor, "#cbd5e1")
	color := fallback(opts.Color, "#2563eb")

	plotW := float64(width) - 2*padding
	plotH := float64(height) - 2*padding
	if plotW <= 0 || plotH <= 0 {
		return "", fmt.Errorf("svg: viewport too small")
	}

	maxVal := 0.0
	for _, b := range bars {
		maxVal = math.Max(maxVal, b.Value)
	}
	if maxVal <= 0 {
		maxVal = 1
	}
	maxVal = niceCeil(maxVal)
	bottom := padding + plotH
	slot := plotW / float64(len(bars))
	barW := slot * 0.6

	titleID := makeID(opts.Title, "title")
	descID := makeID(opts.Title, "desc")

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" role="img" aria-labelledby="%s %s">`, width, height, titleID, descID)
	fmt.Fprintf(&b, `<title id="%s">%s</title>`, titleID, template.HTMLEscapeString(fallback(opts.Title, "Bar chart")))
	fmt.Fprintf(&b, `<desc id="%s">%s</desc>`, descID, template.HTMLEscapeString(fallback(opts.Description, "Column chart")))

	for i := 0; i <= ticks; i++ {
		ratio := float64(i) / float64(ticks)
		y := bottom - ratio*plotH
		fmt.Fprintf(&b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="%s" stroke-width="0.5" stroke-dasharray="2,4" aria-hidden="true"></line>`, padding, y, padding+plotW, y, grid)
		fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10" text-anchor="end">%s</text>`, padding-6, y+4, axis, FormatTick(maxVal*ratio))
	}
	fmt.Fprintf(&b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="%s" stroke-width="1"></line>`, padding, bottom, padding+plotW, bottom, axis)

	for i, bar := range bars {
		value := math.Max(bar.Value, 0)
		h := value / maxVal * plotH
		x := padding + float64(i)*slot + (slot-barW)/2
		y := bottom - h
		label := template.HTMLEscapeString(bar.Label)
		fmt.Fprintf(&b, `<rect x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="%s" rx="2"><title>%s: %s</title></rect>`, x, y, barW, h, color, label, FormatTick(value))
		if bar.Caption != "" {
			fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10" text-anchor="middle">%s</text>`, x+barW/2, y-4, axis, template.HTMLEscapeString(bar.Caption))
		}
		fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10" text-anchor="middle">%s</text>`, x+barW/2, bottom+14, axis, label)
	}

	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}

// niceCeil rounds v up to 1, 2 or 5 times a power of ten so tick labels stay
// readable.
func niceCeil(v float64) float64 {
	exp := math.Pow(10, math.Floor(math.Log10(v)))
	for _, m := range []float64{1, 2, 5, 10} {
		if v <= m*exp {
			return m * exp
		}
	}
	return 10 * exp
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func makeID(base, suffix string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, strings.ToLower(strings.TrimSpace(base)))
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		cleaned = "chart"
	}
	return cleaned + "-" + suffix
}

// FormatTick abbreviates large amounts, e.g. 2500000 becomes "2.5M".
func FormatTick(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1_000_000_000:
		return trimZero(fmt.Sprintf("%.1f", v/1_000_000_000)) + "B"
	case abs >= 1_000_000:
		return trimZero(fmt.Sprintf("%.1f", v/1_000_000)) + "M"
	case abs >= 1_000:
		return trimZero(fmt.Sprintf("%.1f", v/1_000)) + "k"
	case math.Abs(v-math.Round(v)) < 1e-9:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

func trimZero(s string) string {
	return strings.TrimSuffix(s, ".0")
}
