// Package report renders end-of-run count summaries.
package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var labelColors = map[string]color.RGBA{
	"noir":        {R: 30, G: 30, B: 30, A: 255},
	"blanc":       {R: 220, G: 220, B: 220, A: 255},
	"rouge_fonce": {R: 150, G: 20, B: 30, A: 255},
	"bleu_fonce":  {R: 20, G: 40, B: 120, A: 255},
	"bleu_clair":  {R: 110, G: 180, B: 235, A: 255},
	"vert_fonce":  {R: 20, G: 100, B: 40, A: 255},
	"rose":        {R: 235, G: 120, B: 170, A: 255},
	"jaune":       {R: 230, G: 200, B: 20, A: 255},
	"vert_clair":  {R: 120, G: 210, B: 90, A: 255},
}

var defaultBarColor = color.RGBA{R: 110, G: 110, B: 110, A: 255}

// BarColor is the fill used for a label's bar.
func BarColor(label string) color.Color {
	if c, ok := labelColors[label]; ok {
		return c
	}
	return defaultBarColor
}

// WriteCountsPNG draws one bar per label, sorted by label, and saves it to
// path. The file format follows the extension.
func WriteCountsPNG(path string, totals map[string]int, title string) error {
	if len(totals) == 0 {
		return fmt.Errorf("no counts to plot")
	}
	labels := make([]string, 0, len(totals))
	for label := range totals {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Crossings"
	p.Y.Min = 0

	w := vg.Points(24)
	for i, label := range labels {
		values := make(plotter.Values, len(labels))
		values[i] = float64(totals[label])
		bars, err := plotter.NewBarChart(values, w)
		if err != nil {
			return fmt.Errorf("bar %s: %w", label, err)
		}
		bars.Color = BarColor(label)
		bars.LineStyle.Width = vg.Length(0)
		p.Add(bars)
	}
	p.NominalX(labels...)
	p.Add(plotter.NewGrid())

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	width := vg.Length(len(labels)) * vg.Inch
	if width < 6*vg.Inch {
		width = 6 * vg.Inch
	}
	if err := p.Save(width, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save counts plot: %w", err)
	}
	return nil
}
