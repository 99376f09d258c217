package report

import (
	"bytes"
	"fmt"
	"image/color"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Curve is a metric plotted against accumulated interaction time.
type Curve struct {
	Metric string    `json:"metric"`
	Time   []float64 `json:"time"`
	Values []float64 `json:"values"`
}

// Validate checks the axes line up.
func (c Curve) Validate() error {
	if len(c.Time) != len(c.Values) {
		return fmt.Errorf("curve has %d times and %d values", len(c.Time), len(c.Values))
	}
	if len(c.Time) == 0 {
		return fmt.Errorf("curve is empty")
	}
	return nil
}

// PlotPNG renders c as a PNG line plot.
func PlotPNG(w io.Writer, title string, c Curve) error {
	if err := c.Validate(); err != nil {
		return err
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Accumulated time (s)"
	p.Y.Label.Text = c.Metric
	p.Y.Min = 0
	p.Y.Max = 1

	pts := make(plotter.XYs, len(c.Time))
	for i := range c.Time {
		pts[i] = plotter.XY{X: c.Time[i], Y: c.Values[i]}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 38, G: 130, B: 142, A: 255}
	line.Width = vg.Points(1.5)
	marks, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	marks.Color = line.Color
	p.Add(plotter.NewGrid(), line, marks)

	wt, err := p.WriterTo(8*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// NamedCurve labels a curve in a multi-series chart.
type NamedCurve struct {
	Name  string
	Curve Curve
}

// ChartHTML renders curves as one interactive line chart.
func ChartHTML(w io.Writer, title string, curves []NamedCurve) error {
	line := charts.NewLine()
	metric := ""
	if len(curves) > 0 {
		metric = curves[0].Curve.Metric
	}
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "960px", Height: "540px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d sessions", len(curves))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Accumulated time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: metric, Min: 0, Max: 1}),
	)
	for _, nc := range curves {
		if err := nc.Curve.Validate(); err != nil {
			return fmt.Errorf("%s: %w", nc.Name, err)
		}
		data := make([]opts.LineData, len(nc.Curve.Time))
		for i := range nc.Curve.Time {
			data[i] = opts.LineData{Value: []interface{}{nc.Curve.Time[i], nc.Curve.Values[i]}}
		}
		line.AddSeries(nc.Name, data)
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
