package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/banshee-data/interactive.eval/internal/dataset"
	"github.com/banshee-data/interactive.eval/internal/evaluation"
	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/fsutil"
	"github.com/banshee-data/interactive.eval/internal/report"
	"github.com/banshee-data/interactive.eval/internal/security"
)

type summarizeOptions struct {
	datasetRoot string
	registry    string
	subset      string
	outDir      string
}

func newSummarizeCmd(a *app) *cobra.Command {
	var o summarizeOptions
	cmd := &cobra.Command{
		Use:   "summarize REPORT.csv...",
		Short: "Summarize session reports into curves and charts",
		Long: `Summarize reads session report CSV files and prints one JSON summary per
file. With --out-dir it also writes a PNG curve per report and a chart.html
comparing all of them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.summarize(cmd, o, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.datasetRoot, "dataset-root", "", "DAVIS checkout holding the registry (default from config)")
	f.StringVar(&o.registry, "registry", "", "registry file, instead of the one in the dataset root")
	f.StringVar(&o.subset, "subset", "", "subset the reports cover (default from config)")
	f.StringVar(&o.outDir, "out-dir", "", "directory for PNG curves and chart.html")
	return cmd
}

type fileSummary struct {
	File string `json:"file"`
	*evaluation.Summary
}

func (a *app) registry(o summarizeOptions) (*dataset.Registry, error) {
	if o.registry != "" {
		return dataset.LoadRegistry(fsutil.OSFileSystem{}, o.registry)
	}
	ds, err := dataset.New(orDefault(o.datasetRoot, a.cfg.GetDatasetRoot()), nil)
	if err != nil {
		return nil, err
	}
	return ds.Registry(), nil
}

func (a *app) summarize(cmd *cobra.Command, o summarizeOptions, files []string) error {
	reg, err := a.registry(o)
	if err != nil {
		return err
	}
	samples, err := evaluation.SamplesFor(reg, orDefault(o.subset, a.cfg.GetSubset()))
	if err != nil {
		return err
	}
	z := &evaluation.Summarizer{
		Samples:         samples,
		MaxTime:         a.cfg.GetMaxTime(),
		MaxInteractions: a.cfg.GetMaxInteractions(),
		Metric:          a.cfg.GetMetric(),
		TimeThreshold:   a.cfg.GetTimeThreshold(),
	}
	if z.MaxTime, z.MaxInteractions, err = evaluation.Budgets(z.MaxTime, z.MaxInteractions); err != nil {
		return err
	}

	var (
		out    []fileSummary
		curves []report.NamedCurve
	)
	for _, file := range files {
		sum, err := summarizeFile(z, file)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		out = append(out, fileSummary{File: file, Summary: sum})
		curves = append(curves, report.NamedCurve{Name: name, Curve: sum.Curve})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if o.outDir == "" {
		return nil
	}
	return writeCharts(o.outDir, curves)
}

func summarizeFile(z *evaluation.Summarizer, path string) (*evaluation.Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Errorf(fault.ErrSetup, "%v", err)
	}
	defer f.Close()
	rows, err := report.ReadCSV(f)
	if err != nil {
		return nil, err
	}
	return z.Summarize(rows)
}

// writeCharts writes <name>.png per curve and chart.html with all of them.
func writeCharts(dir string, curves []report.NamedCurve) (err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fault.Errorf(fault.ErrSetup, "%v", err)
	}
	create := func(name string) (*os.File, error) {
		path, err := security.ReportPath(dir, name)
		if err != nil {
			return nil, err
		}
		return os.Create(path)
	}

	for _, nc := range curves {
		f, err := create(nc.Name + ".png")
		if err != nil {
			return err
		}
		err = report.PlotPNG(f, nc.Name, nc.Curve)
		if err = multierr.Append(err, f.Close()); err != nil {
			return fmt.Errorf("plot %s: %w", nc.Name, err)
		}
	}

	f, err := create("chart.html")
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	return report.ChartHTML(f, "Interactive evaluation", curves)
}
