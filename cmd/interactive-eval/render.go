package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/banshee-data/interactive.eval/internal/dataset"
	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/report"
	"github.com/banshee-data/interactive.eval/internal/scribble"
	"github.com/banshee-data/interactive.eval/internal/security"
)

type renderOptions struct {
	datasetRoot string
	outDir      string
	bezier      int
	sparse      bool
	points      bool
}

func newRenderCmd(a *app) *cobra.Command {
	var o renderOptions
	cmd := &cobra.Command{
		Use:   "render SEQUENCE INDEX",
		Short: "Draw a seed scribble over the ground truth",
		Long: `Render loads seed scribble INDEX of SEQUENCE, lists the frames each object is
annotated on and writes one PNG per annotated frame with the strokes drawn
over the ground truth. With --points the path points are printed as CSV.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[1])
			if err != nil {
				return fault.Errorf(fault.ErrUsage, "scribble index %q is not a number", args[1])
			}
			return a.render(cmd, o, args[0], idx)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.datasetRoot, "dataset-root", "", "DAVIS checkout (default from config)")
	f.StringVar(&o.outDir, "out-dir", "", "directory for the overlay PNGs (none when empty)")
	f.IntVar(&o.bezier, "bezier", 0, "resample each path with this many Bézier points")
	f.BoolVar(&o.sparse, "sparse", false, "draw only the path points instead of joined lines")
	f.BoolVar(&o.points, "points", false, "print path points as CSV")
	return cmd
}

func (a *app) render(cmd *cobra.Command, o renderOptions, sequence string, idx int) error {
	ds, err := dataset.New(orDefault(o.datasetRoot, a.cfg.GetDatasetRoot()), nil)
	if err != nil {
		return err
	}
	info, ok := ds.Registry().Sequence(sequence)
	if !ok {
		return fault.Errorf(fault.ErrInvalidInput, "unknown sequence %s", sequence)
	}
	s, err := ds.LoadSeedScribble(sequence, idx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for id := 1; id <= info.NumObjects; id++ {
		fmt.Fprintf(out, "object %d: frames %v\n", id, s.AnnotatedFramesObject(id))
	}

	width, height := info.ImageSize[0], info.ImageSize[1]
	if o.points {
		w := csv.NewWriter(out)
		if err := w.Write([]string{"frame", "object_id", "x", "y"}); err != nil {
			return err
		}
		for _, p := range scribble.ToPoints(s, width, height) {
			rec := []string{strconv.Itoa(p.Frame), strconv.Itoa(p.ObjectID),
				strconv.FormatFloat(p.X, 'g', -1, 64), strconv.FormatFloat(p.Y, 'g', -1, 64)}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}
	}
	if o.outDir == "" {
		return nil
	}

	opts := scribble.DefaultMaskOptions()
	opts.BezierPoints = o.bezier
	opts.Bresenham = !o.sparse
	strokes, err := scribble.ToMask(s, width, height, opts)
	if err != nil {
		return err
	}
	gt, err := ds.LoadGroundTruth(sequence)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(o.outDir, 0o755); err != nil {
		return fault.Errorf(fault.ErrSetup, "%v", err)
	}
	for _, frame := range s.AnnotatedFrames() {
		path, err := security.ReportPath(o.outDir, fmt.Sprintf("%s_%03d_%05d.png", sequence, idx, frame))
		if err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return fault.Errorf(fault.ErrSetup, "%v", err)
		}
		err = report.OverlayPNG(f, gt[frame], strokes[frame])
		if err = multierr.Append(err, f.Close()); err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
	}
	return nil
}
