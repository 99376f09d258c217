package dataset

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/fsutil"
	"github.com/banshee-data/interactive.eval/internal/mask"
	"github.com/banshee-data/interactive.eval/internal/monitoring"
	"github.com/banshee-data/interactive.eval/internal/scribble"
)

const (
	annotationsDir = "Annotations"
	scribblesDir   = "Scribbles"
	resolution     = "480p"
	// RegistryFile is the registry name looked up under the dataset root.
	RegistryFile = "davis.json"

	checkWorkers = 8
)

// Davis reads one DAVIS checkout.
type Davis struct {
	root string
	fs   fsutil.FileSystem
	reg  *Registry
}

// Option configures a Davis.
type Option func(*Davis)

// WithFileSystem replaces the OS filesystem.
func WithFileSystem(fs fsutil.FileSystem) Option {
	return func(d *Davis) { d.fs = fs }
}

// New opens the dataset rooted at root. The root must be an existing
// directory.
func New(root string, reg *Registry, opts ...Option) (*Davis, error) {
	d := &Davis{root: root, fs: fsutil.OSFileSystem{}, reg: reg}
	for _, o := range opts {
		o(d)
	}
	if root == "" {
		return nil, fault.Errorf(fault.ErrSetup, "dataset root not specified")
	}
	if info, err := d.fs.Stat(root); err != nil || !info.IsDir() {
		return nil, fault.Errorf(fault.ErrSetup, "dataset root %s is not a directory", root)
	}
	if reg == nil {
		r, err := LoadRegistry(d.fs, filepath.Join(root, RegistryFile))
		if err != nil {
			return nil, err
		}
		d.reg = r
	}
	return d, nil
}

// LoadRegistry reads and parses a registry file.
func LoadRegistry(fs fsutil.FileSystem, path string) (*Registry, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fault.Errorf(fault.ErrSetup, "read registry: %v", err)
	}
	return ParseRegistry(data)
}

// Registry returns the sequence catalogue.
func (d *Davis) Registry() *Registry { return d.reg }

func (d *Davis) info(sequence string) (SequenceInfo, error) {
	info, ok := d.reg.Sequence(sequence)
	if !ok {
		return SequenceInfo{}, fault.Errorf(fault.ErrInvalidInput, "unknown sequence %q", sequence)
	}
	return info, nil
}

func (d *Davis) annotationPath(sequence string, frame int) string {
	return filepath.Join(d.root, annotationsDir, resolution, sequence, fmt.Sprintf("%05d.png", frame))
}

func (d *Davis) scribblePath(sequence string, idx int) string {
	return filepath.Join(d.root, scribblesDir, sequence, fmt.Sprintf("%03d.json", idx))
}

// LoadGroundTruth decodes every annotation frame of sequence. Palette
// indices are object ids.
func (d *Davis) LoadGroundTruth(sequence string) (mask.Sequence, error) {
	info, err := d.info(sequence)
	if err != nil {
		return nil, err
	}
	out := make(mask.Sequence, info.NumFrames)
	for f := range out {
		m, err := d.loadFrame(d.annotationPath(sequence, f))
		if err != nil {
			return nil, err
		}
		if m.Width != info.ImageSize[0] || m.Height != info.ImageSize[1] {
			return nil, fmt.Errorf("%w: %s frame %d is %dx%d, registry says %dx%d",
				fault.ErrSetup, sequence, f, m.Width, m.Height, info.ImageSize[0], info.ImageSize[1])
		}
		out[f] = m
	}
	monitoring.Diagf("loaded annotations for %s: %d frames %dx%d", sequence, info.NumFrames, info.ImageSize[0], info.ImageSize[1])
	return out, nil
}

func (d *Davis) loadFrame(path string) (*mask.LabelMap, error) {
	f, err := d.fs.Open(path)
	if err != nil {
		return nil, fault.Errorf(fault.ErrSetup, "open annotation: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fault.Errorf(fault.ErrSetup, "decode %s: %v", path, err)
	}
	return labelMap(img)
}

// labelMap copies the label indices out of a palette or grey image.
func labelMap(img image.Image) (*mask.LabelMap, error) {
	b := img.Bounds()
	m := mask.NewLabelMap(b.Dx(), b.Dy())
	switch src := img.(type) {
	case *image.Paletted:
		for y := 0; y < m.Height; y++ {
			copy(m.Pix[y*m.Width:(y+1)*m.Width], src.Pix[y*src.Stride:y*src.Stride+m.Width])
		}
	case *image.Gray:
		for y := 0; y < m.Height; y++ {
			copy(m.Pix[y*m.Width:(y+1)*m.Width], src.Pix[y*src.Stride:y*src.Stride+m.Width])
		}
	default:
		return nil, fault.Errorf(fault.ErrSetup, "annotation has colour model %T, want paletted or grey", img)
	}
	return m, nil
}

// LoadSeedScribble reads the pre-authored scribble idx of sequence.
func (d *Davis) LoadSeedScribble(sequence string, idx int) (*scribble.Scribble, error) {
	info, err := d.info(sequence)
	if err != nil {
		return nil, err
	}
	if idx < 1 || idx > info.NumScribbles {
		return nil, fault.Errorf(fault.ErrInvalidInput, "scribble index %d out of range [1, %d] for %s", idx, info.NumScribbles, sequence)
	}
	path := d.scribblePath(sequence, idx)
	f, err := d.fs.Open(path)
	if err != nil {
		return nil, fault.Errorf(fault.ErrSetup, "open scribble: %v", err)
	}
	defer f.Close()
	s, err := scribble.Decode(f)
	if err != nil {
		return nil, fault.Errorf(fault.ErrSetup, "%s: %v", path, err)
	}
	if s.Sequence != sequence {
		return nil, fault.Errorf(fault.ErrSetup, "%s belongs to sequence %q", path, s.Sequence)
	}
	if len(s.Scribbles) != info.NumFrames {
		return nil, fault.Errorf(fault.ErrSetup, "%s has %d frames, want %d", path, len(s.Scribbles), info.NumFrames)
	}
	monitoring.Diagf("loaded scribble %03d for %s", idx, sequence)
	return s, nil
}

// CheckFiles verifies every annotation and seed scribble of sequences is
// present. All missing files are reported together.
func (d *Davis) CheckFiles(ctx context.Context, sequences []string) error {
	var (
		mu      sync.Mutex
		missing error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(checkWorkers)
	for _, seq := range sequences {
		g.Go(func() error {
			info, err := d.info(seq)
			if err != nil {
				return err
			}
			var errs error
			for i := 1; i <= info.NumScribbles; i++ {
				if p := d.scribblePath(seq, i); !d.fs.Exists(p) {
					errs = multierr.Append(errs, fmt.Errorf("scribble file not found for %s scribble %d: %s", seq, i, p))
				}
			}
			for f := 0; f < info.NumFrames; f++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if p := d.annotationPath(seq, f); !d.fs.Exists(p) {
					errs = multierr.Append(errs, fmt.Errorf("annotation file not found for %s frame %d: %s", seq, f, p))
				}
			}
			mu.Lock()
			missing = multierr.Append(missing, errs)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if missing != nil {
		n := len(multierr.Errors(missing))
		monitoring.Opsf("dataset check found %d missing files", n)
		return fmt.Errorf("%w: %d missing files: %w", fault.ErrSetup, n, missing)
	}
	monitoring.Opsf("dataset check passed for %d sequences", len(sequences))
	return nil
}
