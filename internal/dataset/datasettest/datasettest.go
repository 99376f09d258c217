// Package datasettest builds small DAVIS checkouts in memory.
package datasettest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/banshee-data/interactive.eval/internal/dataset"
	"github.com/banshee-data/interactive.eval/internal/fsutil"
	"github.com/banshee-data/interactive.eval/internal/mask"
	"github.com/banshee-data/interactive.eval/internal/scribble"
)

// Root is where Write places the checkout.
const Root = "/data/DAVIS"

// Sequence is one fixture sequence with its files.
type Sequence struct {
	Info  dataset.SequenceInfo
	GT    mask.Sequence
	Seeds []*scribble.Scribble
}

// Simple returns a sequence whose objects are vertical bars, one per object,
// with identical frames. Seed scribble i draws a vertical line on frame
// (i-1) mod frames through object 1.
func Simple(name, set string, frames, objects, scribbles, width, height int) Sequence {
	gt := mask.NewSequence(frames, width, height)
	bw := width / (objects + 1)
	for _, m := range gt {
		for k := 1; k <= objects; k++ {
			for y := height / 4; y < 3*height/4; y++ {
				for x := (k-1)*bw + 1; x < k*bw; x++ {
					m.Set(x, y, uint8(k))
				}
			}
		}
	}
	seeds := make([]*scribble.Scribble, scribbles)
	cx := (float64(bw)/2 + 0.5) / float64(width-1)
	for i := range seeds {
		s := scribble.New(name, frames)
		s.Scribbles[i%frames] = []scribble.Line{{
			Path:     [][2]float64{{cx, 0.3}, {cx, 0.5}, {cx, 0.6}},
			ObjectID: 1,
		}}
		seeds[i] = s
	}
	return Sequence{
		Info: dataset.SequenceInfo{
			Name:         name,
			Set:          set,
			NumFrames:    frames,
			NumObjects:   objects,
			NumScribbles: scribbles,
			ImageSize:    [2]int{width, height},
		},
		GT:    gt,
		Seeds: seeds,
	}
}

type registryEntry struct {
	Name         string `json:"name"`
	Set          string `json:"set"`
	NumFrames    int    `json:"num_frames"`
	NumObjects   int    `json:"num_objects"`
	NumScribbles int    `json:"num_scribbles"`
	ImageSize    [2]int `json:"image_size"`
}

// Write stores seqs and their registry under Root in fs.
func Write(t testing.TB, fs fsutil.FileSystem, seqs ...Sequence) {
	t.Helper()
	WriteAt(t, fs, Root, seqs...)
}

// WriteAt stores seqs and their registry under root in fs.
func WriteAt(t testing.TB, fs fsutil.FileSystem, root string, seqs ...Sequence) {
	t.Helper()
	if err := fs.MkdirAll(root, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	entries := make(map[string]registryEntry, len(seqs))
	for _, s := range seqs {
		i := s.Info
		entries[i.Name] = registryEntry{i.Name, i.Set, i.NumFrames, i.NumObjects, i.NumScribbles, i.ImageSize}
		for f, m := range s.GT {
			name := filepath.Join(root, "Annotations", "480p", i.Name, fmt.Sprintf("%05d.png", f))
			put(t, fs, name, EncodePNG(t, m))
		}
		for k, seed := range s.Seeds {
			data, err := json.Marshal(seed)
			if err != nil {
				t.Fatalf("marshal seed: %v", err)
			}
			name := filepath.Join(root, "Scribbles", i.Name, fmt.Sprintf("%03d.json", k+1))
			put(t, fs, name, data)
		}
	}
	data, err := json.Marshal(map[string]any{"sequences": entries})
	if err != nil {
		t.Fatalf("marshal registry: %v", err)
	}
	put(t, fs, filepath.Join(root, dataset.RegistryFile), data)
}

func put(t testing.TB, fs fsutil.FileSystem, name string, data []byte) {
	t.Helper()
	if err := fs.MkdirAll(filepath.Dir(name), 0755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(name), err)
	}
	if err := fs.WriteFile(name, data, 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// Open writes seqs to a fresh memory filesystem and opens the checkout.
func Open(t testing.TB, seqs ...Sequence) (*dataset.Davis, *fsutil.MemoryFileSystem) {
	t.Helper()
	fs := fsutil.NewMemoryFileSystem()
	Write(t, fs, seqs...)
	d, err := dataset.New(Root, nil, dataset.WithFileSystem(fs))
	if err != nil {
		t.Fatalf("open dataset: %v", err)
	}
	return d, fs
}

// EncodePNG encodes m as a paletted PNG whose indices are the labels.
func EncodePNG(t testing.TB, m *mask.LabelMap) []byte {
	t.Helper()
	palette := make(color.Palette, 256)
	for i := range palette {
		palette[i] = color.RGBA{uint8(i), uint8(i * 7), uint8(i * 13), 255}
	}
	img := image.NewPaletted(image.Rect(0, 0, m.Width, m.Height), palette)
	copy(img.Pix, m.Pix)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
