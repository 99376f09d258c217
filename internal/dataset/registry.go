// Package dataset reads the DAVIS ground truth and seed scribbles that the
// evaluation service scores against.
package dataset

import (
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/interactive.eval/internal/fault"
)

// Subset names understood by the registry. TrainVal is the union of Train and
// Val; TestDev sequences only exist on the remote server.
const (
	Train    = "train"
	Val      = "val"
	TrainVal = "trainval"
	TestDev  = "test-dev"
)

// SequenceInfo describes one annotated sequence.
type SequenceInfo struct {
	Name         string `yaml:"name"`
	Set          string `yaml:"set"`
	NumFrames    int    `yaml:"num_frames"`
	NumObjects   int    `yaml:"num_objects"`
	NumScribbles int    `yaml:"num_scribbles"`
	// ImageSize is [width, height].
	ImageSize [2]int `yaml:"image_size"`
}

// Validate checks the counts are usable.
func (s SequenceInfo) Validate() error {
	switch {
	case s.Name == "":
		return fault.Errorf(fault.ErrSetup, "sequence without a name")
	case s.NumFrames < 1:
		return fault.Errorf(fault.ErrSetup, "sequence %s: num_frames must be positive", s.Name)
	case s.NumObjects < 1:
		return fault.Errorf(fault.ErrSetup, "sequence %s: num_objects must be positive", s.Name)
	case s.NumScribbles < 0:
		return fault.Errorf(fault.ErrSetup, "sequence %s: num_scribbles is negative", s.Name)
	case s.ImageSize[0] < 1 || s.ImageSize[1] < 1:
		return fault.Errorf(fault.ErrSetup, "sequence %s: bad image_size %v", s.Name, s.ImageSize)
	}
	return nil
}

// Registry is the immutable catalogue of sequences and the subsets they
// belong to.
type Registry struct {
	sequences map[string]SequenceInfo
	sets      map[string][]string
}

type registryFile struct {
	Sequences map[string]SequenceInfo `yaml:"sequences"`
}

// ParseRegistry decodes a registry document. JSON documents are accepted as
// the YAML subset they are.
func ParseRegistry(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fault.Errorf(fault.ErrSetup, "parse registry: %v", err)
	}
	infos := make([]SequenceInfo, 0, len(f.Sequences))
	for key, info := range f.Sequences {
		if info.Name == "" {
			info.Name = key
		}
		if info.Name != key {
			return nil, fault.Errorf(fault.ErrSetup, "registry key %q names sequence %q", key, info.Name)
		}
		infos = append(infos, info)
	}
	return NewRegistry(infos...)
}

// NewRegistry builds a registry from sequence descriptions.
func NewRegistry(infos ...SequenceInfo) (*Registry, error) {
	r := &Registry{
		sequences: make(map[string]SequenceInfo, len(infos)),
		sets:      make(map[string][]string),
	}
	for _, info := range infos {
		if err := info.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.sequences[info.Name]; dup {
			return nil, fault.Errorf(fault.ErrSetup, "duplicate sequence %s", info.Name)
		}
		r.sequences[info.Name] = info
		r.sets[info.Set] = append(r.sets[info.Set], info.Name)
	}
	for _, names := range r.sets {
		sort.Strings(names)
	}
	return r, nil
}

// Sequence returns the description of name.
func (r *Registry) Sequence(name string) (SequenceInfo, bool) {
	info, ok := r.sequences[name]
	return info, ok
}

// Subset returns the sorted sequence names of a subset.
func (r *Registry) Subset(name string) ([]string, error) {
	var names []string
	if name == TrainVal {
		names = append(slices.Clone(r.sets[Train]), r.sets[Val]...)
		sort.Strings(names)
	} else {
		names = slices.Clone(r.sets[name])
	}
	if len(names) == 0 {
		return nil, fault.Errorf(fault.ErrInvalidInput, "subset %q has no sequences", name)
	}
	return names, nil
}

// Len returns the number of sequences.
func (r *Registry) Len() int { return len(r.sequences) }
