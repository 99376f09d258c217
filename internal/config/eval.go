package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/interactive.eval/internal/metrics"
	"github.com/banshee-data/interactive.eval/internal/robot"
)

// DefaultConfigPath is the path to the canonical evaluation defaults file.
const DefaultConfigPath = "config/eval.defaults.json"

// Caps applied to the interaction budgets whatever the configuration says.
const (
	MaxTimeCap         = 600 * time.Second
	MaxInteractionsCap = 16
)

// EvalConfig is the root configuration for the evaluation harness. The same
// file drives the local session runner and the evaluation server. Omitted
// fields fall back to the defaults returned by the Get* methods.
type EvalConfig struct {
	// Robot params
	KernelSize      *float64 `json:"kernel_size,omitempty"`
	MaxKernelRadius *float64 `json:"max_kernel_radius,omitempty"`
	MinNbNodes      *int     `json:"min_nb_nodes,omitempty"`
	NbPoints        *int     `json:"nb_points,omitempty"`

	// Evaluation params
	Metric          *string `json:"metric,omitempty"`
	MaxTime         *string `json:"max_time,omitempty"` // duration string like "60s"
	MaxInteractions *int    `json:"max_interactions,omitempty"`
	TimeThreshold   *string `json:"time_threshold,omitempty"`

	// Session params
	Subset      *string `json:"subset,omitempty"`
	DatasetRoot *string `json:"dataset_root,omitempty"`
	Host        *string `json:"host,omitempty"`
	UserKey     *string `json:"user_key,omitempty"`
	Shuffle     *bool   `json:"shuffle,omitempty"`
	ReportDir   *string `json:"report_dir,omitempty"`

	// Server params
	DBPath     *string `json:"db_path,omitempty"`
	ListenAddr *string `json:"listen,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyEvalConfig returns an EvalConfig with all fields set to nil.
func EmptyEvalConfig() *EvalConfig {
	return &EvalConfig{}
}

// DefaultEvalConfig returns a config with every field populated.
func DefaultEvalConfig() *EvalConfig {
	return &EvalConfig{
		KernelSize:      ptrFloat64(0.2),
		MaxKernelRadius: ptrFloat64(16),
		MinNbNodes:      ptrInt(4),
		NbPoints:        ptrInt(1000),
		Metric:          ptrString(string(metrics.JAndF)),
		MaxInteractions: ptrInt(8),
		TimeThreshold:   ptrString("60s"),
		Subset:          ptrString("val"),
		DatasetRoot:     ptrString("data/DAVIS"),
		Host:            ptrString("localhost"),
		Shuffle:         ptrBool(false),
		DBPath:          ptrString("interactive_eval.db"),
		ListenAddr:      ptrString(":8080"),
	}
}

// LoadEvalConfig loads an EvalConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadEvalConfig(path string) (*EvalConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyEvalConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *EvalConfig) Validate() error {
	if c.KernelSize != nil && (*c.KernelSize < 0 || *c.KernelSize >= 1) {
		return fmt.Errorf("kernel_size must be in [0, 1), got %f", *c.KernelSize)
	}
	if c.MaxKernelRadius != nil && *c.MaxKernelRadius <= 0 {
		return fmt.Errorf("max_kernel_radius must be positive, got %f", *c.MaxKernelRadius)
	}
	if c.MinNbNodes != nil && *c.MinNbNodes < 1 {
		return fmt.Errorf("min_nb_nodes must be at least 1, got %d", *c.MinNbNodes)
	}
	if c.NbPoints != nil && (*c.NbPoints < 2 || *c.NbPoints > 1000) {
		return fmt.Errorf("nb_points must be between 2 and 1000, got %d", *c.NbPoints)
	}
	if c.Metric != nil {
		if _, err := metrics.ParseMetric(*c.Metric); err != nil {
			return err
		}
	}
	for name, v := range map[string]*string{"max_time": c.MaxTime, "time_threshold": c.TimeThreshold} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.MaxInteractions != nil && *c.MaxInteractions < 1 {
		return fmt.Errorf("max_interactions must be at least 1, got %d", *c.MaxInteractions)
	}
	return nil
}

// GetKernelSize returns the opening kernel as a fraction of the region size.
func (c *EvalConfig) GetKernelSize() float64 {
	if c.KernelSize == nil {
		return 0.2
	}
	return *c.KernelSize
}

// GetMaxKernelRadius returns the max_kernel_radius value or the default.
func (c *EvalConfig) GetMaxKernelRadius() float64 {
	if c.MaxKernelRadius == nil {
		return 16
	}
	return *c.MaxKernelRadius
}

// GetMinNbNodes returns the min_nb_nodes value or the default.
func (c *EvalConfig) GetMinNbNodes() int {
	if c.MinNbNodes == nil {
		return 4
	}
	return *c.MinNbNodes
}

// GetNbPoints returns the nb_points value or the default.
func (c *EvalConfig) GetNbPoints() int {
	if c.NbPoints == nil {
		return 1000
	}
	return *c.NbPoints
}

// GetMetric returns the metric used to rank frames.
func (c *EvalConfig) GetMetric() metrics.Metric {
	if c.Metric == nil {
		return metrics.JAndF
	}
	m, err := metrics.ParseMetric(*c.Metric)
	if err != nil {
		return metrics.JAndF
	}
	return m
}

// GetMaxTime returns the per-object time budget, capped at MaxTimeCap, or nil
// when no time budget is configured.
func (c *EvalConfig) GetMaxTime() *time.Duration {
	if c.MaxTime == nil || *c.MaxTime == "" {
		return nil
	}
	d, err := time.ParseDuration(*c.MaxTime)
	if err != nil {
		return nil
	}
	d = min(d, MaxTimeCap)
	return &d
}

// GetMaxInteractions returns the interaction budget, capped at
// MaxInteractionsCap, or nil when none is configured.
func (c *EvalConfig) GetMaxInteractions() *int {
	if c.MaxInteractions == nil {
		return nil
	}
	n := min(*c.MaxInteractions, MaxInteractionsCap)
	return &n
}

// GetTimeThreshold returns the time at which the summary samples the metric.
func (c *EvalConfig) GetTimeThreshold() time.Duration {
	if c.TimeThreshold == nil || *c.TimeThreshold == "" {
		return 60 * time.Second
	}
	d, err := time.ParseDuration(*c.TimeThreshold)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetSubset returns the subset value or the default.
func (c *EvalConfig) GetSubset() string {
	if c.Subset == nil {
		return "val"
	}
	return *c.Subset
}

// GetDatasetRoot returns the dataset_root value or the default.
func (c *EvalConfig) GetDatasetRoot() string {
	if c.DatasetRoot == nil {
		return "data/DAVIS"
	}
	return *c.DatasetRoot
}

// GetHost returns the evaluation host; "localhost" selects the local backend.
func (c *EvalConfig) GetHost() string {
	if c.Host == nil {
		return "localhost"
	}
	return *c.Host
}

// GetUserKey returns the user_key value or an empty string.
func (c *EvalConfig) GetUserKey() string {
	if c.UserKey == nil {
		return ""
	}
	return *c.UserKey
}

// GetShuffle returns the shuffle value or the default.
func (c *EvalConfig) GetShuffle() bool {
	if c.Shuffle == nil {
		return false
	}
	return *c.Shuffle
}

// GetReportDir returns the report directory, empty when reports are not saved.
func (c *EvalConfig) GetReportDir() string {
	if c.ReportDir == nil {
		return ""
	}
	return *c.ReportDir
}

// GetDBPath returns the db_path value or the default.
func (c *EvalConfig) GetDBPath() string {
	if c.DBPath == nil {
		return "interactive_eval.db"
	}
	return *c.DBPath
}

// GetListenAddr returns the listen value or the default.
func (c *EvalConfig) GetListenAddr() string {
	if c.ListenAddr == nil {
		return ":8080"
	}
	return *c.ListenAddr
}

// RobotParams returns the scribble robot settings.
func (c *EvalConfig) RobotParams() robot.Params {
	p := robot.DefaultParams()
	p.KernelSize = c.GetKernelSize()
	p.MaxKernelRadius = c.GetMaxKernelRadius()
	p.MinNbNodes = c.GetMinNbNodes()
	p.NbPoints = c.GetNbPoints()
	return p
}
