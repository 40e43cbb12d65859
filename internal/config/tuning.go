package config

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// Tracker strategy names accepted by tracker_strategy.
const (
	StrategyCentroid = "centroid"
	StrategyIoU      = "iou"
	StrategyExternal = "external"
)

// Classification modes accepted by classification_mode.
const (
	ModeColor  = "color"
	ModeNumber = "number"
)

// TuningConfig is the root configuration for the counter. Every field is
// optional; the Get* accessors supply defaults for anything left unset so
// partial files are safe.
type TuningConfig struct {
	// Video params
	OutputWidth  *int    `json:"output_width,omitempty"`
	OutputHeight *int    `json:"output_height,omitempty"`
	MaskPath     *string `json:"mask_path,omitempty"`
	LineStart    *[2]int `json:"line_start,omitempty"`
	LineEnd      *[2]int `json:"line_end,omitempty"`

	// Chart params
	ChartRows            *int     `json:"chart_rows,omitempty"`
	ChartCols            *int     `json:"chart_cols,omitempty"`
	MinChartArea         *float64 `json:"min_chart_area,omitempty"`
	PatchMinSize         *int     `json:"patch_min_size,omitempty"`
	PatchInsetX          *int     `json:"patch_inset_x,omitempty"`
	PatchInsetY          *int     `json:"patch_inset_y,omitempty"`
	RowTolerance         *int     `json:"row_tolerance,omitempty"`
	FingerprintTolerance *float64 `json:"fingerprint_tolerance,omitempty"`

	// Calibration params
	CalibrationInterval *int  `json:"calibration_interval,omitempty"`
	DetectChart         *bool `json:"detect_chart,omitempty"`

	// Detection params
	MinConfidence *float64 `json:"min_confidence,omitempty"`

	// Tracker params
	TrackerStrategy    *string  `json:"tracker_strategy,omitempty"`
	MaxDistance        *float64 `json:"max_distance,omitempty"`
	MinIoU             *float64 `json:"min_iou,omitempty"`
	MaxDisappearFrames *int     `json:"max_disappear_frames,omitempty"`
	TrajectoryLength   *int     `json:"trajectory_length,omitempty"`

	// Classification params
	ClassificationMode   *string  `json:"classification_mode,omitempty"`
	MinTimeBetweenPasses *string  `json:"min_time_between_passes,omitempty"` // duration string like "50s"
	MinColorWeight       *float64 `json:"min_color_weight,omitempty"`
	MinPixelRatio        *float64 `json:"min_pixel_ratio,omitempty"`
	MinPixelCount        *int     `json:"min_pixel_count,omitempty"`
	MinNumberConfidence  *float64 `json:"min_number_confidence,omitempty"`
	ROIExpansion         *float64 `json:"roi_expansion,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded; intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/storage/sqlite/
		"../../../../" + DefaultConfigPath,    // deeper packages
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.OutputWidth != nil && *c.OutputWidth <= 0 {
		return fmt.Errorf("output_width must be positive, got %d", *c.OutputWidth)
	}
	if c.OutputHeight != nil && *c.OutputHeight <= 0 {
		return fmt.Errorf("output_height must be positive, got %d", *c.OutputHeight)
	}

	if c.ChartRows != nil && *c.ChartRows < 1 {
		return fmt.Errorf("chart_rows must be >= 1, got %d", *c.ChartRows)
	}
	// Uniform x-spacing needs at least two columns.
	if c.ChartCols != nil && *c.ChartCols < 2 {
		return fmt.Errorf("chart_cols must be >= 2, got %d", *c.ChartCols)
	}

	if c.RowTolerance != nil && *c.RowTolerance <= 0 {
		return fmt.Errorf("row_tolerance must be positive, got %d", *c.RowTolerance)
	}
	if c.PatchInsetX != nil && *c.PatchInsetX < 0 {
		return fmt.Errorf("patch_inset_x must be non-negative, got %d", *c.PatchInsetX)
	}
	if c.PatchInsetY != nil && *c.PatchInsetY < 0 {
		return fmt.Errorf("patch_inset_y must be non-negative, got %d", *c.PatchInsetY)
	}

	if c.CalibrationInterval != nil && *c.CalibrationInterval < 1 {
		return fmt.Errorf("calibration_interval must be >= 1, got %d", *c.CalibrationInterval)
	}

	if c.MinConfidence != nil && (*c.MinConfidence < 0 || *c.MinConfidence > 1) {
		return fmt.Errorf("min_confidence must be between 0 and 1, got %f", *c.MinConfidence)
	}

	if c.TrackerStrategy != nil {
		switch *c.TrackerStrategy {
		case StrategyCentroid, StrategyIoU, StrategyExternal:
		default:
			return fmt.Errorf("unknown tracker_strategy %q", *c.TrackerStrategy)
		}
	}
	if c.MaxDistance != nil && *c.MaxDistance <= 0 {
		return fmt.Errorf("max_distance must be positive, got %f", *c.MaxDistance)
	}
	if c.MinIoU != nil && (*c.MinIoU < 0 || *c.MinIoU > 1) {
		return fmt.Errorf("min_iou must be between 0 and 1, got %f", *c.MinIoU)
	}
	if c.MaxDisappearFrames != nil && *c.MaxDisappearFrames < 0 {
		return fmt.Errorf("max_disappear_frames must be non-negative, got %d", *c.MaxDisappearFrames)
	}
	if c.TrajectoryLength != nil && *c.TrajectoryLength < 2 {
		return fmt.Errorf("trajectory_length must be >= 2, got %d", *c.TrajectoryLength)
	}

	if c.ClassificationMode != nil {
		switch *c.ClassificationMode {
		case ModeColor, ModeNumber:
		default:
			return fmt.Errorf("unknown classification_mode %q", *c.ClassificationMode)
		}
	}
	if c.MinTimeBetweenPasses != nil && *c.MinTimeBetweenPasses != "" {
		d, err := time.ParseDuration(*c.MinTimeBetweenPasses)
		if err != nil {
			return fmt.Errorf("invalid min_time_between_passes '%s': %w", *c.MinTimeBetweenPasses, err)
		}
		if d <= 0 {
			return fmt.Errorf("min_time_between_passes must be positive, got %s", d)
		}
	}
	if c.MinColorWeight != nil && (*c.MinColorWeight < 0 || *c.MinColorWeight > 1) {
		return fmt.Errorf("min_color_weight must be between 0 and 1, got %f", *c.MinColorWeight)
	}
	if c.MinPixelRatio != nil && (*c.MinPixelRatio < 0 || *c.MinPixelRatio > 1) {
		return fmt.Errorf("min_pixel_ratio must be between 0 and 1, got %f", *c.MinPixelRatio)
	}

	return nil
}

// GetOutputWidth returns the output_width value or the default.
func (c *TuningConfig) GetOutputWidth() int {
	if c.OutputWidth == nil {
		return 1280
	}
	return *c.OutputWidth
}

// GetOutputHeight returns the output_height value or the default.
func (c *TuningConfig) GetOutputHeight() int {
	if c.OutputHeight == nil {
		return 720
	}
	return *c.OutputHeight
}

// GetMaskPath returns the detection-zone mask path, or "" when unset.
func (c *TuningConfig) GetMaskPath() string {
	if c.MaskPath == nil {
		return ""
	}
	return *c.MaskPath
}

// GetCountingLine returns the counting line endpoints. The default runs the
// full output width, 10px above the bottom edge.
func (c *TuningConfig) GetCountingLine() (image.Point, image.Point) {
	y := c.GetOutputHeight() - 10
	start := image.Pt(0, y)
	end := image.Pt(c.GetOutputWidth(), y)
	if c.LineStart != nil {
		start = image.Pt(c.LineStart[0], c.LineStart[1])
	}
	if c.LineEnd != nil {
		end = image.Pt(c.LineEnd[0], c.LineEnd[1])
	}
	return start, end
}

// GetChartRows returns the chart_rows value or the default.
func (c *TuningConfig) GetChartRows() int {
	if c.ChartRows == nil {
		return 4
	}
	return *c.ChartRows
}

// GetChartCols returns the chart_cols value or the default.
func (c *TuningConfig) GetChartCols() int {
	if c.ChartCols == nil {
		return 6
	}
	return *c.ChartCols
}

// GetMinChartArea returns the min_chart_area value or the default.
func (c *TuningConfig) GetMinChartArea() float64 {
	if c.MinChartArea == nil {
		return 1000
	}
	return *c.MinChartArea
}

// GetPatchMinSize returns the patch_min_size value or the default.
func (c *TuningConfig) GetPatchMinSize() int {
	if c.PatchMinSize == nil {
		return 10
	}
	return *c.PatchMinSize
}

// GetPatchInset returns the horizontal and vertical patch insets.
func (c *TuningConfig) GetPatchInset() (int, int) {
	x, y := 5, 20
	if c.PatchInsetX != nil {
		x = *c.PatchInsetX
	}
	if c.PatchInsetY != nil {
		y = *c.PatchInsetY
	}
	return x, y
}

// GetRowTolerance returns the row_tolerance value or the default.
func (c *TuningConfig) GetRowTolerance() int {
	if c.RowTolerance == nil {
		return 20
	}
	return *c.RowTolerance
}

// GetFingerprintTolerance returns the fingerprint_tolerance value or the default.
func (c *TuningConfig) GetFingerprintTolerance() float64 {
	if c.FingerprintTolerance == nil {
		return 0.25
	}
	return *c.FingerprintTolerance
}

// GetCalibrationInterval returns the calibration_interval value or the default.
func (c *TuningConfig) GetCalibrationInterval() int {
	if c.CalibrationInterval == nil {
		return 300
	}
	return *c.CalibrationInterval
}

// GetDetectChart reports whether the chart should be re-detected on every
// calibration instead of reusing the cached patch layout.
func (c *TuningConfig) GetDetectChart() bool {
	if c.DetectChart == nil {
		return false
	}
	return *c.DetectChart
}

// GetMinConfidence returns the min_confidence value or the default.
func (c *TuningConfig) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return 0.5
	}
	return *c.MinConfidence
}

// GetTrackerStrategy returns the tracker_strategy value or the default.
func (c *TuningConfig) GetTrackerStrategy() string {
	if c.TrackerStrategy == nil {
		return StrategyCentroid
	}
	return *c.TrackerStrategy
}

// GetMaxDistance returns the max_distance value or the default.
func (c *TuningConfig) GetMaxDistance() float64 {
	if c.MaxDistance == nil {
		return 70
	}
	return *c.MaxDistance
}

// GetMinIoU returns the min_iou value or the default.
func (c *TuningConfig) GetMinIoU() float64 {
	if c.MinIoU == nil {
		return 0.3
	}
	return *c.MinIoU
}

// GetMaxDisappearFrames returns the max_disappear_frames value or the default.
func (c *TuningConfig) GetMaxDisappearFrames() int {
	if c.MaxDisappearFrames == nil {
		return 30
	}
	return *c.MaxDisappearFrames
}

// GetTrajectoryLength returns the trajectory_length value or the default.
func (c *TuningConfig) GetTrajectoryLength() int {
	if c.TrajectoryLength == nil {
		return 30
	}
	return *c.TrajectoryLength
}

// GetClassificationMode returns the classification_mode value or the default.
func (c *TuningConfig) GetClassificationMode() string {
	if c.ClassificationMode == nil {
		return ModeColor
	}
	return *c.ClassificationMode
}

// GetMinTimeBetweenPasses parses and returns MinTimeBetweenPasses.
func (c *TuningConfig) GetMinTimeBetweenPasses() time.Duration {
	if c.MinTimeBetweenPasses == nil || *c.MinTimeBetweenPasses == "" {
		return 50 * time.Second
	}
	d, err := time.ParseDuration(*c.MinTimeBetweenPasses)
	if err != nil {
		return 50 * time.Second
	}
	return d
}

// GetMinColorWeight returns the min_color_weight value or the default.
func (c *TuningConfig) GetMinColorWeight() float64 {
	if c.MinColorWeight == nil {
		return 0.1
	}
	return *c.MinColorWeight
}

// GetMinPixelRatio returns the min_pixel_ratio value or the default.
func (c *TuningConfig) GetMinPixelRatio() float64 {
	if c.MinPixelRatio == nil {
		return 0.15
	}
	return *c.MinPixelRatio
}

// GetMinPixelCount returns the min_pixel_count value or the default.
func (c *TuningConfig) GetMinPixelCount() int {
	if c.MinPixelCount == nil {
		return 100
	}
	return *c.MinPixelCount
}

// GetMinNumberConfidence returns the min_number_confidence value or the default.
func (c *TuningConfig) GetMinNumberConfidence() float64 {
	if c.MinNumberConfidence == nil {
		return 0.4
	}
	return *c.MinNumberConfidence
}

// GetROIExpansion returns the roi_expansion value or the default.
func (c *TuningConfig) GetROIExpansion() float64 {
	if c.ROIExpansion == nil {
		return 0.2
	}
	return *c.ROIExpansion
}
