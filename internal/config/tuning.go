// Package config loads the navigation engine tuning: pace tables, sensor thresholds,
// probe and metadata timeouts, and session lifetimes.
//
// Values come from built-in defaults, an optional tuning file (yaml, json or toml) and
// WAYFINDER_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment prefix for tuning overrides (WAYFINDER_SHAKE_THRESHOLD, ...).
const EnvPrefix = "WAYFINDER"

var (
	ErrPaceTableEmpty     = errors.New("pace table must not be empty")
	ErrPaceTableUnsorted  = errors.New("pace rates must be strictly increasing")
	ErrPaceLabelsMismatch = errors.New("pace labels must match pace rates")
	ErrNoNormalPace       = errors.New("pace table must contain the 1x rate")
)

// Tuning holds every threshold used by the navigation engine. Units are part of the
// field names: pixels (Px), degrees (Deg), metres per second squared (MS2), seconds.
type Tuning struct {
	// Scrub controller
	PaceRates          []float64 `mapstructure:"pace_rates"`
	PaceLabels         []string  `mapstructure:"pace_labels"`
	ScrubSensitivityPx float64   `mapstructure:"scrub_sensitivity_px"`
	EdgeZone           float64   `mapstructure:"edge_zone"` // fraction of the width on each side
	EdgeSeekSeconds    float64   `mapstructure:"edge_seek_seconds"`
	ArrivalEpsilon     float64   `mapstructure:"arrival_epsilon_seconds"`

	// Sensor controller
	ShakeThresholdMS2    float64       `mapstructure:"shake_threshold_ms2"`
	ShakeDebounce        time.Duration `mapstructure:"shake_debounce"`
	TiltThresholdDeg     float64       `mapstructure:"tilt_threshold_deg"`
	RotationThresholdDeg float64       `mapstructure:"rotation_threshold_deg"`
	RotationThrottle     time.Duration `mapstructure:"rotation_throttle"`
	RotationSeekSeconds  float64       `mapstructure:"rotation_seek_seconds"`
	SlowRate             float64       `mapstructure:"slow_rate"`
	FastRate             float64       `mapstructure:"fast_rate"`

	// Assets and media
	PrefetchCount      int           `mapstructure:"prefetch_count"`
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout"`
	MetadataTimeout    time.Duration `mapstructure:"metadata_timeout"`
	MobileBreakpointPx int           `mapstructure:"mobile_breakpoint_px"`
	TabletBreakpointPx int           `mapstructure:"tablet_breakpoint_px"`
	MobileSuffix       string        `mapstructure:"mobile_suffix"`
	TabletSuffix       string        `mapstructure:"tablet_suffix"`

	// Sessions
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
	GenderedIDs []string      `mapstructure:"gendered_ids"`
}

// Default returns the tuning used when nothing overrides it.
func Default() Tuning {
	return Tuning{
		PaceRates:          []float64{0.25, 0.5, 1, 1.5, 2, 2.5},
		PaceLabels:         []string{"Very slow", "Slow", "Normal", "Brisk", "Fast", "Running"},
		ScrubSensitivityPx: 40,
		EdgeZone:           0.2,
		EdgeSeekSeconds:    3,
		ArrivalEpsilon:     0.25,

		ShakeThresholdMS2:    15,
		ShakeDebounce:        1000 * time.Millisecond,
		TiltThresholdDeg:     20,
		RotationThresholdDeg: 30,
		RotationThrottle:     1000 * time.Millisecond,
		RotationSeekSeconds:  5,
		SlowRate:             0.5,
		FastRate:             2,

		PrefetchCount:      2,
		ProbeTimeout:       8 * time.Second,
		MetadataTimeout:    15 * time.Second,
		MobileBreakpointPx: 768,
		TabletBreakpointPx: 1024,
		MobileSuffix:       "_mobile",
		TabletSuffix:       "_tablet",

		SessionTTL:  30 * time.Minute,
		GenderedIDs: []string{"toilet", "wc", "restroom", "wudu"},
	}
}

// Load reads the tuning from defaults, the optional file at path and the environment.
// An empty path skips the file.
func Load(path string) (Tuning, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			slog.Error("config.Load: failed to read tuning file", "error", err, "path", path)
			return Tuning{}, fmt.Errorf("failed to read tuning file %s: %w", path, err)
		}
		slog.Debug("config.Load: tuning file loaded", "path", path)
	}

	var t Tuning
	if err := v.Unmarshal(&t); err != nil {
		slog.Error("config.Load: failed to decode tuning", "error", err)
		return Tuning{}, fmt.Errorf("failed to decode tuning: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, err
	}
	slog.Debug("config.Load: tuning ready",
		"pace_rates", t.PaceRates,
		"shake_threshold_ms2", t.ShakeThresholdMS2,
		"probe_timeout", t.ProbeTimeout,
		"session_ttl", t.SessionTTL)
	return t, nil
}

func setDefaults(v *viper.Viper, d Tuning) {
	v.SetDefault("pace_rates", d.PaceRates)
	v.SetDefault("pace_labels", d.PaceLabels)
	v.SetDefault("scrub_sensitivity_px", d.ScrubSensitivityPx)
	v.SetDefault("edge_zone", d.EdgeZone)
	v.SetDefault("edge_seek_seconds", d.EdgeSeekSeconds)
	v.SetDefault("arrival_epsilon_seconds", d.ArrivalEpsilon)
	v.SetDefault("shake_threshold_ms2", d.ShakeThresholdMS2)
	v.SetDefault("shake_debounce", d.ShakeDebounce)
	v.SetDefault("tilt_threshold_deg", d.TiltThresholdDeg)
	v.SetDefault("rotation_threshold_deg", d.RotationThresholdDeg)
	v.SetDefault("rotation_throttle", d.RotationThrottle)
	v.SetDefault("rotation_seek_seconds", d.RotationSeekSeconds)
	v.SetDefault("slow_rate", d.SlowRate)
	v.SetDefault("fast_rate", d.FastRate)
	v.SetDefault("prefetch_count", d.PrefetchCount)
	v.SetDefault("probe_timeout", d.ProbeTimeout)
	v.SetDefault("metadata_timeout", d.MetadataTimeout)
	v.SetDefault("mobile_breakpoint_px", d.MobileBreakpointPx)
	v.SetDefault("tablet_breakpoint_px", d.TabletBreakpointPx)
	v.SetDefault("mobile_suffix", d.MobileSuffix)
	v.SetDefault("tablet_suffix", d.TabletSuffix)
	v.SetDefault("session_ttl", d.SessionTTL)
	v.SetDefault("gendered_ids", d.GenderedIDs)
}

// Validate checks the pace table and the thresholds for internal consistency.
func (t Tuning) Validate() error {
	if len(t.PaceRates) == 0 {
		return ErrPaceTableEmpty
	}
	if !sort.SliceIsSorted(t.PaceRates, func(i, j int) bool { return t.PaceRates[i] < t.PaceRates[j] }) {
		return ErrPaceTableUnsorted
	}
	for i := 1; i < len(t.PaceRates); i++ {
		if t.PaceRates[i] == t.PaceRates[i-1] {
			return ErrPaceTableUnsorted
		}
	}
	if len(t.PaceLabels) != len(t.PaceRates) {
		return ErrPaceLabelsMismatch
	}
	if t.NormalPaceIndex() < 0 {
		return ErrNoNormalPace
	}
	if t.ScrubSensitivityPx <= 0 {
		return fmt.Errorf("scrub_sensitivity_px must be positive, got %v", t.ScrubSensitivityPx)
	}
	if t.EdgeZone <= 0 || t.EdgeZone >= 0.5 {
		return fmt.Errorf("edge_zone must be in (0, 0.5), got %v", t.EdgeZone)
	}
	if t.ShakeThresholdMS2 <= 0 || t.TiltThresholdDeg <= 0 || t.RotationThresholdDeg <= 0 {
		return errors.New("sensor thresholds must be positive")
	}
	if t.PrefetchCount < 0 {
		return fmt.Errorf("prefetch_count must not be negative, got %d", t.PrefetchCount)
	}
	return nil
}

// NormalPaceIndex returns the index of the 1x entry in the pace table, or -1.
func (t Tuning) NormalPaceIndex() int {
	for i, r := range t.PaceRates {
		if r == 1 {
			return i
		}
	}
	return -1
}
