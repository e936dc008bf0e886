package analysis

import (
	"posture-service/config"
	"posture-service/models"
)

// Thresholds holds the medical normal-range bounds for the three tracked
// signals. Angles in degrees, distances in millimeters.
type Thresholds struct {
	NeckAngleMin   float64
	NeckAngleMax   float64
	ForwardHeadMax float64
	HeadTiltMin    float64
	HeadTiltMax    float64
}

// DefaultThresholds returns the standard medical reference values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		NeckAngleMin:   -30.0,
		NeckAngleMax:   30.0,
		ForwardHeadMax: 100.0,
		HeadTiltMin:    -15.0,
		HeadTiltMax:    15.0,
	}
}

// ThresholdsFromConfig builds thresholds from service configuration.
func ThresholdsFromConfig(cfg *config.Config) Thresholds {
	return Thresholds{
		NeckAngleMin:   cfg.NeckAngleMin,
		NeckAngleMax:   cfg.NeckAngleMax,
		ForwardHeadMax: cfg.ForwardHeadMax,
		HeadTiltMin:    cfg.HeadTiltMin,
		HeadTiltMax:    cfg.HeadTiltMax,
	}
}

// Severity levels, ordered by abnormal-signal count.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Problem statements and corrective suggestions per abnormal signal. The two
// slices stay parallel: Problems[i] and Suggestions[i] refer to the same
// signal, in the order neck, forward-head, head-tilt.
const (
	problemNeckAngle   = "Neck angle is outside the normal range"
	suggestNeckAngle   = "Return your neck to a centered position"
	problemForwardHead = "Head is positioned too far forward"
	suggestForwardHead = "Pull your chin back toward your spine"
	problemHeadTilt    = "Head is tilted to the side"
	suggestHeadTilt    = "Align your head to the center"
)

// Flags holds the per-signal normal checks.
type Flags struct {
	IsNeckAngleNormal   bool `json:"is_neck_angle_normal"`
	IsForwardHeadNormal bool `json:"is_forward_head_normal"`
	IsHeadTiltNormal    bool `json:"is_head_tilt_normal"`
}

// Result is the full classification of one measurement.
type Result struct {
	Flags
	Problems      []string `json:"problems"`
	Suggestions   []string `json:"suggestions"`
	SeverityLevel string   `json:"severity_level"`

	NeckAngleDeviation   float64 `json:"neck_angle_deviation"`
	ForwardHeadDeviation float64 `json:"forward_head_deviation"`
	HeadTiltDeviation    float64 `json:"head_tilt_deviation"`

	Thresholds Thresholds `json:"-"`
}

// CheckRanges evaluates only the per-signal normal flags. Used at record
// write time, where the full problem/suggestion output is not persisted.
func CheckRanges(m *models.Measurement, t Thresholds) Flags {
	return Flags{
		IsNeckAngleNormal:   m.NeckAngle >= t.NeckAngleMin && m.NeckAngle <= t.NeckAngleMax,
		IsForwardHeadNormal: m.ForwardHeadDistance <= t.ForwardHeadMax,
		IsHeadTiltNormal:    m.HeadTilt >= t.HeadTiltMin && m.HeadTilt <= t.HeadTiltMax,
	}
}

// Classify maps one measurement to flags, problems, suggestions, severity
// and deviations. Pure function, no failure modes for numeric input.
func Classify(m *models.Measurement, t Thresholds) Result {
	flags := CheckRanges(m, t)

	problems := []string{}
	suggestions := []string{}
	if !flags.IsNeckAngleNormal {
		problems = append(problems, problemNeckAngle)
		suggestions = append(suggestions, suggestNeckAngle)
	}
	if !flags.IsForwardHeadNormal {
		problems = append(problems, problemForwardHead)
		suggestions = append(suggestions, suggestForwardHead)
	}
	if !flags.IsHeadTiltNormal {
		problems = append(problems, problemHeadTilt)
		suggestions = append(suggestions, suggestHeadTilt)
	}

	severity := SeverityLow
	switch {
	case len(problems) >= 2:
		severity = SeverityHigh
	case len(problems) == 1:
		severity = SeverityMedium
	}

	forwardHeadDeviation := m.ForwardHeadDistance - t.ForwardHeadMax
	if forwardHeadDeviation < 0 {
		forwardHeadDeviation = 0
	}

	return Result{
		Flags:         flags,
		Problems:      problems,
		Suggestions:   suggestions,
		SeverityLevel: severity,

		NeckAngleDeviation:   abs(m.NeckAngle - midpoint(t.NeckAngleMin, t.NeckAngleMax)),
		ForwardHeadDeviation: forwardHeadDeviation,
		HeadTiltDeviation:    abs(m.HeadTilt - midpoint(t.HeadTiltMin, t.HeadTiltMax)),

		Thresholds: t,
	}
}

func midpoint(min, max float64) float64 {
	return (min + max) / 2
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
