package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Measurement is one posture sample as sent by the pose-estimation frontend.
// All 13 numeric signals are required. Signals may arrive as JSON numbers or
// as numeric strings; a string that fails to parse falls back to 0.0 and the
// field name is recorded in CoercedFields so the fallback stays observable.
type Measurement struct {
	NeckAngle               float64 `json:"neck_angle"`
	ShoulderSlope           float64 `json:"shoulder_slope"`
	HeadForward             float64 `json:"head_forward"`
	ShoulderHeightDiff      float64 `json:"shoulder_height_diff"`
	Score                   float64 `json:"score"`
	CervicalLordosis        float64 `json:"cervical_lordosis"`
	ForwardHeadDistance     float64 `json:"forward_head_distance"`
	HeadTilt                float64 `json:"head_tilt"`
	LeftShoulderHeightDiff  float64 `json:"left_shoulder_height_diff"`
	LeftScapularWinging     float64 `json:"left_scapular_winging"`
	RightScapularWinging    float64 `json:"right_scapular_winging"`
	ShoulderForwardMovement float64 `json:"shoulder_forward_movement"`
	HeadRotation            float64 `json:"head_rotation"`

	SessionID  string    `json:"session_id"`
	DeviceInfo string    `json:"device_info,omitempty"`
	Issues     IssueList `json:"issues,omitempty"`

	// CoercedFields lists signals that arrived as non-numeric strings and
	// were defaulted to 0.0. Not serialized.
	CoercedFields []string `json:"-"`
}

type signalField struct {
	name string
	dst  *float64
}

func (m *Measurement) signalFields() []signalField {
	return []signalField{
		{"neck_angle", &m.NeckAngle},
		{"shoulder_slope", &m.ShoulderSlope},
		{"head_forward", &m.HeadForward},
		{"shoulder_height_diff", &m.ShoulderHeightDiff},
		{"score", &m.Score},
		{"cervical_lordosis", &m.CervicalLordosis},
		{"forward_head_distance", &m.ForwardHeadDistance},
		{"head_tilt", &m.HeadTilt},
		{"left_shoulder_height_diff", &m.LeftShoulderHeightDiff},
		{"left_scapular_winging", &m.LeftScapularWinging},
		{"right_scapular_winging", &m.RightScapularWinging},
		{"shoulder_forward_movement", &m.ShoulderForwardMovement},
		{"head_rotation", &m.HeadRotation},
	}
}

// UnmarshalJSON decodes a measurement, coercing numeric strings to floats.
func (m *Measurement) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for _, f := range m.signalFields() {
		rv, ok := raw[f.name]
		if !ok {
			return fmt.Errorf("missing required field %q", f.name)
		}
		val, fellBack, err := coerceFloat(rv)
		if err != nil {
			return fmt.Errorf("field %q: %w", f.name, err)
		}
		if fellBack {
			m.CoercedFields = append(m.CoercedFields, f.name)
		}
		*f.dst = val
	}

	if rv, ok := raw["session_id"]; ok {
		if err := json.Unmarshal(rv, &m.SessionID); err != nil {
			return fmt.Errorf("field \"session_id\": %w", err)
		}
	}
	if rv, ok := raw["device_info"]; ok {
		if err := json.Unmarshal(rv, &m.DeviceInfo); err != nil {
			return fmt.Errorf("field \"device_info\": %w", err)
		}
	}
	if rv, ok := raw["issues"]; ok {
		if err := json.Unmarshal(rv, &m.Issues); err != nil {
			return fmt.Errorf("field \"issues\": %w", err)
		}
	}

	return nil
}

// coerceFloat accepts a JSON number or a string. A string that parses as a
// number yields its value; one that does not falls back to 0.0 with the
// second return set. Any other JSON type is rejected.
func coerceFloat(raw json.RawMessage) (float64, bool, error) {
	// Unmarshal into a float64 treats null as a no-op, so reject it up front.
	if string(raw) == "null" {
		return 0, false, fmt.Errorf("expected number or string, got null")
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, false, nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, false, fmt.Errorf("expected number or string, got %s", raw)
	}

	if parsed, err := strconv.ParseFloat(str, 64); err == nil {
		return parsed, false, nil
	}
	return 0, true, nil
}

// IssueList holds client-reported problem tags. Clients send heterogeneous
// shapes; each entry reduces to one display string with the priority
// message > type > raw JSON.
type IssueList []string

func (l *IssueList) UnmarshalJSON(data []byte) error {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		var s string
		if err := json.Unmarshal(entry, &s); err == nil {
			out = append(out, s)
			continue
		}

		var obj map[string]interface{}
		if err := json.Unmarshal(entry, &obj); err == nil {
			if msg, ok := obj["message"].(string); ok {
				out = append(out, msg)
				continue
			}
			if typ, ok := obj["type"].(string); ok {
				out = append(out, typ)
				continue
			}
		}

		out = append(out, string(entry))
	}

	*l = out
	return nil
}

// PostureRecord is a persisted, evaluated measurement.
type PostureRecord struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`

	NeckAngle               float64 `json:"neck_angle"`
	ShoulderSlope           float64 `json:"shoulder_slope"`
	HeadForward             float64 `json:"head_forward"`
	ShoulderHeightDiff      float64 `json:"shoulder_height_diff"`
	Score                   float64 `json:"score"`
	CervicalLordosis        float64 `json:"cervical_lordosis"`
	ForwardHeadDistance     float64 `json:"forward_head_distance"`
	HeadTilt                float64 `json:"head_tilt"`
	LeftShoulderHeightDiff  float64 `json:"left_shoulder_height_diff"`
	LeftScapularWinging     float64 `json:"left_scapular_winging"`
	RightScapularWinging    float64 `json:"right_scapular_winging"`
	ShoulderForwardMovement float64 `json:"shoulder_forward_movement"`
	HeadRotation            float64 `json:"head_rotation"`

	Issues     IssueList `json:"issues"`
	SessionID  string    `json:"session_id"`
	DeviceInfo string    `json:"device_info,omitempty"`

	IsNeckAngleNormal   bool `json:"is_neck_angle_normal"`
	IsForwardHeadNormal bool `json:"is_forward_head_normal"`
	IsHeadTiltNormal    bool `json:"is_head_tilt_normal"`

	CreatedAt time.Time `json:"created_at"`
}

// PostureStats summarizes a user's records over a trailing window.
type PostureStats struct {
	TotalRecords      int        `json:"total_records"`
	AverageScore      float64    `json:"average_score"`
	ImprovementRate   float64    `json:"improvement_rate"`
	NormalPostureRate float64    `json:"normal_posture_rate"`
	LastMeasurement   *time.Time `json:"last_measurement,omitempty"`
}

// PostureTrend is a per-calendar-day aggregate.
type PostureTrend struct {
	Date                   string  `json:"date"`
	AverageScore           float64 `json:"average_score"`
	RecordCount            int     `json:"record_count"`
	NeckAngleAvg           float64 `json:"neck_angle_avg"`
	ForwardHeadDistanceAvg float64 `json:"forward_head_distance_avg"`
}

// Session tracks one in-memory measurement session.
type Session struct {
	SessionID               string     `json:"session_id"`
	UserID                  int64      `json:"user_id"`
	StartTime               time.Time  `json:"start_time"`
	EndTime                 *time.Time `json:"end_time,omitempty"`
	Status                  string     `json:"status"`
	DeviceInfo              string     `json:"device_info,omitempty"`
	AnalysisIntervalSeconds int        `json:"analysis_interval_seconds"`
	RecordCount             int        `json:"record_count"`
}

// Session status values.
const (
	SessionActive  = "active"
	SessionStopped = "stopped"
)

// User is the API view of an account, sensitive fields excluded.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Request/response shapes

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
}

type UpdateUserRequest struct {
	Username *string `json:"username,omitempty" binding:"omitempty,min=3,max=50"`
	Email    *string `json:"email,omitempty" binding:"omitempty,email"`
	Password *string `json:"password,omitempty" binding:"omitempty,min=6"`
}

type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type PasswordResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

type StartSessionRequest struct {
	SessionID               string `json:"session_id,omitempty"`
	DeviceInfo              string `json:"device_info,omitempty"`
	AnalysisIntervalSeconds int    `json:"analysis_interval_seconds,omitempty"`
}

type StopSessionRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

type StopSessionResponse struct {
	SessionID       string `json:"session_id"`
	DurationSeconds int64  `json:"duration_seconds"`
	TotalRecords    int    `json:"total_records"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
