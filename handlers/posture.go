package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"posture-service/analysis"
	"posture-service/database"
	"posture-service/metrics"
	"posture-service/models"
	"posture-service/sessions"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

// PostureHandler handles measurement, statistics and session requests.
type PostureHandler struct {
	records    *database.RecordService
	registry   *sessions.Registry
	thresholds analysis.Thresholds
}

// NewPostureHandler creates a posture handler instance.
func NewPostureHandler(records *database.RecordService, registry *sessions.Registry, thresholds analysis.Thresholds) *PostureHandler {
	return &PostureHandler{
		records:    records,
		registry:   registry,
		thresholds: thresholds,
	}
}

type analysisBody struct {
	IsNeckAngleNormal   bool     `json:"is_neck_angle_normal"`
	IsForwardHeadNormal bool     `json:"is_forward_head_normal"`
	IsHeadTiltNormal    bool     `json:"is_head_tilt_normal"`
	Problems            []string `json:"problems"`
	Suggestions         []string `json:"suggestions"`
	SeverityLevel       string   `json:"severity_level"`
}

type deviationsBody struct {
	NeckAngleDeviation   float64 `json:"neck_angle_deviation"`
	ForwardHeadDeviation float64 `json:"forward_head_deviation"`
	HeadTiltDeviation    float64 `json:"head_tilt_deviation"`
}

type medicalStandardsBody struct {
	NeckAngleRange [2]float64 `json:"neck_angle_range"`
	ForwardHeadMax float64    `json:"forward_head_max"`
	HeadTiltRange  [2]float64 `json:"head_tilt_range"`
}

type analyzeResponse struct {
	Analysis         analysisBody         `json:"analysis"`
	Deviations       deviationsBody       `json:"deviations"`
	MedicalStandards medicalStandardsBody `json:"medical_standards"`
}

// Analyze runs the classifier on one measurement without persisting it.
func (h *PostureHandler) Analyze(c *gin.Context) {
	var m models.Measurement
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	logCoercions(&m)

	result := analysis.Classify(&m, h.thresholds)
	metrics.AnalyzedTotal.WithLabelValues(result.SeverityLevel).Inc()

	c.JSON(http.StatusOK, analyzeResponse{
		Analysis: analysisBody{
			IsNeckAngleNormal:   result.IsNeckAngleNormal,
			IsForwardHeadNormal: result.IsForwardHeadNormal,
			IsHeadTiltNormal:    result.IsHeadTiltNormal,
			Problems:            result.Problems,
			Suggestions:         result.Suggestions,
			SeverityLevel:       result.SeverityLevel,
		},
		Deviations: deviationsBody{
			NeckAngleDeviation:   result.NeckAngleDeviation,
			ForwardHeadDeviation: result.ForwardHeadDeviation,
			HeadTiltDeviation:    result.HeadTiltDeviation,
		},
		MedicalStandards: standardsBody(h.thresholds),
	})
}

// CreateRecord classifies and persists one measurement for the
// authenticated user.
func (h *PostureHandler) CreateRecord(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return
	}

	var m models.Measurement
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	logCoercions(&m)

	record, err := h.records.CreateRecord(c.Request.Context(), userID, &m)
	if err != nil {
		log.Errorf("Error creating posture record: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to create posture record"})
		return
	}

	h.registry.RecordCreated(m.SessionID)
	metrics.RecordsCreatedTotal.Inc()

	c.JSON(http.StatusCreated, record)
}

// GetRecords lists the authenticated user's records, newest first.
func (h *PostureHandler) GetRecords(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return
	}

	var start, end *time.Time
	if v := c.Query("start_date"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid start_date, expected YYYY-MM-DD"})
			return
		}
		start = &t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid end_date, expected YYYY-MM-DD"})
			return
		}
		// A date-only end bound covers the whole day.
		t = t.AddDate(0, 0, 1)
		end = &t
	}

	limit := database.DefaultRecordLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	records, err := h.records.GetRecordsByUser(c.Request.Context(), userID, start, end, limit)
	if err != nil {
		log.Errorf("Error listing posture records: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to list posture records"})
		return
	}

	c.JSON(http.StatusOK, records)
}

// GetStats returns the summary statistics for the trailing window.
func (h *PostureHandler) GetStats(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return
	}

	days, ok := h.daysParam(c, 30)
	if !ok {
		return
	}

	stats, err := h.records.GetStats(c.Request.Context(), userID, days)
	if err != nil {
		log.Errorf("Error computing posture stats: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to compute posture stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetTrends returns the per-day averages for the trailing window.
func (h *PostureHandler) GetTrends(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return
	}

	days, ok := h.daysParam(c, 7)
	if !ok {
		return
	}

	trends, err := h.records.GetTrends(c.Request.Context(), userID, days)
	if err != nil {
		log.Errorf("Error computing posture trends: %v", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to compute posture trends"})
		return
	}

	c.JSON(http.StatusOK, trends)
}

// MedicalStandards returns the configured normal ranges with descriptions.
func (h *PostureHandler) MedicalStandards(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"neck_angle_normal_range": [2]float64{h.thresholds.NeckAngleMin, h.thresholds.NeckAngleMax},
		"forward_head_normal_max": h.thresholds.ForwardHeadMax,
		"head_tilt_normal_range":  [2]float64{h.thresholds.HeadTiltMin, h.thresholds.HeadTiltMax},
		"description": gin.H{
			"neck_angle":            "Normal neck angle range (degrees)",
			"forward_head_distance": "Maximum normal forward head distance (mm)",
			"head_tilt":             "Normal head tilt range (degrees)",
		},
	})
}

// StartSession opens a measurement session for the authenticated user.
func (h *PostureHandler) StartSession(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
		return
	}

	var req models.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	session := h.registry.Start(req.SessionID, userID, req.DeviceInfo, req.AnalysisIntervalSeconds)
	metrics.ActiveSessions.Set(float64(len(h.registry.ListActive())))

	c.JSON(http.StatusCreated, session)
}

// StopSession closes a measurement session and returns its duration.
func (h *PostureHandler) StopSession(c *gin.Context) {
	var req models.StopSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	result, err := h.registry.Stop(req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
		return
	}
	metrics.ActiveSessions.Set(float64(len(h.registry.ListActive())))

	c.JSON(http.StatusOK, result)
}

// ListActiveSessions returns all sessions currently active.
func (h *PostureHandler) ListActiveSessions(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.ListActive())
}

func (h *PostureHandler) daysParam(c *gin.Context, defaultDays int) (int, bool) {
	days := defaultDays
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid days"})
			return 0, false
		}
		days = n
	}
	return days, true
}

func standardsBody(t analysis.Thresholds) medicalStandardsBody {
	return medicalStandardsBody{
		NeckAngleRange: [2]float64{t.NeckAngleMin, t.NeckAngleMax},
		ForwardHeadMax: t.ForwardHeadMax,
		HeadTiltRange:  [2]float64{t.HeadTiltMin, t.HeadTiltMax},
	}
}

// logCoercions makes the zero-default coercion fallback visible instead of
// silently absorbing malformed signal values.
func logCoercions(m *models.Measurement) {
	if len(m.CoercedFields) == 0 {
		return
	}
	metrics.CoercedSignalsTotal.Add(float64(len(m.CoercedFields)))
	log.Warnf("Coerced non-numeric signal fields to 0.0: %s", strings.Join(m.CoercedFields, ", "))
}
