package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"posture-service/analysis"
	"posture-service/models"
	"posture-service/sessions"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func measurementBody(neckAngle, forwardHead, headTilt float64) []byte {
	body := map[string]interface{}{
		"neck_angle":                neckAngle,
		"shoulder_slope":            1.0,
		"head_forward":              2.0,
		"shoulder_height_diff":      0.5,
		"score":                     85.0,
		"cervical_lordosis":         30.0,
		"forward_head_distance":     forwardHead,
		"head_tilt":                 headTilt,
		"left_shoulder_height_diff": 0.2,
		"left_scapular_winging":     0.1,
		"right_scapular_winging":    0.3,
		"shoulder_forward_movement": 5.0,
		"head_rotation":             1.5,
	}
	data, _ := json.Marshal(body)
	return data
}

func newPostureTestContext(t *testing.T, method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, bytes.NewBuffer(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func newTestPostureHandler() *PostureHandler {
	return NewPostureHandler(nil, sessions.NewRegistry(), analysis.DefaultThresholds())
}

func TestAnalyze_AllNormal(t *testing.T) {
	handler := newTestPostureHandler()

	c, w := newPostureTestContext(t, "POST", "/api/v1/posture/analyze", measurementBody(10, 80, 5))
	handler.Analyze(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp analyzeResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Analysis.IsNeckAngleNormal)
	assert.True(t, resp.Analysis.IsForwardHeadNormal)
	assert.True(t, resp.Analysis.IsHeadTiltNormal)
	assert.Equal(t, analysis.SeverityLow, resp.Analysis.SeverityLevel)
	assert.Empty(t, resp.Analysis.Problems)
	assert.Equal(t, [2]float64{-30, 30}, resp.MedicalStandards.NeckAngleRange)
}

func TestAnalyze_TwoAbnormalSignals(t *testing.T) {
	handler := newTestPostureHandler()

	c, w := newPostureTestContext(t, "POST", "/api/v1/posture/analyze", measurementBody(35, 120, 0))
	handler.Analyze(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp analyzeResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, analysis.SeverityHigh, resp.Analysis.SeverityLevel)
	assert.Len(t, resp.Analysis.Problems, 2)
	assert.Len(t, resp.Analysis.Suggestions, 2)
	assert.Equal(t, 35.0, resp.Deviations.NeckAngleDeviation)
	assert.Equal(t, 20.0, resp.Deviations.ForwardHeadDeviation)
	assert.Equal(t, 0.0, resp.Deviations.HeadTiltDeviation)
}

func TestAnalyze_MissingField(t *testing.T) {
	handler := newTestPostureHandler()

	c, w := newPostureTestContext(t, "POST", "/api/v1/posture/analyze", []byte(`{"neck_angle": 10}`))
	handler.Analyze(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyze_NumericStringAccepted(t *testing.T) {
	handler := newTestPostureHandler()

	body := bytes.Replace(measurementBody(0, 80, 5),
		[]byte(`"neck_angle":0`), []byte(`"neck_angle":"45"`), 1)
	c, w := newPostureTestContext(t, "POST", "/api/v1/posture/analyze", body)
	handler.Analyze(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp analyzeResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Analysis.IsNeckAngleNormal)
}

func TestCreateRecord_Unauthorized(t *testing.T) {
	handler := newTestPostureHandler()

	c, w := newPostureTestContext(t, "POST", "/api/v1/posture/record", measurementBody(0, 0, 0))
	handler.CreateRecord(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetRecords_InvalidDate(t *testing.T) {
	handler := newTestPostureHandler()

	c, w := newPostureTestContext(t, "GET", "/api/v1/posture/records?start_date=June-1", nil)
	c.Set("user_id", int64(1))
	handler.GetRecords(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStats_InvalidDays(t *testing.T) {
	handler := newTestPostureHandler()

	c, w := newPostureTestContext(t, "GET", "/api/v1/posture/stats?days=-3", nil)
	c.Set("user_id", int64(1))
	handler.GetStats(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMedicalStandards(t *testing.T) {
	handler := newTestPostureHandler()

	c, w := newPostureTestContext(t, "GET", "/api/v1/posture/medical-standards", nil)
	handler.MedicalStandards(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp, "neck_angle_normal_range")
	assert.Equal(t, 100.0, resp["forward_head_normal_max"])
	assert.Contains(t, resp, "description")
}

func TestSessionLifecycle(t *testing.T) {
	handler := newTestPostureHandler()

	// Start
	startBody, _ := json.Marshal(models.StartSessionRequest{DeviceInfo: "test-phone"})
	c, w := newPostureTestContext(t, "POST", "/api/v1/posture/sessions/start", startBody)
	c.Set("user_id", int64(1))
	handler.StartSession(c)

	assert.Equal(t, http.StatusCreated, w.Code)

	var session models.Session
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	assert.NotEmpty(t, session.SessionID)
	assert.Equal(t, models.SessionActive, session.Status)

	// Active list contains it
	c, w = newPostureTestContext(t, "GET", "/api/v1/posture/sessions/active", nil)
	handler.ListActiveSessions(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var active []models.Session
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &active))
	assert.Len(t, active, 1)

	// Stop
	stopBody, _ := json.Marshal(models.StopSessionRequest{SessionID: session.SessionID})
	c, w = newPostureTestContext(t, "POST", "/api/v1/posture/sessions/stop", stopBody)
	handler.StopSession(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var stop models.StopSessionResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &stop))
	assert.Equal(t, session.SessionID, stop.SessionID)
	assert.GreaterOrEqual(t, stop.DurationSeconds, int64(0))
}

func TestStopSession_Unknown(t *testing.T) {
	handler := newTestPostureHandler()

	stopBody, _ := json.Marshal(models.StopSessionRequest{SessionID: "missing"})
	c, w := newPostureTestContext(t, "POST", "/api/v1/posture/sessions/stop", stopBody)
	handler.StopSession(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStopSession_MissingID(t *testing.T) {
	handler := newTestPostureHandler()

	c, w := newPostureTestContext(t, "POST", "/api/v1/posture/sessions/stop", []byte(`{}`))
	handler.StopSession(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyze_SeverityScalesWithAbnormalCount(t *testing.T) {
	handler := newTestPostureHandler()

	testCases := []struct {
		neckAngle   float64
		forwardHead float64
		headTilt    float64
		want        string
	}{
		{0, 50, 0, analysis.SeverityLow},
		{45, 50, 0, analysis.SeverityMedium},
		{45, 150, 0, analysis.SeverityHigh},
		{45, 150, 20, analysis.SeverityHigh},
	}

	for i, testCase := range testCases {
		c, w := newPostureTestContext(t, "POST", "/api/v1/posture/analyze",
			measurementBody(testCase.neckAngle, testCase.forwardHead, testCase.headTilt))
		handler.Analyze(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp analyzeResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, testCase.want, resp.Analysis.SeverityLevel, fmt.Sprintf("case %d", i))
	}
}
