package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"posture-service/analysis"
	"posture-service/models"

	"github.com/apex/log"
	"github.com/shopspring/decimal"
)

const (
	// DefaultRecordLimit bounds record list queries.
	DefaultRecordLimit = 100

	// Improvement rate always compares the trailing week against the week
	// before it, independent of the requested stats window. Preserved from
	// the reference behavior so the rate is comparable across calls.
	improvementWindow = 7 * 24 * time.Hour
)

const recordColumns = `id, user_id, neck_angle, shoulder_slope, head_forward,
	shoulder_height_diff, score, cervical_lordosis, forward_head_distance,
	head_tilt, left_shoulder_height_diff, left_scapular_winging,
	right_scapular_winging, shoulder_forward_movement, head_rotation,
	issues, session_id, device_info, is_neck_angle_normal,
	is_forward_head_normal, is_head_tilt_normal, created_at`

// RecordService persists evaluated posture records and computes the
// aggregate views over them.
type RecordService struct {
	db         *sql.DB
	thresholds analysis.Thresholds
	now        func() time.Time
}

// NewRecordService creates a record service using the given thresholds for
// write-time range checks.
func NewRecordService(db *sql.DB, thresholds analysis.Thresholds) *RecordService {
	return &RecordService{
		db:         db,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// CreateRecord classifies the measurement against the medical thresholds and
// appends it to the user's history. Records are never mutated afterwards.
func (s *RecordService) CreateRecord(ctx context.Context, userID int64, m *models.Measurement) (*models.PostureRecord, error) {
	flags := analysis.CheckRanges(m, s.thresholds)

	issues := m.Issues
	if issues == nil {
		issues = models.IssueList{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return nil, fmt.Errorf("failed to encode issues: %w", err)
	}

	createdAt := s.now()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO posture_records (user_id, neck_angle, shoulder_slope,
			head_forward, shoulder_height_diff, score, cervical_lordosis,
			forward_head_distance, head_tilt, left_shoulder_height_diff,
			left_scapular_winging, right_scapular_winging,
			shoulder_forward_movement, head_rotation, issues, session_id,
			device_info, is_neck_angle_normal, is_forward_head_normal,
			is_head_tilt_normal, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, m.NeckAngle, m.ShoulderSlope, m.HeadForward,
		m.ShoulderHeightDiff, m.Score, m.CervicalLordosis,
		m.ForwardHeadDistance, m.HeadTilt, m.LeftShoulderHeightDiff,
		m.LeftScapularWinging, m.RightScapularWinging,
		m.ShoulderForwardMovement, m.HeadRotation, string(issuesJSON),
		m.SessionID, m.DeviceInfo, flags.IsNeckAngleNormal,
		flags.IsForwardHeadNormal, flags.IsHeadTiltNormal, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert posture record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get record id: %w", err)
	}

	return &models.PostureRecord{
		ID:     id,
		UserID: userID,

		NeckAngle:               m.NeckAngle,
		ShoulderSlope:           m.ShoulderSlope,
		HeadForward:             m.HeadForward,
		ShoulderHeightDiff:      m.ShoulderHeightDiff,
		Score:                   m.Score,
		CervicalLordosis:        m.CervicalLordosis,
		ForwardHeadDistance:     m.ForwardHeadDistance,
		HeadTilt:                m.HeadTilt,
		LeftShoulderHeightDiff:  m.LeftShoulderHeightDiff,
		LeftScapularWinging:     m.LeftScapularWinging,
		RightScapularWinging:    m.RightScapularWinging,
		ShoulderForwardMovement: m.ShoulderForwardMovement,
		HeadRotation:            m.HeadRotation,

		Issues:     issues,
		SessionID:  m.SessionID,
		DeviceInfo: m.DeviceInfo,

		IsNeckAngleNormal:   flags.IsNeckAngleNormal,
		IsForwardHeadNormal: flags.IsForwardHeadNormal,
		IsHeadTiltNormal:    flags.IsHeadTiltNormal,

		CreatedAt: createdAt,
	}, nil
}

// GetRecordsByUser returns a user's records newest-first, optionally bounded
// by [start, end). Both bounds are timestamps; the caller expands date-only
// end bounds to the following midnight.
func (s *RecordService) GetRecordsByUser(ctx context.Context, userID int64, start, end *time.Time, limit int) ([]models.PostureRecord, error) {
	if limit <= 0 {
		limit = DefaultRecordLimit
	}

	query := "SELECT " + recordColumns + " FROM posture_records WHERE user_id = ?"
	args := []interface{}{userID}

	if start != nil {
		query += " AND created_at >= ?"
		args = append(args, *start)
	}
	if end != nil {
		query += " AND created_at < ?"
		args = append(args, *end)
	}

	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posture records: %w", err)
	}
	defer rows.Close()

	records := []models.PostureRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read posture records: %w", err)
	}

	return records, nil
}

func scanRecord(rows *sql.Rows) (*models.PostureRecord, error) {
	var r models.PostureRecord
	var issuesJSON sql.NullString
	var sessionID, deviceInfo sql.NullString

	err := rows.Scan(
		&r.ID, &r.UserID, &r.NeckAngle, &r.ShoulderSlope, &r.HeadForward,
		&r.ShoulderHeightDiff, &r.Score, &r.CervicalLordosis,
		&r.ForwardHeadDistance, &r.HeadTilt, &r.LeftShoulderHeightDiff,
		&r.LeftScapularWinging, &r.RightScapularWinging,
		&r.ShoulderForwardMovement, &r.HeadRotation, &issuesJSON,
		&sessionID, &deviceInfo, &r.IsNeckAngleNormal,
		&r.IsForwardHeadNormal, &r.IsHeadTiltNormal, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan posture record: %w", err)
	}

	r.Issues = models.IssueList{}
	if issuesJSON.Valid && issuesJSON.String != "" {
		var issues []string
		if err := json.Unmarshal([]byte(issuesJSON.String), &issues); err != nil {
			log.Warnf("Dropping undecodable issues on posture record %d: %v", r.ID, err)
		} else {
			r.Issues = issues
		}
	}
	r.SessionID = sessionID.String
	r.DeviceInfo = deviceInfo.String

	return &r, nil
}

// GetStats computes the user's summary statistics over the trailing window
// of the given number of days. A window with zero records yields an
// all-zero summary, not an error.
func (s *RecordService) GetStats(ctx context.Context, userID int64, days int) (*models.PostureStats, error) {
	now := s.now()
	windowStart := now.Add(-time.Duration(days) * 24 * time.Hour)

	var totalRecords, normalRecords int
	var avgScore float64
	var lastMeasurement sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(score), 0),
			COALESCE(SUM(is_neck_angle_normal AND is_forward_head_normal AND is_head_tilt_normal), 0),
			MAX(created_at)
		FROM posture_records WHERE user_id = ? AND created_at >= ?`,
		userID, windowStart).Scan(&totalRecords, &avgScore, &normalRecords, &lastMeasurement)
	if err != nil {
		return nil, fmt.Errorf("failed to query posture stats: %w", err)
	}

	if totalRecords == 0 {
		return &models.PostureStats{}, nil
	}

	recentStart := now.Add(-improvementWindow)
	previousStart := recentStart.Add(-improvementWindow)

	var recentAvg, previousAvg float64
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(score), 0) FROM posture_records
		WHERE user_id = ? AND created_at >= ?`,
		userID, recentStart).Scan(&recentAvg)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent average: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(score), 0) FROM posture_records
		WHERE user_id = ? AND created_at >= ? AND created_at < ?`,
		userID, previousStart, recentStart).Scan(&previousAvg)
	if err != nil {
		return nil, fmt.Errorf("failed to query previous average: %w", err)
	}

	improvementRate := 0.0
	if previousAvg > 0 {
		improvementRate = (recentAvg - previousAvg) / previousAvg * 100
	}

	stats := &models.PostureStats{
		TotalRecords:      totalRecords,
		AverageScore:      round2(avgScore),
		ImprovementRate:   round2(improvementRate),
		NormalPostureRate: round2(float64(normalRecords) / float64(totalRecords) * 100),
	}
	if lastMeasurement.Valid {
		stats.LastMeasurement = &lastMeasurement.Time
	}

	return stats, nil
}

// GetTrends buckets the user's records by calendar day over the trailing
// window and averages each day. Days without records are omitted. Rows are
// ordered ascending by date.
func (s *RecordService) GetTrends(ctx context.Context, userID int64, days int) ([]models.PostureTrend, error) {
	windowStart := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	rows, err := s.db.QueryContext(ctx,
		`SELECT DATE_FORMAT(created_at, '%Y-%m-%d') AS day,
			COALESCE(AVG(score), 0), COUNT(*),
			COALESCE(AVG(neck_angle), 0), COALESCE(AVG(forward_head_distance), 0)
		FROM posture_records
		WHERE user_id = ? AND created_at >= ?
		GROUP BY day ORDER BY day ASC`,
		userID, windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to query posture trends: %w", err)
	}
	defer rows.Close()

	trends := []models.PostureTrend{}
	for rows.Next() {
		var t models.PostureTrend
		if err := rows.Scan(&t.Date, &t.AverageScore, &t.RecordCount,
			&t.NeckAngleAvg, &t.ForwardHeadDistanceAvg); err != nil {
			return nil, fmt.Errorf("failed to scan posture trend: %w", err)
		}
		t.AverageScore = round2(t.AverageScore)
		t.NeckAngleAvg = round2(t.NeckAngleAvg)
		t.ForwardHeadDistanceAvg = round2(t.ForwardHeadDistanceAvg)
		trends = append(trends, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read posture trends: %w", err)
	}

	return trends, nil
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
