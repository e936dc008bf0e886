package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"posture-service/analysis"
	"posture-service/models"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jknair0/beforeeach"
)

var (
	db   *sql.DB
	mock sqlmock.Sqlmock
)

func setUp() {
	db, mock, _ = sqlmock.New()
}

func tearDown() {
	db.Close()
}

var it = beforeeach.Create(setUp, tearDown)

var testTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestRecordService() *RecordService {
	s := NewRecordService(db, analysis.DefaultThresholds())
	s.now = func() time.Time { return testTime }
	return s
}

func TestCreateRecord(t *testing.T) {
	it(func() {
		s := newTestRecordService()

		mock.ExpectExec("INSERT INTO posture_records").
			WillReturnResult(sqlmock.NewResult(42, 1))

		m := &models.Measurement{
			NeckAngle:           45,
			ForwardHeadDistance: 80,
			HeadTilt:            5,
			Score:               70,
			SessionID:           "s1",
		}
		record, err := s.CreateRecord(context.Background(), 7, m)
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}

		if record.ID != 42 || record.UserID != 7 {
			t.Errorf("record identity = id %d user %d, want 42/7", record.ID, record.UserID)
		}
		if record.IsNeckAngleNormal {
			t.Error("neck angle 45 should be flagged abnormal")
		}
		if !record.IsForwardHeadNormal || !record.IsHeadTiltNormal {
			t.Error("forward head and head tilt should be normal")
		}
		if record.Issues == nil {
			t.Error("issues must serialize as an empty list, not null")
		}
		if !record.CreatedAt.Equal(testTime) {
			t.Errorf("created_at = %v, want %v", record.CreatedAt, testTime)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestCreateRecordInsertError(t *testing.T) {
	it(func() {
		s := newTestRecordService()

		mock.ExpectExec("INSERT INTO posture_records").
			WillReturnError(sql.ErrConnDone)

		if _, err := s.CreateRecord(context.Background(), 7, &models.Measurement{}); err == nil {
			t.Fatal("expected insert error")
		}
	})
}

func TestGetStats(t *testing.T) {
	it(func() {
		s := newTestRecordService()

		// Three records averaging 80, two of them fully normal.
		mock.ExpectQuery("SELECT COUNT\\(\\*\\)").
			WithArgs(int64(7), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(
				[]string{"count", "avg", "normal", "last"}).
				AddRow(3, 80.0, 2, testTime))
		mock.ExpectQuery("SELECT COALESCE\\(AVG\\(score\\), 0\\) FROM posture_records").
			WithArgs(int64(7), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(85.0))
		mock.ExpectQuery("SELECT COALESCE\\(AVG\\(score\\), 0\\) FROM posture_records").
			WithArgs(int64(7), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(80.0))

		stats, err := s.GetStats(context.Background(), 7, 30)
		if err != nil {
			t.Fatalf("stats failed: %v", err)
		}

		if stats.TotalRecords != 3 {
			t.Errorf("total records = %d, want 3", stats.TotalRecords)
		}
		if stats.AverageScore != 80.0 {
			t.Errorf("average score = %v, want 80", stats.AverageScore)
		}
		if stats.NormalPostureRate != 66.67 {
			t.Errorf("normal posture rate = %v, want 66.67", stats.NormalPostureRate)
		}
		if stats.ImprovementRate != 6.25 {
			t.Errorf("improvement rate = %v, want 6.25", stats.ImprovementRate)
		}
		if stats.LastMeasurement == nil || !stats.LastMeasurement.Equal(testTime) {
			t.Errorf("last measurement = %v, want %v", stats.LastMeasurement, testTime)
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestGetStatsEmptyWindow(t *testing.T) {
	it(func() {
		s := newTestRecordService()

		mock.ExpectQuery("SELECT COUNT\\(\\*\\)").
			WithArgs(int64(7), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(
				[]string{"count", "avg", "normal", "last"}).
				AddRow(0, 0.0, 0, nil))

		stats, err := s.GetStats(context.Background(), 7, 30)
		if err != nil {
			t.Fatalf("stats failed: %v", err)
		}

		if stats.TotalRecords != 0 || stats.AverageScore != 0 ||
			stats.ImprovementRate != 0 || stats.NormalPostureRate != 0 {
			t.Errorf("empty window should yield zero stats, got %+v", stats)
		}
		if stats.LastMeasurement != nil {
			t.Errorf("empty window should have no last measurement, got %v", stats.LastMeasurement)
		}

		// No improvement-rate queries should run for an empty window.
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestGetStatsZeroPreviousAverage(t *testing.T) {
	it(func() {
		s := newTestRecordService()

		mock.ExpectQuery("SELECT COUNT\\(\\*\\)").
			WillReturnRows(sqlmock.NewRows(
				[]string{"count", "avg", "normal", "last"}).
				AddRow(1, 90.0, 1, testTime))
		mock.ExpectQuery("SELECT COALESCE\\(AVG\\(score\\), 0\\)").
			WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(90.0))
		mock.ExpectQuery("SELECT COALESCE\\(AVG\\(score\\), 0\\)").
			WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(0.0))

		stats, err := s.GetStats(context.Background(), 7, 30)
		if err != nil {
			t.Fatalf("stats failed: %v", err)
		}
		if stats.ImprovementRate != 0 {
			t.Errorf("improvement rate = %v, want 0 when no prior week data", stats.ImprovementRate)
		}
	})
}

func TestGetTrends(t *testing.T) {
	it(func() {
		s := newTestRecordService()

		mock.ExpectQuery("SELECT DATE_FORMAT\\(created_at, '%Y-%m-%d'\\)").
			WithArgs(int64(7), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(
				[]string{"day", "avg_score", "count", "avg_neck", "avg_fhd"}).
				AddRow("2025-06-14", 75.333333, 3, 12.5, 88.125).
				AddRow("2025-06-15", 82.0, 2, 10.0, 70.0))

		trends, err := s.GetTrends(context.Background(), 7, 7)
		if err != nil {
			t.Fatalf("trends failed: %v", err)
		}

		if len(trends) != 2 {
			t.Fatalf("got %d trend rows, want 2", len(trends))
		}
		if trends[0].Date != "2025-06-14" || trends[1].Date != "2025-06-15" {
			t.Errorf("trend rows not in ascending date order: %+v", trends)
		}
		if trends[0].AverageScore != 75.33 {
			t.Errorf("average score = %v, want 75.33", trends[0].AverageScore)
		}
		if trends[0].ForwardHeadDistanceAvg != 88.13 {
			t.Errorf("forward head avg = %v, want 88.13", trends[0].ForwardHeadDistanceAvg)
		}
		if trends[0].RecordCount != 3 {
			t.Errorf("record count = %d, want 3", trends[0].RecordCount)
		}
	})
}

func TestGetTrendsEmptyWindow(t *testing.T) {
	it(func() {
		s := newTestRecordService()

		mock.ExpectQuery("SELECT DATE_FORMAT\\(created_at, '%Y-%m-%d'\\)").
			WillReturnRows(sqlmock.NewRows(
				[]string{"day", "avg_score", "count", "avg_neck", "avg_fhd"}))

		trends, err := s.GetTrends(context.Background(), 7, 7)
		if err != nil {
			t.Fatalf("trends failed: %v", err)
		}
		if trends == nil || len(trends) != 0 {
			t.Errorf("empty window should yield an empty list, got %v", trends)
		}
	})
}

func TestGetRecordsByUser(t *testing.T) {
	it(func() {
		s := newTestRecordService()

		columns := []string{
			"id", "user_id", "neck_angle", "shoulder_slope", "head_forward",
			"shoulder_height_diff", "score", "cervical_lordosis",
			"forward_head_distance", "head_tilt", "left_shoulder_height_diff",
			"left_scapular_winging", "right_scapular_winging",
			"shoulder_forward_movement", "head_rotation", "issues",
			"session_id", "device_info", "is_neck_angle_normal",
			"is_forward_head_normal", "is_head_tilt_normal", "created_at",
		}
		mock.ExpectQuery("FROM posture_records WHERE user_id = \\?").
			WithArgs(int64(7), 50).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(2, 7, 10.0, 1.0, 2.0, 0.5, 85.0, 30.0, 50.0, -3.0,
					0.2, 0.1, 0.3, 5.0, 1.5, `["slouching"]`, "s1", "phone",
					true, true, true, testTime).
				AddRow(1, 7, 45.0, 1.0, 2.0, 0.5, 60.0, 30.0, 120.0, -3.0,
					0.2, 0.1, 0.3, 5.0, 1.5, "[]", "", nil,
					false, false, true, testTime.Add(-time.Hour)))

		records, err := s.GetRecordsByUser(context.Background(), 7, nil, nil, 50)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}

		if len(records) != 2 {
			t.Fatalf("got %d records, want 2", len(records))
		}
		if records[0].ID != 2 {
			t.Errorf("records not newest-first: %+v", records)
		}
		if len(records[0].Issues) != 1 || records[0].Issues[0] != "slouching" {
			t.Errorf("issues = %v, want [slouching]", records[0].Issues)
		}
		if records[1].Issues == nil {
			t.Error("empty issues must decode to an empty list, not nil")
		}
		if records[1].IsNeckAngleNormal || records[1].IsForwardHeadNormal {
			t.Error("persisted abnormal flags should round-trip")
		}
	})
}

func TestGetRecordsByUserCorruptIssues(t *testing.T) {
	it(func() {
		s := newTestRecordService()

		columns := []string{
			"id", "user_id", "neck_angle", "shoulder_slope", "head_forward",
			"shoulder_height_diff", "score", "cervical_lordosis",
			"forward_head_distance", "head_tilt", "left_shoulder_height_diff",
			"left_scapular_winging", "right_scapular_winging",
			"shoulder_forward_movement", "head_rotation", "issues",
			"session_id", "device_info", "is_neck_angle_normal",
			"is_forward_head_normal", "is_head_tilt_normal", "created_at",
		}
		mock.ExpectQuery("FROM posture_records WHERE user_id = \\?").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(1, 7, 10.0, 1.0, 2.0, 0.5, 85.0, 30.0, 50.0, -3.0,
					0.2, 0.1, 0.3, 5.0, 1.5, "{not valid json", "s1", "",
					true, true, true, testTime))

		records, err := s.GetRecordsByUser(context.Background(), 7, nil, nil, 10)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}

		// A corrupt issues blob degrades to an empty list, not a failure.
		if len(records) != 1 {
			t.Fatalf("got %d records, want 1", len(records))
		}
		if records[0].Issues == nil || len(records[0].Issues) != 0 {
			t.Errorf("issues = %v, want empty list", records[0].Issues)
		}
	})
}

func TestGetRecordsByUserDateRange(t *testing.T) {
	it(func() {
		s := newTestRecordService()

		start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)

		mock.ExpectQuery("AND created_at >= \\? AND created_at < \\?").
			WithArgs(int64(7), start, end, DefaultRecordLimit).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		records, err := s.GetRecordsByUser(context.Background(), 7, &start, &end, 0)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("got %d records, want 0", len(records))
		}

		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}
