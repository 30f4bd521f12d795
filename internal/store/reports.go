package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"
)

// DoctorReportRepository persists Data Doctor audit output for operator
// review. Reports are stored as the JSON the `doctor run` CLI prints, so
// the operator sees the same document either way.
type DoctorReportRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewDoctorReportRepository(db *sql.DB, log zerolog.Logger) *DoctorReportRepository {
	return &DoctorReportRepository{db: db, log: log.With().Str("repo", "doctor_report").Logger()}
}

// Insert stores one audit report.
func (r *DoctorReportRepository) Insert(ctx context.Context, createdAt time.Time, reportJSON string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO doctor_reports (created_at, report_json) VALUES (?, ?)`,
		formatTimestamp(createdAt), reportJSON)
	return err
}

// Latest returns the newest report's JSON, or "" when none exists.
func (r *DoctorReportRepository) Latest(ctx context.Context) (string, error) {
	var report string
	err := r.db.QueryRowContext(ctx,
		`SELECT report_json FROM doctor_reports ORDER BY id DESC LIMIT 1`).Scan(&report)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return report, err
}
