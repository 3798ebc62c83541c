package session

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repo persists attendance sessions in Postgres.
type Repo struct {
	db *sql.DB
}

// NewRepo creates a repo.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Active returns the open or submitted session for (classID, date).
func (r *Repo) Active(ctx context.Context, classID, date string) (string, string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT ref, status
		FROM attendance_sessions
		WHERE class_id = $1 AND session_date = $2 AND status IN ('open', 'submitted')
		ORDER BY created_at DESC
		LIMIT 1
	`, classID, date)
	var ref, status string
	if err := row.Scan(&ref, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", nil
		}
		return "", "", err
	}
	return ref, status, nil
}

// Insert writes a new session row.
func (r *Repo) Insert(ctx context.Context, row Row) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_sessions (ref, subject_id, class_id, room_id, session_date, session_time, status, opened_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, row.Ref, row.SubjectID, row.ClassID, row.RoomID, row.Date, row.Time, row.Status, row.OpenedBy, row.CreatedAt)
	return err
}

// SetMethod records the capture method choice.
func (r *Repo) SetMethod(ctx context.Context, ref string, method Method) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions SET method = $2 WHERE ref = $1
	`, ref, string(method))
	return err
}

// SetStatus moves a session to a new lifecycle status.
func (r *Repo) SetStatus(ctx context.Context, ref, status string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions SET status = $2 WHERE ref = $1
	`, ref, status)
	return err
}

// Status reads a session's lifecycle status.
func (r *Repo) Status(ctx context.Context, ref string) (string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT status FROM attendance_sessions WHERE ref = $1
	`, ref)
	var status string
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSessionNotFound
		}
		return "", err
	}
	return status, nil
}

// Submit writes the finalized roster and marks the session submitted in one
// transaction. Retrying after a failure replaces any partial write.
func (r *Repo) Submit(ctx context.Context, ref string, roster []Record, submittedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM attendance_records WHERE session_ref = $1
	`, ref); err != nil {
		return err
	}
	for i, rec := range roster {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO attendance_records (session_ref, student_id, roll_number, display_name, presence, position, submitted_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, ref, rec.StudentID, rec.RollNumber, rec.DisplayName, string(rec.Presence), i, submittedAt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE attendance_sessions SET status = $2 WHERE ref = $1
	`, ref, StatusSubmitted); err != nil {
		return err
	}
	return tx.Commit()
}

// ClassRoster returns the full class roster in roll number order.
func (r *Repo) ClassRoster(ctx context.Context, classID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, roll_number, display_name
		FROM students
		WHERE class_id = $1
		ORDER BY roll_number
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roster []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.StudentID, &rec.RollNumber, &rec.DisplayName); err != nil {
			return nil, err
		}
		roster = append(roster, rec)
	}
	return roster, rows.Err()
}

// Find returns a session row and any submitted roster, in stored order.
func (r *Repo) Find(ctx context.Context, ref string) (Row, []Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT ref, subject_id, class_id, room_id, session_date, session_time, COALESCE(method, ''), status, opened_by, created_at
		FROM attendance_sessions WHERE ref = $1
	`, ref)
	var out Row
	if err := row.Scan(&out.Ref, &out.SubjectID, &out.ClassID, &out.RoomID, &out.Date, &out.Time, &out.Method, &out.Status, &out.OpenedBy, &out.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Row{}, nil, ErrSessionNotFound
		}
		return Row{}, nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, roll_number, display_name, presence
		FROM attendance_records
		WHERE session_ref = $1
		ORDER BY position
	`, ref)
	if err != nil {
		return Row{}, nil, err
	}
	defer rows.Close()

	var roster []Record
	for rows.Next() {
		var rec Record
		var presence string
		if err := rows.Scan(&rec.StudentID, &rec.RollNumber, &rec.DisplayName, &presence); err != nil {
			return Row{}, nil, err
		}
		rec.Presence = Presence(presence)
		roster = append(roster, rec)
	}
	return out, roster, rows.Err()
}
