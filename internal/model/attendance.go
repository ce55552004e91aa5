package model

import "time"

// Attendance is unique per (session, student); a second accepted scan never
// creates a second row.
type Attendance struct {
	ID        string    `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"sessionId"`
	StudentID string    `db:"student_id" json:"studentId"`
	MarkedAt  time.Time `db:"marked_at" json:"markedAt"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type MarkAttendanceParams struct {
	SessionID string
	StudentID string
	MarkedAt  time.Time
}
