package model

import "time"

type Session struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"courseId"`
	TeacherID string    `db:"teacher_id" json:"teacherId"`
	StartTime time.Time `db:"start_time" json:"startTime"`
	EndTime   time.Time `db:"end_time" json:"endTime"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Remaining is how long the session has left before its end time. Zero or
// negative means the session should be treated as expired.
func (s *Session) Remaining(now time.Time) time.Duration {
	return s.EndTime.Sub(now)
}

type CreateSessionParams struct {
	CourseID  string
	TeacherID string
	StartTime time.Time
	EndTime   time.Time
}
