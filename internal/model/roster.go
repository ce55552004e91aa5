package model

import "time"

type Teacher struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Email      string    `db:"email" json:"email"`
	Department string    `db:"department" json:"department"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// Student belongs to exactly one class.
type Student struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	Email            string    `db:"email" json:"email"`
	EnrollmentNumber string    `db:"enrollment_number" json:"enrollmentNumber"`
	Department       string    `db:"department" json:"department"`
	Year             int       `db:"year" json:"year"`
	Semester         int       `db:"semester" json:"semester"`
	ClassID          string    `db:"class_id" json:"classId"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

type Course struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	TeacherID string    `db:"teacher_id" json:"teacherId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Class is a cohort such as "CSE-A" or "Year2-Sem1-A".
type Class struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// SessionClass links a session to a class eligible to scan into it.
type SessionClass struct {
	ID        string    `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"sessionId"`
	ClassID   string    `db:"class_id" json:"classId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
