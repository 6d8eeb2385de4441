// Package models contains the domain models for the application.
package models

import (
	"time"
)

// Book is the catalog record a reservation refers to by slug.
type Book struct {
	Slug      string    `db:"slug" json:"slug"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}

func (b *Book) String() string {
	return b.Title
}

// User is the identity record a reservation refers to by username.
type User struct {
	Username  string    `db:"username" json:"username"`
	Email     *string   `db:"email" json:"email,omitempty"`
	IsStaff   bool      `db:"is_staff" json:"is_staff"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}

// SweepRecordError describes one record a sweep failed to process.
type SweepRecordError struct {
	RecordID string `json:"record_id"`
	Error    string `json:"error"`
}

// SweepResult contains the results of a sweep run.
type SweepResult struct {
	Job       string             `json:"job"`
	OK        bool               `json:"ok"`
	Processed int                `json:"processed"`
	Errors    []SweepRecordError `json:"errors"`
	RanAt     time.Time          `json:"ran_at"`
}

// NewSweepResult starts an empty successful result.
func NewSweepResult(job string, ranAt time.Time) *SweepResult {
	return &SweepResult{Job: job, OK: true, Errors: []SweepRecordError{}, RanAt: ranAt}
}

// Fail records a per-record failure.
func (r *SweepResult) Fail(recordID string, err error) {
	r.OK = false
	r.Errors = append(r.Errors, SweepRecordError{RecordID: recordID, Error: err.Error()})
}
