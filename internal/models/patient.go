package models

import "time"

// Patient is the root of the clinical record tree.
type Patient struct {
	ID         string         `json:"id"`
	GivenName  string         `json:"given_name"`
	FamilyName string         `json:"family_name"`
	BirthDate  string         `json:"birth_date,omitempty"`
	Sex        string         `json:"sex,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Episode is one treatment episode belonging to a patient.
type Episode struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patient_id"`
	Title     string    `json:"title"`
	Diagnosis string    `json:"diagnosis,omitempty"`
	StartedAt time.Time `json:"started_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stage is one stage of an episode and owns an ordered file list.
type Stage struct {
	ID        string    `json:"id"`
	EpisodeID string    `json:"episode_id"`
	PatientID string    `json:"patient_id"`
	Title     string    `json:"title"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AttachmentPoint addresses the stage that owns a file list.
type AttachmentPoint struct {
	PatientID string `json:"patient_id"`
	EpisodeID string `json:"episode_id"`
	StageID   string `json:"stage_id"`
}
