package domain

import "time"

// UrgencyLevel grades how soon a patient needs care.
type UrgencyLevel string

const (
	UrgencyCritical   UrgencyLevel = "critical"
	UrgencyUrgent     UrgencyLevel = "urgent"
	UrgencySemiUrgent UrgencyLevel = "semi_urgent"
	UrgencyNonUrgent  UrgencyLevel = "non_urgent"
)

// PatientInfo describes the patient being triaged.
type PatientInfo struct {
	Name           string   `json:"name" validate:"required,max=100"`
	IDCard         string   `json:"id_card,omitempty" validate:"max=32"`
	Age            int      `json:"age" validate:"gte=0,lte=150"`
	Gender         string   `json:"gender" validate:"required,oneof=male female other"`
	Weight         *float64 `json:"weight,omitempty" validate:"omitempty,gt=0,lte=500"`
	Height         *float64 `json:"height,omitempty" validate:"omitempty,gt=0,lte=300"`
	Allergies      []string `json:"allergies,omitempty"`
	Medications    []string `json:"medications,omitempty"`
	MedicalHistory []string `json:"medical_history,omitempty"`
}

// VitalSigns are the measurements taken on scene. Every field is optional.
type VitalSigns struct {
	HeartRate              *int     `json:"heart_rate,omitempty" validate:"omitempty,gte=0,lte=300"`
	BloodPressureSystolic  *int     `json:"blood_pressure_systolic,omitempty" validate:"omitempty,gte=0,lte=300"`
	BloodPressureDiastolic *int     `json:"blood_pressure_diastolic,omitempty" validate:"omitempty,gte=0,lte=200"`
	RespiratoryRate        *int     `json:"respiratory_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	Temperature            *float64 `json:"temperature,omitempty" validate:"omitempty,gte=25,lte=45"`
	OxygenSaturation       *int     `json:"oxygen_saturation,omitempty" validate:"omitempty,gte=0,lte=100"`
	BloodGlucose           *float64 `json:"blood_glucose,omitempty" validate:"omitempty,gte=0,lte=50"`
}

// SymptomInfo is the presenting complaint.
type SymptomInfo struct {
	ChiefComplaint  string   `json:"chief_complaint" validate:"required,max=500"`
	Symptoms        []string `json:"symptoms,omitempty"`
	PainLevel       *int     `json:"pain_level,omitempty" validate:"omitempty,gte=1,lte=10"`
	SymptomDuration string   `json:"symptom_duration,omitempty" validate:"max=100"`
}

// TriageRequest is the body of POST /v1/triage/analyze/stream.
type TriageRequest struct {
	PatientInfo PatientInfo `json:"patient_info"`
	VitalSigns  VitalSigns  `json:"vital_signs"`
	SymptomInfo SymptomInfo `json:"symptom_info"`
}

// TriageAnalysis is the structured result extracted from the model's answer.
type TriageAnalysis struct {
	UrgencyLevel             UrgencyLevel `json:"urgency_level"`
	PriorityScore            int          `json:"priority_score"`
	RecommendedActions       []string     `json:"recommended_actions"`
	EstimatedWaitTime        string       `json:"estimated_wait_time"`
	DepartmentRecommendation string       `json:"department_recommendation"`
	AdditionalNotes          string       `json:"additional_notes"`
}

// TriageRecord is one persisted triage analysis.
type TriageRecord struct {
	RecordID  string         `json:"record_id"`
	UserID    string         `json:"user_id"`
	Request   TriageRequest  `json:"request"`
	Analysis  TriageAnalysis `json:"analysis"`
	Degraded  bool           `json:"degraded"`
	CreatedAt time.Time      `json:"created_at"`
}

// TriageResult is the data of an analysis_result frame.
type TriageResult struct {
	RecordID string         `json:"record_id"`
	Analysis TriageAnalysis `json:"analysis"`
}
