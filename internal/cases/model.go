package cases

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle stage of a case.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPlanning  Status = "planning"
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
)

var validStatuses = map[Status]bool{
	StatusDraft: true, StatusPlanning: true, StatusScheduled: true,
	StatusConfirmed: true, StatusCompleted: true,
}

// CaseRecord holds the non-identifying clinical metadata for one case. The
// real patient identifier lives in the vault; Handle is the only link and is
// opaque by construction.
type CaseRecord struct {
	CaseID               uuid.UUID `json:"case_id"`
	Handle               *string   `json:"handle,omitempty"`
	Status               Status    `json:"status"`
	ProcedureType        string    `json:"procedure_type"`
	LesionClassification string    `json:"lesion_classification"`
	TargetCount          int       `json:"target_count"`
	ImagingQuality       string    `json:"imaging_quality"`
	GlandVolume          float64   `json:"gland_volume"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// CasePatch carries the fields a partial update may change. Nil fields keep
// their stored value; an explicit empty Handle detaches the case from the
// vault. Status never moves through a patch.
type CasePatch struct {
	Handle               *string  `json:"handle"`
	ProcedureType        *string  `json:"procedure_type"`
	LesionClassification *string  `json:"lesion_classification"`
	TargetCount          *int     `json:"target_count"`
	ImagingQuality       *string  `json:"imaging_quality"`
	GlandVolume          *float64 `json:"gland_volume"`
}

// EmailEvent is a pending notification attached to a case. The core tracks
// only pending counts and resolution; sending is an external concern.
type EmailEvent struct {
	ID         uuid.UUID  `json:"id"`
	CaseID     uuid.UUID  `json:"case_id"`
	Subject    string     `json:"subject"`
	CreatedAt  time.Time  `json:"created_at"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// StatusCounts summarizes how many cases sit in each lifecycle stage.
type StatusCounts struct {
	Draft     int `json:"draft"`
	Planning  int `json:"planning"`
	Scheduled int `json:"scheduled"`
	Confirmed int `json:"confirmed"`
	Completed int `json:"completed"`
}
