package agent

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/casecoord/casecoord/internal/cases"
)

// ErrWhitelistViolation is returned when a case record carries a field the
// payload builder has not classified. The payload is not built at all.
var ErrWhitelistViolation = errors.New("case record field not covered by agent whitelist")

// CaseMetadata is the complete set of fields the agent is allowed to see for
// one case.
type CaseMetadata struct {
	ProcedureType        string `json:"procedure_type"`
	LesionClassification string `json:"lesion_classification,omitempty"`
	TargetCount          int    `json:"target_count"`
	ImagingQuality       string `json:"imaging_quality,omitempty"`
}

// EmailLogEntry is anonymized email context forwarded to the agent.
type EmailLogEntry struct {
	Subject   string `json:"subject"`
	Timestamp int64  `json:"timestamp"`
}

// BucketState is the full agent-visible view: anonymous IDs grouped by
// lifecycle bucket plus whitelisted metadata.
type BucketState struct {
	Unsorted       []string                `json:"unsorted"`
	WantsToProceed []string                `json:"wants_to_proceed"`
	Booked         []string                `json:"booked"`
	CaseMetadata   map[string]CaseMetadata `json:"case_metadata"`
	EmailLog       []EmailLogEntry         `json:"email_log"`
}

// forwardedFields are copied into the payload; withheldFields are known,
// deliberately excluded fields. Every field of cases.CaseRecord must appear
// in exactly one set, so a newly added field cannot leak silently: it fails
// the build until someone classifies it here.
var (
	forwardedFields = map[string]bool{
		"Status":               true,
		"ProcedureType":        true,
		"LesionClassification": true,
		"TargetCount":          true,
		"ImagingQuality":       true,
	}
	withheldFields = map[string]bool{
		"CaseID":      true, // replaced by the anonymous ID
		"Handle":      true, // links to the identifier vault
		"GlandVolume": true, // not needed by the agent
		"CreatedAt":   true,
		"UpdatedAt":   true,
	}
)

// checkWhitelist verifies every CaseRecord field is classified.
func checkWhitelist() error {
	return checkFieldsClassified(reflect.TypeOf(cases.CaseRecord{}))
}

func checkFieldsClassified(t reflect.Type) error {
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Name
		if !forwardedFields[name] && !withheldFields[name] {
			return fmt.Errorf("%w: %s", ErrWhitelistViolation, name)
		}
	}
	return nil
}

// bucketFor maps a lifecycle status to the agent's coarser view.
func bucketFor(status cases.Status) string {
	switch status {
	case cases.StatusScheduled:
		return "wants_to_proceed"
	case cases.StatusConfirmed, cases.StatusCompleted:
		return "booked"
	default:
		return "unsorted"
	}
}

// BuildBucketState assembles the anonymized payload for the agent. It fails
// without building anything if any case record field is unclassified.
func BuildBucketState(anon *Anonymizer, caseList []*cases.CaseRecord, emails []EmailLogEntry) (*BucketState, error) {
	if err := checkWhitelist(); err != nil {
		return nil, err
	}

	state := &BucketState{
		Unsorted:       []string{},
		WantsToProceed: []string{},
		Booked:         []string{},
		CaseMetadata:   make(map[string]CaseMetadata, len(caseList)),
		EmailLog:       emails,
	}
	if state.EmailLog == nil {
		state.EmailLog = []EmailLogEntry{}
	}

	for _, cr := range caseList {
		id := anon.AnonymousID(cr.CaseID)
		switch bucketFor(cr.Status) {
		case "wants_to_proceed":
			state.WantsToProceed = append(state.WantsToProceed, id)
		case "booked":
			state.Booked = append(state.Booked, id)
		default:
			state.Unsorted = append(state.Unsorted, id)
		}
		state.CaseMetadata[id] = CaseMetadata{
			ProcedureType:        cr.ProcedureType,
			LesionClassification: cr.LesionClassification,
			TargetCount:          cr.TargetCount,
			ImagingQuality:       cr.ImagingQuality,
		}
	}
	return state, nil
}
