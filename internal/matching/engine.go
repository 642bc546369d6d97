// Package matching proposes profitable multi-case theatre groupings. The
// packing is a greedy heuristic: it promises a valid capacity-respecting
// grouping set, not an optimal one.
package matching

import (
	"sort"

	"github.com/google/uuid"

	"github.com/casecoord/casecoord/internal/cases"
	"github.com/casecoord/casecoord/internal/theatre"
)

// Config holds the tunable cost model. All prices are deployment
// configuration, not clinical facts.
type Config struct {
	FixedTransportCost    float64
	PerEquipmentSetupCost float64
	PerCaseTechCost       float64
	// Revenue maps procedure type to expected revenue. Unlisted types use
	// DefaultRevenue.
	Revenue        map[string]float64
	DefaultRevenue float64
}

// DefaultConfig returns the pricing the coordination team started from.
func DefaultConfig() Config {
	return Config{
		FixedTransportCost:    500,
		PerEquipmentSetupCost: 200,
		PerCaseTechCost:       300,
		Revenue: map[string]float64{
			"fusion_biopsy": 1200,
			"hifu":          2500,
			"ire":           3000,
		},
		DefaultRevenue: 1000,
	}
}

// Grouping is one proposed slot booking covering two or more cases.
type Grouping struct {
	SlotID           uuid.UUID   `json:"slot_id"`
	CaseIDs          []uuid.UUID `json:"case_ids"`
	EquipmentNeeded  []string    `json:"equipment_needed"`
	EstimatedCost    float64     `json:"estimated_cost"`
	EstimatedRevenue float64     `json:"estimated_revenue"`
	Profit           float64     `json:"profit"`
	ProfitMargin     float64     `json:"profit_margin"`
}

// baseEquipment is needed for every procedure; procedureEquipment adds the
// per-type devices.
var (
	baseEquipment      = []string{"BK Ultrasound", "6-DOF Stepper"}
	procedureEquipment = map[string]string{
		"fusion_biopsy": "MIM Fusion Software",
		"hifu":          "HIFU Device",
		"ire":           "NanoKnife System",
	}
)

// RequiredEquipment returns the deduplicated equipment list for a set of
// cases, base items first, then per-procedure devices in first-use order.
func RequiredEquipment(caseList []*cases.CaseRecord) []string {
	equipment := append([]string(nil), baseEquipment...)
	seen := map[string]bool{}
	for _, item := range equipment {
		seen[item] = true
	}
	for _, cr := range caseList {
		if item, ok := procedureEquipment[cr.ProcedureType]; ok && !seen[item] {
			seen[item] = true
			equipment = append(equipment, item)
		}
	}
	return equipment
}

func (c Config) revenueFor(procedureType string) float64 {
	if r, ok := c.Revenue[procedureType]; ok {
		return r
	}
	return c.DefaultRevenue
}

// Estimate prices a set of cases sharing one slot.
func (c Config) Estimate(caseList []*cases.CaseRecord) (equipment []string, cost, revenue float64) {
	equipment = RequiredEquipment(caseList)
	cost = c.FixedTransportCost +
		float64(len(equipment))*c.PerEquipmentSetupCost +
		float64(len(caseList))*c.PerCaseTechCost
	for _, cr := range caseList {
		revenue += c.revenueFor(cr.ProcedureType)
	}
	return equipment, cost, revenue
}

// ProposeGroupings greedily packs unscheduled cases into the slots in input
// order. Each case is placed at most once. Slots ending up with fewer than
// two cases are dropped since a single case gains nothing from batching.
// The result is sorted by profit, highest first.
func ProposeGroupings(cfg Config, unscheduled []*cases.CaseRecord, slots []*theatre.TheatreSlot) []Grouping {
	placed := make(map[uuid.UUID]bool)
	var groupings []Grouping

	for _, slot := range slots {
		remaining := slot.DurationMinutes
		var group []*cases.CaseRecord
		for _, cr := range unscheduled {
			if placed[cr.CaseID] {
				continue
			}
			d := theatre.EstimateDuration(cr.ProcedureType)
			if d > remaining {
				continue
			}
			group = append(group, cr)
			placed[cr.CaseID] = true
			remaining -= d
		}

		if len(group) < 2 {
			// Give the cases back for later slots.
			for _, cr := range group {
				delete(placed, cr.CaseID)
			}
			continue
		}

		equipment, cost, revenue := cfg.Estimate(group)
		g := Grouping{
			SlotID:           slot.SlotID,
			EquipmentNeeded:  equipment,
			EstimatedCost:    cost,
			EstimatedRevenue: revenue,
			Profit:           revenue - cost,
		}
		if revenue > 0 {
			g.ProfitMargin = g.Profit / revenue * 100
		}
		for _, cr := range group {
			g.CaseIDs = append(g.CaseIDs, cr.CaseID)
		}
		groupings = append(groupings, g)
	}

	sort.SliceStable(groupings, func(i, j int) bool {
		return groupings[i].Profit > groupings[j].Profit
	})
	return groupings
}
