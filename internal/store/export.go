package store

import (
	"encoding/json"
	"fmt"
	"io"
)

// HistoryRecord is one line of a history export: an agent's strategy after
// step games, plus the choice that produced it. Choice is nil for step 0.
type HistoryRecord struct {
	Run      string    `json:"run"`
	Agent    string    `json:"agent"`
	Step     int       `json:"step"`
	Strategy []float64 `json:"strategy"`
	Choice   *int      `json:"choice,omitempty"`
}

// ExportHistoryJSONL writes every agent's strategy history to w, one JSON
// object per line, agents in population order.
func ExportHistoryJSONL(w io.Writer, run *Run) error {
	enc := json.NewEncoder(w)
	for _, a := range run.Agents {
		if len(a.History) == 0 {
			return fmt.Errorf("run %s has no history for agent %s", run.ID, a.ID)
		}
		for step, strategy := range a.History {
			rec := HistoryRecord{
				Run:      run.ID,
				Agent:    a.ID,
				Step:     step,
				Strategy: strategy,
			}
			if step > 0 && step-1 < len(a.Choices) {
				choice := a.Choices[step-1]
				rec.Choice = &choice
			}
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("failed to write history for %s: %w", a.ID, err)
			}
		}
	}
	return nil
}

// ExportOutcomesJSONL writes the game log to w, one outcome per line.
func ExportOutcomesJSONL(w io.Writer, run *Run) error {
	enc := json.NewEncoder(w)
	for i, o := range run.Outcomes {
		if err := enc.Encode(o); err != nil {
			return fmt.Errorf("failed to write outcome %d: %w", i, err)
		}
	}
	return nil
}
