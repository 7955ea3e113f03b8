package agent

// State is the exported view of an agent, suitable for JSON output and
// persistence.
type State struct {
	ID            string      `json:"id"`
	Strategy      []float64   `json:"strategy"`
	GamesPlayed   int         `json:"games_played"`
	TotalPayoff   float64     `json:"total_payoff"`
	AveragePayoff float64     `json:"average_payoff"`
	ChoiceCounts  []int       `json:"choice_counts"`
	History       [][]float64 `json:"history,omitempty"`
	Choices       []int       `json:"choices,omitempty"`
}

// Snapshot captures the agent's current state. The result shares no memory
// with the agent.
func (a *Agent) Snapshot() State {
	return State{
		ID:            a.id,
		Strategy:      a.Strategy(),
		GamesPlayed:   a.gamesPlayed,
		TotalPayoff:   a.totalPayoff,
		AveragePayoff: a.average,
		ChoiceCounts:  a.ChoiceCounts(),
		History:       a.History(),
		Choices:       append([]int(nil), a.choices...),
	}
}

// Summary drops the per-game history from a state.
func (s State) Summary() State {
	s.History = nil
	s.Choices = nil
	return s
}
