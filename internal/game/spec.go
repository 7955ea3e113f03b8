// Package game describes two-player matrix games: the choices each player
// has and the payoff pair for every combination of choices.
package game

import (
	"errors"
	"fmt"
)

// Payoff is the reward pair for one cell of the payoff matrix.
type Payoff struct {
	Row int `json:"row" yaml:"row"` // payoff for the row player
	Col int `json:"col" yaml:"col"` // payoff for the column player
}

// Spec is an immutable game description. Construct it with NewSpec so the
// matrix dimensions are checked; the accessors hand out copies.
type Spec struct {
	title   string
	names   []string
	payoffs [][]Payoff
}

// ConfigurationError reports an invalid game or simulation setting.
// It is fatal: callers abort the run rather than retry.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// IsConfigurationError reports whether err wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Configf builds a *ConfigurationError with a formatted reason.
func Configf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NewSpec validates and copies a game definition. The choice count is the
// number of names; the matrix must be square with that side length.
func NewSpec(title string, names []string, payoffs [][]Payoff) (*Spec, error) {
	n := len(names)
	if n < 2 {
		return nil, Configf("choices", "need at least 2 choices, got %d", n)
	}
	if len(payoffs) != n {
		return nil, Configf("payoffs", "matrix has %d rows, want %d", len(payoffs), n)
	}

	s := &Spec{
		title:   title,
		names:   append([]string(nil), names...),
		payoffs: make([][]Payoff, n),
	}
	for i, row := range payoffs {
		if len(row) != n {
			return nil, Configf("payoffs", "row %d (%s) has %d cells, want %d", i, names[i], len(row), n)
		}
		s.payoffs[i] = append([]Payoff(nil), row...)
	}
	return s, nil
}

// NewSpecWithCount is NewSpec with an explicit declared choice count, as
// carried by game files. A mismatch with the names is a configuration error.
func NewSpecWithCount(count int, title string, names []string, payoffs [][]Payoff) (*Spec, error) {
	if count < 2 {
		return nil, Configf("choice_count", "need at least 2 choices, got %d", count)
	}
	if len(names) != count {
		return nil, Configf("choices", "got %d names for %d choices", len(names), count)
	}
	return NewSpec(title, names, payoffs)
}

// Title is carried through for reporting; the engine never reads it.
func (s *Spec) Title() string { return s.title }

// ChoiceCount returns the number of choices available to each player.
func (s *Spec) ChoiceCount() int { return len(s.names) }

// ChoiceNames returns a copy of the choice labels in index order.
func (s *Spec) ChoiceNames() []string {
	return append([]string(nil), s.names...)
}

// ChoiceName returns the label for index i.
func (s *Spec) ChoiceName(i int) string { return s.names[i] }

// Payoff returns the cell for row choice a and column choice b.
func (s *Spec) Payoff(a, b int) Payoff {
	return s.payoffs[a][b]
}

// Matrix returns a deep copy of the payoff matrix.
func (s *Spec) Matrix() [][]Payoff {
	out := make([][]Payoff, len(s.payoffs))
	for i, row := range s.payoffs {
		out[i] = append([]Payoff(nil), row...)
	}
	return out
}

// Definition is the serialisable form of a Spec, used for YAML game files
// and persisted runs.
type Definition struct {
	Title   string     `json:"title" yaml:"title"`
	Choices []string   `json:"choices" yaml:"choices"`
	Payoffs [][][2]int `json:"payoffs" yaml:"payoffs"`
}

// Definition converts the spec to its serialisable form.
func (s *Spec) Definition() Definition {
	d := Definition{
		Title:   s.title,
		Choices: s.ChoiceNames(),
		Payoffs: make([][][2]int, len(s.payoffs)),
	}
	for i, row := range s.payoffs {
		d.Payoffs[i] = make([][2]int, len(row))
		for j, p := range row {
			d.Payoffs[i][j] = [2]int{p.Row, p.Col}
		}
	}
	return d
}

// Spec validates the definition and builds a Spec from it.
func (d Definition) Spec() (*Spec, error) {
	matrix := make([][]Payoff, len(d.Payoffs))
	for i, row := range d.Payoffs {
		matrix[i] = make([]Payoff, len(row))
		for j, cell := range row {
			matrix[i][j] = Payoff{Row: cell[0], Col: cell[1]}
		}
	}
	return NewSpec(d.Title, d.Choices, matrix)
}
