package rules

import (
	"errors"
	"fmt"
	"time"
)

// Selector types recognised by the compiler.
type SelectorType string

const (
	SelectBySupplierID   SelectorType = "supplier_id"
	SelectBySupplierType SelectorType = "supplier_type"
	SelectByNamePattern  SelectorType = "supplier_name_pattern"
)

// Fields a rule may override.
type Field string

const (
	FieldMaxDelayDays Field = "max_delay_days"
	FieldPriority     Field = "priority"
)

// Operations applied to a field.
type Operation string

const (
	OpSet Operation = "set"
	OpAdd Operation = "add"
)

// Selector picks the suppliers a rule applies to. Exactly one of the
// supplier fields is populated, matching Type.
type Selector struct {
	Type         SelectorType `json:"type"`
	SupplierID   int64        `json:"supplier_id,omitempty"`
	SupplierType string       `json:"supplier_type,omitempty"`
	NamePattern  string       `json:"name_pattern,omitempty"`
}

// PolicyEffect is the structured outcome of compiling one rule statement.
type PolicyEffect struct {
	Selector  Selector  `json:"selector"`
	Field     Field     `json:"field"`
	Operation Operation `json:"operation"`
	Value     int       `json:"value"`
}

// RuleChange is one submitted policy statement. The row is persisted before
// compilation; Effect stays nil and Applied false until the statement parses
// and applies cleanly.
type RuleChange struct {
	ID        int64         `json:"id"`
	Text      string        `json:"text"`
	Applied   bool          `json:"applied"`
	Effect    *PolicyEffect `json:"effect,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	AppliedAt *time.Time    `json:"applied_at,omitempty"`
}

// ErrNotFound indicates a missing rule change row.
var ErrNotFound = errors.New("rules: not found")

// ErrUnknownSupplier indicates a rule referencing a supplier that does not
// exist yet. The rule stays pending and may apply later.
var ErrUnknownSupplier = errors.New("rules: unknown supplier")

// ParseError reports a statement the closed grammar does not recognise,
// naming the segment that failed to match.
type ParseError struct {
	Text    string
	Segment string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("rules: unrecognised statement near %q", e.Segment)
}
