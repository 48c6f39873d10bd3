package suppliers

import (
	"time"
)

// Supplier types drive the default payment policy: core suppliers tolerate
// shorter delays than flex suppliers.
const (
	TypeCore = "core"
	TypeFlex = "flex"
)

// Supplier represents a supplier entity.
type Supplier struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	MaxDelayDays int       `json:"max_delay_days"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ValidType reports whether t is a recognised supplier type.
func ValidType(t string) bool {
	return t == TypeCore || t == TypeFlex
}
