// Package payroll implements the payroll accounting engine: the employee
// registry, per-employee allocation table and the settlement engine that
// pays accrued salary out of the treasury.
package payroll

import (
	"math/big"
	"time"
)

// Employee is a registry record. Salary is the truncated annual figure in
// denomination-asset base units; LastSettledAt is the settlement watermark.
type Employee struct {
	ID                  int64
	Account             string
	Salary              *big.Int
	Name                string
	LastSettledAt       time.Time
	Active              bool
	AllocationChangedAt *time.Time
}

// Sentinel reports whether the record is the zeroed placeholder returned for
// tombstoned or unassigned ids.
func (e Employee) Sentinel() bool {
	return e.Account == ""
}

// AllocationLine is one asset share of an employee's payout split.
type AllocationLine struct {
	Asset   string
	Percent int64
}

// Config holds the global payroll parameters set at initialization.
type Config struct {
	Treasury          string
	DenominationAsset string
	RateFeedURL       string
	StalenessBound    time.Duration
	Initialized       bool
	InitializedAt     time.Time
}

// SettlementTransfer describes one executed asset transfer of a settlement.
type SettlementTransfer struct {
	Asset     string
	Amount    *big.Int
	Recipient string
}

// Settlement summarises a successful settle call.
type Settlement struct {
	EmployeeID int64
	SettledAt  time.Time
	Elapsed    time.Duration
	Transfers  []SettlementTransfer
}
