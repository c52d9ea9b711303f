package payroll

import "errors"

var (
	// ErrNotInitialized is returned when payroll operations run before Initialize.
	ErrNotInitialized = errors.New("payroll: not initialized")
	// ErrAlreadyInitialized is returned on a second Initialize call.
	ErrAlreadyInitialized = errors.New("payroll: already initialized")
	// ErrInvalidTreasury is returned when Initialize receives an empty treasury.
	ErrInvalidTreasury = errors.New("payroll: invalid treasury")
	// ErrZeroStaleness rejects a zero rate-staleness bound.
	ErrZeroStaleness = errors.New("payroll: staleness bound must be positive")
	// ErrInvalidRateFeed rejects an empty rate feed reference.
	ErrInvalidRateFeed = errors.New("payroll: invalid rate feed")

	// ErrUnauthorized is returned when the caller is not the employee's account.
	ErrUnauthorized = errors.New("payroll: caller is not the employee account")
	// ErrInvalidAccount rejects the empty account identity.
	ErrInvalidAccount = errors.New("payroll: invalid account")
	// ErrDuplicateAccount is returned when an active employee already owns the account.
	ErrDuplicateAccount = errors.New("payroll: account already in use")
	// ErrUnknownEmployee is returned for unassigned or tombstoned employee ids.
	ErrUnknownEmployee = errors.New("payroll: unknown employee")
	// ErrInvalidSalary rejects nil, zero or negative salaries.
	ErrInvalidSalary = errors.New("payroll: invalid salary")

	// ErrLengthMismatch is returned when assets and percentages differ in length.
	ErrLengthMismatch = errors.New("payroll: assets and percentages length mismatch")
	// ErrAssetNotAllowed is returned for an asset outside the allow-list.
	ErrAssetNotAllowed = errors.New("payroll: asset not allowed")
	// ErrInvalidTotal is returned when percentages do not sum to exactly 100.
	ErrInvalidTotal = errors.New("payroll: allocation must sum to 100")
	// ErrDuplicateAsset is returned when adding an already allowed asset.
	ErrDuplicateAsset = errors.New("payroll: asset already allowed")
	// ErrAllocationCooldown is returned when the allocation was changed too recently.
	ErrAllocationCooldown = errors.New("payroll: allocation changed too recently")
	// ErrNoAllocation is returned on settlement with no allocation on record.
	ErrNoAllocation = errors.New("payroll: no allocation on record")

	// ErrNothingOwed is returned when no time elapsed since the last settlement.
	ErrNothingOwed = errors.New("payroll: nothing owed")
	// ErrSettlementInProgress is returned when a settlement for the same
	// employee is already in flight.
	ErrSettlementInProgress = errors.New("payroll: settlement in progress")
	// ErrStaleRate is returned when a quote is older than the staleness bound.
	ErrStaleRate = errors.New("payroll: stale exchange rate")
	// ErrZeroRate is returned for a zero-valued exchange rate.
	ErrZeroRate = errors.New("payroll: zero exchange rate")
)
