package service

import (
	"fmt"
	"strings"

	appErrors "github.com/noah-isme/tc-schedule-api/pkg/errors"
)

// CapacityOverride is a staff decision to exceed a seat limit.
type CapacityOverride struct {
	Allow  bool
	Reason string
}

// CapacityGuard decides seat and transfer quota questions over plain counts.
type CapacityGuard struct {
	OverrideReasonMinLength int
	TransferQuotaPerCourse  int
}

// NewCapacityGuard applies defaults for non-positive settings.
func NewCapacityGuard(overrideReasonMinLength, transferQuota int) CapacityGuard {
	if overrideReasonMinLength <= 0 {
		overrideReasonMinLength = 20
	}
	if transferQuota <= 0 {
		transferQuota = 1
	}
	return CapacityGuard{OverrideReasonMinLength: overrideReasonMinLength, TransferQuotaPerCourse: transferQuota}
}

// CheckSeat fails when adding one more student to enrolled would exceed max, unless the
// override is allowed with a long enough reason. A non-positive max means unlimited.
func (g CapacityGuard) CheckSeat(enrolled, max int, override CapacityOverride, code, fullMessage string) error {
	if max <= 0 || enrolled+1 <= max {
		return nil
	}
	if !override.Allow {
		return appErrors.BusinessRule(code, fullMessage)
	}
	if len([]rune(strings.TrimSpace(override.Reason))) < g.OverrideReasonMinLength {
		return appErrors.BusinessRule(appErrors.CodeCapacityExceeded,
			fmt.Sprintf("Capacity override requires a reason of at least %d characters", g.OverrideReasonMinLength))
	}
	return nil
}

// CheckTransferQuota fails once the student has used every approved transfer for the course.
func (g CapacityGuard) CheckTransferQuota(used int) error {
	if used >= g.TransferQuotaPerCourse {
		return appErrors.BusinessRule(appErrors.CodeTransferLimitExceeded,
			fmt.Sprintf("Transfer limit reached: at most %d approved transfer(s) per course", g.TransferQuotaPerCourse))
	}
	return nil
}

// RemainingTransfers never goes below zero.
func (g CapacityGuard) RemainingTransfers(used int) int {
	if used >= g.TransferQuotaPerCourse {
		return 0
	}
	return g.TransferQuotaPerCourse - used
}
