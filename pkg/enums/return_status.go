package enums

import "fmt"

// ReturnStatus tracks a customer return request.
type ReturnStatus string

const (
	ReturnStatusRequested ReturnStatus = "REQUESTED"
	ReturnStatusApproved  ReturnStatus = "APPROVED"
	ReturnStatusRejected  ReturnStatus = "REJECTED"
	ReturnStatusRefunded  ReturnStatus = "REFUNDED"
)

var validReturnStatuses = []ReturnStatus{
	ReturnStatusRequested,
	ReturnStatusApproved,
	ReturnStatusRejected,
	ReturnStatusRefunded,
}

func (s ReturnStatus) String() string {
	return string(s)
}

func (s ReturnStatus) IsValid() bool {
	for _, candidate := range validReturnStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsOpen reports whether the return still blocks a new request for the item.
func (s ReturnStatus) IsOpen() bool {
	return s == ReturnStatusRequested || s == ReturnStatusApproved
}

func ParseReturnStatus(value string) (ReturnStatus, error) {
	for _, candidate := range validReturnStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return status %q", value)
}

// ReturnDecision is the admin resolution of a return request.
type ReturnDecision string

const (
	ReturnDecisionApprove ReturnDecision = "approve"
	ReturnDecisionReject  ReturnDecision = "reject"
)

func (d ReturnDecision) IsValid() bool {
	return d == ReturnDecisionApprove || d == ReturnDecisionReject
}
