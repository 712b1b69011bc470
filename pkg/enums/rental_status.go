package enums

import "fmt"

// RentalStatus is derived from is_returned and the due date; it is never stored.
type RentalStatus string

const (
	RentalStatusActive   RentalStatus = "active"
	RentalStatusOverdue  RentalStatus = "overdue"
	RentalStatusReturned RentalStatus = "returned"
)

var validRentalStatuses = []RentalStatus{
	RentalStatusActive,
	RentalStatusOverdue,
	RentalStatusReturned,
}

// String implements fmt.Stringer.
func (s RentalStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known rental status.
func (s RentalStatus) IsValid() bool {
	for _, candidate := range validRentalStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseRentalStatus converts raw input into RentalStatus.
func ParseRentalStatus(value string) (RentalStatus, error) {
	for _, candidate := range validRentalStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rental status %q", value)
}
