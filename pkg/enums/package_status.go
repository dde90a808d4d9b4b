package enums

import "fmt"

// PackageStatus maps to the forwarding lifecycle of a warehouse package.
// The order is strict: a package never moves backwards automatically.
type PackageStatus string

const (
	PackageStatusPending    PackageStatus = "pending"
	PackageStatusReceived   PackageStatus = "received"
	PackageStatusProcessing PackageStatus = "processing"
	PackageStatusShipped    PackageStatus = "shipped"
	PackageStatusDelivered  PackageStatus = "delivered"
)

var packageStatusOrder = []PackageStatus{
	PackageStatusPending,
	PackageStatusReceived,
	PackageStatusProcessing,
	PackageStatusShipped,
	PackageStatusDelivered,
}

// IsValid checks whether the given status matches the canonical enum.
func (s PackageStatus) IsValid() bool {
	for _, candidate := range packageStatusOrder {
		if candidate == s {
			return true
		}
	}
	return false
}

// Rank returns the position of the status in the lifecycle, -1 when unknown.
func (s PackageStatus) Rank() int {
	for i, candidate := range packageStatusOrder {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Terminal reports whether no further automatic transition applies.
func (s PackageStatus) Terminal() bool {
	return s == PackageStatusDelivered
}

// ParsePackageStatus converts raw strings into PackageStatus.
func ParsePackageStatus(value string) (PackageStatus, error) {
	for _, candidate := range packageStatusOrder {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid package status %q", value)
}
