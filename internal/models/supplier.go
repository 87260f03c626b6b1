package models

import (
	"fmt"
	"strings"
)

// Supplier statuses. Only Active and AtCapacity are changed by capacity reconciliation.
const (
	SupplierActive            = "Active"
	SupplierAtCapacity        = "AtCapacity"
	SupplierNonCompliant      = "NonCompliant"
	SupplierPendingOnboarding = "PendingOnboarding"
)

// Supplier attribute names written by the capacity ledger.
const (
	FieldCurrentActiveReferrals = "currentActiveReferrals"
	FieldMaxActiveReferrals     = "maxActiveReferrals"
	FieldPerformanceScore       = "performanceScore"
	FieldActiveStatus           = "activeStatus"
	FieldCertified              = "certified"
)

// SupplierDefaults fill attributes that are absent from a stored supplier.
type SupplierDefaults struct {
	MaxActiveReferrals int
	PerformanceScore   int
}

var DefaultSupplierDefaults = SupplierDefaults{MaxActiveReferrals: 5, PerformanceScore: 50}

type Supplier struct {
	ID                     string   `json:"id"`
	Name                   string   `json:"name"`
	Email                  string   `json:"email"`
	Phone                  string   `json:"phone,omitempty"`
	HomeState              string   `json:"homeState"`
	ServedStates           []string `json:"servedStates,omitempty"`
	ActiveStatus           string   `json:"activeStatus"`
	CurrentActiveReferrals int      `json:"currentActiveReferrals"`
	MaxActiveReferrals     int      `json:"maxActiveReferrals"`
	PerformanceScore       int      `json:"performanceScore"`
	Certified              bool     `json:"certified"`
	AgreementSigned        bool     `json:"agreementSigned"`
}

// DecodeSupplier builds a Supplier from store attributes, applying defaults
// for absent capacity and performance fields.
func DecodeSupplier(id string, fields map[string]interface{}, d SupplierDefaults) (*Supplier, error) {
	var s Supplier
	if err := decode(fields, &s); err != nil {
		return nil, err
	}
	s.ID = id

	if _, ok := fields[FieldMaxActiveReferrals]; !ok || s.MaxActiveReferrals <= 0 {
		s.MaxActiveReferrals = d.MaxActiveReferrals
	}
	if _, ok := fields[FieldPerformanceScore]; !ok {
		s.PerformanceScore = d.PerformanceScore
	}
	if s.CurrentActiveReferrals < 0 {
		s.CurrentActiveReferrals = 0
	}

	s.HomeState = NormalizeState(s.HomeState)
	for i, st := range s.ServedStates {
		s.ServedStates[i] = NormalizeState(st)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Supplier) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("supplier id is empty")
	}
	switch s.ActiveStatus {
	case SupplierActive, SupplierAtCapacity, SupplierNonCompliant, SupplierPendingOnboarding:
	default:
		return fmt.Errorf("unknown activeStatus %q", s.ActiveStatus)
	}
	if s.MaxActiveReferrals <= 0 {
		return fmt.Errorf("maxActiveReferrals must be positive")
	}
	if s.PerformanceScore < 0 || s.PerformanceScore > 100 {
		return fmt.Errorf("performanceScore %d out of range", s.PerformanceScore)
	}
	return nil
}

// Serves reports whether the supplier covers a buyer's state.
func (s *Supplier) Serves(state string) bool {
	state = NormalizeState(state)
	if state == "" {
		return false
	}
	if s.HomeState == state {
		return true
	}
	for _, st := range s.ServedStates {
		if st == state {
			return true
		}
	}
	return false
}

// Fields encodes the supplier for a Create call.
func (s *Supplier) Fields() (map[string]interface{}, error) {
	return encode(s)
}

// String is used in log lines.
func (s *Supplier) String() string {
	return fmt.Sprintf("%s(%s %d/%d)", s.ID, strings.ToLower(s.ActiveStatus), s.CurrentActiveReferrals, s.MaxActiveReferrals)
}
