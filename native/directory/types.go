package directory

import "strings"

// ExporterProfile captures the attested identity of an approved exporter. The
// profile is written once on approval and is immutable afterwards; a repeat
// approval overwrites it wholesale.
type ExporterProfile struct {
	Exporter     [20]byte
	KYCHash      [32]byte
	CACHash      [32]byte
	BankHash     [32]byte
	BusinessName string
	Country      string
	Approved     bool
	ApprovedAt   int64
}

// Clone returns a copy of the profile that callers may mutate freely.
func (p *ExporterProfile) Clone() *ExporterProfile {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// SanitizeProfile validates and normalises a profile prior to persistence.
func SanitizeProfile(p *ExporterProfile) (*ExporterProfile, error) {
	if p == nil {
		return nil, errNilProfile
	}
	clone := p.Clone()
	clone.BusinessName = strings.TrimSpace(clone.BusinessName)
	clone.Country = strings.ToUpper(strings.TrimSpace(clone.Country))
	if clone.Exporter == ([20]byte{}) {
		return nil, errEmptyExporter
	}
	if clone.BusinessName == "" {
		return nil, errEmptyBusinessName
	}
	return clone, nil
}
