// Package security hosts the audit-log query surface and the
// per-user risk classifier.
package security

import "github.com/andersonlima/membergate/backend/internal/repository"

// Risk tier boundaries, in distinct concurrent IP addresses. These are
// deliberately separate from the login-time suspicious-IP threshold:
// the login signal is a fixed observational trigger, the tiers below
// grade ongoing exposure for the admin dashboard.
const (
	mediumRiskIPs   = 2
	highRiskIPs     = 3
	criticalRiskIPs = 5
)

// ClassifyRisk maps the number of distinct IP addresses among a user's
// active sessions to a severity tier. Zero active sessions grade low.
func ClassifyRisk(distinctIPs int) repository.Severity {
	switch {
	case distinctIPs >= criticalRiskIPs:
		return repository.SeverityCritical
	case distinctIPs >= highRiskIPs:
		return repository.SeverityHigh
	case distinctIPs >= mediumRiskIPs:
		return repository.SeverityMedium
	default:
		return repository.SeverityLow
	}
}

// RiskAssessment is the classifier output for one user
type RiskAssessment struct {
	UserID      string              `json:"user_id"`
	DistinctIPs int                 `json:"distinct_ips"`
	Severity    repository.Severity `json:"severity"`
}
