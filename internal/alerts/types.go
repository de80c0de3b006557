// Package alerts implements the Alert Fan-out (§4.F): a lighter sibling of
// the webhook delivery engine that best-effort POSTs operator alerts to
// Slack, Discord, and a generic webhook URL read from ambient
// configuration.
package alerts

import "time"

// Severity is the closed set of alert severities.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Type is the closed set of alert categories this plane can raise.
type Type string

const (
	TypeSecurity           Type = "security"
	TypePaymentFailure     Type = "payment_failure"
	TypeSystemError        Type = "system_error"
	TypeDatabaseIssue      Type = "database_issue"
	TypeResourceUsage      Type = "resource_usage"
	TypeRateLimiting       Type = "rate_limiting"
	TypeBruteForceSuspect  Type = "brute_force_suspicion"
)

// Alert is the vendor-agnostic payload every Channel formats for its own
// wire shape.
type Alert struct {
	Type      Type
	Severity  Severity
	Title     string
	Message   string
	Source    string
	Metadata  map[string]any
	CreatedAt time.Time
}

// BruteForceThreshold: brute-force alerts are only raised once the
// attempt count reaches this value.
const BruteForceThreshold = 10

func severityEmoji(s Severity) string {
	switch s {
	case SeverityInfo:
		return "ℹ"
	case SeverityWarning:
		return "⚠"
	case SeverityError:
		return "✖"
	case SeverityCritical:
		return "🚨"
	default:
		return "ℹ"
	}
}

// slackColor returns Slack's named "good/warning/danger" attachment colors
// where they exist, else a hex string.
func slackColor(s Severity) string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError, SeverityCritical:
		return "danger"
	default:
		return "#0066cc"
	}
}

// discordColor returns the severity's RGB color as a single packed int, the
// format Discord's embed API expects.
func discordColor(s Severity) int {
	switch s {
	case SeverityWarning:
		return 0xf59e0b
	case SeverityError:
		return 0xef4444
	case SeverityCritical:
		return 0xdc2626
	default:
		return 0x0066cc
	}
}
