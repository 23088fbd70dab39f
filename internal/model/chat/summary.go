package chat

import "strings"

// UrgencyLevel drives UI emphasis only; it is not a clinical determination.
type UrgencyLevel string

const (
	UrgencyLow    UrgencyLevel = "low"
	UrgencyMedium UrgencyLevel = "medium"
	UrgencyHigh   UrgencyLevel = "high"
)

// ParseUrgency folds case and maps anything unrecognised to medium.
func ParseUrgency(raw string) UrgencyLevel {
	switch UrgencyLevel(strings.ToLower(strings.TrimSpace(raw))) {
	case UrgencyLow:
		return UrgencyLow
	case UrgencyHigh:
		return UrgencyHigh
	default:
		return UrgencyMedium
	}
}

// DiagnosisSummary is a non-diagnostic extraction of a conversation. It is
// regenerated wholesale on every request.
type DiagnosisSummary struct {
	Symptoms           []string     `json:"symptoms" jsonschema:"description=Symptoms reported by the patient"`
	PossibleConditions []string     `json:"possibleConditions" jsonschema:"description=General conditions that might be considered"`
	Recommendations    []string     `json:"recommendations" jsonschema:"description=General care recommendations and when to see a doctor"`
	Medications        []string     `json:"medications" jsonschema:"description=General medication types mentioned and never doses"`
	FollowUpNeeded     bool         `json:"followUpNeeded" jsonschema:"description=Whether professional consultation was recommended"`
	UrgencyLevel       UrgencyLevel `json:"urgencyLevel" jsonschema:"enum=low,enum=medium,enum=high"`
}
