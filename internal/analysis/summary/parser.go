// Package summary turns raw model output into a DiagnosisSummary, preferring
// strict JSON and falling back to a bullet-point scan of free text.
package summary

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zhouzirui/medichat/backend/internal/model/chat"
)

// Placeholder stands in for a category that yielded no bullet points.
const Placeholder = "Information extracted from conversation"

// Source records which decoding path produced a summary.
type Source string

const (
	Decoded  Source = "decoded"
	Fallback Source = "fallback"
)

// Mode selects the fallback scanning strategy.
type Mode int

const (
	// ModeSectioned reads each category from its first non-empty header up to
	// the next category header, skipping prose lines in between.
	ModeSectioned Mode = iota
	// ModeLegacy ends a category at the first non-blank line without a bullet.
	ModeLegacy
)

// ParseMode maps a configuration value onto a Mode.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "sectioned":
		return ModeSectioned, nil
	case "legacy":
		return ModeLegacy, nil
	default:
		return ModeSectioned, fmt.Errorf("unknown summary fallback mode %q", raw)
	}
}

func (m Mode) String() string {
	if m == ModeLegacy {
		return "legacy"
	}
	return "sectioned"
}

// ParseError explains why the strict JSON path was abandoned. It is never
// returned to callers of the HTTP API.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("summary is not valid JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Result is the tagged outcome of Parse.
type Result struct {
	Summary   chat.DiagnosisSummary
	Source    Source
	DecodeErr *ParseError
}

// Parser is stateless; one instance can be shared across requests.
type Parser struct {
	mode Mode
}

// NewParser returns a parser using the given fallback mode.
func NewParser(mode Mode) *Parser {
	return &Parser{mode: mode}
}

// Parse uses ModeSectioned.
func Parse(raw string) Result {
	return NewParser(ModeSectioned).Parse(raw)
}

// Mode reports the configured fallback strategy.
func (p *Parser) Mode() Mode {
	return p.mode
}

// Parse never fails: invalid JSON is absorbed by the text fallback.
func (p *Parser) Parse(raw string) Result {
	summary, err := decode(raw)
	if err == nil {
		return Result{Summary: summary, Source: Decoded}
	}

	return Result{
		Summary:   p.extract(raw),
		Source:    Fallback,
		DecodeErr: &ParseError{Err: err},
	}
}

type payload struct {
	Symptoms           []string `json:"symptoms"`
	PossibleConditions []string `json:"possibleConditions"`
	Recommendations    []string `json:"recommendations"`
	Medications        []string `json:"medications"`
	FollowUpNeeded     *bool    `json:"followUpNeeded"`
	UrgencyLevel       *string  `json:"urgencyLevel"`
}

func decode(raw string) (chat.DiagnosisSummary, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return chat.DiagnosisSummary{}, fmt.Errorf("missing json object")
	}

	var p payload
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return chat.DiagnosisSummary{}, err
	}

	summary := chat.DiagnosisSummary{
		Symptoms:           orEmpty(p.Symptoms),
		PossibleConditions: orEmpty(p.PossibleConditions),
		Recommendations:    orEmpty(p.Recommendations),
		Medications:        orEmpty(p.Medications),
		FollowUpNeeded:     true,
		UrgencyLevel:       chat.UrgencyMedium,
	}
	if p.FollowUpNeeded != nil {
		summary.FollowUpNeeded = *p.FollowUpNeeded
	}
	if p.UrgencyLevel != nil {
		summary.UrgencyLevel = chat.ParseUrgency(*p.UrgencyLevel)
	}
	return summary, nil
}

func orEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

// category keywords are matched against lower-cased header lines.
const (
	keySymptoms        = "symptoms"
	keyConditions      = "conditions"
	keyRecommendations = "recommendations"
	keyMedications     = "medications"
)

var categoryKeys = []string{keySymptoms, keyConditions, keyRecommendations, keyMedications}

func (p *Parser) extract(raw string) chat.DiagnosisSummary {
	lines := strings.Split(raw, "\n")
	scan := extractSectioned
	if p.mode == ModeLegacy {
		scan = extractLegacy
	}

	return chat.DiagnosisSummary{
		Symptoms:           withPlaceholder(scan(lines, keySymptoms)),
		PossibleConditions: withPlaceholder(scan(lines, keyConditions)),
		Recommendations:    withPlaceholder(scan(lines, keyRecommendations)),
		Medications:        withPlaceholder(scan(lines, keyMedications)),
		FollowUpNeeded:     true,
		UrgencyLevel:       chat.UrgencyMedium,
	}
}

func withPlaceholder(points []string) []string {
	if len(points) == 0 {
		return []string{Placeholder}
	}
	return points
}

// extractLegacy: any line mentioning the keyword opens the category, bullets
// are collected, blanks are skipped and the first other line stops the scan.
// Indented bullets are not recognised.
func extractLegacy(lines []string, keyword string) []string {
	var points []string
	inCategory := false

	for _, line := range lines {
		if strings.Contains(strings.ToLower(line), keyword) {
			inCategory = true
			continue
		}
		if !inCategory {
			continue
		}
		if hasBulletMarker(line) {
			points = append(points, stripBullet(line))
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		break
	}
	return points
}

// maxLabelWords bounds an unpunctuated header such as "Possible conditions".
const maxLabelWords = 4

// extractSectioned collects bullets under the first header of the category
// that has any. Headers of other categories close the section; prose is
// skipped.
func extractSectioned(lines []string, keyword string) []string {
	var points []string
	inCategory := false

	for _, raw := range lines {
		line := strings.TrimSpace(raw)

		if isBullet(line) {
			if !inCategory {
				continue
			}
			if point := stripBullet(line); point != "" {
				points = append(points, point)
			}
			continue
		}
		if !isHeader(line) {
			continue
		}
		if len(points) > 0 {
			break
		}
		inCategory = strings.Contains(strings.ToLower(line), keyword)
	}
	return points
}

// isHeader accepts short labels naming a category, with or without markdown
// emphasis. Sentences that merely mention a category are prose.
func isHeader(line string) bool {
	if line == "" || isBullet(line) {
		return false
	}
	label := strings.TrimSpace(strings.Trim(line, "#*_ \t"))
	if label == "" || !mentionsCategory(label) {
		return false
	}
	if strings.HasSuffix(label, ":") {
		return true
	}
	return len(strings.Fields(label)) <= maxLabelWords && !strings.ContainsAny(label[len(label)-1:], ".!?")
}

func mentionsCategory(text string) bool {
	lower := strings.ToLower(text)
	for _, key := range categoryKeys {
		if strings.Contains(lower, key) {
			return true
		}
	}
	return false
}

// isBullet treats a leading "**" as markdown emphasis rather than a bullet.
func isBullet(line string) bool {
	return hasBulletMarker(line) && !strings.HasPrefix(line, "**")
}

func hasBulletMarker(line string) bool {
	return strings.HasPrefix(line, "-") || strings.HasPrefix(line, "•") || strings.HasPrefix(line, "*")
}

func stripBullet(line string) string {
	for _, marker := range []string{"-", "•", "*"} {
		if rest, ok := strings.CutPrefix(line, marker); ok {
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(line)
}
