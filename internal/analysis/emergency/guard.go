package emergency

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Matcher decides whether a message must bypass the model entirely.
type Matcher interface {
	Matches(text string) bool
}

// DefaultKeywords 覆盖需要立即就医的典型描述。
var DefaultKeywords = []string{
	"emergency", "urgent", "severe", "chest pain", "can't breathe", "bleeding",
	"unconscious", "stroke", "heart attack", "allergic reaction", "suicide",
	"overdose", "poisoning", "severe pain", "high fever",
}

// EmergencyResponse is returned verbatim whenever a Matcher fires.
const EmergencyResponse = `
🚨 IMPORTANT: Based on your description, this may require immediate medical attention.

Please consider:
- Call emergency services (911) if this is life-threatening
- Go to the nearest emergency room
- Contact your doctor immediately
- If you're experiencing chest pain, difficulty breathing, severe bleeding, or signs of stroke, seek emergency care NOW

This AI cannot replace emergency medical services. When in doubt, always err on the side of caution and seek immediate professional medical help.

Would you like me to provide general information while you seek professional care?`

var ErrNoKeywords = errors.New("emergency keyword list is empty")

// KeywordGuard performs case-insensitive substring matching. Negations such
// as "no chest pain" still match.
type KeywordGuard struct {
	keywords []string
}

// NewKeywordGuard normalises keywords and drops blanks.
func NewKeywordGuard(keywords []string) (*KeywordGuard, error) {
	normalized := make([]string, 0, len(keywords))
	for _, word := range keywords {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			continue
		}
		normalized = append(normalized, word)
	}
	if len(normalized) == 0 {
		return nil, ErrNoKeywords
	}
	return &KeywordGuard{keywords: normalized}, nil
}

// Default returns a guard over DefaultKeywords.
func Default() *KeywordGuard {
	guard, _ := NewKeywordGuard(DefaultKeywords)
	return guard
}

// Matches reports whether any keyword occurs in text.
func (g *KeywordGuard) Matches(text string) bool {
	normalized := strings.ToLower(text)
	for _, word := range g.keywords {
		if strings.Contains(normalized, word) {
			return true
		}
	}
	return false
}

// Matched lists every keyword found in text, in configured order.
func (g *KeywordGuard) Matched(text string) []string {
	normalized := strings.ToLower(text)
	var hits []string
	for _, word := range g.keywords {
		if strings.Contains(normalized, word) {
			hits = append(hits, word)
		}
	}
	return hits
}

// Keywords returns a copy of the active list.
func (g *KeywordGuard) Keywords() []string {
	return append([]string(nil), g.keywords...)
}

type keywordFile struct {
	Keywords []string `yaml:"keywords"`
}

// LoadKeywordFile reads a YAML document of the form `keywords: [...]`.
func LoadKeywordFile(path string) (*KeywordGuard, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword file: %w", err)
	}

	var doc keywordFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse keyword file %s: %w", path, err)
	}

	guard, err := NewKeywordGuard(doc.Keywords)
	if err != nil {
		return nil, fmt.Errorf("keyword file %s: %w", path, err)
	}
	return guard, nil
}
