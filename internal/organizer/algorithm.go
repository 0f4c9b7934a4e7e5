package organizer

import (
	"fmt"
	"strings"
)

// Algorithm selects how filenames are identified.
type Algorithm string

const (
	// AlgorithmStandard parses locally and only consults the classifier when
	// a caller forces it.
	AlgorithmStandard Algorithm = "standard"
	// AlgorithmAIEnhanced parses locally and falls back to the classifier
	// when the local parse is weak.
	AlgorithmAIEnhanced Algorithm = "ai_enhanced"
	// AlgorithmAIOnly asks the classifier first and uses the local parse only
	// when it returns nothing.
	AlgorithmAIOnly Algorithm = "ai_only"
)

func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return AlgorithmStandard, nil
	case "ai_enhanced", "ai-enhanced", "enhanced":
		return AlgorithmAIEnhanced, nil
	case "ai_only", "ai-only", "ai":
		return AlgorithmAIOnly, nil
	default:
		return "", fmt.Errorf("unknown algorithm %q", s)
	}
}
