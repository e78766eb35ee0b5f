package match

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/efebarandurmaz/riskmap/internal/vector"
)

// MatchResult is one matched case as shown to users.
type MatchResult struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Similarity string `json:"similarity"`
}

// Status describes the active session.
type Status struct {
	Tier      string    `json:"tier"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	Documents int       `json:"documents"`
	BuiltAt   time.Time `json:"built_at,omitempty"`
}

// Percent converts a raw score to an integer percentage in [0, 100].
func Percent(score float64) int {
	return int(math.Round(vector.Clamp01(score) * 100))
}

// FormatSimilarity renders a raw score as "<n>%".
func FormatSimilarity(score float64) string {
	return fmt.Sprintf("%d%%", Percent(score))
}

// ParseSimilarity reads back a "<n>%" string.
func ParseSimilarity(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if err != nil {
		return 0, false
	}
	return n, true
}

func toResults(hits []scored) []MatchResult {
	out := make([]MatchResult, len(hits))
	for i, h := range hits {
		out[i] = MatchResult{ID: h.ID, Name: h.Name, Similarity: FormatSimilarity(h.Score)}
	}
	return out
}
