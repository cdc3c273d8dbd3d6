// Package scoring turns scan findings into a numeric risk score, a
// verdict, and a process exit code.
package scoring

import "github.com/nomark/sigil/internal/scan"

// Verdict is the risk classification for a scanned item.
type Verdict string

const (
	VerdictClean    Verdict = "CLEAN"
	VerdictLow      Verdict = "LOW"
	VerdictMedium   Verdict = "MEDIUM"
	VerdictHigh     Verdict = "HIGH"
	VerdictCritical Verdict = "CRITICAL"
)

// Score sums the weight of every finding. The score is additive:
// repeated matches of the same rule each count.
func Score(findings []scan.Finding) int {
	total := 0
	for _, f := range findings {
		total += f.Weight
	}
	return total
}

// VerdictFor maps a score to a verdict. The mapping is monotonic: a
// higher score never yields a lower verdict.
func VerdictFor(score int) Verdict {
	switch {
	case score <= 0:
		return VerdictClean
	case score <= 9:
		return VerdictLow
	case score <= 24:
		return VerdictMedium
	case score <= 49:
		return VerdictHigh
	default:
		return VerdictCritical
	}
}

// ExitCodeFor maps a verdict to the exit code reported by the CLI.
// CLEAN is the only verdict that exits zero.
func ExitCodeFor(v Verdict) int {
	switch v {
	case VerdictClean:
		return 0
	case VerdictCritical:
		return 1
	case VerdictHigh:
		return 2
	case VerdictMedium:
		return 3
	case VerdictLow:
		return 4
	default:
		return 1
	}
}
