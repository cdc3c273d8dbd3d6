package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	apperrors "github.com/nomark/sigil/internal/pkg/errors"
	"github.com/nomark/sigil/internal/scan"
	"github.com/nomark/sigil/internal/scoring"
)

// Diff is the comparison of a baseline report against a later scan
// of the same item.
type Diff struct {
	New             []scan.Finding  `json:"new_findings"`
	Resolved        []scan.Finding  `json:"resolved_findings"`
	Unchanged       []scan.Finding  `json:"unchanged_findings"`
	ScoreDelta      int             `json:"score_delta"`
	PreviousVerdict scoring.Verdict `json:"previous_verdict"`
	CurrentVerdict  scoring.Verdict `json:"current_verdict"`
	Summary         string          `json:"summary"`
}

type findingKey struct {
	rule string
	file string
	line int
}

func keyOf(f scan.Finding) findingKey {
	return findingKey{rule: f.Rule, file: f.File, line: f.Line}
}

// Compare partitions the current findings into new and unchanged
// against the baseline, and the baseline's into resolved. Findings
// match on (rule, file, line).
func Compare(previous, current *Report) *Diff {
	prevKeys := make(map[findingKey]bool, len(previous.Findings))
	for _, f := range previous.Findings {
		prevKeys[keyOf(f)] = true
	}
	curKeys := make(map[findingKey]bool, len(current.Findings))
	for _, f := range current.Findings {
		curKeys[keyOf(f)] = true
	}

	d := &Diff{
		PreviousVerdict: previous.Verdict,
		CurrentVerdict:  current.Verdict,
		ScoreDelta:      current.Score - previous.Score,
	}
	for _, f := range current.Findings {
		if prevKeys[keyOf(f)] {
			d.Unchanged = append(d.Unchanged, f)
		} else {
			d.New = append(d.New, f)
		}
	}
	for _, f := range previous.Findings {
		if !curKeys[keyOf(f)] {
			d.Resolved = append(d.Resolved, f)
		}
	}

	sign := ""
	if d.ScoreDelta >= 0 {
		sign = "+"
	}
	d.Summary = fmt.Sprintf("%d new, %d resolved, %d unchanged (score %d -> %d, %s%d)",
		len(d.New), len(d.Resolved), len(d.Unchanged),
		previous.Score, current.Score, sign, d.ScoreDelta)
	return d
}

// Load reads a persisted report back from disk.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NotFound(fmt.Sprintf("report %s", path))
		}
		return nil, apperrors.Internal("reading report", err)
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, apperrors.Validation(fmt.Sprintf("%s is not a scan report: %v", path, err))
	}
	return &rep, nil
}

// RenderDiff writes the human-readable diff summary.
func RenderDiff(out io.Writer, d *Diff) {
	fmt.Fprintf(out, "scan diff: %s\n", d.Summary)
	fmt.Fprintf(out, "verdict: %s -> %s\n", d.PreviousVerdict, d.CurrentVerdict)

	if len(d.New) > 0 {
		fmt.Fprintf(out, "\nnew findings (%d):\n", len(d.New))
		for _, f := range d.New {
			fmt.Fprintf(out, "  + [%s] %s %s:%d\n", f.Rule, f.Severity, f.File, f.Line)
		}
	}
	if len(d.Resolved) > 0 {
		fmt.Fprintf(out, "\nresolved (%d):\n", len(d.Resolved))
		for _, f := range d.Resolved {
			fmt.Fprintf(out, "  - [%s] %s %s:%d\n", f.Rule, f.Severity, f.File, f.Line)
		}
	}
	if len(d.New) == 0 && len(d.Resolved) == 0 {
		fmt.Fprintln(out, "\nno changes detected")
	}
}
