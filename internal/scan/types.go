package scan

import "time"

// Phase identifies one weighted detection category. The six local
// phases are fixed; findings contributed by the cloud client, external
// scanner tools, and the dependency analyzer carry their own source
// buckets so per-source counts stay separable in reports.
type Phase string

const (
	PhaseInstallHooks Phase = "install_hooks"
	PhaseCodePatterns Phase = "code_patterns"
	PhaseNetworkExfil Phase = "network_exfil"
	PhaseCredentials  Phase = "credentials"
	PhaseObfuscation  Phase = "obfuscation"
	PhaseProvenance   Phase = "provenance"

	// Non-local sources
	PhaseCloud      Phase = "cloud"
	PhaseScanner    Phase = "scanner"
	PhaseDependency Phase = "dependency"
)

// Display returns a human-readable phase name
func (p Phase) Display() string {
	switch p {
	case PhaseInstallHooks:
		return "Install Hooks"
	case PhaseCodePatterns:
		return "Code Patterns"
	case PhaseNetworkExfil:
		return "Network/Exfil"
	case PhaseCredentials:
		return "Credentials"
	case PhaseObfuscation:
		return "Obfuscation"
	case PhaseProvenance:
		return "Provenance"
	case PhaseCloud:
		return "Cloud Intel"
	case PhaseScanner:
		return "External Scanners"
	case PhaseDependency:
		return "Dependencies"
	default:
		return string(p)
	}
}

// Severity of an individual finding
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Finding is a single rule or tool match. Findings are produced fresh
// per scan and never mutated; Weight is the finding's full score
// contribution, fixed at creation time from the phase/source bucket.
type Finding struct {
	Phase    Phase    `json:"phase"`
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	File     string   `json:"file"`
	Line     int      `json:"line,omitempty"`
	Snippet  string   `json:"snippet,omitempty"`
	Weight   int      `json:"weight"`
	Scanner  string   `json:"scanner,omitempty"`
}

// SkipNote records a file or component that was skipped during a scan
// and why. Skips are informational and never fail the scan.
type SkipNote struct {
	Subject string `json:"subject"`
	Reason  string `json:"reason"`
}

// Result is the output of the local phase-detection pass.
type Result struct {
	Findings     []Finding  `json:"findings"`
	FilesScanned int        `json:"files_scanned"`
	Skipped      []SkipNote `json:"skipped,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	Duration     int64      `json:"duration_ms"`
}
