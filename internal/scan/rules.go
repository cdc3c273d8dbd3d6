package scan

import "regexp"

// Phase weight multipliers. Each finding contributes exactly its
// bucket weight to the total score; provenance rules carry individual
// weights between 1 and 3 instead.
//
//	Install Hooks   10x
//	Code Patterns    5x
//	Network/Exfil    3x
//	Credentials      2x
//	Obfuscation      5x
//	Provenance     1-3x (per rule)
var phaseWeights = map[Phase]int{
	PhaseInstallHooks: 10,
	PhaseCodePatterns: 5,
	PhaseNetworkExfil: 3,
	PhaseCredentials:  2,
	PhaseObfuscation:  5,
	PhaseProvenance:   1,
	// Remote signatures without an explicit weight score like code
	// patterns.
	PhaseCloud: 5,
}

// Weight returns the score contribution of one finding in the given
// phase or source bucket.
func Weight(p Phase) int {
	if w, ok := phaseWeights[p]; ok {
		return w
	}
	return 1
}

// Source bucket weights for findings contributed outside the six local
// phases. Defined here, next to the pattern table, so all scoring
// inputs live in one place.
const (
	// WeightScannerPattern applies to pattern-matcher tools (semgrep).
	WeightScannerPattern = 5
	// WeightScannerSecret applies to secret scanners (gitleaks).
	WeightScannerSecret = 2
	// WeightScannerCVE applies to CVE scanners (osv-scanner).
	WeightScannerCVE = 3
	// WeightDependency applies to manifest findings (unpinned versions).
	WeightDependency = 1
	// WeightPrivilege applies to privilege-exposure findings (privileged
	// containers, CI secret leaks, broad tool grants).
	WeightPrivilege = 2
	// WeightCloudThreat is the contribution of a positive cloud hash
	// match: a known-malicious fingerprint alone forces CRITICAL.
	WeightCloudThreat = 50
)

// Rule is one entry of the pattern table: a tagged record, not code.
// Adding a detection never touches engine control flow.
type Rule struct {
	ID          string
	Phase       Phase
	Severity    Severity
	Pattern     *regexp.Regexp
	Description string
	// Weight overrides the phase bucket weight when non-zero. Remote
	// signatures carry their own weights.
	Weight int
	// Files restricts the rule to exact base names; empty means all
	// eligible files.
	Files []string
}

func (r Rule) weight() int {
	if r.Weight > 0 {
		return r.Weight
	}
	return Weight(r.Phase)
}

func (r Rule) appliesTo(base string) bool {
	if len(r.Files) == 0 {
		return true
	}
	for _, f := range r.Files {
		if f == base {
			return true
		}
	}
	return false
}

// ContentRules is the built-in pattern table for the five content
// phases. Provenance rules operate on filesystem metadata and live in
// provenance.go.
var ContentRules = []Rule{
	// Phase 1: install hooks
	{
		ID: "INSTALL-001", Phase: PhaseInstallHooks, Severity: SeverityCritical,
		Pattern:     regexp.MustCompile(`cmdclass\s*=\s*\{`),
		Description: "setup.py cmdclass override (code runs at install time)",
		Files:       []string{"setup.py", "setup.cfg"},
	},
	{
		ID: "INSTALL-002", Phase: PhaseInstallHooks, Severity: SeverityCritical,
		Pattern:     regexp.MustCompile(`(?i)(pre_install|post_install|install_scripts)`),
		Description: "setup.py custom install hook",
		Files:       []string{"setup.py", "setup.cfg"},
	},
	{
		ID: "INSTALL-003", Phase: PhaseInstallHooks, Severity: SeverityCritical,
		Pattern:     regexp.MustCompile(`"(preinstall|postinstall|preuninstall|postuninstall)"\s*:`),
		Description: "npm lifecycle script (runs automatically on install)",
		Files:       []string{"package.json"},
	},
	{
		ID: "INSTALL-004", Phase: PhaseInstallHooks, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`"(prepare|prepublish|prepublishOnly)"\s*:`),
		Description: "npm publish lifecycle script",
		Files:       []string{"package.json"},
	},
	{
		ID: "INSTALL-005", Phase: PhaseInstallHooks, Severity: SeverityMedium,
		Pattern:     regexp.MustCompile(`^install\s*:`),
		Description: "Makefile install target",
		Files:       []string{"Makefile", "makefile", "GNUmakefile"},
	},
	{
		ID: "INSTALL-006", Phase: PhaseInstallHooks, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`(curl|wget)\s+.+\|\s*(sh|bash)`),
		Description: "pipes remote content to shell",
	},
	{
		ID: "INSTALL-007", Phase: PhaseInstallHooks, Severity: SeverityCritical,
		Pattern:     regexp.MustCompile(`\[tool\.setuptools\.cmdclass\]`),
		Description: "pyproject.toml cmdclass override",
		Files:       []string{"pyproject.toml"},
	},
	{
		ID: "INSTALL-008", Phase: PhaseInstallHooks, Severity: SeverityLow,
		Pattern:     regexp.MustCompile(`build-backend\s*=`),
		Description: "custom build backend declared",
		Files:       []string{"pyproject.toml"},
	},

	// Phase 2: code patterns
	{
		ID: "CODE-001", Phase: PhaseCodePatterns, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`\beval\s*\(`),
		Description: "eval() call, arbitrary code execution",
	},
	{
		ID: "CODE-002", Phase: PhaseCodePatterns, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`\bexec\s*\(`),
		Description: "exec() call, arbitrary code execution",
	},
	{
		ID: "CODE-003", Phase: PhaseCodePatterns, Severity: SeverityCritical,
		Pattern:     regexp.MustCompile(`pickle\.(loads?|Unpickler)`),
		Description: "pickle deserialization, arbitrary code execution",
	},
	{
		ID: "CODE-004", Phase: PhaseCodePatterns, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`marshal\.loads?\b`),
		Description: "marshal deserialization, code execution risk",
	},
	{
		ID: "CODE-005", Phase: PhaseCodePatterns, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`yaml\.(unsafe_)?load\s*\(`),
		Description: "YAML unsafe load, potential code execution",
	},
	{
		ID: "CODE-006", Phase: PhaseCodePatterns, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`\bchild_process\b`),
		Description: "child_process usage, command execution",
	},
	{
		ID: "CODE-007", Phase: PhaseCodePatterns, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`new\s+Function\s*\(`),
		Description: "Function constructor, dynamic code execution",
	},
	{
		ID: "CODE-008", Phase: PhaseCodePatterns, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`__import__\s*\(`),
		Description: "__import__(), dynamic import",
	},
	{
		ID: "CODE-009", Phase: PhaseCodePatterns, Severity: SeverityMedium,
		Pattern:     regexp.MustCompile(`importlib\.import_module\s*\(`),
		Description: "importlib.import_module, dynamic import",
	},
	{
		ID: "CODE-010", Phase: PhaseCodePatterns, Severity: SeverityMedium,
		Pattern:     regexp.MustCompile(`subprocess\.(call|run|Popen|check_output)\s*\(`),
		Description: "subprocess invocation, command execution",
	},
	{
		ID: "CODE-011", Phase: PhaseCodePatterns, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`os\.(system|popen|exec[lv]p?e?)\s*\(`),
		Description: "os command execution",
	},
	{
		ID: "CODE-012", Phase: PhaseCodePatterns, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`shell\s*=\s*True`),
		Description: "shell=True, shell injection risk",
	},
	{
		ID: "CODE-013", Phase: PhaseCodePatterns, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`(?i)(allow_dangerous|skip_confirmation|auto_approve\s*[:=]\s*true)`),
		Description: "agent tool permission bypass",
	},

	// Phase 3: network / exfiltration
	{
		ID: "NET-001", Phase: PhaseNetworkExfil, Severity: SeverityMedium,
		Pattern:     regexp.MustCompile(`requests\.(get|post|put|delete|patch|head)\s*\(`),
		Description: "HTTP request via requests library",
	},
	{
		ID: "NET-002", Phase: PhaseNetworkExfil, Severity: SeverityMedium,
		Pattern:     regexp.MustCompile(`urllib\.(request\.)?urlopen\s*\(`),
		Description: "HTTP request via urllib",
	},
	{
		ID: "NET-003", Phase: PhaseNetworkExfil, Severity: SeverityMedium,
		Pattern:     regexp.MustCompile(`fetch\s*\(\s*['"]https?://`),
		Description: "fetch() to external URL",
	},
	{
		ID: "NET-004", Phase: PhaseNetworkExfil, Severity: SeverityMedium,
		Pattern:     regexp.MustCompile(`axios\.(get|post|put|delete|patch)\s*\(`),
		Description: "HTTP request via axios",
	},
	{
		ID: "NET-005", Phase: PhaseNetworkExfil, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`(?i)(webhook|discord\.com/api/webhooks|hooks\.slack\.com)`),
		Description: "webhook URL, potential exfiltration endpoint",
	},
	{
		ID: "NET-006", Phase: PhaseNetworkExfil, Severity: SeverityCritical,
		Pattern:     regexp.MustCompile(`https?://[^\s]*\.(ngrok|pipedream|requestbin|hookbin)`),
		Description: "known exfiltration/tunneling service URL",
	},
	{
		ID: "NET-007", Phase: PhaseNetworkExfil, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`socket\.socket\s*\(|net\.createConnection\s*\(`),
		Description: "raw socket creation",
	},
	{
		ID: "NET-008", Phase: PhaseNetworkExfil, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`dns\.(resolver|resolve|lookup|query)\b`),
		Description: "DNS query, possible DNS exfiltration",
	},
	{
		ID: "NET-009", Phase: PhaseNetworkExfil, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`(base64|b64)(encode|\.b64encode)\s*\(.*\.(read|getenv|environ)`),
		Description: "data encoding before potential exfiltration",
	},

	// Phase 4: credentials
	{
		ID: "CRED-001", Phase: PhaseCredentials, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`os\.(environ|getenv)\s*[\[(]\s*['"](AWS_|SECRET_|API_KEY|TOKEN|PASSWORD|DATABASE_URL|PRIVATE)`),
		Description: "environment variable access for sensitive key",
	},
	{
		ID: "CRED-002", Phase: PhaseCredentials, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`process\.env\.(AWS_|SECRET_|API_KEY|TOKEN|PASSWORD|DATABASE_URL|PRIVATE)`),
		Description: "process.env access for sensitive key",
	},
	{
		ID: "CRED-003", Phase: PhaseCredentials, Severity: SeverityCritical,
		Pattern:     regexp.MustCompile(`\.aws/(credentials|config)`),
		Description: "AWS credentials file access",
	},
	{
		ID: "CRED-004", Phase: PhaseCredentials, Severity: SeverityCritical,
		Pattern:     regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		Description: "hardcoded AWS access key ID",
	},
	{
		ID: "CRED-005", Phase: PhaseCredentials, Severity: SeverityCritical,
		Pattern:     regexp.MustCompile(`\.ssh/(id_rsa|id_ed25519|id_ecdsa|authorized_keys)`),
		Description: "SSH key file access",
	},
	{
		ID: "CRED-006", Phase: PhaseCredentials, Severity: SeverityCritical,
		Pattern:     regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
		Description: "embedded private key",
	},
	{
		ID: "CRED-007", Phase: PhaseCredentials, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`(?i)(api[_-]?key|api[_-]?secret|access[_-]?token)\s*[:=]\s*['"][a-zA-Z0-9]{16,}`),
		Description: "hardcoded API key or secret",
	},
	{
		ID: "CRED-008", Phase: PhaseCredentials, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*['"][^'"]{8,}`),
		Description: "hardcoded password",
	},
	{
		ID: "CRED-009", Phase: PhaseCredentials, Severity: SeverityCritical,
		Pattern:     regexp.MustCompile(`"type"\s*:\s*"service_account"`),
		Description: "GCP service account JSON key",
	},
	{
		ID: "CRED-010", Phase: PhaseCredentials, Severity: SeverityCritical,
		Pattern:     regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
		Description: "GitHub personal access token",
	},

	// Phase 5: obfuscation
	{
		ID: "OBF-001", Phase: PhaseObfuscation, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`base64\.(b64)?decode\s*\(`),
		Description: "base64 decoding, potential obfuscated payload",
	},
	{
		ID: "OBF-002", Phase: PhaseObfuscation, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`\batob\s*\(`),
		Description: "atob(), base64 decoding",
	},
	{
		ID: "OBF-003", Phase: PhaseObfuscation, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`Buffer\.from\s*\([^)]*,\s*['"]base64['"]`),
		Description: "Buffer.from base64 decoding",
	},
	{
		ID: "OBF-004", Phase: PhaseObfuscation, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`String\.fromCharCode\s*\(`),
		Description: "String.fromCharCode, character code obfuscation",
	},
	{
		ID: "OBF-005", Phase: PhaseObfuscation, Severity: SeverityHigh,
		Pattern:     regexp.MustCompile(`(\\x[0-9a-fA-F]{2}){8,}|bytes\.fromhex\s*\(`),
		Description: "long hex-encoded string, likely obfuscated",
	},
	{
		ID: "OBF-006", Phase: PhaseObfuscation, Severity: SeverityMedium,
		Pattern:     regexp.MustCompile(`(\\u[0-9a-fA-F]{4}){6,}`),
		Description: "long unicode escape sequence",
	},
	{
		ID: "OBF-007", Phase: PhaseObfuscation, Severity: SeverityMedium,
		Pattern:     regexp.MustCompile(`codecs\.(decode|encode)\s*\(`),
		Description: "codecs decode/encode, potential obfuscation",
	},
	{
		ID: "OBF-008", Phase: PhaseObfuscation, Severity: SeverityMedium,
		Pattern:     regexp.MustCompile(`(zlib|gzip)\.(decompress|inflate)\s*\(`),
		Description: "inline decompression, potential obfuscated payload",
	},
	{
		ID: "OBF-009", Phase: PhaseObfuscation, Severity: SeverityMedium,
		Pattern:     regexp.MustCompile(`\[::-1\]|\.reverse\(\)\.join\(`),
		Description: "string reversal, potential obfuscation",
	},
}
