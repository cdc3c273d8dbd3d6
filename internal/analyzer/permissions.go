package analyzer

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nomark/sigil/internal/scan"
)

var (
	dockerUserRoot   = regexp.MustCompile(`(?i)^\s*USER\s+(root|0)\s*$`)
	composePrivilege = regexp.MustCompile(`(?i)privileged\s*:\s*true`)
	composeHostNet   = regexp.MustCompile(`(?i)network_mode\s*:\s*["']?host`)
	composeCapAdmin  = regexp.MustCompile(`(?:^\s*-\s*|cap_add:.*[\[,]\s*)(?:SYS_ADMIN|ALL)\s*[\],]?\s*$`)
	ciSecretInRun    = regexp.MustCompile(`\$\{\{\s*secrets\.`)
	ciPRTarget       = regexp.MustCompile(`pull_request_target`)
)

func (a *Analyzer) analyzePermissions(root string) ([]scan.Finding, error) {
	var findings []scan.Finding

	err := walkTree(root, func(rel, abs string) {
		base := filepath.Base(rel)
		switch {
		case base == "Dockerfile" || strings.HasPrefix(base, "Dockerfile."):
			findings = append(findings, analyzeDockerfile(rel, abs)...)
		case strings.HasPrefix(base, "docker-compose") && (strings.HasSuffix(base, ".yml") || strings.HasSuffix(base, ".yaml")):
			findings = append(findings, analyzeCompose(rel, abs)...)
		case strings.Contains(rel, ".github/workflows/") && (strings.HasSuffix(base, ".yml") || strings.HasSuffix(base, ".yaml")):
			findings = append(findings, analyzeWorkflow(rel, abs)...)
		case base == "mcp.json" || base == ".mcp.json" || base == "mcp_config.json":
			findings = append(findings, analyzeToolConfig(rel, abs)...)
		}
	})
	if err != nil {
		return nil, err
	}
	return findings, nil
}

func analyzeDockerfile(rel, abs string) []scan.Finding {
	var findings []scan.Finding
	forEachLine(abs, func(lineNo int, line string) {
		if dockerUserRoot.MatchString(line) {
			findings = append(findings, privilegeFinding("PERM-DOCKER-ROOT", rel, lineNo,
				"container runs as root: "+strings.TrimSpace(line)))
		}
	})
	return findings
}

func analyzeCompose(rel, abs string) []scan.Finding {
	var findings []scan.Finding
	forEachLine(abs, func(lineNo int, line string) {
		switch {
		case composePrivilege.MatchString(line):
			findings = append(findings, privilegeFinding("PERM-PRIVILEGED", rel, lineNo,
				"privileged container: "+strings.TrimSpace(line)))
		case composeHostNet.MatchString(line):
			findings = append(findings, privilegeFinding("PERM-HOST-NETWORK", rel, lineNo,
				"host network mode: "+strings.TrimSpace(line)))
		case composeCapAdmin.MatchString(line):
			findings = append(findings, privilegeFinding("PERM-CAP-ADD", rel, lineNo,
				"broad capability grant: "+strings.TrimSpace(line)))
		}
	})
	return findings
}

func analyzeWorkflow(rel, abs string) []scan.Finding {
	var findings []scan.Finding
	inRun := false
	forEachLine(abs, func(lineNo int, line string) {
		trimmed := strings.TrimSpace(line)
		if ciPRTarget.MatchString(trimmed) {
			findings = append(findings, privilegeFinding("PERM-PR-TARGET", rel, lineNo,
				"pull_request_target grants secrets to forked code"))
		}
		switch {
		case strings.HasPrefix(trimmed, "run:") || strings.HasPrefix(trimmed, "- run:"):
			inRun = true
		case strings.Contains(trimmed, ":") && !strings.HasPrefix(trimmed, "#"):
			// A new mapping key ends the run block.
			inRun = false
		}
		if inRun && ciSecretInRun.MatchString(line) {
			findings = append(findings, privilegeFinding("PERM-CI-SECRET", rel, lineNo,
				"secret interpolated into a run command: "+trimmed))
		}
	})
	return findings
}

// analyzeToolConfig flags agent tool configurations granting blanket
// approval.
func analyzeToolConfig(rel, abs string) []scan.Finding {
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil
	}
	var cfg map[string]interface{}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil
	}

	var findings []scan.Finding
	raw := string(data)
	if strings.Contains(raw, `"autoApprove"`) || strings.Contains(raw, `"alwaysAllow"`) {
		findings = append(findings, privilegeFinding("PERM-TOOL-AUTOAPPROVE", rel, 0,
			"agent tool configuration auto-approves tool calls"))
	}
	if strings.Contains(raw, "--dangerously-skip-permissions") {
		findings = append(findings, privilegeFinding("PERM-TOOL-SKIP", rel, 0,
			"agent tool configuration disables permission prompts"))
	}
	return findings
}

func privilegeFinding(rule, rel string, line int, desc string) scan.Finding {
	return scan.Finding{
		Phase:    scan.PhaseDependency,
		Rule:     rule,
		Severity: scan.SeverityMedium,
		File:     rel,
		Line:     line,
		Snippet:  desc,
		Weight:   scan.WeightPrivilege,
	}
}

func forEachLine(abs string, visit func(lineNo int, line string)) {
	file, err := os.Open(abs)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		visit(lineNo, scanner.Text())
	}
}
