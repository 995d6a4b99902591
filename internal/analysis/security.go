// Package analysis runs the analyzer suite over artifact snapshots and
// writes scored, badged results.
package analysis

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Severity levels for security findings.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// SeverityWeights maps each severity to its risk score contribution.
var SeverityWeights = map[Severity]int{
	SeverityCritical: 100,
	SeverityHigh:     25,
	SeverityMedium:   5,
	SeverityLow:      1,
}

// Finding categories.
const (
	CategoryExec            = "exec"
	CategoryFilesystem      = "filesystem"
	CategoryNetwork         = "network"
	CategorySecrets         = "secrets"
	CategoryDeps            = "deps"
	CategoryPromptInjection = "prompt_injection"
)

// ScannedFile is one decoded text file presented to the scanner.
type ScannedFile struct {
	Path string
	Text string
}

// Finding is one matched security rule occurrence. The ID is stable
// across re-scans of identical content.
type Finding struct {
	ID         string   `json:"id"`
	Category   string   `json:"category"`
	Severity   Severity `json:"severity"`
	Title      string   `json:"title"`
	Evidence   string   `json:"evidence"`
	FilePath   string   `json:"file_path"`
	LineStart  *int     `json:"line_start"`
	LineEnd    *int     `json:"line_end"`
	Confidence string   `json:"confidence"`
}

// Capabilities are coarse behavior flags derived from content patterns.
type Capabilities struct {
	Network    bool `json:"network"`
	FileWrite  bool `json:"file_write"`
	FileDelete bool `json:"file_delete"`
	ShellExec  bool `json:"shell_exec"`
	ReadsEnv   bool `json:"reads_env"`
	DBAccess   bool `json:"db_access"`
}

// ScanResult is the deterministic scanner output.
type ScanResult struct {
	Findings     []Finding
	RiskScore    int
	TrustBadge   string
	Capabilities Capabilities
}

type rule struct {
	id          string
	category    string
	severity    Severity
	title       string
	confidence  string
	pattern     *regexp.Regexp
	extensions  []string
	nameMatcher *regexp.Regexp
}

var securityRules = []rule{
	{
		id: "SEC_PY_EVAL_001", category: CategoryExec, severity: SeverityCritical,
		title:      "Python dynamic code execution detected (eval/exec).",
		confidence: "high",
		pattern:    regexp.MustCompile(`(?i)\b(eval|exec)\s*\(`),
		extensions: []string{".py"},
	},
	{
		id: "SEC_PY_SHELL_TRUE_001", category: CategoryExec, severity: SeverityHigh,
		title:      "subprocess call with shell=True detected.",
		confidence: "high",
		pattern:    regexp.MustCompile(`(?i)subprocess\.(run|Popen|call|check_output|check_call)\s*\([^)]*shell\s*=\s*True`),
		extensions: []string{".py"},
	},
	{
		id: "SEC_PY_OS_SYSTEM_001", category: CategoryExec, severity: SeverityHigh,
		title:      "Shell execution via os.system/popen detected.",
		confidence: "high",
		pattern:    regexp.MustCompile(`(?i)\b(os\.system|popen)\s*\(`),
		extensions: []string{".py", ".sh", ".bash", ".zsh"},
	},
	{
		id: "SEC_JS_EVAL_001", category: CategoryExec, severity: SeverityCritical,
		title:      "JavaScript dynamic code execution detected (eval/new Function).",
		confidence: "high",
		pattern:    regexp.MustCompile(`(?i)\b(eval\s*\(|new\s+Function\s*\()`),
		extensions: []string{".js", ".ts", ".mjs", ".cjs"},
	},
	{
		id: "SEC_JS_CHILD_PROCESS_001", category: CategoryExec, severity: SeverityHigh,
		title:      "child_process command execution detected.",
		confidence: "high",
		pattern:    regexp.MustCompile(`(?i)child_process\.(exec|spawn)\s*\(`),
		extensions: []string{".js", ".ts", ".mjs", ".cjs"},
	},
	{
		id: "SEC_SH_PIPE_EXEC_001", category: CategoryExec, severity: SeverityCritical,
		title:      "Remote script piping into shell detected (curl|sh or wget|bash).",
		confidence: "high",
		pattern:    regexp.MustCompile(`(?i)(curl\s+[^|]+?\|\s*(sh|bash))|(wget\s+[^|]+?\|\s*(sh|bash))`),
		extensions: []string{".sh", ".bash", ".zsh", ".md", ".txt", ".yaml", ".yml"},
	},
	{
		id: "SEC_FS_RM_RF_001", category: CategoryFilesystem, severity: SeverityCritical,
		title:      "Destructive recursive deletion detected (rm -rf / rmtree).",
		confidence: "high",
		pattern:    regexp.MustCompile(`(?i)(rm\s+-rf\b|shutil\.rmtree\s*\()`),
	},
	{
		id: "SEC_FS_SENSITIVE_WRITE_001", category: CategoryFilesystem, severity: SeverityHigh,
		title:      "Write or modification of sensitive system path detected.",
		confidence: "medium",
		pattern:    regexp.MustCompile(`(?i)(~/\.ssh|/etc/|/usr/|/var/)`),
	},
	{
		id: "SEC_FS_PATH_TRAVERSAL_001", category: CategoryFilesystem, severity: SeverityMedium,
		title:      "Potential path traversal pattern with user-controlled path.",
		confidence: "medium",
		pattern:    regexp.MustCompile(`(?i)\.\./.*(user|input|param|request|query)`),
	},
	{
		id: "SEC_NET_USER_URL_001", category: CategoryNetwork, severity: SeverityMedium,
		title:      "Potential SSRF: outbound request built from user-controlled URL.",
		confidence: "medium",
		pattern: regexp.MustCompile(`(?i)(requests\.(get|post|put|delete)\s*\(\s*(user_?url|url_from_user|input_url|request\.)|` +
			`fetch\s*\(\s*(user_?url|urlFromUser|inputUrl|req\.))`),
	},
	{
		id: "SEC_NET_RAW_SOCKET_001", category: CategoryNetwork, severity: SeverityHigh,
		title:      "Raw socket usage detected.",
		confidence: "medium",
		pattern:    regexp.MustCompile(`(?i)(socket\.socket\s*\(|new\s+Socket\s*\()`),
	},
	{
		id: "SEC_NET_METADATA_001", category: CategoryNetwork, severity: SeverityHigh,
		title:      "Cloud metadata endpoint access detected.",
		confidence: "high",
		pattern:    regexp.MustCompile(`169\.254\.169\.254`),
	},
	{
		id: "SEC_SECRET_ENV_EXFIL_001", category: CategorySecrets, severity: SeverityHigh,
		title:      "Environment secret read and outbound request pattern detected.",
		confidence: "medium",
		pattern: regexp.MustCompile(`(?i)((os\.environ|getenv|process\.env).*(requests\.|fetch\s*\())|` +
			`((requests\.|fetch\s*\().*(os\.environ|getenv|process\.env))`),
	},
	{
		id: "SEC_SECRET_TOKEN_LOG_001", category: CategorySecrets, severity: SeverityMedium,
		title:      "Potential secret logging or Authorization header exposure.",
		confidence: "medium",
		pattern: regexp.MustCompile(`(?i)(Authorization|api[_-]?key|token).*(print|console\.log)|` +
			`(print|console\.log).*(Authorization|api[_-]?key|token)`),
	},
	{
		id: "SEC_DEP_POSTINSTALL_001", category: CategoryDeps, severity: SeverityHigh,
		title:       "NPM postinstall script detected.",
		confidence:  "high",
		pattern:     regexp.MustCompile(`(?i)"postinstall"\s*:`),
		nameMatcher: regexp.MustCompile(`(?i)package\.json$`),
	},
	{
		id: "SEC_DEP_NPM_GIT_HTTP_001", category: CategoryDeps, severity: SeverityMedium,
		title:       "Git or HTTP dependency source detected in package.json.",
		confidence:  "medium",
		pattern:     regexp.MustCompile(`(?i)(git\+https?://|https?://.*\.tgz|github:)`),
		nameMatcher: regexp.MustCompile(`(?i)package\.json$`),
	},
	{
		id: "SEC_DEP_PY_GIT_URL_001", category: CategoryDeps, severity: SeverityLow,
		title:       "requirements.txt contains git-based dependency.",
		confidence:  "medium",
		pattern:     regexp.MustCompile(`(?i)git\+https?://`),
		nameMatcher: regexp.MustCompile(`(?i)requirements.*\.txt$`),
	},
	{
		id: "SEC_SKILL_PROMPT_INJ_001", category: CategoryPromptInjection, severity: SeverityHigh,
		title:       "Prompt injection style unsafe instruction in SKILL.md.",
		confidence:  "medium",
		pattern:     regexp.MustCompile(`(?i)(ignore\s+previous|exfiltrate|send\s+secrets|disable\s+safeguards)`),
		nameMatcher: regexp.MustCompile(`(?i)SKILL\.md$`),
	},
}

var (
	capNetworkRe    = regexp.MustCompile(`\b(requests\.|fetch\s*\(|httpx\.|urllib\.)`)
	capFileWriteRe  = regexp.MustCompile(`\b(open\s*\(.+['"]w|write_text\s*\(|fs\.writefile|tee\s+)`)
	capFileDeleteRe = regexp.MustCompile(`\b(rm\s+-rf|rmtree\s*\(|unlink\s*\()`)
	capShellExecRe  = regexp.MustCompile(`\b(subprocess\.|os\.system|child_process\.)`)
	capReadsEnvRe   = regexp.MustCompile(`\b(os\.environ|getenv|process\.env)\b`)
	capDBAccessRe   = regexp.MustCompile(`\b(select\s+.+\s+from|insert\s+into|sqlalchemy|psycopg|sqlite3|mongodb)\b`)
)

func (r rule) applies(path string) bool {
	if len(r.extensions) > 0 {
		lowered := strings.ToLower(path)
		matched := false
		for _, ext := range r.extensions {
			if strings.HasSuffix(lowered, ext) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if r.nameMatcher != nil && !r.nameMatcher.MatchString(path) {
		return false
	}
	return true
}

// evidenceText compacts whitespace and caps evidence length.
func evidenceText(text string) string {
	oneLine := strings.Join(strings.Fields(strings.TrimSpace(text)), " ")
	if len(oneLine) > 240 {
		return oneLine[:240]
	}
	return oneLine
}

func lineNumber(text string, offset int) *int {
	if offset < 0 {
		return nil
	}
	n := strings.Count(text[:offset], "\n") + 1
	return &n
}

// findingID builds a stable identifier from the rule, location, and
// evidence so identical content yields identical findings.
func findingID(ruleID, filePath string, lineStart *int, evidence string) string {
	line := "None"
	if lineStart != nil {
		line = fmt.Sprintf("%d", *lineStart)
	}
	stable := fmt.Sprintf("%s:%s:%s:%s", ruleID, filePath, line, evidence)
	digest := sha1.Sum([]byte(stable))
	return ruleID + "_" + hex.EncodeToString(digest[:])[:8]
}

// ScanSecurity runs the deterministic rule table over decoded text
// files and returns findings, a capped risk score, a trust badge, and
// capability flags.
func ScanSecurity(files []ScannedFile) *ScanResult {
	result := &ScanResult{Findings: []Finding{}}

	for _, file := range files {
		if file.Text == "" {
			continue
		}

		textLower := strings.ToLower(file.Text)
		if capNetworkRe.MatchString(textLower) {
			result.Capabilities.Network = true
		}
		if capFileWriteRe.MatchString(textLower) {
			result.Capabilities.FileWrite = true
		}
		if capFileDeleteRe.MatchString(textLower) {
			result.Capabilities.FileDelete = true
		}
		if capShellExecRe.MatchString(textLower) {
			result.Capabilities.ShellExec = true
		}
		if capReadsEnvRe.MatchString(textLower) {
			result.Capabilities.ReadsEnv = true
		}
		if capDBAccessRe.MatchString(textLower) {
			result.Capabilities.DBAccess = true
		}

		for _, r := range securityRules {
			if !r.applies(file.Path) {
				continue
			}
			for _, loc := range r.pattern.FindAllStringIndex(file.Text, -1) {
				snippetStart := loc[0] - 50
				if snippetStart < 0 {
					snippetStart = 0
				}
				snippetEnd := loc[1] + 120
				if snippetEnd > len(file.Text) {
					snippetEnd = len(file.Text)
				}
				snippet := file.Text[snippetStart:snippetEnd]
				line := lineNumber(file.Text, loc[0])
				result.Findings = append(result.Findings, Finding{
					ID:         findingID(r.id, file.Path, line, snippet),
					Category:   r.category,
					Severity:   r.severity,
					Title:      r.title,
					Evidence:   evidenceText(snippet),
					FilePath:   file.Path,
					LineStart:  line,
					LineEnd:    line,
					Confidence: r.confidence,
				})
			}
		}

		dependencyChecks(file, &result.Findings)
	}

	score := 0
	for _, f := range result.Findings {
		score += SeverityWeights[f.Severity]
	}
	result.RiskScore = capRiskScore(score)
	result.TrustBadge = TrustBadge(result.RiskScore)
	return result
}

// dependencyChecks flags unpinned dependency declarations in manifests.
func dependencyChecks(file ScannedFile, findings *[]Finding) {
	pathLower := strings.ToLower(file.Path)

	if strings.HasSuffix(pathLower, "package.json") {
		var payload map[string]json.RawMessage
		if err := json.Unmarshal([]byte(file.Text), &payload); err == nil {
			for _, block := range []string{"dependencies", "devDependencies", "optionalDependencies"} {
				var deps map[string]string
				if raw, ok := payload[block]; ok {
					if err := json.Unmarshal(raw, &deps); err != nil {
						continue
					}
				}
				for name, ver := range deps {
					if ver != "*" && ver != "latest" && !strings.HasPrefix(strings.TrimSpace(ver), "^") {
						continue
					}
					evidence := fmt.Sprintf(`"%s": "%s"`, name, ver)
					*findings = append(*findings, Finding{
						ID:         findingID("SEC_DEP_UNPINNED_NPM_001", file.Path, nil, evidence),
						Category:   CategoryDeps,
						Severity:   SeverityLow,
						Title:      "Unpinned NPM dependency version detected.",
						Evidence:   evidenceText(evidence),
						FilePath:   file.Path,
						Confidence: "medium",
					})
				}
			}
		}
	}

	if strings.Contains(pathLower, "requirements") && strings.HasSuffix(pathLower, ".txt") {
		for idx, line := range strings.Split(file.Text, "\n") {
			clean := strings.TrimSpace(line)
			if clean == "" || strings.HasPrefix(clean, "#") {
				continue
			}
			if strings.Contains(clean, "==") || strings.HasPrefix(clean, "-e ") || strings.HasPrefix(clean, "git+") {
				continue
			}
			lineNo := idx + 1
			*findings = append(*findings, Finding{
				ID:         findingID("SEC_DEP_UNPINNED_PY_001", file.Path, &lineNo, clean),
				Category:   CategoryDeps,
				Severity:   SeverityLow,
				Title:      "Unpinned Python dependency detected.",
				Evidence:   evidenceText(clean),
				FilePath:   file.Path,
				LineStart:  &lineNo,
				LineEnd:    &lineNo,
				Confidence: "low",
			})
		}
	}
}
