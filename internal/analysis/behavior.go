package analysis

// SafetyCheck is one capability-level verdict shown to end users.
type SafetyCheck struct {
	Key         string `json:"key"`
	Safe        bool   `json:"safe"`
	SafeMessage string `json:"safe_message"`
	RiskMessage string `json:"risk_message"`
}

// BehaviorReport describes what a skill's code does in plain terms.
type BehaviorReport struct {
	Category         string        `json:"category"`
	Capabilities     Capabilities  `json:"capabilities"`
	SafetyChecks     []SafetyCheck `json:"safety_checks"`
	SafetyStatements []string      `json:"safety_statements"`
}

// AnalyzeBehavior derives the user-facing behavior narrative from the
// scanner's capability flags.
func AnalyzeBehavior(caps Capabilities) *BehaviorReport {
	checks := []SafetyCheck{
		{
			Key:         "shell_exec",
			Safe:        !caps.ShellExec,
			SafeMessage: "No shell execution behavior detected.",
			RiskMessage: "Shell execution behavior detected; review commands and input handling.",
		},
		{
			Key:         "db_access",
			Safe:        !caps.DBAccess,
			SafeMessage: "No database access patterns detected.",
			RiskMessage: "Database access patterns detected; verify query safety and permissions.",
		},
		{
			Key:         "file_delete",
			Safe:        !caps.FileDelete,
			SafeMessage: "No destructive file deletion behavior detected.",
			RiskMessage: "Potential file deletion behavior detected; review scope and safeguards.",
		},
		{
			Key:         "network",
			Safe:        !caps.Network,
			SafeMessage: "No outbound network behavior detected.",
			RiskMessage: "Outbound network behavior detected; verify destination allowlist.",
		},
		{
			Key:         "reads_env",
			Safe:        !caps.ReadsEnv,
			SafeMessage: "No environment variable reads detected.",
			RiskMessage: "Environment variable reads detected; ensure secrets are not exposed.",
		},
	}

	statements := make([]string, 0, len(checks))
	for _, check := range checks {
		if check.Safe {
			statements = append(statements, check.SafeMessage)
		} else {
			statements = append(statements, check.RiskMessage)
		}
	}

	return &BehaviorReport{
		Category:         behaviorCategory(caps),
		Capabilities:     caps,
		SafetyChecks:     checks,
		SafetyStatements: statements,
	}
}

func behaviorCategory(caps Capabilities) string {
	switch {
	case caps.ShellExec:
		return "system_automation"
	case caps.Network:
		return "network_integration"
	case caps.FileWrite || caps.FileDelete:
		return "file_management"
	case caps.DBAccess:
		return "data_access"
	default:
		return "general"
	}
}
