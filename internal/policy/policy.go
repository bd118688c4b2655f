// Package policy classifies a command before it runs: Allow, Deny with a
// rule id and reason, or NeedsApproval with a risk level. It is stateless
// and consulted by internal/turn before every gated tool call.
//
// Deny-rule matching is grounded on internal/permission/bash_parser.go's
// command parsing (mvdan.cc/sh/v3) and internal/permission/permission.go's
// dangerous-command list, generalized from "ask the user" to a three-way
// Allow/Deny/NeedsApproval classification that also covers non-bash sources
// (WebFetch, McpToolResponse, File, GitLog).
package policy

import (
	"regexp"
	"strings"

	"github.com/clawd-io/clawd/pkg/types"
	"mvdan.cc/sh/v3/syntax"
)

// Source is where the candidate command or content originated.
type Source string

const (
	SourceUserInput      Source = "UserInput"
	SourceWebFetch       Source = "WebFetch"
	SourceMcpToolResponse Source = "McpToolResponse"
	SourceFile           Source = "File"
	SourceGitLog         Source = "GitLog"
)

// untrustedSources are sources policy treats as attacker-controlled for the
// purpose of prompt-injection scanning.
var untrustedSources = map[Source]bool{
	SourceWebFetch:        true,
	SourceMcpToolResponse: true,
	SourceFile:            true,
	SourceGitLog:          true,
}

// Outcome is the three-way classification result.
type Outcome string

const (
	OutcomeAllow         Outcome = "Allow"
	OutcomeDeny          Outcome = "Deny"
	OutcomeNeedsApproval Outcome = "NeedsApproval"
)

// Decision is what Classify returns.
type Decision struct {
	Outcome Outcome
	RuleID  string
	Reason  string
	Risk    types.RiskLevel
}

func allow() Decision { return Decision{Outcome: OutcomeAllow} }

func deny(ruleID, reason string) Decision {
	return Decision{Outcome: OutcomeDeny, RuleID: ruleID, Reason: reason}
}

func needsApproval(risk types.RiskLevel, reason string) Decision {
	return Decision{Outcome: OutcomeNeedsApproval, Risk: risk, Reason: reason}
}

// denyRule is one built-in pattern: a regex over the raw command text plus
// the stable rule id and message surfaced in the Deny decision.
type denyRule struct {
	id      string
	pattern *regexp.Regexp
	reason  string
}

var denyRules = []denyRule{
	{"destructive_rm_root", regexp.MustCompile(`\brm\s+(-\w*r\w*f\w*|-\w*f\w*r\w*)\s+/\s*$`), "refuses to remove the filesystem root"},
	{"destructive_rm_root_slash_star", regexp.MustCompile(`\brm\s+-\w*r\w*f?\w*\s+/\*`), "refuses to wipe everything under /"},
	{"destructive_disk_wipe", regexp.MustCompile(`\b(mkfs|dd\s+.*of=/dev/(sd|nvme|hd))\w*`), "refuses to format or overwrite a block device"},
	{"destructive_sudo_rm", regexp.MustCompile(`\bsudo\s+rm\b`), "refuses an elevated remove"},
	{"secret_file_read_passwd", regexp.MustCompile(`/etc/(passwd|shadow)\b`), "refuses to read system credential files"},
	{"secret_file_read_ssh", regexp.MustCompile(`\.ssh/(id_rsa|id_ed25519|id_ecdsa)(\.pub)?\b|\.ssh/authorized_keys\b`), "refuses to read SSH private key material"},
	{"secret_file_read_aws", regexp.MustCompile(`\.aws/credentials\b|AWS_SECRET_ACCESS_KEY`), "refuses to read cloud credential files"},
	{"network_to_shell_pipe", regexp.MustCompile(`\b(curl|wget)\b[^|]*\|\s*(sh|bash|zsh|sudo\s+sh|sudo\s+bash)\b`), "refuses to pipe a network download into a shell"},
	{"path_traversal", regexp.MustCompile(`(\.\./){2,}`), "refuses a path with repeated parent-directory traversal"},
	{"encoded_shell_base64", regexp.MustCompile(`base64\s+-d(ecode)?\s*\|\s*(sh|bash)\b`), "refuses to decode and execute an obfuscated payload"},
	{"encoded_shell_hex", regexp.MustCompile(`(\\x[0-9a-fA-F]{2}){4,}`), "refuses a hex-escaped command payload"},
}

// injectionPatterns raise the risk level of a NeedsApproval decision for
// content pulled from an untrusted source.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all )?previous instructions`),
	regexp.MustCompile(`(?i)system prompt\s*:`),
	regexp.MustCompile(`(?i)\[inst\]`),
	regexp.MustCompile(`(?i)<<sys>>`),
	regexp.MustCompile(`(?i)you are now\b`),
	regexp.MustCompile(`(?i)disregard (the )?(above|prior)\b`),
}

// Classify is the stateless (command, source, actor) -> Decision entry
// point internal/turn consults before every tool call.
func Classify(command string, source Source, actor string) Decision {
	for _, rule := range denyRules {
		if rule.pattern.MatchString(command) {
			return deny(rule.id, rule.reason)
		}
	}

	injected := scanInjection(command)
	if injected && untrustedSources[source] {
		return needsApproval(types.RiskHigh, "untrusted content resembles a prompt-injection attempt")
	}

	if risk, ok := heuristicRisk(command); ok {
		return needsApproval(risk, "command matches a risk heuristic requiring review")
	}

	return allow()
}

// scanInjection reports whether text contains a known prompt-injection
// phrase, regardless of source (the caller decides whether the source
// makes that significant).
func scanInjection(text string) bool {
	for _, p := range injectionPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// heuristicRisk flags commands that are not outright denied but still
// warrant a human decision: broad recursive deletes outside the denied
// root case, privilege escalation, and writes to common system directories.
func heuristicRisk(command string) (types.RiskLevel, bool) {
	lower := strings.ToLower(command)
	switch {
	case strings.Contains(lower, "rm -rf") || strings.Contains(lower, "rm -fr"):
		return types.RiskHigh, true
	case strings.Contains(lower, "sudo "):
		return types.RiskMedium, true
	case strings.Contains(lower, "chmod -r") || strings.Contains(lower, "chown -r"):
		return types.RiskMedium, true
	case strings.HasPrefix(lower, "git push --force") || strings.HasPrefix(lower, "git push -f"):
		return types.RiskMedium, true
	}
	return "", false
}

// SanitizeMCPResponse walks a decoded JSON value (map[string]any,
// []any, or string) from an untrusted MCP tool response and replaces any
// string leaf that scans as prompt injection with a redaction notice,
// returning a value safe to fold into a turn's context.
func SanitizeMCPResponse(v any) any {
	switch x := v.(type) {
	case string:
		if scanInjection(x) {
			return "[redacted: content resembled a prompt-injection attempt]"
		}
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = SanitizeMCPResponse(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = SanitizeMCPResponse(val)
		}
		return out
	default:
		return v
	}
}

// ParseCommand parses command as bash with mvdan.cc/sh/v3 and returns the
// parse error, if any. Classify does not call it, so a parse failure is not
// a denial.
func ParseCommand(command string) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	_, err := parser.Parse(strings.NewReader(command), "")
	return err
}
