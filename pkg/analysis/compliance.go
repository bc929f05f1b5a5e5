package analysis

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"
)

// RiskThresholds buckets a compliance risk score into high/medium/low
// (spec §4.7, defaults 0.8/0.5/0.2).
type RiskThresholds struct {
	High   float64
	Medium float64
	Low    float64
}

// DefaultRiskThresholds matches the original's ComplianceAnalyzer defaults.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{High: 0.8, Medium: 0.5, Low: 0.2}
}

// Rule is one compliance pattern: either a regex or a keyword-set match
// (spec §4.7 supplement, grounded on
// original_source/src/analysis/compliance_analyzer.py _apply_rule).
type Rule struct {
	Name        string
	Type        string // "regex" or "keyword"
	Pattern     string
	Severity    string
	Remediation string
}

// ComplianceAnalyzer flags regulatory/privacy risk via a fixed
// pii/confidential/financial/security severity table alongside
// configurable role and general rule sets (spec §4.7, grounded on
// original_source/src/analysis/compliance_analyzer.py ComplianceAnalyzer).
type ComplianceAnalyzer struct {
	deps       Dependencies
	rules      map[string][]Rule // role -> rules; "general" applies to all
	thresholds RiskThresholds
}

func NewComplianceAnalyzer(deps Dependencies, config map[string]any) *ComplianceAnalyzer {
	a := &ComplianceAnalyzer{deps: deps, thresholds: DefaultRiskThresholds()}
	if config != nil {
		if rules, ok := config["compliance_rules"].(map[string][]Rule); ok {
			a.rules = rules
		}
		if th, ok := config["risk_thresholds"].(RiskThresholds); ok {
			a.thresholds = th
		}
	}
	return a
}

func (a *ComplianceAnalyzer) Analyze(ctx context.Context, content map[string]any, contextEntry any, taskConfig map[string]any) ([]Insight, error) {
	text, _ := content["text"].(string)
	role, _ := content["role"].(string)
	if role == "" {
		role = "general"
	}

	prompt := "Analyze compliance and regulatory aspects. Consider:\n" +
		"1. Data privacy compliance\n2. Regulatory requirements\n" +
		"3. Policy adherence\n4. Risk assessment\n\nText: " + text + "\nRole: " + role

	expectedFormat := map[string]any{
		"compliance_status": map[string]any{
			"overall":    "string (compliant/non_compliant/needs_review)",
			"risk_level": "string (high/medium/low)",
		},
		"risk_assessment": map[string]any{
			"risk_factors": []string{"list of string"},
			"risk_score":   "float (0-1)",
		},
	}

	ai, err := getAIAnalysis(ctx, a.deps.LLM, prompt, expectedFormat)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return []Insight{
		{Type: TypeCompliance, Content: ai, Confidence: 0.8, Source: "ai_analysis", Timestamp: now},
		{Type: TypeCompliance, Content: a.checkComplianceRules(text, role), Confidence: 0.9, Source: "rule_analysis", Timestamp: now},
	}, nil
}

func (a *ComplianceAnalyzer) checkComplianceRules(text, role string) map[string]any {
	roleChecks := []map[string]any{}
	for _, rule := range a.rules[role] {
		if r := applyRule(text, rule); r != nil {
			roleChecks = append(roleChecks, r)
		}
	}

	generalChecks := []map[string]any{}
	for _, rule := range a.rules["general"] {
		if r := applyRule(text, rule); r != nil {
			generalChecks = append(generalChecks, r)
		}
	}

	return map[string]any{
		"role_specific_checks": roleChecks,
		"general_checks":       generalChecks,
		"risk_indicators":      a.checkRiskIndicators(text),
	}
}

func applyRule(text string, rule Rule) map[string]any {
	switch rule.Type {
	case "regex":
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return nil
		}
		matches := re.FindAllString(text, -1)
		if len(matches) == 0 {
			return nil
		}
		return map[string]any{
			"rule": rule.Name, "severity": rule.Severity,
			"violations": matches, "remediation": rule.Remediation,
		}
	case "keyword":
		keywords := set(strings.Split(rule.Pattern, "|")...)
		found := make(map[string]struct{})
		for _, w := range strings.Fields(strings.ToLower(text)) {
			if keywords[w] {
				found[w] = struct{}{}
			}
		}
		if len(found) == 0 {
			return nil
		}
		violations := make([]string, 0, len(found))
		for w := range found {
			violations = append(violations, w)
		}
		sort.Strings(violations)
		return map[string]any{
			"rule": rule.Name, "severity": rule.Severity,
			"violations": violations, "remediation": rule.Remediation,
		}
	}
	return nil
}

var riskPatterns = []struct {
	Type    string
	Pattern *regexp.Regexp
}{
	{"pii_exposure", regexp.MustCompile(`(?i)\b(?:ssn|passport|credit.?card)\b`)},
	{"confidential", regexp.MustCompile(`(?i)\b(?:confidential|classified|restricted)\b`)},
	{"financial", regexp.MustCompile(`(?i)\b(?:account.?number|routing.?number)\b`)},
	{"security", regexp.MustCompile(`(?i)\b(?:password|credentials|authentication)\b`)},
}

// riskSeverityBase is the fixed compliance risk base mapping (spec §4.7,
// bit-exact).
var riskSeverityBase = map[string]float64{
	"pii_exposure": 0.9, "confidential": 0.8, "financial": 0.7, "security": 0.6,
}

func (a *ComplianceAnalyzer) checkRiskIndicators(text string) []map[string]any {
	indicators := []map[string]any{}
	for _, rp := range riskPatterns {
		for _, loc := range rp.Pattern.FindAllStringIndex(text, -1) {
			clauseStart, clauseEnd := expandToClause(text, loc[0], loc[1])
			matched := strings.TrimSpace(text[clauseStart:clauseEnd])
			indicators = append(indicators, map[string]any{
				"type":     rp.Type,
				"text":     matched,
				"position": clauseStart,
				"severity": a.assessRiskSeverity(rp.Type, matched),
			})
		}
	}
	return indicators
}

// clauseBoundary reports whether r separates clauses for risk-span
// expansion purposes.
func clauseBoundary(r rune) bool {
	switch r {
	case '.', '!', '?', ',', ';', ':', '\n':
		return true
	default:
		return false
	}
}

// expandToClause widens a keyword match [start, end) out to its enclosing
// clause so that the reported "matched" span covers the phrase the keyword
// sits in, not just the bare keyword (spec §4.7 risk severity: a 20-char
// span threshold is only meaningful against a multi-word match).
func expandToClause(text string, start, end int) (int, int) {
	for start > 0 && !clauseBoundary(rune(text[start-1])) {
		start--
	}
	for end < len(text) && !clauseBoundary(rune(text[end])) {
		end++
	}
	return start, end
}

// assessRiskSeverity implements the bit-exact compliance risk base mapping
// plus +0.1 when the matched span exceeds 20 characters, bucketed against
// the configured thresholds (spec §4.7).
func (a *ComplianceAnalyzer) assessRiskSeverity(riskType, matched string) string {
	base, ok := riskSeverityBase[riskType]
	if !ok {
		base = 0.5
	}
	if len(matched) > 20 {
		base += 0.1
	}

	switch {
	case base >= a.thresholds.High:
		return "high"
	case base >= a.thresholds.Medium:
		return "medium"
	default:
		return "low"
	}
}
