package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssessRiskSeverity_BaseMapping(t *testing.T) {
	a := NewComplianceAnalyzer(Dependencies{}, nil)
	assert.Equal(t, "high", a.assessRiskSeverity("pii_exposure", "ssn"))     // 0.9
	assert.Equal(t, "medium", a.assessRiskSeverity("financial", "account")) // 0.7
	assert.Equal(t, "medium", a.assessRiskSeverity("security", "password")) // 0.6
}

func TestAssessRiskSeverity_SpanBonus(t *testing.T) {
	// S5: base 0.8 ("confidential") + 0.1 span bonus (>20 chars matched) =
	// 0.9 -> "high" under default thresholds.
	a := NewComplianceAnalyzer(Dependencies{}, nil)
	matched := "confidential project plan for merger" // 36 chars, > 20
	require.Greater(t, len(matched), 20)
	assert.Equal(t, "high", a.assessRiskSeverity("confidential", matched))
}

func TestAssessRiskSeverity_NoBonusForShortMatch(t *testing.T) {
	a := NewComplianceAnalyzer(Dependencies{}, nil)
	// base 0.8 already clears the default High threshold on its own.
	assert.Equal(t, "high", a.assessRiskSeverity("confidential", "confidential"))
	// base 0.7 with a 14-char match gets no bonus, so it stays below High.
	assert.Equal(t, "medium", a.assessRiskSeverity("financial", "account number"))
}

func TestCheckRiskIndicators_ExpandsMatchToClause(t *testing.T) {
	a := NewComplianceAnalyzer(Dependencies{}, nil)
	indicators := a.checkRiskIndicators("This is confidential project plan for merger, do not share.")
	require.NotEmpty(t, indicators)
	found := false
	for _, ind := range indicators {
		if ind["type"] == "confidential" {
			found = true
			text := ind["text"].(string)
			assert.Greater(t, len(text), 20)
			assert.Equal(t, "high", ind["severity"])
		}
	}
	assert.True(t, found)
}

func TestApplyRule_RegexAndKeyword(t *testing.T) {
	regexRule := Rule{Name: "r1", Type: "regex", Pattern: `foo\w*`, Severity: "high", Remediation: "redact"}
	result := applyRule("a foobar here", regexRule)
	require.NotNil(t, result)
	assert.Equal(t, "high", result["severity"])

	keywordRule := Rule{Name: "r2", Type: "keyword", Pattern: "alpha|beta", Severity: "low", Remediation: "note"}
	result2 := applyRule("alpha and gamma", keywordRule)
	require.NotNil(t, result2)
	assert.Contains(t, result2["violations"], "alpha")

	noMatch := applyRule("nothing here", keywordRule)
	assert.Nil(t, noMatch)
}
