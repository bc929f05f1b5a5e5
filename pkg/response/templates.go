package response

import (
	"fmt"
	"regexp"
	"strings"
)

var variablePattern = regexp.MustCompile(`\{([^}]+)\}`)

// Template is one response template: a default content string plus
// optional per-role overrides, matched by Type (spec §4.9, grounded on
// original_source/src/response/templates.py ResponseTemplate/TemplateManager).
type Template struct {
	Name        string
	Type        Type
	Content     string
	RoleContent map[string]string
	variables   map[string]struct{}
}

// NewTemplate builds a Template, pre-extracting the variable names used by
// its default content and every role-specific override.
func NewTemplate(name string, typ Type, content string, roleContent map[string]string) *Template {
	t := &Template{Name: name, Type: typ, Content: content, RoleContent: roleContent}
	t.variables = extractVariables(content)
	for _, rc := range roleContent {
		for v := range extractVariables(rc) {
			t.variables[v] = struct{}{}
		}
	}
	return t
}

func extractVariables(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, m := range variablePattern.FindAllStringSubmatch(s, -1) {
		out[m[1]] = struct{}{}
	}
	return out
}

func (t *Template) contentFor(role string) string {
	if role != "" {
		if rc, ok := t.RoleContent[role]; ok {
			return rc
		}
	}
	return t.Content
}

// matchesRole reports whether t applies for role: unscoped (role == "")
// always matches; a role-scoped request only matches templates carrying an
// override for that role (spec §4.9 "optionally the role", mirroring the
// original's strict role_specific lookup).
func (t *Template) matchesRole(role string) bool {
	if role == "" {
		return true
	}
	_, ok := t.RoleContent[role]
	return ok
}

// Render fills content for role with values, failing closed (returns false,
// not an error) when any referenced variable has no value (spec §4.9
// "rendering fails closed ... skipped rather than raising").
func (t *Template) Render(role string, values map[string]any) (string, bool) {
	content := t.contentFor(role)
	for v := range extractVariables(content) {
		if _, ok := values[v]; !ok {
			return "", false
		}
	}
	rendered := variablePattern.ReplaceAllStringFunc(content, func(match string) string {
		key := strings.Trim(match, "{}")
		return fmt.Sprintf("%v", values[key])
	})
	return rendered, true
}

// Registry holds the templates available to a Generator, keyed by Type.
type Registry struct {
	byType map[Type][]*Template
}

// NewRegistry returns an empty template Registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[Type][]*Template)}
}

// Add registers t under its Type.
func (r *Registry) Add(t *Template) {
	r.byType[t.Type] = append(r.byType[t.Type], t)
}

// Find returns every template matching typ and role, in registration order.
func (r *Registry) Find(typ Type, role string) []*Template {
	var out []*Template
	for _, t := range r.byType[typ] {
		if t.matchesRole(role) {
			out = append(out, t)
		}
	}
	return out
}

// NewDefaultRegistry returns a Registry seeded with the four template
// families the original ships: clarification, follow_up, suggestion, and
// summary (original_source/src/response/templates.py _setup_default_templates).
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Add(NewTemplate("clarification", TypeClarification,
		"Could you please clarify {topic}?",
		map[string]string{
			"interviewer":    "Could you elaborate on {topic}, particularly regarding {aspect}?",
			"support_agent":  "I need to better understand {topic}. Could you provide more details about {aspect}?",
		}))
	r.Add(NewTemplate("follow_up", TypeFollowUp,
		"Based on {context}, what are your thoughts about {topic}?",
		map[string]string{
			"interviewer":   "Given your experience with {context}, how would you approach {topic}?",
			"support_agent": "Now that we've addressed {context}, let me ask about {topic}.",
		}))
	r.Add(NewTemplate("suggestion", TypeSuggestion,
		"Have you considered {suggestion}?",
		map[string]string{
			"support_agent": "One solution would be to {suggestion}. Would you like to try that?",
			"meeting_host":  "I suggest we {suggestion}. What do you think?",
		}))
	r.Add(NewTemplate("summary", TypeSummary,
		"To summarize the key points:\n{points}",
		map[string]string{
			"meeting_host": "Let me recap our discussion:\n{points}\nHave I missed anything important?",
			"interviewer":  "Based on our discussion:\n{points}\nIs this an accurate summary?",
		}))
	return r
}
