package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"leadpilot/models"
)

func TestReplaceLeadVariables(t *testing.T) {
	lead := &models.Lead{
		FirstName: "Grace",
		LastName:  "Hopper",
		Company:   "Navy",
		Email:     "grace@example.com",
	}

	out := ReplaceLeadVariables("Hi {{first_name}} from {{company}}", lead)
	assert.Equal(t, "Hi Grace from Navy", out)
}

func TestReplaceLeadVariablesFullNameFallback(t *testing.T) {
	lead := &models.Lead{FirstName: "Grace", LastName: "Hopper"}
	assert.Equal(t, "Grace Hopper", ReplaceLeadVariables("{{full_name}}", lead))

	lead.FullName = "Rear Admiral Hopper"
	assert.Equal(t, "Rear Admiral Hopper", ReplaceLeadVariables("{{full_name}}", lead))
}

func TestReplaceLeadVariablesLeavesUnknownAndEmpty(t *testing.T) {
	lead := &models.Lead{FirstName: "Grace"}

	// Unknown placeholders stay verbatim.
	assert.Equal(t, "{{nonsense}}", ReplaceLeadVariables("{{nonsense}}", lead))

	// Known placeholders with empty values also stay verbatim.
	assert.Equal(t, "at {{company}}", ReplaceLeadVariables("at {{company}}", lead))
}

func TestReplaceTriggerVariablesDotPath(t *testing.T) {
	data := map[string]interface{}{
		"lead_name": "Grace",
		"deal": map[string]interface{}{
			"amount": 1200.0,
		},
	}

	out := ReplaceTriggerVariables("{{lead_name}} owes {{deal.amount}} and {{deal.missing}}", data)
	assert.Equal(t, "Grace owes 1200 and {{deal.missing}}", out)
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]interface{}{
		"a": map[string]interface{}{"b": "c"},
	}

	assert.Equal(t, "c", GetNestedValue(data, "a.b"))
	assert.Nil(t, GetNestedValue(data, "a.x"))
	assert.Nil(t, GetNestedValue(data, "a.b.c"))
}
