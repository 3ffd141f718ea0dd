package utils

import (
	"fmt"
	"regexp"
	"strings"

	"leadpilot/models"
)

var variablePattern = regexp.MustCompile(`\{\{([\w.]+)\}\}`)

// ReplaceLeadVariables substitutes the known lead placeholders in a template.
// Unknown placeholders, and known ones whose value is empty, are left verbatim.
func ReplaceLeadVariables(template string, lead *models.Lead) string {
	fullName := lead.FullName
	if fullName == "" {
		fullName = strings.TrimSpace(lead.FirstName + " " + lead.LastName)
	}

	values := map[string]string{
		"first_name": lead.FirstName,
		"last_name":  lead.LastName,
		"full_name":  fullName,
		"company":    lead.Company,
		"email":      lead.Email,
	}

	return variablePattern.ReplaceAllStringFunc(template, func(match string) string {
		key := variablePattern.FindStringSubmatch(match)[1]
		if v, ok := values[key]; ok && v != "" {
			return v
		}
		return match
	})
}

// ReplaceTriggerVariables substitutes placeholders from trigger data, where
// the placeholder name may be a dot path into nested maps.
func ReplaceTriggerVariables(template string, data map[string]interface{}) string {
	return variablePattern.ReplaceAllStringFunc(template, func(match string) string {
		key := variablePattern.FindStringSubmatch(match)[1]
		if v := GetNestedValue(data, key); v != nil {
			if s := fmt.Sprint(v); s != "" {
				return s
			}
		}
		return match
	})
}

// GetNestedValue walks a dot path through nested map[string]interface{}
// values, returning nil when any segment is missing.
func GetNestedValue(data map[string]interface{}, path string) interface{} {
	parts := strings.Split(path, ".")
	var current interface{} = data
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}
