package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nikhilbhutani/promptlab/internal/models"
)

var variablePattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Render replaces {{variable}} placeholders in content with values from vars.
// Whitespace inside the braces is ignored, so {{ name }} and {{name}} are the same variable.
func Render(content string, vars map[string]string) (string, error) {
	missing := findMissingVars(content, vars)
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: missing template variables: %s", models.ErrValidation, strings.Join(missing, ", "))
	}

	result := variablePattern.ReplaceAllStringFunc(content, func(match string) string {
		key := variablePattern.FindStringSubmatch(match)[1]
		return vars[key]
	})

	return result, nil
}

// ExtractVariables returns the distinct variable names found in content, in order of first use.
func ExtractVariables(content string) []string {
	matches := variablePattern.FindAllStringSubmatch(content, -1)
	seen := make(map[string]bool)
	var vars []string
	for _, m := range matches {
		if len(m) > 1 && !seen[m[1]] {
			vars = append(vars, m[1])
			seen[m[1]] = true
		}
	}
	return vars
}

func findMissingVars(content string, vars map[string]string) []string {
	var missing []string
	for _, v := range ExtractVariables(content) {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	return missing
}
