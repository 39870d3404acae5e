// Package personalization substitutes {{mergeTag}} tokens in email subjects
// and bodies. Resolution order is subscriber well-known fields, subscriber
// custom fields, then execution variables; unresolved tags render empty.
package personalization

import (
	"regexp"

	"github.com/mailgrove/mailgrove/pkg/models"
)

var mergeTag = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Render replaces every merge tag in input. It never fails: an unknown tag
// becomes the empty string so a typo degrades the copy, not the send.
func Render(input string, subscriber *models.Subscriber, variables map[string]string) string {
	return mergeTag.ReplaceAllStringFunc(input, func(token string) string {
		name := mergeTag.FindStringSubmatch(token)[1]

		return Resolve(name, subscriber, variables)
	})
}

// Resolve looks a single tag up through the resolution chain.
func Resolve(name string, subscriber *models.Subscriber, variables map[string]string) string {
	if subscriber != nil {
		switch name {
		case "email", "firstName", "lastName", "status":
			return subscriber.Field(name)
		}

		if value, ok := subscriber.CustomFields[name]; ok {
			return value
		}
	}

	if value, ok := variables[name]; ok {
		return value
	}

	return ""
}
