package personalization

import (
	"testing"

	"github.com/mailgrove/mailgrove/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	subscriber := &models.Subscriber{
		Email:        "ada@example.com",
		FirstName:    "Ada",
		Status:       models.SubscriberStatusActive,
		CustomFields: map[string]string{"company": "Analytical Engines"},
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"well-known field", "Hi {{firstName}}!", "Hi Ada!"},
		{"custom field", "From {{company}}", "From Analytical Engines"},
		{"whitespace inside tag", "Hi {{ firstName }}", "Hi Ada"},
		{"multiple tags", "{{firstName}} <{{email}}>", "Ada <ada@example.com>"},
		{"unresolved tag renders empty", "Hello {{nickname}}!", "Hello !"},
		{"no tags", "plain text", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Render(tt.input, subscriber, nil))
		})
	}
}

func TestRender_VariablesFallback(t *testing.T) {
	subscriber := &models.Subscriber{
		FirstName:    "Ada",
		CustomFields: map[string]string{"coupon": "WELCOME10"},
	}
	variables := map[string]string{
		"coupon":   "IGNORED", // custom field wins over the execution variable
		"cartSize": "3",
	}

	out := Render("{{firstName}}: {{coupon}} for {{cartSize}} items", subscriber, variables)
	assert.Equal(t, "Ada: WELCOME10 for 3 items", out)
}

func TestResolve_NilSubscriber(t *testing.T) {
	assert.Equal(t, "42", Resolve("answer", nil, map[string]string{"answer": "42"}))
	assert.Empty(t, Resolve("firstName", nil, nil))
}
