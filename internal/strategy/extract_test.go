package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPayload(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "plain text", "plain text"},
		{"plain json", `{"a":1}`, `{"a":1}`},
		{"json tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"upper tag", "```JSON\n{\"a\":1}\n```", `{"a":1}`},
		{"no tag", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding prose", "Here you go:\n```json\n  {\"a\":1}  \n```\nEnjoy!", `{"a":1}`},
		{"first block wins", "```json\n{\"a\":1}\n```\n```json\n{\"b\":2}\n```", `{"a":1}`},
		{"unterminated fence", "```json\n{\"a\":1}", "```json\n{\"a\":1}"},
		{"untrimmed unfenced", "  {\"a\":1}\n", "  {\"a\":1}\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractPayload(tc.in))
		})
	}
}

func TestExtractPayload_Idempotent(t *testing.T) {
	inputs := []string{
		"plain text",
		`{"calendar":[],"task_tracker":[]}`,
		"```json\n{\"calendar\":[],\"task_tracker\":[]}\n```",
		"",
	}
	for _, in := range inputs {
		once := ExtractPayload(in)
		assert.Equal(t, once, ExtractPayload(once), in)
	}
}
