package util

import "testing"

func TestStripCodeFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```JSON\n{\"a\":1}```":   `{"a":1}`,
		"```\n[1, 2]\n```":        `[1, 2]`,
		"```json{\"a\":1}```":     `{"a":1}`,
		"```{\"a\":1}\n```":       `{"a":1}`,
		"  plain text  ":          "plain text",
	}
	for in, want := range cases {
		if got := StripCodeFences(in); got != want {
			t.Errorf("StripCodeFences(%q) = %q, want %q", in, got, want)
		}
	}
}
