// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestOutcomeFromElicit(t *testing.T) {
	t.Parallel()

	encoded, err := outcomeFromElicit(&mcp.ElicitResult{
		Action:  "accept",
		Content: map[string]any{"result": `{"value": 5}`},
	})
	if err != nil {
		t.Fatalf("outcomeFromElicit: %v", err)
	}
	if string(encoded) != `{"value": 5}` {
		t.Errorf("encoded = %q", encoded)
	}
}

func TestOutcomeFromElicitRejectsDecline(t *testing.T) {
	t.Parallel()

	if _, err := outcomeFromElicit(&mcp.ElicitResult{Action: "decline"}); err == nil {
		t.Error("declined elicitation produced an outcome")
	}
}

func TestOutcomeFromElicitRejectsMalformedAccept(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content map[string]any
	}{
		{"missing result field", map[string]any{}},
		{"nil content", nil},
		{"non-string result", map[string]any{"result": 5}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := outcomeFromElicit(&mcp.ElicitResult{
				Action:  "accept",
				Content: test.content,
			})
			if err == nil {
				t.Error("malformed accept produced an outcome")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	if got := parseLevel("debug"); got.String() != "DEBUG" {
		t.Errorf("parseLevel(debug) = %s", got)
	}
	if got := parseLevel("unknown"); got.String() != "INFO" {
		t.Errorf("parseLevel(unknown) = %s, want INFO fallback", got)
	}
}
