package main

import (
	"net/http"
	"strings"
	"testing"

	"carevault/internal/api"
)

func TestFormatCLIErrorUnauthorizedHint(t *testing.T) {
	err := &api.APIError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "missing or invalid api token"}
	lines := formatCLIError(err)
	if len(lines) < 2 {
		t.Fatalf("expected hint line, got %v", lines)
	}
	if !strings.Contains(lines[1], "CAREVAULT_API_TOKEN") {
		t.Fatalf("expected token hint, got %q", lines[1])
	}
}

func TestFormatCLIErrorPayloadTooLarge(t *testing.T) {
	err := &api.APIError{Status: http.StatusRequestEntityTooLarge, Code: "payload_too_large", Message: "too big"}
	lines := formatCLIError(err)
	found := false
	for _, line := range lines {
		if strings.Contains(line, "max_upload_bytes") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected upload limit hint, got %v", lines)
	}
}

func TestUniqueLinesDropsDuplicatesAndEmpties(t *testing.T) {
	got := uniqueLines([]string{"a", "", "a", "b"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected result: %v", got)
	}
}
