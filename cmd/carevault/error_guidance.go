package main

import (
	"context"
	"errors"
	"net"

	"carevault/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized", "forbidden":
			lines = append(lines, "hint: verify CAREVAULT_API_TOKEN and CAREVAULT_ADMIN_TOKEN configuration.")
		case "payload_too_large":
			lines = append(lines, "hint: the file exceeds the server's upload limit (files.max_upload_bytes).")
		case "unsupported_media_type":
			lines = append(lines, "hint: the server's content type allow-list rejected the upload (files.allowed_content_types).")
		case "resource_exhausted":
			lines = append(lines, "hint: retry shortly or reduce concurrent uploads.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase CAREVAULT_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a carevault server is running at CAREVAULT_API_URL.",
			"hint: start a local server manually with: carevault srv",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
