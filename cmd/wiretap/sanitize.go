package main

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	ipPattern       = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	phonePattern    = regexp.MustCompile(`\+?\b\d{7,15}\b`)
	secretPattern   = regexp.MustCompile(`(?i)(Secret:\s*).+`)
	passwordPattern = regexp.MustCompile(`(?i)(Password:\s*).+`)
)

// Headers that may carry a customer number.
var numberHeaders = []string{"CallerID", "ConnectedLine", "Exten:"}

const placeholderNumber = "79991234567"

func sanitizeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Create backup
	bakPath := path + ".bak"
	if err := os.WriteFile(bakPath, data, 0o644); err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}

	return os.WriteFile(path, []byte(sanitize(string(data))), 0o644)
}

func sanitize(data string) string {
	lines := strings.Split(data, "\n")
	for i, line := range lines {
		line = secretPattern.ReplaceAllString(line, "${1}REDACTED")
		line = passwordPattern.ReplaceAllString(line, "${1}REDACTED")

		// Redact IPs (but preserve localhost)
		line = ipPattern.ReplaceAllStringFunc(line, func(ip string) string {
			if ip == "127.0.0.1" {
				return ip
			}
			return "10.0.0.1"
		})

		if carriesNumber(line) {
			line = phonePattern.ReplaceAllString(line, placeholderNumber)
		}

		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func carriesNumber(line string) bool {
	for _, h := range numberHeaders {
		if strings.Contains(line, h) {
			return true
		}
	}
	return false
}
