// Package fingerprint derives a stable grouping key from a raw error
// report, so that semantically identical failures collapse into one issue.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Normalization regexes compiled once at package init.
var (
	reDatetime   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?\s*`)
	reHexAddr    = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	reUUID       = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	reQuoted     = regexp.MustCompile(`'[^']*'|"[^"]*"`)
	reDigits     = regexp.MustCompile(`\d+`)
	reWhitespace = regexp.MustCompile(`\s+`)

	reVendorFrame = regexp.MustCompile(`node_modules|\(internal|/vendor/|\bruntime/`)
	reLineCol     = regexp.MustCompile(`:\d+:\d+`)
)

// maxFrames is the number of leading stack frames that contribute to the
// key. Truncation is deterministic (first K), so grouping stability does
// not depend on stack depth noise.
const maxFrames = 5

// Compute maps an error report to its grouping key. Two reports with the
// same normalized message template, same top frames, and same service
// always produce the same key. Without a usable stack it falls back to a
// lower-precision key that folds in the level, so a warning and an error
// with the same message stay distinct issues.
func Compute(message, stack, service, level string) string {
	template := NormalizeMessage(message)
	frames := TopFrames(stack)
	if len(frames) == 0 {
		return hash(template + ":" + service + ":" + level)
	}
	return hash(template + ":" + strings.Join(frames, "|") + ":" + service)
}

// NormalizeMessage collapses dynamic substrings (timestamps, ids, hex
// addresses, quoted literals) into fixed placeholders so messages differing
// only in an embedded value map to one template.
func NormalizeMessage(msg string) string {
	msg = reDatetime.ReplaceAllString(msg, "")
	msg = reHexAddr.ReplaceAllString(msg, "0xADDR")
	msg = reUUID.ReplaceAllString(msg, "UUID")
	msg = reQuoted.ReplaceAllString(msg, "'?'")
	msg = reDigits.ReplaceAllString(msg, "N")
	msg = reWhitespace.ReplaceAllString(msg, " ")
	msg = strings.ToLower(msg)
	msg = strings.TrimSpace(msg)
	return truncateString(msg, 500)
}

// NormalizeStack trims frame lines, drops vendor and runtime-internal
// frames, and masks line:column positions, which shift on every deploy.
func NormalizeStack(raw string) string {
	if raw == "" {
		return ""
	}
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || reVendorFrame.MatchString(line) {
			continue
		}
		kept = append(kept, reLineCol.ReplaceAllString(line, ":__:__"))
	}
	return strings.Join(kept, "\n")
}

// TopFrames returns at most maxFrames normalized frame signatures.
func TopFrames(stack string) []string {
	normalized := NormalizeStack(stack)
	if normalized == "" {
		return nil
	}
	frames := strings.Split(normalized, "\n")
	if len(frames) > maxFrames {
		frames = frames[:maxFrames]
	}
	return frames
}

func hash(basis string) string {
	sum := sha256.Sum256([]byte(basis))
	return fmt.Sprintf("%x", sum[:16])
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
