// SPDX-License-Identifier: AGPL-3.0-or-later

// Package manifest implements C2: reading the Procfile-style manifest at
// the root of an extracted application tree into a process-type ->
// command-line mapping.
package manifest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// FileName is the well-known manifest file name read from the root of an
// extracted archive, following Heroku Procfile convention.
const FileName = "Procfile"

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ParseError reports why Parse failed to produce a mapping.
type ParseError struct {
	Detail string
	Line   int
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("manifest parse error at line %d: %s", e.Line, e.Detail)
	}
	return fmt.Sprintf("manifest parse error: %s", e.Detail)
}

// Parse reads FileName from the root of dir and returns a mapping of
// process-type name to its declared command line. Each non-empty,
// non-comment line has the shape "name: command"; a comment line is one
// whose first non-whitespace character is '#'. Duplicate names are a
// parse error.
func Parse(dir string) (map[string]string, error) {
	path := filepath.Join(dir, FileName)

	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Detail: fmt.Sprintf("cannot open %s: %v", FileName, err)}
	}
	defer f.Close() //nolint:errcheck // best effort cleanup

	entries := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		idx := strings.IndexByte(trimmed, ':')
		if idx < 0 {
			return nil, &ParseError{Line: lineNo, Detail: "missing ':' separator"}
		}

		name := strings.TrimSpace(trimmed[:idx])
		command := strings.TrimSpace(trimmed[idx+1:])

		if !nameRE.MatchString(name) {
			return nil, &ParseError{Line: lineNo, Detail: fmt.Sprintf("invalid process type name %q", name)}
		}
		if command == "" {
			return nil, &ParseError{Line: lineNo, Detail: fmt.Sprintf("empty command for %q", name)}
		}
		if _, exists := entries[name]; exists {
			return nil, &ParseError{Line: lineNo, Detail: fmt.Sprintf("duplicate process type %q", name)}
		}

		entries[name] = command
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Detail: fmt.Sprintf("failed to read %s: %v", FileName, err)}
	}

	if len(entries) == 0 {
		return nil, &ParseError{Detail: fmt.Sprintf("%s declares no process types", FileName)}
	}

	return entries, nil
}
