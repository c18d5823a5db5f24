// Package util holds small helpers shared by the command and the sinks:
// environment expansion in paths and connection strings, and masking of
// credentials before values reach the log.
package util

import (
	"os"
	"regexp"
)

// windowsVarRegex matches %NAME% references.
var windowsVarRegex = regexp.MustCompile(`%([A-Za-z0-9_]+)%`)

// ExpandEnvUniversal expands $VAR, ${VAR} and %VAR% references in s.
// Unset variables expand to the empty string in both syntaxes.
func ExpandEnvUniversal(s string) string {
	expanded := os.ExpandEnv(s)
	return windowsVarRegex.ReplaceAllStringFunc(expanded, func(match string) string {
		return os.Getenv(match[1 : len(match)-1])
	})
}

// snippetMaxRunes bounds Snippet output.
const snippetMaxRunes = 200

// Snippet returns b as a string cut to 200 runes, with "..." appended when
// it was cut. Used to keep geometry text in log lines short.
func Snippet(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	runes := []rune(string(b))
	if len(runes) <= snippetMaxRunes {
		return string(b)
	}
	return string(runes[:snippetMaxRunes]) + "..."
}
