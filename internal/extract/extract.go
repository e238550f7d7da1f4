// Package extract pulls procedure invocations and function references out of
// raw SQL text using fixed lexical patterns.
package extract

import (
	"regexp"
	"strings"
)

var (
	// execPattern matches "exec <name>" where name is letters, digits, '_' and '.'.
	execPattern = regexp.MustCompile(`(?i)exec\s+([_a-zA-Z0-9.]+)`)

	// functionPattern matches schema-qualified references like dbo.fnName.
	functionPattern = regexp.MustCompile(`(?i)([a-zA-Z]+\.fn[a-zA-Z0-9.]+)`)
)

// Result holds the identifiers found in a single SQL source.
type Result struct {
	Procedures []string `json:"procedures"`
	Functions  []string `json:"functions"`
}

// Extract returns both procedure calls and function references found in text.
func Extract(text string) Result {
	return Result{
		Procedures: ProcedureCalls(text),
		Functions:  FunctionReferences(text),
	}
}

// ProcedureCalls returns the names invoked via exec, in document order.
// Duplicates are kept and the original case of each name is preserved.
func ProcedureCalls(text string) []string {
	return submatches(execPattern, text)
}

// FunctionReferences returns schema-qualified fn references in document order.
func FunctionReferences(text string) []string {
	return submatches(functionPattern, text)
}

// Unqualified strips the schema qualifier from a reference.
// e.g., "dbo.fnFoo" -> "fnFoo", "fnFoo" -> "fnFoo"
func Unqualified(ref string) string {
	if idx := strings.Index(ref, "."); idx >= 0 {
		return ref[idx+1:]
	}
	return ref
}

func submatches(re *regexp.Regexp, text string) []string {
	matches := re.FindAllStringSubmatch(text, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}
