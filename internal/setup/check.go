// Package setup describes backend readiness checks reported by `shelfctl setup`.
package setup

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Check is the outcome of one readiness probe.
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Remedy string `json:"remedy,omitempty"`
}

// Checker is implemented by gateways that can verify their backend schema.
type Checker interface {
	CheckSchema(ctx context.Context) []Check
}

// Initializer is implemented by gateways that can create their schema.
type Initializer interface {
	InitSchema(ctx context.Context) error
}

// Passed reports whether every check succeeded.
func Passed(checks []Check) bool {
	for _, c := range checks {
		if !c.OK {
			return false
		}
	}
	return len(checks) > 0
}

// Print writes a human readable report and the remediation steps of failed checks.
func Print(w io.Writer, backend string, checks []Check) {
	fmt.Fprintf(w, "backend: %s\n", backend)
	var remedies []string
	for _, c := range checks {
		mark := "ok  "
		if !c.OK {
			mark = "FAIL"
			if c.Remedy != "" {
				remedies = append(remedies, fmt.Sprintf("- %s: %s", c.Name, c.Remedy))
			}
		}
		line := fmt.Sprintf("[%s] %s", mark, c.Name)
		if c.Detail != "" {
			line += " (" + c.Detail + ")"
		}
		fmt.Fprintln(w, line)
	}
	if len(remedies) > 0 {
		fmt.Fprintf(w, "\nremediation:\n%s\n", strings.Join(remedies, "\n"))
	}
}
