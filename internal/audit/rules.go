package audit

import "regexp"

// Rule is one credential pattern.
type Rule struct {
	ID          string
	Description string
	Pattern     *regexp.Regexp
	// Group selects the submatch holding the secret; 0 is the whole match.
	Group int
}

// DefaultRules covers the credentials a shelf deployment handles plus common
// cloud keys.
var DefaultRules = []Rule{
	{
		ID:          "private-key",
		Description: "PEM private key",
		Pattern:     regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH |DSA |PGP )?PRIVATE KEY( BLOCK)?-----`),
	},
	{
		ID:          "jwt",
		Description: "JSON Web Token",
		Pattern:     regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`),
	},
	{
		ID:          "aws-access-key",
		Description: "AWS access key id",
		Pattern:     regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`),
	},
	{
		ID:          "postgres-password",
		Description: "password in a Postgres connection string",
		Pattern:     regexp.MustCompile(`postgres(?:ql)?://[^:@/\s]+:([^@/\s]{4,})@`),
		Group:       1,
	},
	{
		ID:          "secret-assignment",
		Description: "secret-looking variable assigned a literal",
		Pattern:     regexp.MustCompile(`(?i)\b[A-Z0-9_]*(?:SECRET|PASSWORD|PASSWD|TOKEN|API_KEY|SERVICE_ROLE_KEY|PRIVATE_KEY)[A-Z0-9_]*\s*[:=]\s*["']?([^\s"'$#{}<>()]{12,})(?:["'\s,;]|$)`),
		Group:       1,
	},
}

// placeholders are values that look like secrets but are not.
var placeholders = regexp.MustCompile(`(?i)^(?:x+|\*+|changeme.*|change-me.*|example.*|your[-_].*|dummy.*|placeholder.*|redacted.*|test[-_]?secret.*|0123456789.*)$`)
