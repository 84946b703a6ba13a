package model

import "regexp"

var (
	snakeCaseRe  = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	pascalCaseRe = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)
	identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// IsSnakeCase reports whether name is a valid snake_case name, the rule for
// scene object and action point names.
func IsSnakeCase(name string) bool { return snakeCaseRe.MatchString(name) }

// IsPascalCase reports whether name is a valid PascalCase name, the rule
// for ObjectType names.
func IsPascalCase(name string) bool { return pascalCaseRe.MatchString(name) }

// IsIdentifier reports whether name is a valid identifier, the rule for
// flow output names.
func IsIdentifier(name string) bool { return identifierRe.MatchString(name) }
