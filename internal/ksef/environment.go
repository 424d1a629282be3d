// Package ksef provides typed bindings to the KSeF e-invoice clearing service.
//
// A Client is bound to exactly one Environment for its whole lifetime.
// Moving between the test and production systems means building a new
// Client and re-authorizing, so credentials never leak across environments.
package ksef

import (
	"fmt"
	"strings"
)

// Environment selects which deployment of the Service a Client talks to
type Environment struct {
	Name    string
	BaseURL string
}

// Known deployments
var (
	Test = Environment{
		Name:    "test",
		BaseURL: "https://ksef-test.mf.gov.pl/api",
	}
	Production = Environment{
		Name:    "production",
		BaseURL: "https://ksef.mf.gov.pl/api",
	}
)

// IsProduction reports whether the environment issues legally binding invoices
func (e Environment) IsProduction() bool {
	return e.Name == Production.Name
}

// Custom builds an environment pointing at an arbitrary base URL, such as a local sandbox
func Custom(baseURL string) Environment {
	return Environment{
		Name:    "custom",
		BaseURL: strings.TrimRight(baseURL, "/"),
	}
}

// EnvironmentByName resolves "test" or "production"
func EnvironmentByName(name string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", Test.Name:
		return Test, nil
	case Production.Name, "prod":
		return Production, nil
	default:
		return Environment{}, fmt.Errorf("unknown environment %q (expected test or production)", name)
	}
}
