// Package testutil holds helpers shared by package tests and the scenario
// harness.
package testutil

// FixedFlowGenerator returns the same flow token on every call, so a scenario
// run twice produces byte-identical journals and traces.
//
// Safe for concurrent use.
type FixedFlowGenerator struct {
	token string
}

// NewFixedFlowGenerator creates a fixed generator. An empty token becomes
// "test-flow-default".
func NewFixedFlowGenerator(token string) *FixedFlowGenerator {
	if token == "" {
		token = "test-flow-default"
	}
	return &FixedFlowGenerator{token: token}
}

// Generate returns the fixed flow token.
func (g *FixedFlowGenerator) Generate() string {
	return g.token
}
