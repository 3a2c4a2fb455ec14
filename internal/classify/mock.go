package classify

import "context"

// MockOracle is a test double for the Oracle interface.
type MockOracle struct {
	Verdict *Verdict
	Err     error
	Delay   func(ctx context.Context) // optional; simulates a slow oracle
	Calls   []string                  // records content sent
}

// Classify records the call and returns the mock verdict.
func (m *MockOracle) Classify(ctx context.Context, content string) (*Verdict, error) {
	m.Calls = append(m.Calls, content)
	if m.Delay != nil {
		m.Delay(ctx)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return m.Verdict, m.Err
}
