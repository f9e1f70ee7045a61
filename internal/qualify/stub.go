package qualify

import "context"

// StubQualifier is a placeholder implementation used until the real scoring
// engine is wired in. It never qualifies and always asks for more context.
type StubQualifier struct{}

// NewStubQualifier returns the stub implementation.
func NewStubQualifier() *StubQualifier {
	return &StubQualifier{}
}

func (s *StubQualifier) Qualify(_ context.Context, _ Request) (Result, error) {
	return Result{
		Score:    0,
		Criteria: []string{},
		Summary:  "stub qualifier, no scoring performed",
		Reply:    "Obrigado pela mensagem! Em breve um de nossos consultores entra em contato.",
	}, nil
}
