package analysis

import "context"

type fakeProvider struct {
	name string
}

func (f fakeProvider) Name() string  { return f.name }
func (f fakeProvider) Model() string { return "" }
func (f fakeProvider) Analyze(context.Context, Image) (Result, error) {
	return Result{}, nil
}
