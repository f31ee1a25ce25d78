package hook

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type step struct {
	name     string
	provides []string
	needs    []string
	err      error
	ran      *[]string
}

func (s *step) Provides() []string  { return s.provides }
func (s *step) DependsOn() []string { return s.needs }
func (s *step) AfterBuild(ctx context.Context) error {
	*s.ran = append(*s.ran, s.name)
	return s.err
}

func names(hooks []any) []string {
	var ret []string
	for _, it := range hooks {
		ret = append(ret, it.(*step).name)
	}
	return ret
}

func TestOrderPreservesIndependentHooks(t *testing.T) {
	var ran []string
	a, b, c := &step{name: `a`, ran: &ran}, &step{name: `b`, ran: &ran}, &step{name: `c`, ran: &ran}
	assert.Equal(t, []string{`a`, `b`, `c`}, names(Order(a, b, c)))
}

func TestOrderPlacesDependenciesFirst(t *testing.T) {
	var ran []string
	publish := &step{name: `publish`, needs: []string{`archives`}, ran: &ran}
	strip := &step{name: `strip`, ran: &ran}
	archive := &step{name: `archive`, provides: []string{`archives`}, ran: &ran}
	assert.Equal(t, []string{`archive`, `publish`, `strip`}, names(Order(publish, strip, archive)))
}

func TestOrderToleratesCycles(t *testing.T) {
	var ran []string
	a := &step{name: `a`, provides: []string{`a`}, needs: []string{`b`}, ran: &ran}
	b := &step{name: `b`, provides: []string{`b`}, needs: []string{`a`}, ran: &ran}
	assert.ElementsMatch(t, []string{`a`, `b`}, names(Order(a, b)))
}

func TestRunAfterBuild(t *testing.T) {
	var ran []string
	fail := errors.New(`upload failed`)
	hooks := []any{
		&step{name: `publish`, needs: []string{`archives`}, err: fail, ran: &ran},
		struct{}{}, // not an AfterBuild hook
		&step{name: `archive`, provides: []string{`archives`}, ran: &ran},
		&step{name: `never`, ran: &ran},
	}
	err := RunAfterBuild(context.Background(), hooks...)
	assert.ErrorIs(t, err, fail)
	assert.Equal(t, []string{`archive`, `publish`}, ran)
}
