package options

import (
	"errors"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

type group struct{ errs []error }

func (g group) Validate() []error                { return g.errs }
func (group) AddFlags(*pflag.FlagSet, ...string) {}

func TestJoin(t *testing.T) {
	assert.Equal(t, "", Join())
	assert.Equal(t, "", Join(""))
	assert.Equal(t, "ark.", Join("ark"))
	assert.Equal(t, "ark.bridge.", Join("ark", "bridge"))
}

func TestValidateAll(t *testing.T) {
	a, b := errors.New("http.addr is required"), errors.New("store.path is required")
	assert.Equal(t, []error{a, b}, ValidateAll(group{}, group{errs: []error{a}}, group{errs: []error{b}}))
	assert.Empty(t, ValidateAll(group{}))
}
