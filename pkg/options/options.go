// Package options holds what the ark option groups share: flag naming and
// the grouped validation contract.
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// IOptions is one group of ark flags, such as http.* or store.*.
type IOptions interface {
	// Validate reports every invalid field, not just the first.
	Validate() []error
	// AddFlags registers the group's flags on fs under prefixes.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// Join returns the dotted flag prefix for prefixes, "" when they are empty.
//
//	Join("ark") + "http.addr" == "ark.http.addr"
func Join(prefixes ...string) string {
	if p := strings.Join(prefixes, "."); p != "" {
		return p + "."
	}
	return ""
}

// ValidateAll collects the errors of every group in order.
func ValidateAll(groups ...IOptions) []error {
	var errs []error
	for _, g := range groups {
		errs = append(errs, g.Validate()...)
	}
	return errs
}
