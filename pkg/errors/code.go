package errors

// Codes are laid out as AABBCCC: a two-digit service, a two-digit category
// and a three-digit sequence.
const (
	ServiceCommon = 0
	ServiceArk    = 21
)

// Categories.
const (
	CategoryRequest  = 1
	CategoryResource = 4
	CategoryConflict = 5
	CategoryInternal = 7
	CategoryDatabase = 8
	CategoryNetwork  = 10
	CategoryTimeout  = 11
)

// MakeCode assembles a code.
func MakeCode(service, category, sequence int) int {
	return service*100000 + category*1000 + sequence
}

// ParseCode splits a code into its parts.
func ParseCode(code int) (service, category, sequence int) {
	return code / 100000, code / 1000 % 100, code % 1000
}
