package config

// Reloadable is implemented by components that accept a new config section
// at runtime. A returned error leaves the previous values in place.
type Reloadable interface {
	OnConfigChange(newConfig interface{}) error
}
