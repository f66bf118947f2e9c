package app

import "github.com/kart-io/logger"

// Flush writes out buffered entries of the global logger.
func Flush() error {
	return logger.Flush()
}
