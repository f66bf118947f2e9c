// Package main is the entry point for ark.
package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/kart-io/ark/cmd/ark/app"
)

func main() {
	app.NewApp().Run()
}
