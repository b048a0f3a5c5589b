package main

import (
	"VersatileShare/internal/bootstrap"
	pkg "VersatileShare/pkg/routes"

	"go.uber.org/fx"
)

func main() {
	bootstrap.Loadenv()
	app := fx.New(
		pkg.EchoModules,
	)

	app.Run()
}
