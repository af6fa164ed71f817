package main

import (
	"context"
	"errors"
	stdlog "log"

	"rainshop/internal/app"
)

func main() {
	if err := run(); err != nil {
		stdlog.Fatalf("Application failed: %v", err)
	}
}

func run() (err error) {
	ctx := context.Background()

	application, err := app.NewApplication(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, application.Shutdown())
	}()

	return application.Run()
}
