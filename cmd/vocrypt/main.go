package main

import (
	"net/http"
	"os"
)

func main() {
	deps := Deps{
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		HTTPClient:  http.DefaultClient,
		IsStdoutTTY: func() bool { fi, err := os.Stdout.Stat(); return err == nil && fi.Mode()&os.ModeCharDevice != 0 },
		Getenv:      os.Getenv,
	}
	os.Exit(run(os.Args, deps))
}
