package main

import (
	"fmt"
	"os"

	"github.com/nomark/sigil/internal/cli"
	apperrors "github.com/nomark/sigil/internal/pkg/errors"
)

func main() {
	code, err := cli.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(apperrors.ExitCode(err))
	}
	os.Exit(code)
}
