package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/messagenet/evodispatch/internal/logging"
)

var version = "dev"

func main() {
	logging.Setup()

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: evodispatch [dispatcher|cgi|version] [flags]\n")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "dispatcher":
		if err := runDispatcher(os.Args[2:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	case "cgi":
		if err := runCGI(os.Args[2:]); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "usage: evodispatch [dispatcher|cgi|version] [flags]\n")
		os.Exit(1)
	}
}
