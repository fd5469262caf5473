package logging

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// ANSI color codes.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	cyan   = "\033[36m"
	green  = "\033[32m"
	yellow = "\033[33m"
	dim    = "\033[2m"
)

// logoLines is the evodispatch ASCII wordmark.
var logoLines = [4]string{
	` ___            _ _                 _       _`,
	`| __|_ _____ __| (_)____ __  __ _ __| |_    | |`,
	`| _|\ V / _ \ / _| (_-< '_ \/ _` + "`" + ` | _| ' \   |_|`,
	`|___|\_/\___/_\__|_/__/ .__/\__,_\__|_||_|  (_)`,
}

// PrintBanner prints the evodispatch ASCII wordmark followed by the
// process role, version, and listen/admin address. Colors are used
// only when stderr is a TTY.
func PrintBanner(role, ver, addr string) {
	color := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	var roleColor string
	switch role {
	case "dispatcher":
		roleColor = green
	case "cgi":
		roleColor = yellow
	default:
		roleColor = cyan
	}

	for _, line := range logoLines {
		if color {
			fmt.Fprintf(os.Stderr, "%s%s%s\n", bold+cyan, line, reset)
		} else {
			fmt.Fprintln(os.Stderr, line)
		}
	}

	if color {
		fmt.Fprintf(os.Stderr, "\n  %srole%s %s%s%s   %sversion%s %s   %saddr%s %s\n\n",
			dim, reset, roleColor, role, reset, dim, reset, ver, dim, reset, addr)
	} else {
		fmt.Fprintf(os.Stderr, "\n  role %s   version %s   addr %s\n\n", role, ver, addr)
	}
}
