package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/sentinelfs/sentinelfs/internal/cli"
)

// Overridden at link time via -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = ""
)

func buildVersion() string {
	v := strings.TrimSpace(version)
	if v == "" || v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		} else {
			v = "dev"
		}
	}
	c := strings.TrimSpace(commit)
	if c == "" || strings.EqualFold(c, "unknown") || strings.Contains(v, c) {
		return v
	}
	return v + "+" + c
}

func main() {
	os.Exit(run())
}

// run executes the CLI and maps its outcome to a process exit code, keeping
// that mapping out of main so it can be tested by calling this directly.
func run() int {
	err := cli.NewRoot(buildVersion()).ExecuteContext(context.Background())
	if err == nil {
		return 0
	}

	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		if msg := exitErr.Message(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		return exitErr.Code()
	}
	fmt.Fprintln(os.Stderr, err.Error())
	return 1
}
