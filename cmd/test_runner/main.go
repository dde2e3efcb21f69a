package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// Package groups selectable with -group.
var groups = map[string][]string{
	"engine": {
		"./internal/execution/...",
		"./internal/risk/...",
		"./internal/portfolio/...",
		"./internal/scenario/...",
		"./internal/marketdata/...",
	},
	"strategy": {
		"./internal/strategy/...",
	},
	"adapters": {
		"./internal/adapters/...",
		"./internal/utils/...",
	},
	"app": {
		"./config/...",
		"./internal/app/...",
	},
	"all": {"./..."},
}

var (
	verbose    = flag.Bool("v", false, "verbose output")
	short      = flag.Bool("short", false, "run only short tests")
	timeout    = flag.Duration("timeout", 5*time.Minute, "test timeout")
	testRegexp = flag.String("run", "", "run only tests matching the regular expression")
	race       = flag.Bool("race", false, "enable the race detector")
	cover      = flag.Bool("cover", false, "report coverage")
	group      = flag.String("group", "all", "package group: "+groupNames())
	pkg        = flag.String("pkg", "", "explicit package pattern, overrides -group")
)

func groupNames() string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func testArgs() ([]string, error) {
	args := []string{"test", fmt.Sprintf("-timeout=%s", timeout.String())}
	if *verbose {
		args = append(args, "-v")
	}
	if *short {
		args = append(args, "-short")
	}
	if *race {
		args = append(args, "-race")
	}
	if *cover {
		args = append(args, "-cover")
	}
	if *testRegexp != "" {
		args = append(args, fmt.Sprintf("-run=%s", *testRegexp))
	}

	if *pkg != "" {
		return append(args, *pkg), nil
	}
	pkgs, ok := groups[*group]
	if !ok {
		return nil, fmt.Errorf("unknown group %q (want one of %s)", *group, groupNames())
	}
	return append(args, pkgs...), nil
}

func main() {
	flag.Parse()

	args, err := testArgs()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cmd := exec.Command("go", args...)
	// Keep simulation logs quiet.
	cmd.Env = append(os.Environ(), "TEST_ENV=true", "LOG_LEVEL=ERROR")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fmt.Printf("Running tests with args: %s\n", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Printf("Error running tests: %v\n", err)
		os.Exit(1)
	}
}
