//go:build mage

package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	modulePath = "github.com/dkoosis/snap"
	binPath    = "bin/snap"
)

// Default target - build the binary
var Default = Build

// Build builds the snap binary with version metadata.
func Build() error {
	date := time.Now().UTC().Format(time.RFC3339)
	ldflags := fmt.Sprintf("-s -w -X '%[1]s/internal/version.Version=%[2]s' -X '%[1]s/internal/version.CommitHash=%[3]s' -X '%[1]s/internal/version.BuildDate=%[4]s'",
		modulePath, gitOr("dev", "describe", "--tags", "--always", "--dirty", "--match=v*"), gitOr("unknown", "rev-parse", "--short", "HEAD"), date)
	fmt.Println("Building snap...")
	return sh.RunV("go", "build", "-ldflags", ldflags, "-o", binPath, "./cmd/snap")
}

// Clean removes build artifacts
func Clean() error {
	return sh.Rm("bin")
}

// QA runs formatting, vet, lint and the race-enabled test suite.
func QA() error {
	mg.SerialDeps(Lint{}.Format, Lint{}.Vet, Lint{}.Golangci, Test{}.Race, Build)
	fmt.Println("QA complete!")
	return nil
}

// Lint namespace for linting commands
type Lint mg.Namespace

// All runs all linters
func (Lint) All() {
	mg.SerialDeps(Lint{}.Format, Lint{}.Vet, Lint{}.Golangci)
}

// Format fails when any file needs gofmt.
func (Lint) Format() error {
	out, err := sh.Output("gofmt", "-l", "cmd", "internal", "pkg", "magefile.go")
	if err != nil {
		return err
	}
	if out = strings.TrimSpace(out); out != "" {
		return fmt.Errorf("files need gofmt:\n%s", out)
	}
	return nil
}

// Vet runs go vet
func (Lint) Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Golangci runs golangci-lint when it is installed.
func (Lint) Golangci() error {
	return optional("golangci-lint", "go install github.com/golangci/golangci-lint/cmd/golangci-lint@latest",
		"run", "--timeout=5m", "./...")
}

// Test namespace for testing commands
type Test mg.Namespace

// All runs all tests
func (Test) All() error {
	return sh.RunV("go", "test", "./...")
}

// Coverage runs tests with coverage
func (Test) Coverage() error {
	if err := sh.RunV("go", "test", "-coverprofile=coverage.out", "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-func=coverage.out")
}

// Race runs tests with race detector
func (Test) Race() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Update re-records every snapshot in this repository.
func (Test) Update() error {
	return sh.RunWithV(map[string]string{"UPDATE_SNAPSHOTS": "1"}, "go", "test", "-count=1", "./...")
}

// optional runs tool when it is on PATH and warns otherwise.
func optional(tool, install string, args ...string) error {
	if _, err := exec.LookPath(tool); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "%s not found (install: %s)\n", tool, install)
			return nil
		}
		return err
	}
	return sh.RunV(tool, args...)
}

func gitOr(fallback string, args ...string) string {
	out, err := sh.Output("git", args...)
	if err != nil || out == "" {
		return fallback
	}
	return strings.TrimSpace(out)
}
