// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build mage

// Package main provides build targets for entityctl using Mage.
//
// Usage:
//
//	mage build        Compile entityctl to bin/
//	mage test:all     Run all tests
//	mage test:unit    Run tests in short mode
//	mage test:race    Run all tests with the race detector
//	mage test:cover   Write a coverage profile to bin/
//	mage lint         Run go vet and golangci-lint
//	mage clean        Remove build artifacts
//	mage install      Install entityctl to GOPATH/bin
//	mage stats        Print Go LOC per package as JSON
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "entityctl"
	binaryDir  = "bin"
	cmdDir     = "./cmd/entityctl"
	modulePath = "github.com/fivequarters/q5-sub008"
)

// Build compiles the entityctl binary to bin/, stamping the git revision.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v",
		"-ldflags", ldflags(),
		"-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// ldflags stamps the short git revision into the cli package when git is
// available.
func ldflags() string {
	rev, err := sh.Output("git", "rev-parse", "--short", "HEAD")
	if err != nil || rev == "" {
		return ""
	}
	return fmt.Sprintf("-X %s/internal/cli.revision=%s", modulePath, rev)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
