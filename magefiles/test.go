//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const coverProfile = "coverage.out"

// Test groups test targets.
type Test mg.Namespace

// All runs every test.
func (Test) All() error {
	return sh.RunV(binGo, "test", "./...")
}

// Race runs every test with the race detector. The staging manager and the
// job number generator are exercised concurrently.
func (Test) Race() error {
	return sh.RunV(binGo, "test", "-race", "./...")
}

// Pkg runs the tests of one package, e.g. mage test:pkg staging.
func (Test) Pkg(name string) error {
	for _, root := range []string{"internal", "pkg", "cmd"} {
		dir := "./" + root + "/" + name
		if out, err := sh.Output(binGo, "list", dir); err == nil && out != "" {
			return sh.RunV(binGo, "test", "-v", dir)
		}
	}
	return fmt.Errorf("no package named %q under internal/, pkg/ or cmd/", name)
}

// Cover writes coverage.out and prints the total.
func (Test) Cover() error {
	if err := sh.RunV(binGo, "test", "-coverprofile="+coverProfile, "./..."); err != nil {
		return err
	}
	out, err := sh.Output(binGo, "tool", "cover", "-func="+coverProfile)
	if err != nil {
		return err
	}
	lines := strings.Split(out, "\n")
	fmt.Println(lines[len(lines)-1])
	return nil
}
