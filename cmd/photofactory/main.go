// Package main provides the photofactory CLI: sign in, stage photos for a
// wheel restoration job, save the job, and inspect the local store.
package main

import "os"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
