// Package main provides the entry point for the devprint CLI.
//
// devprint collects device signals from independent probes, merges them
// deterministically and condenses them into a stable fingerprint that
// recognizes a returning device.
//
// Usage:
//
//	devprint collect
//	devprint collect --source browser --save
//	devprint collect --capture visit1.yaml --capture visit2.yaml
//	devprint compare
//
// See --help for all available options.
package main

func main() {
	Execute()
}
