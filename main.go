// Package main is the entry point for the TrojanForge CLI.
package main

import "github.com/hwsec-lab/trojanforge/cmd"

func main() {
	cmd.Execute()
}
