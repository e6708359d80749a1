package main

import "github.com/ogulcanaydogan/Cloud-Cost-Guardian/internal/cli"

func main() {
	cli.Execute()
}
