package main

import (
	"floor-oracle/internal/cli"
)

func main() {
	cli.Execute()
}
