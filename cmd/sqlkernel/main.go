package main

import (
	"github.com/u2takey/sqlkernel/internal/cli"
)

func main() {
	cli.Execute()
}
