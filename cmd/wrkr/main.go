package main

import (
	"github.com/nogcio/wrkr/internal/cli"
)

func main() {
	cli.Execute()
}
