package main

import (
	"github.com/dszqbsm/booksource/cmd"
)

func main() {
	cmd.Execute()
}
