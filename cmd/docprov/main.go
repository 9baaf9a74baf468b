package main

import "docprov/internal/cli"

func main() {
	cli.Execute()
}
