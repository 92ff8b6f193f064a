package main

import "knowflow/internal/cli"

func main() {
	cli.Execute()
}
