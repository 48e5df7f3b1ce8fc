package main

import "github.com/seantiz/benchrun/internal/cli"

func main() {
	cli.Execute()
}
