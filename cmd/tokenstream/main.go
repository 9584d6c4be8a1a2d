package main

import "github.com/vietddude/tokenstream/internal/cli"

func main() {
	cli.Execute()
}
