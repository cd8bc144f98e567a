package main

import "github.com/MeKo-Tech/isoline/cmd/isoline/cmd"

func main() {
	cmd.Execute()
}
