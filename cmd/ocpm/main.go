package main

import "github.com/hykilpikonna/ocpm/cmd/ocpm/cmd"

func main() {
	cmd.Execute()
}
