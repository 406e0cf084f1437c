package main

import "github.com/artcritique/brushup/internal/cmd"

func main() {
	cmd.Execute()
}
