package main

import "github.com/derickschaefer/kpiboard/cmd"

func main() {
	cmd.Execute()
}
