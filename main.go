package main

import "coursepipe/cmd"

func main() {
	cmd.Execute()
}
