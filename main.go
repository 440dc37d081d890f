package main

import "github.com/gridsome/gridsome/cmd"

func main() {
	cmd.Execute()
}
