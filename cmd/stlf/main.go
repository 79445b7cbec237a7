package main

import "github.com/gridcast/stlf/cmd/stlf/cmd"

func main() {
	cmd.Execute()
}
