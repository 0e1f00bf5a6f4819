package main

import "github.com/seoyhaein/inversion-go/cmd"

func main() {
	cmd.Execute()
}
