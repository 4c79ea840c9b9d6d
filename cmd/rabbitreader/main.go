package main

import "github.com/houseofcat/rabbitreader/cmd"

func main() {
	cmd.Execute()
}
