package main

import "github.com/wolffsoft/catalog-service/cmd"

func main() {
	cmd.Execute()
}
