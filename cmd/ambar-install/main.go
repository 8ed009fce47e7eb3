package main

import "github.com/ambarlabs/ambar-install/cmd/ambar-install/cmd"

func main() {
	cmd.Execute()
}
