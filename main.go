package main

import "github.com/vibast-solutions/ms-go-phonebook/cmd"

func main() {
	cmd.Execute()
}
