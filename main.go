package main

import "nearish-backend/cmd"

func main() {
	cmd.Run()
}
