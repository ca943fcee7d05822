package main

import "github.com/mselser95/polymarket-whalesim/cmd"

func main() {
	cmd.Execute()
}
