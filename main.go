package main

import "github.com/edgeflare/rowgate/cmd/rowgate"

func main() {
	rowgate.Main()
}
