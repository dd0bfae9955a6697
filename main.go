package main

import (
	"log"

	"blocktix/cmd"
	_ "blocktix/migrations"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
