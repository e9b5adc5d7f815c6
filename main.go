package main

import (
	"log"

	"github.com/thiagokokada/wily-go/cmd"
)

func main() {
	log.SetFlags(0)
	if err := cmd.Run(); err != nil {
		log.Fatalf("wily-go: %v", err)
	}
}
