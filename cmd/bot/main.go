package main

import (
	"log"

	"intake_bot/internal/botapp"
)

func main() {
	if err := botapp.Run(); err != nil {
		log.Fatal(err)
	}
}
