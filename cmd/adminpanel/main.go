package main

import (
	"log"

	"intake_bot/internal/botapp"
)

func main() {
	if err := botapp.RunAdminPanel(); err != nil {
		log.Fatal(err)
	}
}
