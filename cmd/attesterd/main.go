package main

import (
	"log"

	"symmoracle/services/attesterd"
)

func main() {
	if err := attesterd.Main(); err != nil {
		log.Fatalf("attesterd: %v", err)
	}
}
