package main

import (
	"log"
	"os"

	"github.com/stakehaus/fairplane/internal/tools/grantkey"
)

func main() {
	if err := grantkey.Run(os.Stdout, nil); err != nil {
		log.Fatalf("generate key pair: %v", err)
	}
}
