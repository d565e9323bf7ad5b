// devtoken mints an identity token for local development, standing in for
// the upstream identity verifier.
//
//	go run ./cmd/devtoken -wallet 0xabc -domain stanford.edu
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/haggle/haggle-api/internal/config"
	"github.com/haggle/haggle-api/internal/pkg/jwt"
)

func main() {
	wallet := flag.String("wallet", "", "wallet address to embed as the identity")
	domain := flag.String("domain", "", "verified domain for tier classification")
	flag.Parse()

	if *wallet == "" {
		log.Fatal("a wallet address is required")
	}

	cfg := config.Load()
	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTTTL)

	token, err := jwtService.GenerateToken(*wallet, *domain)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	fmt.Println(token)
}
