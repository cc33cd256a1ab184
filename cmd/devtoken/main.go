// Command devtoken prints an access token for local testing:
//
//	go run ./cmd/devtoken -sub resident-1 -role RESIDENT
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/neighborhood/facility-booking/internal/utils"
)

func main() {
	_ = godotenv.Load()

	sub := flag.String("sub", "resident-1", "subject (user id)")
	role := flag.String("role", "RESIDENT", "RESIDENT or ADMIN")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal().Msg("JWT_SECRET is not set")
	}
	r := strings.ToUpper(*role)
	if r != "RESIDENT" && r != "ADMIN" {
		log.Fatal().Str("role", *role).Msg("role must be RESIDENT or ADMIN")
	}

	tok, err := utils.NewAccessToken(secret, *sub, r, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("signing failed")
	}
	fmt.Println(tok.Token)
}
