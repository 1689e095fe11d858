// Command sniplinks-token mints bearer tokens for local development and
// scripted tests. Production tokens come from the identity provider.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sniplinks/sniplinks/pkg/sniplinks/auth"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/config"
)

func main() {
	userID := flag.String("user", "", "account id to issue the token for (required)")
	email := flag.String("email", "", "email claim")
	ttl := flag.Duration("ttl", auth.DefaultTokenDuration, "token lifetime")
	flag.Parse()

	if *userID == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	token, err := auth.GenerateToken([]byte(cfg.JWTSecret), *userID, *email, *ttl)
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", time.Now().Add(*ttl).UTC().Format(time.RFC3339))
}
