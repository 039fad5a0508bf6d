package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/david/campsite-finder/internal/auth"
)

func main() {
	subject := flag.String("sub", "ops", "Token subject")
	ttl := flag.Duration("ttl", auth.DefaultTokenTTL, "Token lifetime")
	flag.Parse()

	secret := strings.TrimSpace(os.Getenv("CAMPSITE_ADMIN_SECRET"))
	if secret == "" {
		fmt.Println("Missing CAMPSITE_ADMIN_SECRET environment variable")
		os.Exit(1)
	}

	svc, err := auth.NewService(secret)
	if err != nil {
		log.Fatal(err)
	}
	token, err := svc.IssueAdminToken(*subject, *ttl)
	if err != nil {
		log.Fatalf("Token signing failed: %v", err)
	}
	fmt.Fprintf(os.Stderr, "expires %s\n", time.Now().Add(*ttl).Format(time.RFC3339))
	fmt.Println(token)
}
