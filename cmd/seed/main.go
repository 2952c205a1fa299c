// Command seed creates an MFA-enabled development account and prints its
// otpauth URL together with a fresh login ticket.
//
// It reads the same configuration as the service, so it writes to whichever
// database AUTH_DATABASE_DRIVER points at.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aussiebroadwan/ticketauth/internal/auth/app"
	"github.com/aussiebroadwan/ticketauth/internal/auth/domain"
	"github.com/aussiebroadwan/ticketauth/internal/auth/service"
	"github.com/aussiebroadwan/ticketauth/pkg/idx"
	"github.com/pquerna/otp/totp"
)

func main() {
	var (
		email       = flag.String("email", "dev@example.com", "account email, also the otpauth account name")
		displayName = flag.String("name", "Developer", "account display name")
		role        = flag.String("role", "user", "default role")
		accountID   = flag.String("account", "", "issue a ticket for an existing account id instead of creating one")
	)
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	db, err := app.OpenStore(cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id := *accountID
	if id == "" {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      cfg.Issuer,
			AccountName: *email,
		})
		if err != nil {
			log.Fatalf("failed to generate TOTP secret: %v", err)
		}

		secret := key.Secret()
		now := time.Now().UTC()
		acc := domain.Account{
			ID:          idx.NewAt(now).String(),
			DisplayName: *displayName,
			Email:       *email,
			DefaultRole: *role,
			MFAEnabled:  true,
			Active:      true,
			OTPSecret:   &secret,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := db.Accounts().CreateAccount(ctx, acc); err != nil {
			log.Fatalf("failed to create account: %v", err)
		}
		id = acc.ID

		fmt.Fprintf(os.Stdout, "account:  %s\n", acc.ID)
		fmt.Fprintf(os.Stdout, "secret:   %s\n", secret)
		fmt.Fprintf(os.Stdout, "otpauth:  %s\n", key.URL())
	}

	tickets := service.NewTicketStore(db)
	tickets.TTL = cfg.TicketTTL
	token, ticket, err := tickets.Issue(ctx, id)
	if err != nil {
		log.Fatalf("failed to issue ticket: %v", err)
	}

	fmt.Fprintf(os.Stdout, "ticket:   %s\n", token)
	fmt.Fprintf(os.Stdout, "expires:  %s\n", ticket.ExpiresAt.Format(time.RFC3339))
}
