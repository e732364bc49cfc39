package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"text/tabwriter"

	"travelquest/backend/internal/config"
	"travelquest/backend/internal/models"
	"travelquest/backend/internal/storage"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

Commands:
  migrate                         create or update the tables
  register <uid> <name>           create a public profile
  profile <uid>                   show a profile and its meetup count
  audit <uid_a> <uid_b>           list all verification requests between two users
  link-telegram <uid> <chat_id>   deliver notifications for uid to a Telegram chat`

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	storageSvc := storage.NewStorageService(db, cfg.MaxTxAttempts)
	ctx := context.Background()

	command := os.Args[1]

	switch command {
	case "migrate":
		if err := storage.AutoMigrate(db); err != nil {
			log.Fatalf("Error running migrations: %v", err)
		}
		fmt.Println("Migrations complete.")
	case "register":
		if len(os.Args) != 4 {
			fmt.Println("Usage: admin register <uid> <name>")
			os.Exit(1)
		}
		created, err := storageSvc.EnsureProfile(ctx, &models.PublicProfile{UID: os.Args[2], Name: os.Args[3]})
		if err != nil {
			log.Fatalf("Error registering profile: %v", err)
		}
		if created {
			fmt.Printf("Profile %s has been created.\n", os.Args[2])
		} else {
			fmt.Printf("Profile %s already exists.\n", os.Args[2])
		}
	case "profile":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin profile <uid>")
			os.Exit(1)
		}
		if err := showProfile(ctx, storageSvc, os.Args[2]); err != nil {
			log.Fatalf("Error loading profile: %v", err)
		}
	case "audit":
		if len(os.Args) != 4 {
			fmt.Println("Usage: admin audit <uid_a> <uid_b>")
			os.Exit(1)
		}
		if err := auditPair(ctx, storageSvc, os.Args[2], os.Args[3]); err != nil {
			log.Fatalf("Error auditing pair: %v", err)
		}
	case "link-telegram":
		if len(os.Args) != 4 {
			fmt.Println("Usage: admin link-telegram <uid> <chat_id>")
			os.Exit(1)
		}
		chatID, err := strconv.ParseInt(os.Args[3], 10, 64)
		if err != nil {
			fmt.Println("Invalid chat ID. Please provide an integer.")
			os.Exit(1)
		}
		if err := storageSvc.SetTelegramChatID(ctx, os.Args[2], chatID); err != nil {
			log.Fatalf("Error linking chat: %v", err)
		}
		fmt.Printf("Profile %s is linked to chat %d.\n", os.Args[2], chatID)
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
}

func showProfile(ctx context.Context, s storage.Storage, uid string) error {
	p, err := s.GetProfile(ctx, uid)
	if err != nil {
		return err
	}
	fmt.Printf("uid:          %s\nname:         %s\nmeetup_count: %d\n", p.UID, p.Name, p.MeetupCount)
	return nil
}

// auditPair prints the request history of a pair and flags any state that
// breaks the ledger's rules: more than one acceptance, or more than one
// pending request for the same direction in a conversation.
func auditPair(ctx context.Context, s storage.Storage, a, b string) error {
	reqs, err := s.ListRequestsBetween(ctx, a, b)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCONVERSATION\tSENDER\tRECEIVER\tSTATUS\tTIMESTAMP")
	for _, r := range reqs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.ConversationID, r.SenderUID, r.ReceiverUID, r.Status, r.Timestamp.Format("2006-01-02 15:04:05"))
	}
	w.Flush()

	accepted := 0
	pending := make(map[string]int)
	for _, r := range reqs {
		switch r.Status {
		case models.StatusAccept:
			accepted++
		case models.StatusPending:
			pending[r.ConversationID+"/"+r.SenderUID]++
		}
	}
	if accepted > 1 {
		fmt.Printf("WARNING: %d accepted requests between %s and %s\n", accepted, a, b)
	}
	for key, n := range pending {
		if n > 1 {
			fmt.Printf("WARNING: %d pending requests for %s\n", n, key)
		}
	}
	return nil
}
