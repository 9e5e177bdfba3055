package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/bmintz/emoji-vacuum/pkg/emotepool"
	"github.com/bmintz/emoji-vacuum/pkg/emotepool/admin"
	"github.com/bmintz/emoji-vacuum/pkg/emotepool/config"
	repopg "github.com/bmintz/emoji-vacuum/pkg/emotepool/repo/postgres"
)

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	repo, cleanup, err := cfg.BuildRepository()
	if err != nil {
		log.Fatalf("Failed to build repository: %v", err)
	}
	defer cleanup()

	backend, err := cfg.BuildBackend()
	if err != nil {
		log.Fatalf("Failed to build backend: %v", err)
	}

	svc, err := emotepool.New(
		emotepool.WithRepository(repo),
		emotepool.WithBackend(backend),
		emotepool.WithAdmins(cfg.AdminIDs...),
		emotepool.WithSlotCapacity(cfg.SlotCapacity),
		emotepool.WithSlotPrefixes(cfg.SlotPrefixes...),
	)
	if err != nil {
		log.Fatalf("Failed to build service: %v", err)
	}
	if err := svc.Directory().Refresh(context.Background()); err != nil {
		log.Fatalf("Failed to enumerate slots: %v", err)
	}

	adminSvc := admin.New(svc, nil)
	if pgRepo, ok := repo.(*repopg.Repository); ok {
		adminSvc = admin.New(svc, pgRepo.Database())
	}

	shell := NewAdminShell(svc, adminSvc)
	shell.Run()
}

// AdminShell provides an interactive moderator interface
type AdminShell struct {
	service  emotepool.Service
	adminSvc *admin.Service
}

// NewAdminShell creates a new admin shell
func NewAdminShell(service emotepool.Service, adminSvc *admin.Service) *AdminShell {
	return &AdminShell{
		service:  service,
		adminSvc: adminSvc,
	}
}

// Run starts the interactive admin shell
func (s *AdminShell) Run() {
	reader := bufio.NewReader(os.Stdin)
	ctx := context.Background()

	fmt.Println("=== Emote Pool Admin Shell ===")
	fmt.Println("Type 'help' for available commands, 'exit' to quit")
	fmt.Println()

	for {
		fmt.Print("admin> ")
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Printf("Error reading input: %v\n", err)
			return
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		command := parts[0]

		switch command {
		case "help", "h":
			s.showHelp()
		case "exit", "quit", "q":
			fmt.Println("Goodbye!")
			return
		case "get":
			s.handleGet(ctx, parts[1:])
		case "search":
			s.handleSearch(ctx, parts[1:])
		case "popular":
			s.handlePopular(ctx)
		case "stats":
			s.handleStats(ctx)
		case "preserve", "unpreserve":
			s.handlePreserve(ctx, command == "preserve", parts[1:])
		case "remove", "rm":
			s.handleRemove(ctx, parts[1:])
		case "blacklist":
			s.handleBlacklist(ctx, parts[1:])
		case "unblacklist":
			s.handleUnblacklist(ctx, parts[1:])
		case "sql":
			s.handleSQL(ctx, strings.TrimSpace(strings.TrimPrefix(input, "sql")))
		default:
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", command)
		}
	}
}

func (s *AdminShell) showHelp() {
	help := `
Available Commands:

  get <name>              Show one emote's details
  search <query>          Find emotes with similar names
  popular                 Show the most-used emotes

  stats                   Show pool counts and capacity

  preserve <name>         Exempt an emote from decay
  unpreserve <name>       Re-subject an emote to decay
  remove <name>           Remove an emote (system-initiated)

  blacklist <user> <why>  Blacklist a user with a reason
  unblacklist <user>      Clear a user's blacklist

  sql <statement>         Run a raw SQL statement (postgres only)

  help, h                 Show this help message
  exit, quit, q           Exit admin shell

Examples:
  get blobcat
  search blobc
  blacklist 123456789 spamming the pool
  sql SELECT COUNT(*) FROM emotes
`
	fmt.Println(help)
}

func (s *AdminShell) handleGet(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: get <name>")
		return
	}

	emote, err := s.service.GetEmote(ctx, args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	printEmote(emote)

	usage, err := s.service.EmoteUsage(ctx, emote)
	if err == nil {
		fmt.Printf("  recent uses: %d\n", usage)
	}
}

func (s *AdminShell) handleSearch(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: search <query>")
		return
	}

	var found int
	for emote, err := range s.service.Search(ctx, args[0]) {
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("  %s\n", emote.WithName())
		found++
		if found >= 20 {
			fmt.Println("  ... (truncated)")
			break
		}
	}
	if found == 0 {
		fmt.Println("No matches")
	}
}

func (s *AdminShell) handlePopular(ctx context.Context) {
	fmt.Printf("%-32s  %s\n", "Name", "Uses")
	fmt.Println(strings.Repeat("-", 40))
	for emote, err := range s.service.ListPopular(ctx, 20) {
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("%-32s  %d\n", emote.Name, emote.Usage)
	}
}

func (s *AdminShell) handleStats(ctx context.Context) {
	stats, err := s.adminSvc.Statistics(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("Static:   %d / %d\n", stats.Counts.Static, stats.Capacity.Static)
	fmt.Printf("Animated: %d / %d\n", stats.Counts.Animated, stats.Capacity.Animated)
	fmt.Printf("Total:    %d / %d\n", stats.Counts.Total, stats.Capacity.Total)
}

func (s *AdminShell) handlePreserve(ctx context.Context, preserve bool, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: preserve|unpreserve <name>")
		return
	}

	emote, err := s.service.SetPreservation(ctx, args[0], preserve)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("%s: preserve=%v\n", emote.Name, emote.Preserve)
}

func (s *AdminShell) handleRemove(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: remove <name>")
		return
	}

	emote, err := s.service.RemoveEmote(ctx, args[0], emotepool.SystemActor)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Removed %s\n", emote.Name)
}

func (s *AdminShell) handleBlacklist(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: blacklist <user-id> <reason...>")
		return
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid user id: %s\n", args[0])
		return
	}
	reason := strings.Join(args[1:], " ")

	if err := s.service.SetUserBlacklist(ctx, userID, &reason); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Blacklisted %d: %s\n", userID, reason)
}

func (s *AdminShell) handleUnblacklist(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: unblacklist <user-id>")
		return
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid user id: %s\n", args[0])
		return
	}

	if err := s.service.SetUserBlacklist(ctx, userID, nil); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Unblacklisted %d\n", userID)
}

func (s *AdminShell) handleSQL(ctx context.Context, statement string) {
	if statement == "" {
		fmt.Println("Usage: sql <statement>")
		return
	}

	result, err := s.adminSvc.ExecuteQuery(ctx, statement)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println(strings.Join(result.Columns, " | "))
	fmt.Println(strings.Repeat("-", 8*len(result.Columns)))
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%v", v)
		}
		fmt.Println(strings.Join(cells, " | "))
	}
	fmt.Printf("(%d rows in %s)\n", len(result.Rows), result.Elapsed)
}

func printEmote(e *emotepool.Emote) {
	fmt.Printf("  name:      %s\n", e.Name)
	fmt.Printf("  id:        %s\n", e.ID)
	fmt.Printf("  author:    %d\n", e.Author)
	fmt.Printf("  kind:      %s\n", e.Kind)
	fmt.Printf("  slot:      %d\n", e.Slot)
	fmt.Printf("  created:   %s\n", e.Created)
	fmt.Printf("  preserve:  %v\n", e.Preserve)
	fmt.Printf("  nsfw:      %s\n", e.NSFW)
	if e.Description != nil {
		fmt.Printf("  about:     %s\n", *e.Description)
	}
}
