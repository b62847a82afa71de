// Package main provides admin management utilities for Agora.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"agora/internal/bootstrap"
	"agora/internal/config"
	"agora/internal/lifecycle"
	"agora/internal/models"
	"agora/internal/notifications"
	"agora/internal/repository"
	"agora/internal/service"

	"gorm.io/gorm"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/admin promote <user_id>          - Promote user to admin")
	fmt.Println("  go run ./cmd/admin demote <user_id>           - Demote user from admin")
	fmt.Println("  go run ./cmd/admin list-admins                - List all admins")
	fmt.Println("  go run ./cmd/admin delete-expired [-dry-run]  - Delete expired posts")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, rdb, err := bootstrap.InitRuntime(cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	admin := service.NewAdminService(
		repository.NewPostRepository(db),
		repository.NewUserRepository(db),
		lifecycle.NewPolicy(cfg.ExpiryWindow),
		notifications.NewNotifier(rdb),
		nil,
	)
	ctx := context.Background()

	command := os.Args[1]

	switch command {
	case "promote", "demote":
		if len(os.Args) < 3 {
			fmt.Printf("Usage: go run ./cmd/admin %s <user_id>\n", command)
			os.Exit(1)
		}
		setAdmin(ctx, admin, os.Args[2], command == "promote")

	case "list-admins":
		listAdmins(db)

	case "delete-expired":
		fs := flag.NewFlagSet("delete-expired", flag.ExitOnError)
		dryRun := fs.Bool("dry-run", false, "Only report matching posts")
		_ = fs.Parse(os.Args[2:])
		deleteExpired(ctx, admin, *dryRun)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		usage()
		os.Exit(1)
	}
}

func setAdmin(ctx context.Context, admin *service.AdminService, rawID string, isAdmin bool) {
	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil || id == 0 {
		fmt.Printf("Invalid user ID %q\n", rawID)
		os.Exit(1)
	}

	if err := admin.SetAdmin(ctx, uint(id), isAdmin); err != nil {
		if models.ErrorCode(err) == models.CodeNotFound {
			fmt.Printf("User with ID %d not found\n", id)
			os.Exit(1)
		}
		log.Fatalf("Failed to update user: %v", err)
	}

	if isAdmin {
		fmt.Printf("✅ Successfully promoted user %d to admin\n", id)
	} else {
		fmt.Printf("✅ Successfully demoted user %d from admin\n", id)
	}
}

func listAdmins(db *gorm.DB) {
	var admins []models.User
	if err := db.Where("is_admin = ?", true).Order("id").Find(&admins).Error; err != nil {
		log.Fatalf("Failed to fetch admins: %v", err)
	}

	if len(admins) == 0 {
		fmt.Println("No admins found in the system")
		return
	}

	fmt.Println("\n📋 Current Admins:")
	fmt.Println("─────────────────────────────────────")
	for _, admin := range admins {
		fmt.Printf("ID: %d | Username: %s\n", admin.ID, admin.Username)
	}
	fmt.Println("─────────────────────────────────────")
}

func deleteExpired(ctx context.Context, admin *service.AdminService, dryRun bool) {
	result, err := admin.DeleteExpiredPosts(ctx, dryRun)
	if err != nil {
		log.Fatalf("Failed to delete expired posts: %v", err)
	}

	if result.DryRun {
		fmt.Printf("🔎 %d expired posts would be deleted: %v\n", result.Matched, result.PostIDs)
		return
	}
	fmt.Printf("🗑️  Deleted %d of %d expired posts\n", result.Deleted, result.Matched)
}
