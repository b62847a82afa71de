// Command main runs the database seeder for Agora.
package main

import (
	"context"
	"flag"
	"log"

	"agora/internal/config"
	"agora/internal/database"
	"agora/internal/lifecycle"
	"agora/internal/seed"
)

func main() {
	// Parse command line flags
	numUsers := flag.Int("users", 25, "Number of users to create")
	numPosts := flag.Int("posts", 120, "Number of posts to create")
	maxReplies := flag.Int("replies", 8, "Maximum replies per post")
	maxRaters := flag.Int("raters", 6, "Maximum ratings per post")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	dryRun := flag.Bool("dry-run", false, "Build the data without writing it")
	randSeed := flag.Int64("seed", 0, "Random seed (0 picks one)")
	adminName := flag.String("admin", "admin", "Username of the seeded admin (empty for none)")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")
	log.Printf("Target: %d users, %d posts, clean=%v, dry-run=%v\n", *numUsers, *numPosts, *shouldClean, *dryRun)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	summary, err := seed.Seed(context.Background(), db, seed.Options{
		NumUsers:      *numUsers,
		NumPosts:      *numPosts,
		MaxReplies:    *maxReplies,
		MaxRaters:     *maxRaters,
		ShouldClean:   *shouldClean,
		DryRun:        *dryRun,
		RandSeed:      *randSeed,
		Policy:        lifecycle.NewPolicy(cfg.ExpiryWindow),
		AdminUsername: *adminName,
	})
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Printf("Users: %d | Posts: %d | Replies: %d | Ratings: %d | Images: %d\n",
		summary.Users, summary.Posts, summary.Replies, summary.Ratings, summary.Images)
	for status, n := range summary.ByStatus {
		log.Printf("  %-8s %d\n", status, n)
	}
	log.Println("✨ All done! Your database is now populated with test data.")
}
