// Command example demonstrates basic usage: fetch a subreddit, page through
// its hot listing, and expand the comments of the first post.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	snoo "github.com/wryfi/snoo"
)

func main() {
	client, err := snoo.NewClient(&snoo.Config{
		ClientID:     os.Getenv("REDDIT_CLIENT_ID"),
		ClientSecret: os.Getenv("REDDIT_CLIENT_SECRET"),
		Username:     os.Getenv("REDDIT_USERNAME"),
		Password:     os.Getenv("REDDIT_PASSWORD"),
		UserAgent:    "script:snoo-example:0.1",
	})
	if err != nil {
		log.Fatalf("failed to create client: %v", err)
	}

	ctx := context.Background()
	sub := client.Subreddit("golang")

	subscribers, err := sub.Subscribers(ctx)
	if err != nil {
		log.Fatalf("failed to fetch subreddit: %v", err)
	}
	fmt.Printf("r/%s has %d subscribers\n\n", sub, subscribers)

	it := sub.Hot(ctx, 5)
	var first *snoo.Submission
	for it.HasNext() {
		item, err := it.Next()
		if err == snoo.ErrIteratorExhausted {
			break
		}
		if err != nil {
			log.Fatalf("failed to page hot listing: %v", err)
		}
		post, ok := item.(*snoo.Submission)
		if !ok {
			continue
		}
		if first == nil {
			first = post
		}
		title, _ := post.Title(ctx)
		score, _ := post.Score(ctx)
		fmt.Printf("[%4d] %s\n", score, title)
	}

	if first == nil {
		return
	}

	forest, err := first.Comments(ctx)
	if err != nil {
		log.Fatalf("failed to fetch comments: %v", err)
	}
	skipped, err := forest.ReplaceMore(ctx, 2, 0)
	if err != nil {
		log.Fatalf("failed to expand comments: %v", err)
	}
	fmt.Printf("\n%d comments (%d placeholders skipped)\n", len(forest.Comments()), len(skipped))
}
