package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codecollab/internal/client"
	"codecollab/internal/models"
)

// A headless editor: joins a document, appends every stdin line to it and
// prints the buffer whenever a peer changes it.
func main() {
	if err := mainInner(); err != nil {
		log.Printf("❌ %v", err)
		os.Exit(1)
	}
}

func mainInner() error {
	server := flag.String("server", "http://localhost:8888", "collaboration server base URL")
	userID := flag.String("user", os.Getenv("USER"), "user id sent to the server")
	userName := flag.String("name", "", "display name")
	create := flag.String("create", "", "create a document with this title instead of opening one")
	flag.Parse()

	if *userID == "" {
		return fmt.Errorf("a user id is required (-user)")
	}
	c := client.NewClient(*server, models.UserInfo{ID: *userID, Name: *userName})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var documentID string
	switch {
	case *create != "":
		doc, err := c.CreateDocument(ctx, *create, "")
		if err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		documentID = doc.ID
		log.Printf("✓ Created document %s", doc.ID)
	case flag.NArg() == 1:
		documentID = flag.Arg(0)
	default:
		return fmt.Errorf("expected one positional argument: the document id")
	}

	session, err := c.Open(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to open document %s: %w", documentID, err)
	}
	defer session.Close()

	fmt.Println(session.Text())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	last := session.Text()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-session.Done():
			return fmt.Errorf("connection to document %s closed", documentID)
		case line, ok := <-lines:
			if !ok {
				return saveOnExit(c, session)
			}
			if session.Text() != "" {
				line = "\n" + line
			}
			if err := session.Append(line); err != nil {
				return err
			}
		case <-ticker.C:
			if text := session.Text(); text != last {
				last = text
				fmt.Printf("--- %s ---\n%s\n", session.Title, text)
			}
		}
	}
}

// saveOnExit stores the final buffer once stdin is exhausted.
func saveOnExit(c *client.Client, session *client.Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.SaveDocument(ctx, session.DocumentID, session.Text()); err != nil {
		log.Printf("⚠️  Final save failed: %v", err)
		return nil
	}
	log.Printf("✓ Saved document %s", session.DocumentID)
	return nil
}
