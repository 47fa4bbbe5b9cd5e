package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/farmsense/farmsense/ai"
	"github.com/farmsense/farmsense/chat"
	"github.com/farmsense/farmsense/conversation"
	"github.com/farmsense/farmsense/internal/profile"
)

// chatLoop drives the interactive session on stdin/stdout.
func chatLoop(ctx context.Context, controller *chat.Session, repo *conversation.Repository, p *profile.Profile) error {
	fmt.Printf("FarmSense %s (%s), %d messages per session. /help for commands.\n\n",
		p.Version, p.AIProvider, p.MessageLimit)

	greeting, err := controller.Start(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("assistant> %s\n", greeting.Text)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			done, err := runCommand(ctx, controller, repo, line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
			if done {
				return nil
			}
			continue
		}

		reply, err := controller.Send(ctx, line)
		switch {
		case errors.Is(err, chat.ErrLimitReached):
			fmt.Printf("(session limit reached, start a new conversation with /new)\n")
		case err != nil:
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		default:
			fmt.Printf("assistant> %s\n", reply.Text)
		}
	}
}

func runCommand(ctx context.Context, controller *chat.Session, repo *conversation.Repository, line string) (done bool, err error) {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		greeting, err := controller.Start(ctx)
		if err != nil {
			return false, err
		}
		fmt.Printf("assistant> %s\n", greeting.Text)
		return false, nil

	case "/conversations":
		conversations, err := repo.List(ctx)
		if err != nil {
			return false, err
		}
		if len(conversations) == 0 {
			fmt.Println("(no conversations)")
			return false, nil
		}
		for _, c := range conversations {
			fmt.Printf("  %s %s  %s\n", c.Icon, c.Name, c.CreatedAt.Format("2006-01-02"))
		}
		return false, nil

	case "/attach":
		if arg == "" {
			return false, fmt.Errorf("usage: /attach <image path>")
		}
		image, err := ai.LoadImage(arg)
		if err != nil {
			return false, err
		}
		controller.AttachImage(image)
		fmt.Println("(image attached to the next message)")
		return false, nil

	case "/help":
		fmt.Println("  /new            start a new conversation")
		fmt.Println("  /conversations  list conversations")
		fmt.Println("  /attach <path>  attach an image to the next message")
		fmt.Println("  /quit           exit")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s", cmd)
	}
}
