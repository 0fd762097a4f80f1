package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant on the terminal",
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println("Companion ready.")
	fmt.Printf("  DB: %s | LLM: %s | Assistant: %s\n", a.cfg.Database.Path, a.cfg.LLM.Provider, assistantID)
	fmt.Println("Type a message (or 'quit' to exit):")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		msg := strings.TrimSpace(scanner.Text())
		if msg == "" {
			continue
		}
		if msg == "quit" || msg == "exit" {
			break
		}

		resp := a.service.ProcessUserMessage(ctx, assistantID, msg, a.persona)
		fmt.Printf("\n%s\n\n", resp.Decision.Response)
		for _, o := range resp.Outcomes {
			status := "ok"
			if !o.Success {
				status = "failed"
			}
			fmt.Printf("  [%s] %s %s: %s\n", status, o.Action.Type, o.Action.Target, o.Message)
		}
		fmt.Printf("[mood=%s confidence=%.2f room=%s]\n", resp.Decision.Mood, resp.Decision.Confidence, resp.RoomID)
	}
	// Let a move started by the last turn finish before the stores close.
	a.nav.Wait()
	return scanner.Err()
}
