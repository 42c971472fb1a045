package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dshills/dialoggraph/dialogue"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the workflow in the terminal",
	Long: `Starts an interactive conversation using the configured model, store and
actions. Type "exit" or "quit" to leave. Reuse --thread to continue an
earlier conversation from a persistent store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		threadID, _ := cmd.Flags().GetString("thread")
		if threadID == "" {
			threadID = uuid.NewString()
		}

		a, err := buildApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close(context.Background()) }()

		return runChat(cmd.Context(), a.service, threadID, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("thread", "", "Conversation thread ID (default: a new random ID)")
}

type turnHandler interface {
	HandleTurn(ctx context.Context, t dialogue.Turn) (dialogue.Reply, error)
}

// runChat reads one message per line from in until EOF or an exit command.
// Retryable turn errors are printed and the loop continues.
func runChat(ctx context.Context, turns turnHandler, threadID string, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "--- dialoggraph (thread %s) ---\n", threadID)

	scanner := bufio.NewScanner(in)
	waiting := false
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return nil
		}

		reply, err := turns.HandleTurn(ctx, dialogue.Turn{ThreadID: threadID, Text: text, IsResume: waiting})
		switch {
		case errors.Is(err, dialogue.ErrStoreUnavailable), errors.Is(err, dialogue.ErrConcurrentTurn):
			fmt.Fprintf(out, "! %v (try again)\n", err)
			continue
		case err != nil:
			return err
		}

		fmt.Fprintln(out, reply.Message)
		waiting = !reply.Done
		if reply.Done {
			fmt.Fprintln(out, "--- task finished; send a new request or type exit ---")
		}
	}
}
