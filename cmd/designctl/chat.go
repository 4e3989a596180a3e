package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/designdesk/designdesk/internal/chat"
	"github.com/designdesk/designdesk/internal/domain"
	"github.com/designdesk/designdesk/internal/shared"
	"github.com/designdesk/designdesk/internal/transport"
)

func init() {
	chatCmd.Flags().StringP("persona", "p", "", "persona key or tag (default: the fallback persona)")
	chatCmd.Flags().Bool("history", false, "load the persisted history before chatting")

	rootCmd.AddCommand(chatCmd, scenarioCmd, historyCmd, clearCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with a designer persona (interactive without a message)",
	Long: `Chat with a designer persona. With a message argument the reply is printed
and the command exits; without one, an interactive session starts.

Interactive commands:
  /persona <key>  switch persona
  /clear          delete the history on the backend
  /history        print the log grouped by date
  /quit           leave`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newCLISession(chat.SurfaceChatbot, transport.ChatbotBackend{Client: current.client})
		if err != nil {
			return err
		}
		if p, _ := cmd.Flags().GetString("persona"); p != "" {
			if err := selectPersona(s, p); err != nil {
				return err
			}
		}
		if h, _ := cmd.Flags().GetBool("history"); h {
			if err := s.Hydrate(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "history unavailable: %v\n", err)
			}
			printGroups(cmd.OutOrStdout(), s.Snapshot().Messages)
		}
		return converse(cmd, s, args)
	},
}

var scenarioCmd = &cobra.Command{
	Use:   "scenario [message]",
	Short: "Ask the scenario assistant (interactive without a message)",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newCLISession(chat.SurfaceScenario, transport.ScenarioBackend{Client: current.client})
		if err != nil {
			return err
		}
		return converse(cmd, s, args)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the chatbot history stored for this backend session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := newCLISession(chat.SurfaceChatbot, transport.ChatbotBackend{Client: current.client})
		if err != nil {
			return err
		}
		if err := s.Hydrate(cmd.Context()); err != nil {
			return err
		}
		printGroups(cmd.OutOrStdout(), s.Snapshot().Messages)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the chatbot history stored for this backend session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := newCLISession(chat.SurfaceChatbot, transport.ChatbotBackend{Client: current.client})
		if err != nil {
			return err
		}
		if err := s.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
		return nil
	},
}

func newCLISession(surface string, backend chat.Backend) (*chat.Session, error) {
	return chat.NewSession(chat.Config{
		Surface:   surface,
		Backend:   backend,
		Personas:  current.personas,
		UserID:    "cli",
		SessionID: "cli",
		Logger:    current.logger,
	})
}

// selectPersona accepts either a catalog key or a backend tag.
func selectPersona(s *chat.Session, p string) error {
	if byKey, ok := current.personas.ByKey(p); ok {
		p = byKey.Tag
	}
	return s.SelectPersona(p)
}

func converse(cmd *cobra.Command, s *chat.Session, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) > 0 {
		reply, err := s.Send(cmd.Context(), strings.Join(args, " "), "")
		if err != nil {
			return err
		}
		printMessage(out, reply)
		return nil
	}

	fmt.Fprintf(out, "%s session. /quit to leave.\n", s.Surface())
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if quit := handleLine(cmd.Context(), out, s, line); quit {
			return nil
		}
	}
}

func handleLine(ctx context.Context, out io.Writer, s *chat.Session, line string) (quit bool) {
	switch {
	case line == "":
		return false
	case line == "/quit" || line == "/exit":
		return true
	case line == "/history":
		printGroups(out, s.Snapshot().Messages)
	case line == "/clear":
		if err := s.Clear(ctx); err != nil {
			fmt.Fprintf(out, "! %v\n", err)
		} else {
			fmt.Fprintln(out, "History cleared.")
		}
	case strings.HasPrefix(line, "/persona"):
		p := strings.TrimSpace(strings.TrimPrefix(line, "/persona"))
		if err := selectPersona(s, p); err != nil {
			fmt.Fprintf(out, "! %v\n", err)
			return false
		}
		fmt.Fprintf(out, "Persona: %s\n", current.personas.Resolve(s.Snapshot().Persona).Label)
	default:
		reply, err := s.Send(ctx, line, "")
		if err != nil {
			fmt.Fprintf(out, "! %v\n", describe(err))
			return false
		}
		printMessage(out, reply)
	}
	return false
}

func describe(err error) string {
	if errors.Is(err, shared.ErrPending) {
		return "a reply is still pending"
	}
	return err.Error()
}

func printMessage(out io.Writer, m domain.Message) {
	who := "you"
	if m.Role == domain.RoleAssistant {
		who = current.personas.Resolve(m.PersonaTag).Label
	}
	fmt.Fprintf(out, "[%s] %s: %s\n", clock(m.Timestamp), who, m.Content)
}

func printGroups(out io.Writer, messages []domain.Message) {
	if len(messages) == 0 {
		fmt.Fprintln(out, "(no messages)")
		return
	}
	for group := range chat.GroupByDate(messages, time.Local) {
		fmt.Fprintf(out, "── %s ──\n", group.Label)
		for _, m := range group.Messages {
			printMessage(out, m)
		}
	}
}
