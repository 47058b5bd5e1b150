package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ashureev/voicetask/internal/dates"
	"github.com/ashureev/voicetask/internal/dialogue"
	"github.com/ashureev/voicetask/internal/domain"
	"github.com/ashureev/voicetask/internal/extract"
	"github.com/ashureev/voicetask/internal/session"
	"github.com/ashureev/voicetask/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("user", "cli", "user id for the dialogue")
	chatCmd.Flags().String("db", "", "SQLite file to save confirmed tasks to")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run an interactive dialogue using the rule-based extractor",
	Long: `Each line is one utterance. Lines starting with ':' are commands:
  :new     start a fresh session
  :state   show the current slots
  :quit    exit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		norm, err := loadNormalizer(cmd)
		if err != nil {
			return err
		}
		children, err := loadRoster(cmd)
		if err != nil {
			return err
		}
		userID, _ := cmd.Flags().GetString("user")

		var opts []dialogue.Option
		if path, _ := cmd.Flags().GetString("db"); path != "" {
			repo, err := store.NewSQLite(path)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := repo.Close(); closeErr != nil {
					slog.Warn("Failed to close repository", "error", closeErr)
				}
			}()
			opts = append(opts, dialogue.WithTaskSink(repo), dialogue.WithTurnLog(repo))
		}

		engine := dialogue.NewEngine(session.NewStore(session.DefaultTTL), extract.RuleExtractor{}, norm, opts...)
		c := &chat{engine: engine, norm: norm, userID: userID, roster: children, out: cmd.OutOrStdout()}
		return c.run(cmd.Context(), cmd.InOrStdin())
	},
}

// chat is one terminal conversation over the engine.
type chat struct {
	engine *dialogue.Engine
	norm   *dates.Normalizer
	userID string
	roster []domain.Child
	out    io.Writer

	sessionID string
	index     int
}

func (c *chat) run(ctx context.Context, in io.Reader) error {
	if err := c.start(ctx); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	fmt.Fprint(c.out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case ":quit", ":q":
			return nil
		case ":new":
			if err := c.start(ctx); err != nil {
				return err
			}
		case ":state":
			c.state()
		default:
			if err := c.say(ctx, line); err != nil {
				return err
			}
		}
		fmt.Fprint(c.out, "> ")
	}
	fmt.Fprintln(c.out)
	return scanner.Err()
}

func (c *chat) start(ctx context.Context) error {
	sess, err := c.engine.StartSession(ctx, c.userID, c.roster)
	if err != nil {
		return err
	}
	c.sessionID, c.index = sess.ID, 0
	fmt.Fprintf(c.out, "session %s (expires %s)\n", sess.ID, sess.ExpiresAt.In(c.norm.Location()).Format("15:04"))
	return nil
}

func (c *chat) say(ctx context.Context, utterance string) error {
	resp, err := c.engine.SubmitTurn(ctx, domain.Turn{
		UserID:     c.userID,
		SessionID:  c.sessionID,
		TurnID:     uuid.NewString(),
		TurnIndex:  c.index,
		Transcript: utterance,
	})
	if err != nil {
		fmt.Fprintf(c.out, "error [%s]: %v\n", dialogue.Code(err), err)
		return nil
	}
	c.index++

	fmt.Fprintln(c.out, resp.Speak)
	if resp.Result != nil {
		fmt.Fprintf(c.out, "task: child=%s title=%q dueAt=%s points=%d\n",
			resp.Result.ChildID, resp.Result.Title, resp.Result.DueAt, resp.Result.Points)
	}
	if resp.Type == dialogue.ReplyConfirmed || resp.Type == dialogue.ReplyCancelled {
		return c.start(ctx)
	}
	return nil
}

func (c *chat) state() {
	for _, s := range c.engine.DebugSessions(c.userID) {
		if s.ID != c.sessionID {
			continue
		}
		fmt.Fprintf(c.out, "status=%s missing=%v child=%q (%s) title=%q due=%q (%s) points=%d\n",
			s.Status, s.Missing, s.Slots.AssignedChildName, s.Slots.AssignedChildID,
			s.Slots.Title, s.Slots.DueText, s.Slots.DueISO, s.Slots.Points)
	}
}
