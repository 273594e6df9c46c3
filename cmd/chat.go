package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/abhisek/studybuddy/internal/chat"
	"github.com/abhisek/studybuddy/internal/gateway"
	"github.com/abhisek/studybuddy/internal/learner"
	"github.com/abhisek/studybuddy/internal/ui/theme"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with StudyBuddy in the terminal",
	Long: "Start a conversation as a child. Type a message and press enter.\n" +
		"Commands: /suggest, /history, /clear, /help, /quit",
	RunE: runChat,
}

func init() {
	f := chatCmd.Flags()
	f.String("child", "local-child", "Child ID (history and parent records are kept per child)")
	f.String("name", "", "Child's name")
	f.Int("age", 8, "Child's age (3-18)")
	f.Int("grade", 3, "School grade")
	f.String("lang", "", "Conversation language: en or ar (default gateway.locale)")
	f.String("style", "", "Learning style: visual, auditory, kinesthetic, reading")
	f.String("curriculum", "", "Curriculum: american, british, ib, moe")
	f.String("subject", "", "Lesson subject")
	f.String("topic", "", "Lesson topic")
	f.Bool("show-flags", false, "Print safety flags as they are raised")
}

func profileFromFlags(cmd *cobra.Command) learner.UserProfile {
	f := cmd.Flags()
	id, _ := f.GetString("child")
	name, _ := f.GetString("name")
	age, _ := f.GetInt("age")
	grade, _ := f.GetInt("grade")
	lang, _ := f.GetString("lang")
	style, _ := f.GetString("style")
	curriculum, _ := f.GetString("curriculum")
	return learner.UserProfile{
		ID:            id,
		Name:          name,
		Age:           age,
		Grade:         grade,
		Language:      learner.Language(lang),
		LearningStyle: learner.LearningStyle(style),
		Curriculum:    learner.Curriculum(curriculum),
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	s, err := openStack(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.withGateway(ctx); err != nil {
		return err
	}

	gw, err := gateway.New(ctx, s.gatewayDeps(), profileFromFlags(cmd), s.cfg.Gateway)
	if err != nil {
		return err
	}

	subject, _ := cmd.Flags().GetString("subject")
	topic, _ := cmd.Flags().GetString("topic")
	if subject != "" || topic != "" {
		if err := gw.UpdateLessonContext(&learner.LessonContext{Subject: subject, Topic: topic}); err != nil {
			return err
		}
	}

	showFlags, _ := cmd.Flags().GetBool("show-flags")
	r := &repl{
		ctx:       ctx,
		gw:        gw,
		out:       cmd.OutOrStdout(),
		showFlags: showFlags,
	}
	return r.run(cmd.InOrStdin())
}

type repl struct {
	ctx       context.Context
	gw        *gateway.Gateway
	out       io.Writer
	showFlags bool
}

func (r *repl) run(in io.Reader) error {
	p := r.gw.Profile()
	fmt.Fprintln(r.out, theme.Title.Render("StudyBuddy"))
	fmt.Fprintln(r.out, theme.Hint.Render(fmt.Sprintf("Hi %s! Ask me anything. Type /help for commands.", p.DisplayName())))
	r.printHistory()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, theme.ChildName.Render(p.DisplayName()+"> "))
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(line); quit {
				return nil
			}
			continue
		}
		r.send(line)
	}
}

// command handles a slash command and reports whether to quit.
func (r *repl) command(line string) bool {
	switch strings.Fields(line)[0] {
	case "/quit", "/exit":
		fmt.Fprintln(r.out, theme.Hint.Render("Bye! Keep learning."))
		return true
	case "/suggest":
		for _, q := range r.gw.SuggestedQuestions() {
			fmt.Fprintln(r.out, theme.Hint.Render("  • "+q))
		}
	case "/history":
		r.printHistory()
	case "/clear":
		if err := r.gw.ClearHistory(r.ctx); err != nil {
			fmt.Fprintln(r.out, theme.Notice.Render("Could not clear history: "+err.Error()))
			break
		}
		fmt.Fprintln(r.out, theme.Hint.Render("History cleared."))
	default:
		fmt.Fprintln(r.out, theme.Hint.Render("Commands: /suggest /history /clear /quit"))
	}
	return false
}

func (r *repl) send(text string) {
	var streamed atomic.Bool
	prefix := theme.BuddyName.Render("Buddy> ")

	res, err := r.gw.SendMessage(r.ctx, text, gateway.SendOptions{
		OnChunk: func(chunk string) {
			if !streamed.Swap(true) {
				fmt.Fprint(r.out, prefix)
			}
			fmt.Fprint(r.out, theme.Reply.Render(chunk))
		},
		OnSafetyFlag: func(flags []string) {
			if r.showFlags {
				fmt.Fprintln(r.out, theme.Flags(flags))
			}
		},
	})
	if err != nil {
		fmt.Fprintln(r.out, theme.Notice.Render(err.Error()))
		return
	}

	switch {
	case streamed.Load() && !res.Replaced:
		fmt.Fprintln(r.out)
	case streamed.Load():
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, prefix+theme.Notice.Render(res.Message.Content))
	case res.Outcome == gateway.OutcomeDelivered:
		fmt.Fprintln(r.out, prefix+theme.Reply.Render(res.Message.Content))
	default:
		fmt.Fprintln(r.out, prefix+theme.Notice.Render(res.Message.Content))
	}
}

func (r *repl) printHistory() {
	name := r.gw.Profile().DisplayName()
	for _, t := range r.gw.History() {
		who := theme.BuddyName.Render("Buddy> ")
		if t.Role == chat.RoleUser {
			who = theme.ChildName.Render(name + "> ")
		}
		fmt.Fprintln(r.out, who+theme.Subtitle.Render(t.Content))
	}
}
