package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	ivhttp "github.com/fyrsmithlabs/interviewd/internal/http"
	"github.com/fyrsmithlabs/interviewd/internal/interview"
	"github.com/fyrsmithlabs/interviewd/internal/persona"
)

func newCreateCmd() *cobra.Command {
	var position, difficulty string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a new interview session",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sess interview.Session
			err := newClient().do(cmd.Context(), http.MethodPost, "/api/v1/sessions",
				ivhttp.CreateSessionRequest{Position: position, Difficulty: difficulty}, &sess)
			if err != nil {
				return err
			}
			fmt.Printf("Session %s created (%s, %s difficulty)\n", sess.ID, sess.Position, sess.Difficulty)
			fmt.Printf("Current phase: %s\n", sess.Phase)
			return nil
		},
	}
	cmd.Flags().StringVar(&position, "position", "", "position being interviewed for")
	cmd.Flags().StringVar(&difficulty, "difficulty", "medium", "difficulty: easy, medium or hard")
	cmd.MarkFlagRequired("position")
	return cmd
}

func newMessageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "message <session-id> <text>",
		Short: "Send a message and print the interviewer's reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out ivhttp.SubmitMessageResponse
			err := newClient().do(cmd.Context(), http.MethodPost,
				"/api/v1/sessions/"+args[0]+"/messages",
				ivhttp.SubmitMessageRequest{Content: strings.Join(args[1:], " ")}, &out)
			if err != nil {
				return err
			}
			// Skip the echo of our own message.
			for _, m := range out.Messages {
				if m.Sender == interview.SenderUser {
					continue
				}
				printMessage(m)
			}
			return nil
		},
	}
}

func newEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end <session-id>",
		Short: "End a session early and print the assessment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sess interview.Session
			err := newClient().do(cmd.Context(), http.MethodPost,
				"/api/v1/sessions/"+args[0]+"/end", nil, &sess)
			if err != nil {
				return err
			}
			printSession(&sess)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show a session's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sess interview.Session
			err := newClient().do(cmd.Context(), http.MethodGet,
				"/api/v1/sessions/"+args[0], nil, &sess)
			if err != nil {
				return err
			}
			printSession(&sess)
			return nil
		},
	}
}

func newTranscriptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transcript <session-id>",
		Short: "Print a session's full message log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out ivhttp.MessagesResponse
			err := newClient().do(cmd.Context(), http.MethodGet,
				"/api/v1/sessions/"+args[0]+"/messages", nil, &out)
			if err != nil {
				return err
			}
			for _, m := range out.Messages {
				printMessage(m)
			}
			return nil
		},
	}
}

func newPersonasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List the interviewer personas in phase order",
		RunE: func(cmd *cobra.Command, args []string) error {
			var descriptors []persona.Descriptor
			err := newClient().do(cmd.Context(), http.MethodGet, "/api/v1/personas", nil, &descriptors)
			if err != nil {
				return err
			}
			for _, d := range descriptors {
				fmt.Printf("%d. %s (%s)\n   %s\n", d.SequencePos+1, d.RoleName, d.Kind, d.Description)
			}
			return nil
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show daemon and provider health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out ivhttp.HealthResponse
			err := newClient().do(cmd.Context(), http.MethodGet, "/health", nil, &out)
			if err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", out.Status)
			for _, p := range out.Providers {
				state := "down"
				if p.Available {
					state = "up"
				}
				fmt.Printf("  [%d] %-12s %s\n", p.Priority, p.Name, state)
			}
			return nil
		},
	}
}

func printSession(s *interview.Session) {
	fmt.Printf("Session:    %s\n", s.ID)
	fmt.Printf("Position:   %s (%s difficulty)\n", s.Position, s.Difficulty)
	fmt.Printf("Status:     %s\n", s.Status)
	if s.Phase != "" {
		fmt.Printf("Phase:      %s\n", s.Phase)
	}
	if s.OverallScore != nil {
		fmt.Printf("Score:      %.1f/100\n", *s.OverallScore)
	}
	for _, f := range s.Feedback {
		fmt.Printf("\n[%s] %.0f/100\n%s\n", f.Kind, f.Score, f.Commentary)
		for _, c := range f.Concerns {
			fmt.Printf("  - concern: %s\n", c)
		}
	}
}

func printMessage(m interview.Message) {
	who := string(m.Sender)
	if m.Persona != "" {
		who = string(m.Persona)
	}
	fmt.Printf("[%3d] %-12s %s\n", m.Seq, who, m.Content)
}
