package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutoria/tutor-relay/internal/chat"
	"github.com/tutoria/tutor-relay/internal/config"
	"github.com/tutoria/tutor-relay/internal/sse"
	"github.com/tutoria/tutor-relay/internal/tutorclient"
)

const defaultEndpoint = "http://localhost:8080/tutorChat"

type options struct {
	endpoint     string
	timeout      time.Duration
	mergePartial bool
	system       string
}

func (o *options) client() *tutorclient.Client {
	policy := sse.PartialDrop
	if o.mergePartial {
		policy = sse.PartialMerge
	}
	return tutorclient.New(o.endpoint, tutorclient.WithPartialPolicy(policy))
}

// turnContext bounds one request by the timeout and by Ctrl-C.
func (o *options) turnContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	if o.timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	return ctx, func() { cancel(); stop() }
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "tutorctl",
		Short:         "Talk to the tutor relay from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.LoadDotenv(); err != nil {
				return err
			}
			if !cmd.Flags().Changed("endpoint") {
				if v := os.Getenv("TUTOR_ENDPOINT"); v != "" {
					opts.endpoint = v
				}
			}
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.endpoint, "endpoint", defaultEndpoint, "Relay endpoint URL (env TUTOR_ENDPOINT)")
	pf.DurationVar(&opts.timeout, "timeout", 0, "Abort a request after this long; 0 waits indefinitely")
	pf.BoolVar(&opts.mergePartial, "merge-partial", false, "Join incomplete JSON payloads with the next one instead of dropping them")

	rootCmd.AddCommand(newStreamCmd(opts), newChatCmd(opts), newTitleCmd(opts))
	return rootCmd
}

func newStreamCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream <question>",
		Short: "Ask one question and print the answer as it streams",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.turnContext(cmd.Context())
			defer cancel()

			out := cmd.OutOrStdout()
			req := chat.Request{
				SystemPrompt: opts.system,
				Messages:     []chat.Message{{Role: chat.RoleUser, Content: strings.Join(args, " ")}},
			}
			res, err := opts.client().Send(ctx, req, func(tok string) { fmt.Fprint(out, tok) })
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			report(cmd.ErrOrStderr(), res)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.system, "system", "", "System prompt; the relay default is used when empty")
	return cmd
}

func newChatCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive tutoring session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&opts.system, "system", "", "System prompt; the relay default is used when empty")
	return cmd
}

func runChat(parent context.Context, opts *options, in io.Reader, out, errOut io.Writer) error {
	client := opts.client()
	scanner := bufio.NewScanner(in)
	var history []chat.Message

	fmt.Fprintln(out, "Starting chat session (type 'exit' to quit, Ctrl-C stops an answer)")
	fmt.Fprintln(out, "----------------------------------------")

	for {
		fmt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" {
			break
		}
		history = append(history, chat.Message{Role: chat.RoleUser, Content: input})

		fmt.Fprint(out, "\nTutor: ")
		ctx, cancel := opts.turnContext(parent)
		res, err := client.Send(ctx, chat.Request{SystemPrompt: opts.system, Messages: history},
			func(tok string) { fmt.Fprint(out, tok) })
		cancel()
		fmt.Fprintln(out)

		if err != nil {
			fmt.Fprintf(errOut, "Error: %v\n", err)
			history = history[:len(history)-1]
			continue
		}
		report(errOut, res)
		if !res.Empty() {
			history = append(history, chat.Message{Role: chat.RoleAssistant, Content: res.Text})
		}
	}
	return scanner.Err()
}

func newTitleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "title <message>...",
		Short: "Suggest a conversation title for the given user messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.turnContext(cmd.Context())
			defer cancel()

			msgs := make([]chat.Message, 0, len(args))
			for _, a := range args {
				msgs = append(msgs, chat.Message{Role: chat.RoleUser, Content: a})
			}
			fmt.Fprintln(cmd.OutOrStdout(), opts.client().GenerateTitle(ctx, msgs))
			return nil
		},
	}
}

func report(w io.Writer, res tutorclient.Result) {
	switch {
	case res.Aborted:
		fmt.Fprintln(w, "[interrupted]")
	case res.Empty():
		fmt.Fprintln(w, "[no answer; the response may have been filtered]")
	}
}
