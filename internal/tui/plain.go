package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"forumrag/internal/synth"
)

// RunPlain runs the line-oriented REPL on in and out. It returns when the
// user quits, in is exhausted or ctx is cancelled. A failed command is
// reported on out and the loop continues.
func RunPlain(ctx context.Context, s *Session, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Forum Query System")
	fmt.Fprintln(out, "========================================")
	fmt.Fprintln(out, "Type 'quit' to exit, 'help' for commands")
	fmt.Fprintln(out)

	sc := bufio.NewScanner(in)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(out, "Query: ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		cmd := ParseCommand(sc.Text())
		switch cmd.Kind {
		case CmdEmpty:
			continue
		case CmdQuit:
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case CmdHelp:
			fmt.Fprintf(out, "\n%s\n\n", s.Help())
		case CmdSearch:
			fmt.Fprintf(out, "\n%s\n\n", s.Search(ctx, cmd.Arg))
		case CmdPost:
			fmt.Fprintf(out, "\n%s\n\n", s.Post(ctx, cmd.Arg))
		case CmdAsk:
			askPlain(ctx, s, cmd.Arg, out)
		}
	}
}

func askPlain(ctx context.Context, s *Session, question string, out io.Writer) {
	if question == "" {
		fmt.Fprintln(out, "Please provide a question.")
		return
	}
	fmt.Fprintf(out, "\nQuestion: %s\nThinking...\n", question)
	stream, _, err := s.Ask(ctx, question)
	if err != nil {
		fmt.Fprintf(out, "\n%s\n\n", errorLine(err))
		return
	}
	defer stream.Close()

	fmt.Fprint(out, "\nAnswer: ")
	for {
		frag, ok := stream.Next()
		if !ok {
			break
		}
		switch frag.Kind {
		case synth.FragmentText:
			fmt.Fprint(out, frag.Text)
		case synth.FragmentError:
			fmt.Fprintf(out, "\n%s", errorLine(frag.Err))
		}
	}
	fmt.Fprint(out, "\n\n")
}
