package cli

import (
	"bufio"
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/d60-Lab/postsync/internal/syncclient"
)

const shellHelp = `commands:
  ls                 print every post
  new <text>         create a post
  edit <id> <text>   replace the content of a post
  rm <id>            delete a post
  refresh            reload the collection from the server
  help               show this help
  quit               wait for pending requests and exit`

// NewShellCommand creates the interactive shell command.
func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session over one synced collection",
		Long: `Read commands from stdin, one per line.

Changes are sent in the background; the collection is printed again as each
request completes. Type "help" for the command list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer s.close()

			sh := &shell{session: s, ctx: cmd.Context()}
			if err := s.render(); err != nil {
				return err
			}
			return sh.run(bufio.NewScanner(cmd.InOrStdin()))
		},
	}
}

type shell struct {
	*session
	ctx     context.Context
	pending sync.WaitGroup
}

func (sh *shell) run(in *bufio.Scanner) error {
	defer sh.pending.Wait()

	sh.out.Line("type \"help\" for commands")
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		if !sh.exec(line) {
			return nil
		}
	}
	return in.Err()
}

// exec runs one command line; it returns false when the shell should exit.
func (sh *shell) exec(line string) bool {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "ls", "list":
		_ = sh.render()
		if n := len(sh.client.InFlight()); n > 0 {
			sh.out.Line("(%d pending)", n)
		}
	case "new", "create":
		sh.submit(syncclient.CreateIntent(rest))
	case "edit":
		id, content, ok := strings.Cut(rest, " ")
		if !ok || id == "" {
			_ = sh.out.Error(CodeUsage, "usage: edit <id> <text>")
			return true
		}
		sh.submit(syncclient.UpdateIntent(sh.resolveID(id), strings.TrimSpace(content)))
	case "rm", "delete":
		if rest == "" {
			_ = sh.out.Error(CodeUsage, "usage: rm <id>")
			return true
		}
		sh.submit(syncclient.DeleteIntent(sh.resolveID(rest)))
	case "refresh":
		sh.submit(syncclient.RefreshIntent())
	case "help", "?":
		sh.out.Line("%s", shellHelp)
	case "quit", "exit", "q":
		return false
	default:
		_ = sh.out.Error(CodeUsage, "unknown command "+name+" (try \"help\")")
	}
	return true
}

// submit issues in and prints the outcome when it completes.
func (sh *shell) submit(in syncclient.Intent) {
	op := sh.client.Submit(sh.ctx, in)
	sh.out.VerboseLog("#%d %s issued", op.Seq(), in.Op)

	sh.pending.Add(1)
	go func() {
		defer sh.pending.Done()
		<-op.Done()
		if _, err := op.Result(); err != nil {
			_ = sh.out.SyncError(err)
			return
		}
		_ = sh.render()
	}()
}
