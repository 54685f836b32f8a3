package cli

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"
)

// outputWithPager writes content to w, piping it through $PAGER (or less)
// when w is an interactive terminal and content is taller than the screen.
func outputWithPager(w interface{ Write([]byte) (int, error) }, content string) {
	if f, ok := w.(*os.File); ok && f == os.Stdout && term.IsTerminal(int(f.Fd())) {
		_, height, err := term.GetSize(int(f.Fd()))
		if err != nil {
			height = 24
		}
		if strings.Count(content, "\n") > height-2 {
			pager := os.Getenv("PAGER")
			if pager == "" {
				pager = "less"
			}
			cmd := exec.CommandContext(context.Background(), pager)
			cmd.Stdin = strings.NewReader(content)
			cmd.Stdout = f
			cmd.Stderr = os.Stderr
			if cmd.Run() == nil {
				return
			}
		}
	}
	_, _ = w.Write([]byte(content))
}
