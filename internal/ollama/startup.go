package ollama

import (
	"context"
	"fmt"
	"io"
)

// EnsureModels checks that Ollama is reachable and pulls every listed model
// that is not yet present, writing progress lines to w.
func EnsureModels(ctx context.Context, c *Client, models []string, w io.Writer) error {
	if !c.IsRunning(ctx) {
		return fmt.Errorf("ollama is not reachable at %s, start it with: ollama serve", c.BaseURL())
	}

	for _, model := range models {
		if model == "" {
			continue
		}
		if c.HasModel(ctx, model) {
			fmt.Fprintf(w, "model %s: ready\n", model)
			continue
		}

		fmt.Fprintf(w, "model %s: pulling...\n", model)
		last := ""
		err := c.Pull(ctx, model, func(p PullProgress) {
			line := "  " + p.Status
			if p.Total > 0 {
				line = fmt.Sprintf("  %s %d%%", p.Status, p.Completed*100/p.Total)
			}
			// Ollama repeats identical progress lines while a layer downloads.
			if line != last {
				fmt.Fprintln(w, line)
				last = line
			}
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}
	return nil
}
