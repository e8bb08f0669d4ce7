package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bitdruid/llmm/internal/api"
	"github.com/bitdruid/llmm/internal/attach"
	"github.com/bitdruid/llmm/internal/client"
	"github.com/bitdruid/llmm/internal/config"
	"github.com/bitdruid/llmm/internal/session"
	"github.com/bitdruid/llmm/internal/storage"
	"github.com/bitdruid/llmm/internal/stream"
	"github.com/bitdruid/llmm/internal/view"
)

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List, inspect, pull, update and delete models",
}

var modelsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List installed models",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		models, err := c.Models(cmd.Context())
		if err != nil {
			return err
		}
		return printData(cmd.OutOrStdout(), models, func(w io.Writer) error {
			if len(models) == 0 {
				fmt.Fprintln(w, view.EmptyModels)
				return nil
			}
			rows := make([][]string, 0, len(models))
			for i, r := range view.ModelRows(models) {
				modified := r.Modified
				if t := models[i].ModifiedAt; t != nil {
					modified = relTime(*t)
				}
				rows = append(rows, []string{r.Name, r.Size, r.Params, r.Format, r.Quant, modified})
			}
			return writeTable(w, []string{"NAME", "SIZE", "PARAMS", "FORMAT", "QUANT", "MODIFIED"}, rows)
		})
	},
}

var modelsPsCmd = &cobra.Command{
	Use:   "ps",
	Short: "List models loaded in memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		models, err := c.Running(cmd.Context())
		if err != nil {
			return err
		}
		return printData(cmd.OutOrStdout(), models, func(w io.Writer) error {
			v := view.Running(models, nil)
			if v.Empty {
				fmt.Fprintln(w, v.EmptyText)
				return nil
			}
			rows := make([][]string, 0, len(v.Rows))
			for i, r := range v.Rows {
				until := view.Placeholder
				if t := models[i].ExpiresAt; t != nil {
					until = relTime(*t)
				}
				rows = append(rows, []string{r.Name, r.Params, r.Quant, r.Size, until})
			}
			return writeTable(w, []string{"NAME", "PARAMS", "QUANT", "SIZE", "UNTIL"}, rows)
		})
	},
}

var modelsInfoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show model details and capabilities",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		info, err := c.ModelInfo(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(info.Raw, &doc); err != nil {
			return fmt.Errorf("decoding model info: %w", err)
		}
		return printData(cmd.OutOrStdout(), doc, func(w io.Writer) error {
			printStatus(w, "Model", "%s", args[0])
			printStatus(w, "Capabilities", "%s", orNone(strings.Join(info.Capabilities, ", ")))
			printStatus(w, "Family", "%s", orNone(info.Details.Family))
			printStatus(w, "Parameters", "%s", orNone(info.Details.ParameterSize))
			printStatus(w, "Quantization", "%s", orNone(info.Details.QuantizationLevel))
			printStatus(w, "Format", "%s", orNone(info.Details.Format))
			if info.Parameters != "" {
				fmt.Fprintln(w, colorize(colorBold, "\n  Parameters"))
				for _, line := range strings.Split(strings.TrimSpace(info.Parameters), "\n") {
					fmt.Fprintf(w, "    %s\n", line)
				}
			}
			if info.License != "" {
				first, _, _ := strings.Cut(strings.TrimSpace(info.License), "\n")
				printStatus(w, "License", "%s", first)
			}
			return nil
		})
	},
}

var modelsPullCmd = &cobra.Command{
	Use:   "pull <name>",
	Short: "Download a model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPull(cmd, args[0], false)
	},
}

var modelsUpdateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Re-pull an installed model to fetch its latest version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPull(cmd, args[0], true)
	},
}

var modelsRmCmd = &cobra.Command{
	Use:     "rm <name>",
	Aliases: []string{"delete"},
	Short:   "Delete a model",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")

		c, err := newAPIClient()
		if err != nil {
			return err
		}

		var ask func(string) bool
		if !yes {
			r := bufio.NewReader(stdin)
			ask = func(name string) bool {
				return confirm(r, fmt.Sprintf("Delete model %q?", name))
			}
		}
		res, err := session.Delete(cmd.Context(), c, args[0], ask)
		if errors.Is(err, session.ErrDeclined) {
			printWarning("Delete cancelled")
			return nil
		}
		if err != nil {
			return err
		}
		printSuccess("%s", res.Message)
		return nil
	},
}

func init() {
	modelsRmCmd.Flags().BoolP("yes", "y", false, "delete without asking")
	modelsCmd.AddCommand(modelsListCmd, modelsPsCmd, modelsInfoCmd, modelsPullCmd, modelsUpdateCmd, modelsRmCmd)
}

func orNone(s string) string {
	if s == "" {
		return view.Placeholder
	}
	return s
}

func runPull(cmd *cobra.Command, name string, update bool) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}

	pp := newProgressPrinter(cmd.ErrOrStderr(), !noColor && term.IsTerminal(int(os.Stderr.Fd())))
	p := session.NewPuller(c, pp.render)
	if update {
		err = p.Update(cmd.Context(), name)
	} else {
		err = p.Pull(cmd.Context(), name)
	}
	pp.finish()
	if err != nil {
		return err
	}
	printSuccess("%s", p.State().Status)
	return nil
}

// progressPrinter renders pull progress. On a terminal it redraws one line
// with a bar; otherwise it prints each distinct status line once.
type progressPrinter struct {
	w    io.Writer
	live bool
	bar  progress.Model
	last string
}

func newProgressPrinter(w io.Writer, live bool) *progressPrinter {
	return &progressPrinter{
		w:    w,
		live: live,
		bar:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
	}
}

func (p *progressPrinter) render(s session.PullState) {
	v := view.Pull(s)
	if !v.ShowBar {
		return
	}
	line := v.Status
	if v.Detail != "" {
		line += "  " + v.Detail
	}
	if line == p.last {
		return
	}
	p.last = line
	if p.live {
		fmt.Fprintf(p.w, "\r\033[K%s %s", p.bar.ViewAs(float64(v.Percent)/100), line)
		return
	}
	fmt.Fprintln(p.w, line)
}

func (p *progressPrinter) finish() {
	if p.live && p.last != "" {
		fmt.Fprintln(p.w)
	}
}

// --- chat / generate ---

var chatCmd = &cobra.Command{
	Use:   "chat <model> [prompt...]",
	Short: "Chat with a model",
	Long: `Chat with a model. With a prompt, prints one reply and exits; without,
starts an interactive session (/clear resets it, /exit quits).

Examples:
  llmm chat llama3:8b "Why is the sky blue?"
  llmm chat qwen3:4b --attach report.pdf "List the action items"
  llmm chat llama3:8b --temperature 0.2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		model, prompt := args[0], strings.Join(args[1:], " ")

		atts, err := loadAttachments(cmd)
		if err != nil {
			return err
		}
		c, err := newAPIClient()
		if err != nil {
			return err
		}

		sp := &streamPrinter{out: cmd.OutOrStdout(), thinking: cmd.ErrOrStderr(), idx: -1}
		chat := session.NewChat(c, sp.render)
		opts := generationOptions(cmd)

		if strings.TrimSpace(prompt) != "" {
			in := session.SendInput{Model: model, Text: attach.Compose(prompt, atts), Options: opts}
			return sendTurn(cmd.Context(), chat, sp, in)
		}
		return chatLoop(cmd.Context(), chat, sp, model, atts, opts)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <model> <prompt...>",
	Short: "Complete a single prompt without chat history",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		atts, err := loadAttachments(cmd)
		if err != nil {
			return err
		}
		c, err := newAPIClient()
		if err != nil {
			return err
		}

		req := client.GenerateRequest{
			Model:   args[0],
			Prompt:  attach.Compose(strings.Join(args[1:], " "), atts),
			Options: generationOptions(cmd),
		}
		body, err := c.GenerateStream(cmd.Context(), req)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}
		defer body.Close()

		w := cmd.OutOrStdout()
		dec := stream.NewDecoder(body)
		for f := range dec.Frames(cmd.Context()) {
			if f.HasError() {
				fmt.Fprintln(w)
				return fmt.Errorf("generate: %s", f.Error)
			}
			fmt.Fprint(w, f.Response)
		}
		fmt.Fprintln(w)
		if err := dec.Err(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{chatCmd, generateCmd} {
		cmd.Flags().StringSlice("attach", nil, "text or PDF files to prepend to the prompt")
		addGenerationFlags(cmd)
	}
}

// addGenerationFlags registers one flag per generation option.
func addGenerationFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("temperature", 0, "sampling temperature")
	cmd.Flags().Int("num-ctx", 0, "context window size in tokens")
	cmd.Flags().Int("seed", 0, "random seed for reproducible output")
	cmd.Flags().Int("top-k", 0, "sample only from the k most likely tokens")
	cmd.Flags().Float64("top-p", 0, "nucleus sampling probability mass")
	cmd.Flags().Float64("repeat-penalty", 0, "penalty for repeated tokens")
	cmd.Flags().Int("num-predict", 0, "maximum number of tokens to generate")
}

// generationOptions returns the options whose flags were set, or nil.
func generationOptions(cmd *cobra.Command) *client.Options {
	var o client.Options
	f := cmd.Flags()
	if f.Changed("temperature") {
		v, _ := f.GetFloat64("temperature")
		o.Temperature = &v
	}
	if f.Changed("num-ctx") {
		v, _ := f.GetInt("num-ctx")
		o.NumCtx = &v
	}
	if f.Changed("seed") {
		v, _ := f.GetInt("seed")
		o.Seed = &v
	}
	if f.Changed("top-k") {
		v, _ := f.GetInt("top-k")
		o.TopK = &v
	}
	if f.Changed("top-p") {
		v, _ := f.GetFloat64("top-p")
		o.TopP = &v
	}
	if f.Changed("repeat-penalty") {
		v, _ := f.GetFloat64("repeat-penalty")
		o.RepeatPenalty = &v
	}
	if f.Changed("num-predict") {
		v, _ := f.GetInt("num-predict")
		o.NumPredict = &v
	}
	if o.IsZero() {
		return nil
	}
	return &o
}

func loadAttachments(cmd *cobra.Command) ([]attach.Attachment, error) {
	paths, _ := cmd.Flags().GetStringSlice("attach")
	atts := make([]attach.Attachment, 0, len(paths))
	for _, p := range paths {
		a, err := attach.Load(p, attach.DefaultMaxBytes)
		if err != nil {
			return nil, err
		}
		if a.Truncated {
			printWarning("%s was truncated to %s", a.Name, humanize.IBytes(attach.DefaultMaxBytes))
		}
		atts = append(atts, a)
	}
	return atts, nil
}

// streamPrinter writes the growing assistant reply as deltas. Reasoning goes
// to the thinking writer, dimmed.
type streamPrinter struct {
	out      io.Writer
	thinking io.Writer

	idx             int
	printed         string
	printedThinking string
}

func (p *streamPrinter) reset() {
	p.idx, p.printed, p.printedThinking = -1, "", ""
}

func (p *streamPrinter) render(msgs []session.Message) {
	if len(msgs) == 0 {
		return
	}
	i := len(msgs) - 1
	last := msgs[i]
	if last.Role != session.RoleAssistant {
		return
	}
	if i != p.idx {
		p.reset()
		p.idx = i
	}

	if strings.HasPrefix(last.Thinking, p.printedThinking) && len(last.Thinking) > len(p.printedThinking) {
		fmt.Fprint(p.thinking, colorize(colorDim, last.Thinking[len(p.printedThinking):]))
		p.printedThinking = last.Thinking
	}

	switch {
	case last.Content == p.printed:
	case strings.HasPrefix(last.Content, p.printed):
		fmt.Fprint(p.out, last.Content[len(p.printed):])
	default:
		// The reply was replaced, e.g. by an error line.
		if p.printed != "" {
			fmt.Fprintln(p.out)
		}
		fmt.Fprint(p.out, last.Content)
	}
	p.printed = last.Content
}

func sendTurn(ctx context.Context, chat *session.Chat, sp *streamPrinter, in session.SendInput) error {
	err := chat.Send(ctx, in)
	if sp.printed != "" {
		fmt.Fprintln(sp.out)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func chatLoop(ctx context.Context, chat *session.Chat, sp *streamPrinter, model string, atts []attach.Attachment, opts *client.Options) error {
	sc := bufio.NewScanner(stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	fmt.Fprintf(os.Stderr, "Chatting with %s. /clear resets the conversation, /exit quits.\n", colorize(colorBold, model))
	pending := atts
	for {
		fmt.Fprint(os.Stderr, colorize(colorCyan, ">>> "))
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/clear":
			if err := chat.Clear(); err != nil {
				return err
			}
			sp.reset()
			printSuccess("Conversation cleared")
			continue
		}

		text := line
		if len(pending) > 0 {
			text = attach.Compose(line, pending)
			pending = nil
		}
		err := sendTurn(ctx, chat, sp, session.SendInput{Model: model, Text: text, Options: opts})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && sp.printed == "" {
			printError("%v", err)
		}
	}
	return sc.Err()
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded model actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		c, err := newAPIClient()
		if err != nil {
			return err
		}
		entries, err := c.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		return printData(cmd.OutOrStdout(), entries, func(w io.Writer) error {
			if len(entries) == 0 {
				fmt.Fprintln(w, "No history recorded.")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.ID[:min(8, len(e.ID))],
					relTime(e.CreatedAt),
					e.Action,
					e.Model,
					statusLabel(e.Status),
					(time.Duration(e.DurationMS) * time.Millisecond).String(),
					truncate(e.Detail, 60),
				})
			}
			return writeTable(w, []string{"ID", "WHEN", "ACTION", "MODEL", "STATUS", "TOOK", "DETAIL"}, rows)
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one history entry from the local store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLocalStore()
		if err != nil {
			return err
		}
		defer store.Close()

		e, err := store.GetHistory(cmd.Context(), args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no history entry %q", args[0])
		}
		if err != nil {
			return err
		}
		return printData(cmd.OutOrStdout(), e, func(w io.Writer) error {
			printStatus(w, "ID", "%s", e.ID)
			printStatus(w, "When", "%s (%s)", e.CreatedAt.Local().Format(time.DateTime), relTime(e.CreatedAt))
			printStatus(w, "Action", "%s", e.Action)
			printStatus(w, "Model", "%s", e.Model)
			printStatus(w, "Status", "%s", statusLabel(e.Status))
			printStatus(w, "Took", "%s", time.Duration(e.DurationMS)*time.Millisecond)
			if e.Detail != "" {
				printStatus(w, "Detail", "%s", e.Detail)
			}
			return nil
		})
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old history entries from the local store",
	RunE: func(cmd *cobra.Command, args []string) error {
		age, _ := cmd.Flags().GetDuration("older-than")
		if age <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		store, err := openLocalStore()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.PruneHistory(cmd.Context(), time.Now().Add(-age))
		if err != nil {
			return err
		}
		printSuccess("Removed %d %s", n, plural(n, "entry", "entries"))
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", storage.DefaultHistoryLimit, "maximum number of entries")
	historyPruneCmd.Flags().Duration("older-than", defaultHistoryRetention, "remove entries older than this")
	historyCmd.AddCommand(historyShowCmd, historyPruneCmd)
}

func openLocalStore() (*storage.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

func statusLabel(s string) string {
	switch s {
	case storage.StatusOK:
		return colorize(colorGreen, s)
	case storage.StatusError:
		return colorize(colorRed, s)
	default:
		return colorize(colorYellow, s)
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		return printData(cmd.OutOrStdout(), keys, func(w io.Writer) error {
			for _, k := range keys {
				fmt.Fprintf(w, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, "$"+k.EnvVar))
			}
			return nil
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Set a configuration value",
	Args:      cobra.ExactArgs(2),
	ValidArgs: config.ValidKeys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:       "unset <key>",
	Short:     "Remove a configuration value so its default applies",
	Args:      cobra.ExactArgs(1),
	ValidArgs: config.ValidKeys(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configUnsetCmd)
}

// --- theme / version ---

var themeCmd = &cobra.Command{
	Use:       "theme [light|dark|toggle]",
	Short:     "Show or set the color theme",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(view.ThemeLight), string(view.ThemeDark), "toggle"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		current, err := view.ParseTheme(cfg.UI.Theme)
		if err != nil {
			current = view.ThemeLight
		}
		if len(args) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), current)
			return nil
		}

		next := current.Toggle()
		if args[0] != "toggle" {
			if next, err = view.ParseTheme(args[0]); err != nil {
				return err
			}
		}
		if err := config.SetKey("ui.theme", string(next)); err != nil {
			return err
		}
		printSuccess("Theme set to %s", next)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := client.AppInfo{
			Name:      api.AppName,
			Version:   version,
			Author:    api.AppAuthor,
			GithubURL: api.GithubURL,
		}
		return printData(cmd.OutOrStdout(), info, func(w io.Writer) error {
			fmt.Fprintf(w, "%s %s\n", info.Name, info.Version)
			printStatus(w, "Author", "%s", info.Author)
			printStatus(w, "Source", "%s", info.GithubURL)
			return nil
		})
	},
}
