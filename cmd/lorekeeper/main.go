// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/poiesic/lorekeeper"
	"github.com/poiesic/lorekeeper/config"
	"github.com/poiesic/lorekeeper/core"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "lorekeeper",
		Usage: "Knowledge lookup with local retrieval and AI escalation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
				Value:   "lorekeeper.yaml",
				EnvVars: []string{"LOREKEEPER_CONFIG"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "enqueue",
				Usage:     "Queue content for embedding",
				ArgsUsage: "<id> <content>",
				Action:    enqueueCommand,
			},
			{
				Name:      "import",
				Usage:     "Import knowledge items from a JSON-lines file and queue them",
				ArgsUsage: "<file|->",
				Action:    importCommand,
			},
			{
				Name:   "embed",
				Usage:  "Run one embedding batch over the pending queue",
				Action: embedCommand,
			},
			{
				Name:   "reembed",
				Usage:  "Queue every stored item for embedding again",
				Action: reembedCommand,
			},
			{
				Name:   "serve-worker",
				Usage:  "Run embedding batches periodically until interrupted",
				Action: serveWorkerCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "Time between runs (defaults to the worker_interval setting)",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Show fused local results for a query",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags:     []cli.Flag{limitFlag()},
			},
			{
				Name:      "ask",
				Usage:     "Answer a question",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags: []cli.Flag{
					limitFlag(),
					&cli.BoolFlag{
						Name:  "stream",
						Usage: "Print partial AI output as it arrives",
					},
				},
			},
			{
				Name:  "config",
				Usage: "Read or change settings",
				Subcommands: []*cli.Command{
					{
						Name:      "get",
						Usage:     "Print a setting",
						ArgsUsage: "<key>",
						Action:    configGetCommand,
					},
					{
						Name:      "set",
						Usage:     "Change a setting and save it to the configuration file",
						ArgsUsage: "<key> <value>",
						Action:    configSetCommand,
					},
					{
						Name:   "list",
						Usage:  "Print every setting",
						Action: configListCommand,
					},
				},
			},
		},
	}
}

func limitFlag() cli.Flag {
	return &cli.IntFlag{
		Name:    "limit",
		Aliases: []string{"n"},
		Usage:   "Maximum number of local results",
		Value:   5,
	}
}

func loadSettings(c *cli.Context) (*config.Settings, error) {
	return config.Load(config.WithFile(c.String("config")), config.WithLogger(slog.Default()))
}

func openAssistant(c *cli.Context) (*lorekeeper.Assistant, error) {
	settings, err := loadSettings(c)
	if err != nil {
		return nil, err
	}
	a, err := lorekeeper.Open(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to open assistant: %w", err)
	}
	return a, nil
}

func enqueueCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("enqueue requires <id> and <content>")
	}
	a, err := openAssistant(c)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Enqueue(c.Context, c.Args().Get(0), c.Args().Get(1))
}

func importCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("import requires a file path, or - for stdin")
	}
	var r io.Reader = os.Stdin
	if path := c.Args().First(); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	a, err := openAssistant(c)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.Import(c.Context, r)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Imported %d items, skipped %d\n", stats.Imported, stats.Skipped)
	return nil
}

func embedCommand(c *cli.Context) error {
	a, err := openAssistant(c)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, outcome := a.RunWorker(c.Context)
	fmt.Fprintf(c.App.Writer, "Read %d, processed %d, dropped %d, failures %d in %s\n",
		stats.Read, stats.Processed, stats.Dropped, stats.Failures, stats.Duration)
	if outcome != core.OutcomeSuccess {
		return fmt.Errorf("embedding run finished with outcome %s", outcome)
	}
	return nil
}

func reembedCommand(c *cli.Context) error {
	a, err := openAssistant(c)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Reembed(c.Context, c.App.ErrWriter); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func serveWorkerCommand(c *cli.Context) error {
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	interval := c.Duration("interval")
	if interval <= 0 {
		interval = settings.WorkerInterval()
	}
	a, err := lorekeeper.Open(settings)
	if err != nil {
		return fmt.Errorf("failed to open assistant: %w", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("serving embedding worker", "interval", interval, "tier", a.Tier())
	if err := a.ServeWorker(ctx, interval); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("search requires a query")
	}
	a, err := openAssistant(c)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.Search(c.Context, query, c.Int("limit"))
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintf(c.App.Writer, "%.3f\t%d\t%s\t%s\n", r.Score, r.Item.ID, r.Origin, title(r.Item))
	}
	return nil
}

func askCommand(c *cli.Context) error {
	question := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("ask requires a question")
	}
	a, err := openAssistant(c)
	if err != nil {
		return err
	}
	defer a.Close()

	var onPartial func(string)
	printed := 0
	if c.Bool("stream") {
		onPartial = func(text string) {
			if len(text) > printed {
				fmt.Fprint(c.App.Writer, text[printed:])
				printed = len(text)
			}
		}
	}
	res, err := a.AskStream(c.Context, question, c.Int("limit"), onPartial)
	if err != nil {
		return err
	}
	if printed == 0 {
		fmt.Fprint(c.App.Writer, res.Answer)
	}
	fmt.Fprintf(c.App.Writer, "\n\nConfidence: %.2f\n", res.Confidence)
	for _, ref := range res.References {
		fmt.Fprintf(c.App.Writer, "  [%d] %s\n", ref.ID, title(ref))
	}
	return nil
}

func title(item core.KnowledgeItem) string {
	if item.Title != "" {
		return item.Title
	}
	if item.Source != "" {
		return item.Source
	}
	runes := []rune(item.Content)
	if len(runes) > 60 {
		return string(runes[:60]) + "..."
	}
	return string(runes)
}

func configGetCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("config get requires <key>")
	}
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	val, err := settings.Get(c.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, val)
	return nil
}

func configSetCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("config set requires <key> and <value>")
	}
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	if err := settings.Set(c.Args().Get(0), c.Args().Get(1)); err != nil {
		return err
	}
	return settings.Save()
}

func configListCommand(c *cli.Context) error {
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	for _, key := range config.Keys() {
		val, err := settings.Get(key)
		if err != nil {
			return err
		}
		if key == config.KeyAIAPIKey && val != "" {
			val = "********"
		}
		fmt.Fprintf(c.App.Writer, "%s=%s\n", key, val)
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
