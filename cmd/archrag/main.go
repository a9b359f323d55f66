package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"archrag/config"
	"archrag/internal/answer"
	"archrag/internal/api"
	"archrag/internal/catalog"
	"archrag/internal/chunk"
	"archrag/internal/extract"
	"archrag/internal/index"
	"archrag/internal/pipeline"
	"archrag/internal/token"
	"archrag/pkg/logger"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "archrag",
		Usage: "RAG assistant over an architecture document corpus",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config.yaml",
				Usage:   "path to the YAML configuration file",
				Aliases: []string{"c"},
			},
		},
		Before: func(c *cli.Context) error {
			if err := config.Init(c.String("config")); err != nil {
				return err
			}
			return logger.SetLevel(string(config.Cfg.LogLevel))
		},
		Commands: []*cli.Command{
			{
				Name:  "extract",
				Usage: "extract and clean per-page text from the PDF corpus",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "corpus", Usage: "corpus root (dir or s3:// URI), overrides config"},
				},
				Action: extractAction,
			},
			{
				Name:  "chunk",
				Usage: "split cleaned pages into token-bounded chunks",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "workers", Usage: "worker count (0 = one per file, capped at CPUs)"},
					&cli.BoolFlag{Name: "force", Usage: "discard checkpoints and reprocess every file"},
				},
				Action: chunkAction,
			},
			{
				Name:   "index",
				Usage:  "embed chunks and upsert them into the vector store",
				Action: indexAction,
			},
			{
				Name:  "ask",
				Usage: "answer a single question from the indexed corpus",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "top-k", Usage: "number of chunks to retrieve"},
					&cli.StringFlag{Name: "category", Usage: "restrict retrieval to one category"},
				},
				Action: askAction,
			},
			{
				Name:   "chat",
				Usage:  "interactive question loop ('quit' to exit, 'stats' for corpus stats)",
				Action: chatAction,
			},
			{
				Name:   "serve",
				Usage:  "run the HTTP query server",
				Action: serveAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err, "archrag failed")
	}
}

// openCatalog returns the catalog DB or nil; the pipeline works without it.
func openCatalog() *catalog.DB {
	db, err := catalog.Open(config.Cfg.Paths.CatalogDB)
	if err != nil {
		logger.Error(err, "catalog unavailable, continuing without it")
		return nil
	}
	return db
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func extractAction(c *cli.Context) error {
	ctx, stop := signalContext()
	defer stop()

	corpus := c.String("corpus")
	if corpus == "" {
		corpus = config.Cfg.Paths.CorpusDir
	}

	cat := openCatalog()
	if cat != nil {
		defer cat.Close()
	}

	var rec extract.Recorder
	if cat != nil {
		rec = cat
	}
	sum, err := extract.Run(ctx, corpus, config.Cfg.Paths.CleanedDir, rec)
	if err != nil {
		return err
	}
	logger.Info("extraction done: %d document(s), %d page(s)", sum.Docs, sum.Pages)
	return nil
}

func chunkAction(c *cli.Context) error {
	ctx, stop := signalContext()
	defer stop()

	cc := config.Cfg.Chunking
	params, err := chunk.NewParams(
		cc.AllowedTokens(),
		cc.Overlap,
		cc.MinTokensPerChunk,
		cc.MinCharLength,
		cc.RequireSentences,
		cc.BoilerplatePatterns,
		cc.MeaninglessPatterns,
	)
	if err != nil {
		return err
	}

	codec, err := token.NewCodec(config.Cfg.Tokenizer.Encoding, config.Cfg.Tokenizer.LenCacheSize)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(config.Cfg.Paths.ChunksDir, 0o755); err != nil {
		return err
	}
	jobs, err := pipeline.JobsFromDir(config.Cfg.Paths.CleanedDir, config.Cfg.Paths.ChunksDir)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no cleaned JSONL files under %s, run extract first", config.Cfg.Paths.CleanedDir)
	}
	if c.Bool("force") {
		for _, job := range jobs {
			if err := os.Remove(job.Checkpoint); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove checkpoint %s: %w", job.Checkpoint, err)
			}
		}
	}

	workers := c.Int("workers")
	if workers == 0 {
		workers = cc.Workers
	}

	driver := pipeline.NewDriver(chunk.NewAssembler(params, codec), cc.CheckpointEvery)
	sum := driver.Run(ctx, jobs, workers)

	if cat := openCatalog(); cat != nil {
		defer cat.Close()
		for _, res := range sum.Results {
			if err := cat.RecordRun("chunk", filepath.Base(res.Job.Input), res.Kept, res.Skipped, string(res.State)); err != nil {
				logger.Error(err, "catalog record failed for %s", res.Job.Input)
			}
		}
	}

	if sum.Failed > 0 {
		return fmt.Errorf("%d file(s) failed", sum.Failed)
	}
	return nil
}

func indexAction(c *cli.Context) error {
	ctx, stop := signalContext()
	defer stop()

	cat := openCatalog()
	if cat != nil {
		defer cat.Close()
	}
	var rec index.RunRecorder
	if cat != nil {
		rec = cat
	}

	_, _, err := index.Run(ctx, config.Cfg.Paths.ChunksDir, rec)
	return err
}

func askAction(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("usage: archrag ask <question>")
	}

	ctx, stop := signalContext()
	defer stop()

	cat := openCatalog()
	if cat != nil {
		defer cat.Close()
	}
	var rec answer.QuestionRecorder
	if cat != nil {
		rec = cat
	}

	res, err := answer.Ask(ctx, question, c.Int("top-k"), c.String("category"), rec)
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

func chatAction(c *cli.Context) error {
	ctx, stop := signalContext()
	defer stop()

	cat := openCatalog()
	if cat != nil {
		defer cat.Close()
	}
	var rec answer.QuestionRecorder
	if cat != nil {
		rec = cat
	}

	fmt.Println("Architecture document RAG assistant")
	fmt.Println("Type 'quit' to exit, 'stats' to see corpus statistics")
	fmt.Println(strings.Repeat("-", 60))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nEnter your question: ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())

		switch {
		case question == "":
			continue
		case strings.EqualFold(question, "quit"):
			return nil
		case strings.EqualFold(question, "stats"):
			if cat == nil {
				fmt.Println("catalog unavailable")
				continue
			}
			st, err := cat.GetStats()
			if err != nil {
				fmt.Println("stats error:", err)
				continue
			}
			fmt.Printf("Documents: %d  Pages: %d  Chunks: %d  Questions: %d\n",
				st.Documents, st.Pages, st.ChunksKept, st.Questions)
			continue
		}

		res, err := answer.Ask(ctx, question, 0, "", rec)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		printResult(res)
	}
	return scanner.Err()
}

func serveAction(c *cli.Context) error {
	cat := openCatalog()
	if cat != nil {
		defer cat.Close()
	}

	app := api.NewApp(cat)
	addr := fmt.Sprintf(":%d", config.Cfg.Server.Port)
	logger.Info("listening on %s", addr)
	return app.Listen(addr)
}

func printResult(res answer.Result) {
	sep := strings.Repeat("=", 80)
	fmt.Println("\n" + sep)
	fmt.Println("ANSWER:")
	fmt.Println(sep)
	fmt.Println(res.Answer)
	if len(res.Sources) == 0 {
		return
	}
	fmt.Println("\n" + sep)
	fmt.Println("SOURCES:")
	fmt.Println(sep)
	for _, s := range res.Sources {
		fmt.Printf("Source %d:\n", s.ID)
		fmt.Printf("  Document: %s\n", s.DocID)
		fmt.Printf("  Category: %s\n", s.Category)
		fmt.Printf("  Page: %d\n", s.Page)
		fmt.Printf("  Confidence: %.3f\n", s.Confidence)
		fmt.Println()
	}
}
