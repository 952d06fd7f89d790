package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/treeline-rag/treeline"
	"github.com/treeline-rag/treeline/model"
	"github.com/treeline-rag/treeline/parser"
)

var (
	topK            int
	alpha           float64
	hierarchical    bool
	includeParent   bool
	includeChildren bool
	contentType     string
	rawFilter       string
	indexType       string
)

func main() {
	// Missing .env is fine, the environment may be set directly.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "treeline",
		Short:        "Hierarchical retrieval knowledge base",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		addCmd(),
		addImagesCmd(),
		searchCmd(),
		deleteCmd(),
		listCmd(),
		statsCmd(),
		rebuildCmd(),
		indexCmd(),
		watchCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openKnowledgeBase(ctx context.Context) (*treeline.KnowledgeBase, error) {
	return treeline.New(ctx, nil)
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>...",
		Short: "Ingest files or directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			kb, err := openKnowledgeBase(ctx)
			if err != nil {
				return err
			}
			defer kb.Close()

			var results []*model.IngestResult
			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					return err
				}
				if info.IsDir() {
					dirResults, err := kb.AddDirectory(ctx, path)
					if err != nil {
						return err
					}
					results = append(results, dirResults...)
				} else {
					results = append(results, kb.AddDocument(ctx, path))
				}
			}

			failed := 0
			for _, result := range results {
				status := "ok"
				if !result.Success {
					status = "failed"
					failed++
				}
				fmt.Printf("%-6s %s (%s)\n", status, result.FilePath, result.Message)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(results))
			}
			return nil
		},
	}
}

func addImagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-images <dir>",
		Short: "Ingest every image in a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			kb, err := openKnowledgeBase(ctx)
			if err != nil {
				return err
			}
			defer kb.Close()

			inserted, err := kb.AddImageFolder(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("inserted %d images\n", inserted)
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run hybrid retrieval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			kb, err := openKnowledgeBase(ctx)
			if err != nil {
				return err
			}
			defer kb.Close()

			config := model.QueryConfig{
				TopK:            topK,
				Alpha:           alpha,
				Hierarchical:    hierarchical,
				IncludeParent:   includeParent,
				IncludeChildren: includeChildren,
				ContentType:     contentType,
				Filter:          rawFilter,
			}

			results := kb.Query(ctx, args[0], &config)
			if len(results) == 0 {
				fmt.Println("no results")
				return nil
			}

			for i, result := range results {
				fmt.Printf("%2d. [%.4f] %s (level %d, %s)\n", i+1, result.Score, result.ChunkType, result.Level, result.FilePath)
				fmt.Printf("    %s\n", excerpt(result.Content, 200))
			}
			return nil
		},
	}

	defaults := model.DefaultQueryConfig()
	cmd.Flags().IntVar(&topK, "top-k", defaults.TopK, "maximum number of results")
	cmd.Flags().Float64Var(&alpha, "alpha", defaults.Alpha, "fusion weight, 1 = vector only, 0 = keyword only")
	cmd.Flags().BoolVar(&hierarchical, "hierarchical", defaults.Hierarchical, "pull in tree context of each hit")
	cmd.Flags().BoolVar(&includeParent, "include-parent", defaults.IncludeParent, "include parent chunks as context")
	cmd.Flags().BoolVar(&includeChildren, "include-children", defaults.IncludeChildren, "include child chunks as context")
	cmd.Flags().StringVar(&contentType, "content-type", "", "restrict to one content type (text or image)")
	cmd.Flags().StringVar(&rawFilter, "filter", "", "raw SQL filter over record columns")

	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <file-path>",
		Short: "Delete all records of one ingested file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			kb, err := openKnowledgeBase(ctx)
			if err != nil {
				return err
			}
			defer kb.Close()

			deleted, err := kb.DeleteDocument(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d records\n", deleted)
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List ingested files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := openKnowledgeBase(cmd.Context())
			if err != nil {
				return err
			}
			defer kb.Close()

			documents, err := kb.ListDocuments()
			if err != nil {
				return err
			}
			for _, doc := range documents {
				fmt.Printf("%s  %s  %d records  %s\n", doc.CreatedAt.Format("2006-01-02 15:04"), doc.FileType, doc.RecordCount, doc.FilePath)
			}
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show collection statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := openKnowledgeBase(cmd.Context())
			if err != nil {
				return err
			}
			defer kb.Close()

			stats, err := kb.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("records: %d\nfiles: %d\nkeyword index size: %d\n", stats.TotalRecords, len(stats.Documents), stats.KeywordIndexSize)
			return nil
		},
	}
}

func rebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the keyword index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := openKnowledgeBase(cmd.Context())
			if err != nil {
				return err
			}
			defer kb.Close()

			return kb.RebuildKeywordIndex()
		},
	}
}

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Change the vector index type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			kb, err := openKnowledgeBase(ctx)
			if err != nil {
				return err
			}
			defer kb.Close()

			return kb.ChangeIndexType(ctx, indexType, nil)
		},
	}
	cmd.Flags().StringVar(&indexType, "type", "ivfflat", "index type (hnsw or ivfflat)")
	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a directory and ingest changed files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			kb, err := openKnowledgeBase(ctx)
			if err != nil {
				return err
			}
			defer kb.Close()

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()

			if err := watcher.Add(args[0]); err != nil {
				return err
			}
			log.Printf("watching %s", args[0])

			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					handleWatchEvent(ctx, kb, event)
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Printf("watch error: %v", err)
				}
			}
		},
	}
}

func handleWatchEvent(ctx context.Context, kb *treeline.KnowledgeBase, event fsnotify.Event) {
	if !parser.IsSupported(event.Name) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		deleted, err := kb.DeleteDocument(ctx, event.Name)
		if err != nil {
			log.Printf("delete %s: %v", event.Name, err)
			return
		}
		log.Printf("removed %s (%d records)", event.Name, deleted)

	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		// Re-ingest from scratch so edits never leave stale chunks.
		if _, err := kb.DeleteDocument(ctx, event.Name); err != nil {
			log.Printf("delete %s: %v", event.Name, err)
			return
		}
		result := kb.AddDocument(ctx, event.Name)
		log.Printf("ingested %s: %s", event.Name, result.Message)
	}
}

func excerpt(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
