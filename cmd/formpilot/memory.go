package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/sandevgo/formpilot/internal/core"
	"github.com/sandevgo/formpilot/internal/service/capture"
	"github.com/sandevgo/formpilot/pkg/log"
)

var (
	memQuestion string
	memAnswer   string
	memCategory string
	memTags     []string
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Manage stored answers",
}

var memoryAddCmd = &cobra.Command{
	Use:          "add",
	Short:        "Add a stored answer",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		stores, err := openStores(ctx)
		if err != nil {
			return err
		}
		defer stores.Close()

		entry := newEntry(memQuestion, memAnswer, core.ParseCategory(memCategory), memTags, core.SourceManual)
		if err := stores.Memories.Add(ctx, entry); err != nil {
			return err
		}

		fmt.Printf("added %s\n", entry.ID)
		return nil
	},
}

var memoryListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List stored answers",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		stores, err := openStores(ctx)
		if err != nil {
			return err
		}
		defer stores.Close()

		entries, err := stores.Memories.List(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no stored answers yet, add one with 'formpilot memory add'")
			return nil
		}

		for _, e := range entries {
			question := e.Question
			if question == "" {
				question = "-"
			}
			fmt.Printf("%s  [%s]  %s = %s  (used %d times)\n",
				e.ID, e.Category, question, e.Answer, e.Metadata.UsageCount)
		}
		return nil
	},
}

var memoryRmCmd = &cobra.Command{
	Use:          "rm <id>",
	Short:        "Delete a stored answer",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		stores, err := openStores(ctx)
		if err != nil {
			return err
		}
		defer stores.Close()

		if err := stores.Memories.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

var memoryImportCmd = &cobra.Command{
	Use:          "import <file.csv>",
	Short:        "Import answers from a CSV file (question,answer,category,tags)",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		stores, err := openStores(ctx)
		if err != nil {
			return err
		}
		defer stores.Close()

		imported, skipped, err := importCSV(ctx, stores, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("imported %d answers (%d skipped)\n", imported, skipped)
		return nil
	},
}

var memoryExportCmd = &cobra.Command{
	Use:          "export <file.csv>",
	Short:        "Export stored answers to a CSV file",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		stores, err := openStores(ctx)
		if err != nil {
			return err
		}
		defer stores.Close()

		entries, err := stores.Memories.List(ctx)
		if err != nil {
			return err
		}
		if err := exportCSV(args[0], entries); err != nil {
			return err
		}
		fmt.Printf("exported %d answers to %s\n", len(entries), args[0])
		return nil
	},
}

func init() {
	memoryAddCmd.Flags().StringVarP(&memQuestion, "question", "q", "", "question the answer responds to")
	memoryAddCmd.Flags().StringVarP(&memAnswer, "answer", "a", "", "answer text (required)")
	memoryAddCmd.Flags().StringVarP(&memCategory, "category", "c", "general", "category: contact, general, location, work, personal, education")
	memoryAddCmd.Flags().StringSliceVarP(&memTags, "tags", "t", nil, "tags")
	memoryAddCmd.MarkFlagRequired("answer")

	memoryCmd.AddCommand(memoryAddCmd, memoryListCmd, memoryRmCmd, memoryImportCmd, memoryExportCmd)
	rootCmd.AddCommand(memoryCmd)
}

var entryEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)

func newEntry(question, answer string, category core.Category, tags []string, source string) core.MemoryEntry {
	now := time.Now().UTC()
	answer = strings.TrimSpace(answer)
	return core.MemoryEntry{
		ID:          ulid.MustNew(ulid.Timestamp(now), entryEntropy).String(),
		Question:    strings.TrimSpace(question),
		Answer:      answer,
		Category:    category,
		Tags:        tags,
		Confidence:  1,
		ContentHash: capture.ContentHash(question, answer, category),
		Metadata: core.EntryMetadata{
			CreatedAt: now,
			UpdatedAt: now,
			Source:    source,
		},
	}
}

func importCSV(ctx context.Context, stores *stores, path string) (imported, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	existing, err := stores.Memories.ContentHashes(ctx)
	if err != nil {
		return 0, 0, err
	}

	logger := log.FromCtx(ctx)
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	for line := 0; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, skipped, err
		}
		// Header row
		if line == 0 && strings.EqualFold(record[0], "question") {
			continue
		}
		if len(record) < 2 {
			skipped++
			continue
		}

		question, answer := record[0], record[1]
		category := core.CategoryGeneral
		if len(record) > 2 {
			category = core.ParseCategory(record[2])
		}
		var tags []string
		if len(record) > 3 && record[3] != "" {
			tags = strings.Split(record[3], ";")
		}

		entry := newEntry(question, answer, category, tags, core.SourceImport)
		if _, dup := existing[entry.ContentHash]; dup {
			skipped++
			continue
		}
		if err := stores.Memories.Add(ctx, entry); err != nil {
			logger.Warn().Err(err).Int("line", line+1).Msg("skipping row")
			skipped++
			continue
		}
		existing[entry.ContentHash] = struct{}{}
		imported++
	}
	return imported, skipped, nil
}

func exportCSV(path string, entries []core.MemoryEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	defer writer.Flush()

	if err := writer.Write([]string{"question", "answer", "category", "tags"}); err != nil {
		return err
	}
	for _, e := range entries {
		record := []string{e.Question, e.Answer, string(e.Category), strings.Join(e.Tags, ";")}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return nil
}
