package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"lexitrie/internal/document"
	"lexitrie/internal/engerrors"

	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Index a document",
	Long: `Add a document to the index. The document's title, content, author,
and tags are tokenized and inserted into the trie; content is additionally
kept verbatim for versioning and later retrieval.`,
	Example: `  lexitrie add --title "Go Concurrency" --content "goroutines and channels" --author alice --tags go,concurrency
  lexitrie add --id doc-42 --title "Update" --content "revised content"`,
	RunE: runAdd,
}

var (
	addID      string
	addTitle   string
	addContent string
	addAuthor  string
	addTags    string
)

func init() {
	rootCmd.AddCommand(addCmd)

	addCmd.Flags().StringVar(&addID, "id", "", "document id (updates an existing document if it already exists)")
	addCmd.Flags().StringVar(&addTitle, "title", "", "document title")
	addCmd.Flags().StringVar(&addContent, "content", "", "document content (required)")
	addCmd.Flags().StringVar(&addAuthor, "author", "", "document author")
	addCmd.Flags().StringVar(&addTags, "tags", "", "comma-separated tags")
	addCmd.MarkFlagRequired("content")
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var tags []string
	if addTags != "" {
		for _, t := range strings.Split(addTags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	now := time.Now().UnixMilli()
	doc := &document.Document{
		ID: addID,
		Fields: document.Fields{
			Title:   addTitle,
			Content: addContent,
			Author:  addAuthor,
			Tags:    tags,
		},
		Metadata: document.Metadata{
			Indexed:      now,
			LastModified: now,
		},
	}

	var stored *document.Document
	var err error
	if addID != "" {
		stored, err = eng.UpdateDocument(ctx, doc)
	}
	if addID == "" || errors.Is(err, engerrors.ErrDocumentNotFound) {
		stored, err = eng.AddDocument(ctx, doc)
	}
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	fmt.Println(success("✓ indexed"))
	fmt.Printf("  %s %s\n", muted("id:"), stored.ID)
	if stored.Fields.Title != "" {
		fmt.Printf("  %s %s\n", muted("title:"), stored.Fields.Title)
	}
	return nil
}
