package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/trinetra-vision/trinetra/common/event"
	"github.com/trinetra-vision/trinetra/resolver/search"
)

var (
	gallerySearchURL  string
	galleryCollection string
	galleryCreate     bool
	galleryNormalize  bool
)

// galleryEntry is one line of a gallery export file.
type galleryEntry struct {
	CustomerID string    `json:"customer_id"`
	VIP        bool      `json:"vip"`
	Embedding  []float32 `json:"embedding"`
}

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Identity gallery commands",
}

var galleryLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Load a gallery export into the similarity search backend",
	Long: `Read a JSON gallery export and upsert every identity into the
search backend. Each entry carries a customer ID, a VIP flag, and a
512-dim unit-norm embedding.

Examples:
  trinetra gallery load gallery.json
  trinetra gallery load --create --search-url http://qdrant:6333 gallery.json`,
	Args: cobra.ExactArgs(1),
	RunE: runGalleryLoad,
}

func runGalleryLoad(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read gallery file: %w", err)
	}

	var entries []galleryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse gallery file: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("gallery file has no entries")
	}

	for i, e := range entries {
		if e.CustomerID == "" {
			return fmt.Errorf("entry %d: missing customer_id", i)
		}
		if len(e.Embedding) != event.EmbeddingDim {
			return fmt.Errorf("entry %s: embedding dim %d, want %d",
				e.CustomerID, len(e.Embedding), event.EmbeddingDim)
		}
		if galleryNormalize {
			event.Normalize(e.Embedding)
		} else if !event.IsUnitNorm(e.Embedding) {
			return fmt.Errorf("entry %s: embedding is not unit-norm (use --normalize)", e.CustomerID)
		}
	}

	ctx := cmd.Context()
	client := search.NewQdrant(gallerySearchURL, galleryCollection, 10*time.Second)

	if galleryCreate {
		createCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := client.EnsureCollection(createCtx, event.EmbeddingDim)
		cancel()
		if err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}

	vips := 0
	for _, e := range entries {
		if err := client.Upsert(ctx, e.CustomerID, e.Embedding, e.VIP); err != nil {
			return fmt.Errorf("upsert %s: %w", e.CustomerID, err)
		}
		if e.VIP {
			vips++
		}
	}

	fmt.Printf("Loaded %d identities (%d VIP) into %s/%s\n",
		len(entries), vips, gallerySearchURL, galleryCollection)
	return nil
}

func init() {
	galleryLoadCmd.Flags().StringVar(&gallerySearchURL, "search-url",
		envOr("SIM_SEARCH_URL", "http://localhost:6333"), "similarity search backend URL")
	galleryLoadCmd.Flags().StringVar(&galleryCollection, "collection", "gallery", "target collection")
	galleryLoadCmd.Flags().BoolVar(&galleryCreate, "create", false, "create the collection if missing")
	galleryLoadCmd.Flags().BoolVar(&galleryNormalize, "normalize", false,
		"L2-normalize embeddings instead of rejecting non-unit vectors")

	galleryCmd.AddCommand(galleryLoadCmd)
	rootCmd.AddCommand(galleryCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
