package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"weblog/internal/config"
	"weblog/internal/db"
	"weblog/internal/models"
	"weblog/internal/search"
	"weblog/internal/services"
)

func migrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			connect(cfg)
		},
	}
}

func importCmd(cfg *config.Config) *cobra.Command {
	names := services.GetBeatImporter().Names()
	return &cobra.Command{
		Use:   "import <" + strings.Join(names, "|") + "|all>",
		Short: "Import beats from a configured source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			connect(cfg)
			importer := services.GetBeatImporter()
			ctx := cmd.Context()
			if args[0] == "all" {
				results, err := importer.RunAll(ctx, cfg.ImportSources)
				for name, res := range results {
					printImport(cmd, name, res)
				}
				return err
			}
			url, ok := cfg.ImportSources[args[0]]
			if !ok {
				return fmt.Errorf("no source configured for %q (set IMPORT_%s_URL)", args[0], strings.ToUpper(args[0]))
			}
			res, err := importer.Run(ctx, args[0], url)
			if err != nil {
				return err
			}
			printImport(cmd, args[0], res)
			return nil
		},
	}
}

func printImport(cmd *cobra.Command, name string, res *services.ImportResult) {
	if res == nil {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d created, %d updated, %d skipped\n", name, res.Created, res.Updated, res.Skipped)
}

func importJSONCmd(cfg *config.Config) *cobra.Command {
	var tagWith string
	c := &cobra.Command{
		Use:   "import-json <url|file>",
		Short: "Import content, guides, series, newsletters, sponsors and redirects from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := services.ReadBlogJSON(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			connect(cfg)
			res, err := services.ImportBlogJSON(items, tagWith)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d created, %d updated\n", res.Created, res.Updated)
			for _, u := range res.URLs {
				fmt.Fprintln(cmd.OutOrStdout(), u)
			}
			return nil
		},
	}
	c.Flags().StringVar(&tagWith, "tag-with", "", "tag to add to every imported item")
	return c
}

func importFeedCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "import-feed <url>",
		Short: "Import an RSS or Atom feed as draft blogmarks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			connect(cfg)
			res, err := services.GetFeedImporter().Import(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printImport(cmd, "feed", res)
			return nil
		},
	}
}

func reindexCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild every search document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			connect(cfg)
			n, err := search.ReindexAll(cmd.Context(), db.DB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reindexed %d items\n", n)
			return nil
		},
	}
}

func createStaffCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "createstaff <username> <password>",
		Short: "Create a staff account, or reset its password",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			connect(cfg)
			created, err := upsertStaff(db.DB, args[0], args[1])
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", args[0])
			}
			return nil
		},
	}
}

// upsertStaff creates the user or resets the password of an existing one.
func upsertStaff(tx *gorm.DB, username, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, errors.New("username and password are required")
	}
	var u models.User
	err := tx.Where("username = ?", username).First(&u).Error
	created := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !created {
		return false, err
	}
	u.Username = username
	u.IsStaff = true
	if err := u.SetPassword(password); err != nil {
		return false, err
	}
	return created, tx.Save(&u).Error
}

func fetchCloudflareIPsCmd(cfg *config.Config) *cobra.Command {
	var out string
	c := &cobra.Command{
		Use:   "fetch-cloudflare-ips",
		Short: "Download the published Cloudflare ranges to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New("no output file: pass --out or set CLOUDFLARE_IPS_FILE")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			ranges, err := services.FetchCloudflareRanges(ctx, services.CloudflareIPSources)
			if err != nil {
				return err
			}
			if err := writeRanges(out, ranges); err != nil {
				return err
			}
			log.Info().Int("ranges", len(ranges)).Str("file", out).Msg("saved Cloudflare ranges")
			return nil
		},
	}
	c.Flags().StringVar(&out, "out", cfg.CloudflareIPFile, "file to write")
	return c
}

func writeRanges(path string, ranges []string) error {
	var b strings.Builder
	b.WriteString("# Cloudflare ranges fetched " + time.Now().UTC().Format(time.RFC3339) + "\n")
	for _, r := range ranges {
		b.WriteString(r + "\n")
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

var feedPaths = []string{"/atom/entries/", "/atom/links/", "/atom/everything/"}

func validateFeedsCmd(cfg *config.Config) *cobra.Command {
	var base string
	c := &cobra.Command{
		Use:   "validate-feeds",
		Short: "Fetch the site's Atom feeds and check that they parse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parser := gofeed.NewParser()
			parser.Client = &http.Client{Timeout: 30 * time.Second}
			failed := 0
			for _, p := range feedPaths {
				url := strings.TrimSuffix(base, "/") + p
				n, err := validateFeed(cmd.Context(), parser, url)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", url, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%d items)\n", url, n)
			}
			if failed > 0 {
				return fmt.Errorf("%d feeds failed", failed)
			}
			return nil
		},
	}
	c.Flags().StringVar(&base, "base", cfg.SiteURL, "site to check")
	return c
}

// validateFeed parses one feed and checks every item has a title and link.
func validateFeed(ctx context.Context, parser *gofeed.Parser, url string) (int, error) {
	feed, err := parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return 0, err
	}
	if feed.FeedType != "atom" {
		return 0, fmt.Errorf("expected atom, got %s", feed.FeedType)
	}
	for i, item := range feed.Items {
		if item.Link == "" || item.Title == "" {
			return 0, fmt.Errorf("item %d is missing a title or link", i)
		}
	}
	return len(feed.Items), nil
}
