// wikiexport: export Confluence spaces into GitLab wiki Markdown.
//
// Fetch every page and attachment, then convert the pages:
//
//	wikiexport --url https://example.atlassian.net/wiki --out-dir export
//
// Convert an existing export only:
//
//	wikiexport --no-fetch --out-dir export --gitlab-wikis-path /group/proj/-/wikis
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// setup loads the config for cmd and applies --silent.
func setup(cmd *cobra.Command) (config, error) {
	cfg, err := loadConfig(viper.New(), cmd.Flags())
	if err != nil {
		return config{}, err
	}
	if cfg.Silent {
		logOut = io.Discard
	}
	return cfg, nil
}

func newClient(cfg config) (*confluenceClient, error) {
	return newConfluenceClient(cfg.URL, cfg.Username, cfg.Token, cfg.transport(), cfg.MaxResponseSize)
}

// runFetch exports the configured spaces into cfg.OutDir.
func runFetch(ctx context.Context, cfg config) error {
	if err := cfg.validateFetch(); err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	m, err := openManifest(cfg.OutDir)
	if err != nil {
		return err
	}
	defer m.Close()

	ex := &exporter{
		client:          client,
		manifest:        m,
		outDir:          cfg.OutDir,
		spaces:          cfg.Spaces,
		skipAttachments: cfg.SkipAttachments,
		concurrency:     cfg.Concurrency,
	}
	st, err := ex.run(ctx)
	logf("Fetched %s", st)
	return err
}

// pageLookupFor returns the lookup used to resolve page links: the manifest
// first, then the API when a URL is configured.
func pageLookupFor(cfg config, m *manifest) (pageLookup, error) {
	chain := chainLookup{m}
	if cfg.URL != "" {
		client, err := newClient(cfg)
		if err != nil {
			return nil, err
		}
		chain = append(chain, client)
	}
	return newMemoLookup(chain), nil
}

// runConvert converts every exported page under cfg.OutDir.
func runConvert(ctx context.Context, cfg config) error {
	if _, err := os.Stat(cfg.OutDir); err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	m, err := openManifest(cfg.OutDir)
	if err != nil {
		return err
	}
	defer m.Close()

	n, err := m.Len(ctx)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}
	if n == 0 && cfg.URL == "" {
		logf("Manifest is empty and no url is set: links between pages will keep only their text")
	}

	lookup, err := pageLookupFor(cfg, m)
	if err != nil {
		return err
	}
	opts := convertOptions{
		outDir:      cfg.OutDir,
		concurrency: cfg.Concurrency,
		pages:       m,
		frontMatter: cfg.FrontMatter,
		rewrite: rewriteOpts{
			lookup:       lookup,
			wikiBase:     cfg.GitlabWikisPath,
			skipDiagrams: cfg.SkipDiagrams,
			diagrams: &drawioRenderer{
				raster:   newDrawioCLI(cfg.DrawioBin),
				maxWidth: cfg.DiagramMaxWidth,
			},
		},
	}

	res, err := convertTree(ctx, opts)
	logf("✓ %s", res)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d pages failed to convert", res.Failed, res.Failed+res.Converted)
	}
	return nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wikiexport",
		Short: "Export Confluence spaces to GitLab wiki Markdown",
		Long: `wikiexport fetches every page and attachment of a Confluence instance into
a directory tree of HTML files, then converts each page into Markdown ready to
be pushed to a GitLab wiki. Attachment links, draw.io diagrams, Jira issues,
user mentions and links between pages are rewritten along the way.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			if !cfg.NoFetch {
				if err := runFetch(cmd.Context(), cfg); err != nil {
					return err
				}
			}
			return runConvert(cmd.Context(), cfg)
		},
	}
	addConfigFlags(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "fetch",
			Short: "Export pages and attachments as HTML without converting",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := setup(cmd)
				if err != nil {
					return err
				}
				return runFetch(cmd.Context(), cfg)
			},
		},
		&cobra.Command{
			Use:   "convert",
			Short: "Convert an existing HTML export to Markdown",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := setup(cmd)
				if err != nil {
					return err
				}
				return runConvert(cmd.Context(), cfg)
			},
		},
		newDiagramCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), "wikiexport", version)
			},
		},
	)
	return root
}

// newDiagramCmd decodes one compressed draw.io descriptor, for inspecting
// diagrams that failed to rasterize.
func newDiagramCmd() *cobra.Command {
	var pngOut string
	cmd := &cobra.Command{
		Use:   "diagram <file|->",
		Short: "Decode a compressed draw.io descriptor to XML (or PNG with --png)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			var raw []byte
			if args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			diagramXML, err := decodeDiagram(string(raw))
			if err != nil {
				return err
			}
			if pngOut == "" {
				_, err = io.WriteString(cmd.OutOrStdout(), diagramXML+"\n")
				return err
			}

			img, err := newDrawioCLI(cfg.DrawioBin).Rasterize(cmd.Context(), diagramXML)
			if err != nil {
				return err
			}
			if img, err = fitRaster(img, cfg.DiagramMaxWidth); err != nil {
				return err
			}
			if err := os.WriteFile(pngOut, img, 0o644); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
			logf("✓ %s (%s)", pngOut, humanSize(int64(len(img))))
			return nil
		},
	}
	cmd.Flags().StringVar(&pngOut, "png", "", "rasterize to this PNG file instead of printing XML")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			err = errors.New("interrupted")
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
