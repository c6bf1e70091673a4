// Command docqa indexes PDF documents into a local vector collection and
// answers questions about them, optionally with sources or verbatim
// citations.
package main

import (
	"errors"
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/enricher"
	"docqa/internal/extractor"
	"docqa/internal/generator"
	"docqa/internal/openai"
	"docqa/internal/retriever"
	"docqa/internal/service"
	"docqa/internal/tui"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
	"docqa/internal/vectorstore/sqlite"
)

var (
	cfgPath string
	mode    string
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "docqa",
		Short:         "Contextual question answering over your PDF documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default: ./config.yaml, then ~/.config/docqa/config.yaml)")

	index := &cobra.Command{
		Use:   "index <file.pdf> [more.pdf ...]",
		Short: "Build the vector collection from PDF documents",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIndex,
	}

	ask := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question against the indexed documents",
		Args:  cobra.ExactArgs(1),
		RunE:  runAsk,
	}
	ask.Flags().StringVar(&mode, "mode", "answer", "answer mode: answer, sources or citations")

	chat := &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat shell",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}
	chat.Flags().StringVar(&mode, "mode", "answer", "initial answer mode: answer, sources or citations")

	root.AddCommand(index, ask, chat)
	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func loadConfig() (*config.AppConfig, error) {
	if cfgPath == "" {
		cfg, _, err := config.LoadDefault()
		return cfg, err
	}
	return config.Load(cfgPath)
}

func openStore(cfg *config.AppConfig, create bool) (vectorstore.Store, error) {
	switch cfg.Store.Type {
	case "sqlite", "":
		if create {
			return sqlite.Create(cfg.Store.Path, cfg.Store.Collection)
		}
		s, err := sqlite.Open(cfg.Store.Path, cfg.Store.Collection)
		if errors.Is(err, domain.ErrCollectionNotFound) {
			return nil, fmt.Errorf("no index at %s (collection %q) - run 'docqa index' first", cfg.Store.Path, cfg.Store.Collection)
		}
		return s, err
	case "memory":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Store.Type)
	}
}

func buildService(cfg *config.AppConfig, store vectorstore.Store) (*service.Service, error) {
	client, err := openai.NewClient(openai.Config{
		BaseURL:     cfg.OpenAI.BaseURL,
		APIKeyEnv:   cfg.OpenAI.APIKeyEnv,
		EmbedModel:  cfg.OpenAI.EmbedModel,
		ChatModel:   cfg.OpenAI.ChatModel,
		Timeout:     time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		Temperature: cfg.OpenAI.Temperature,
	})
	if err != nil {
		return nil, err
	}
	split := chunker.NewRecursiveSplitter(cfg.Chunker.WindowSize, cfg.Chunker.WindowOverlap)
	enrich := enricher.New(enricher.Generate(client), cfg.Enricher.Workers, cfg.Enricher.MaxRetries)
	r := retriever.New(client, store, cfg.Retriever.TopK)
	gen := generator.New(client, r)
	return service.New(extractor.NewPDF(), split, enrich, client, store, gen), nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()
	svc, err := buildService(cfg, store)
	if err != nil {
		return err
	}

	stats, err := svc.BuildIndex(cmd.Context(), args)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d document(s) into %d chunk(s)", stats.Documents, stats.Chunks)
	if stats.Failed > 0 {
		fmt.Printf(" (%d document(s) skipped)", stats.Failed)
	}
	fmt.Println()
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()
	svc, err := buildService(cfg, store)
	if err != nil {
		return err
	}

	ans, err := svc.Ask(cmd.Context(), args[0], domain.Mode(mode))
	if err != nil {
		return err
	}
	fmt.Println(ans.Text)
	if len(ans.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range ans.Sources {
			fmt.Printf("  - %s (page %d)\n", s.Title, s.Page)
		}
	}
	if len(ans.Citations) > 0 {
		fmt.Println("\nCitations:")
		for _, c := range ans.Citations {
			fmt.Printf("  - %s, page %d: %q\n", c.Title, c.Page, c.Quotes)
		}
	}
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()
	svc, err := buildService(cfg, store)
	if err != nil {
		return err
	}

	m := tui.New(svc, domain.Mode(mode))
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
