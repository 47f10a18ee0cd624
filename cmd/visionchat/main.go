package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/visionchat/visionchat/chat"
	"github.com/visionchat/visionchat/config"
	"github.com/visionchat/visionchat/imaging"
	"github.com/visionchat/visionchat/internal/logging"
	"github.com/visionchat/visionchat/ollama"
	"github.com/visionchat/visionchat/tui"
)

var (
	// Flags
	baseURL     string
	model       string
	temperature float64
	verbose     bool
	noStream    bool
	images      []string

	rootCmd = &cobra.Command{
		Use:   "visionchat",
		Short: "Chat with local vision-capable Ollama models",
		Long:  "VisionChat - a terminal chat client for vision-capable models served by a local Ollama instance. Attach images, stream replies.",
		RunE:  runTUI,
	}

	askCmd = &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send a one-shot prompt without entering the TUI",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	modelsCmd = &cobra.Command{
		Use:   "models",
		Short: "List installed vision-capable models",
		RunE:  runModels,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Ollama base URL (default http://localhost:11434)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Model to use")
	rootCmd.PersistentFlags().Float64Var(&temperature, "temperature", -1, "Sampling temperature (0-1, default from config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	askCmd.Flags().StringArrayVarP(&images, "image", "i", nil, "Image file to attach (repeatable)")
	askCmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for the full response instead of streaming")

	modelsCmd.Flags().Bool("refresh", false, "Bust the model cache")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(modelsCmd)

	viper.SetEnvPrefix("VISIONCHAT")
	viper.AutomaticEnv()
	viper.BindPFlags(rootCmd.PersistentFlags())
}

func main() {
	// A missing .env is fine.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
	}

	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// resolveConfig layers flags and environment over the persisted config.
func resolveConfig(manager *config.Manager) (config.Config, error) {
	cfg := manager.Get()
	if v := viper.GetString("base-url"); v != "" {
		cfg.BaseURL = v
	}
	if v := viper.GetString("model"); v != "" {
		cfg.Model = v
	}
	if v := viper.GetFloat64("temperature"); v >= 0 {
		cfg.Temperature = v
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newClient(cfg config.Config) (*ollama.Client, zerolog.Logger, io.Closer, error) {
	logger, closer, err := logging.New(verbose)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	client, err := ollama.NewClient(
		ollama.WithBaseURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
		ollama.WithTemperature(cfg.Temperature),
		ollama.WithLogger(logger),
	)
	if err != nil {
		closer.Close()
		return nil, zerolog.Nop(), nil, err
	}
	return client, logger, closer, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	manager, err := config.NewManager()
	if err != nil {
		return fmt.Errorf("failed to create config manager: %w", err)
	}
	cfg, err := resolveConfig(manager)
	if err != nil {
		return err
	}

	client, logger, closer, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := client.Ping(context.Background()); err != nil {
		return fmt.Errorf("cannot reach Ollama at %s (is it running?): %w", cfg.BaseURL, err)
	}

	coordinator := chat.NewCoordinator(client, chat.Config{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		Stream:      true,
		Logger:      logger,
	})

	logger.Info().Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("starting TUI")
	p := tea.NewProgram(tui.New(coordinator), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	manager, err := config.NewManager()
	if err != nil {
		return fmt.Errorf("failed to create config manager: %w", err)
	}
	cfg, err := resolveConfig(manager)
	if err != nil {
		return err
	}

	client, _, closer, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	// Encode attachments up front; any failure aborts the whole prompt.
	var encoded []string
	for _, path := range images {
		payload, err := imaging.Encode(path)
		if err != nil {
			return fmt.Errorf("image %s: %w", path, err)
		}
		encoded = append(encoded, payload)
	}

	prompt := strings.Join(args, " ")

	req := &ollama.ChatRequest{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		Messages: []ollama.Message{{
			Role:    ollama.RoleUser,
			Content: prompt,
			Images:  encoded,
		}},
	}

	ctx := context.Background()
	if noStream {
		chunk, err := client.Chat(ctx, req)
		if err != nil {
			return err
		}
		fmt.Println(chunk.Message.Content)
		return nil
	}

	chunks, err := client.ChatStream(ctx, req)
	if err != nil {
		return err
	}
	for chunk := range chunks {
		if chunk.Err != nil {
			fmt.Println()
			return chunk.Err
		}
		if chunk.Message.Role == ollama.RoleAssistant {
			fmt.Print(chunk.Message.Content)
		}
	}
	fmt.Println()
	return nil
}

func runModels(cmd *cobra.Command, args []string) error {
	manager, err := config.NewManager()
	if err != nil {
		return fmt.Errorf("failed to create config manager: %w", err)
	}
	cfg, err := resolveConfig(manager)
	if err != nil {
		return err
	}

	client, _, closer, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	force, _ := cmd.Flags().GetBool("refresh")
	models, err := client.ListModels(context.Background(), force)
	if err != nil {
		return err
	}

	if len(models) == 0 {
		color.Yellow("No vision-capable models installed. Try: ollama pull llama3.2-vision")
		return nil
	}

	table := tablewriter.NewTable(os.Stdout,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header([]string{"Name", "Family", "Tag", "Size", "Description"})
	for _, m := range models {
		size := ""
		if m.Size > 0 {
			size = fmt.Sprintf("%.1f GB", float64(m.Size)/1024/1024/1024)
		}
		table.Append([]string{m.Name, m.Family, m.Tag, size, m.Description})
	}
	table.Render()

	color.Green("%d vision-capable model(s). Current: %s", len(models), cfg.Model)
	return nil
}
