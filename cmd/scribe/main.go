package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/audio"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/bootstrap"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/config"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/domain"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/logger"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/ports"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/providers/scribe"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/tui"
)

// CLI is the scribe command tree.
type CLI struct {
	Record    RecordCmd    `cmd:"" default:"withargs" help:"Record a dictation session and stream it for note generation"`
	Devices   DevicesCmd   `cmd:"" help:"List available audio capture devices"`
	Providers ProvidersCmd `cmd:"" help:"List providers configured on the backend"`
	Templates TemplatesCmd `cmd:"" help:"List note templates configured on the backend"`
	Correct   CorrectCmd   `cmd:"" help:"Submit a free-text correction against an existing note"`
}

// RecordCmd launches the interactive recording screen.
type RecordCmd struct {
	Provider string `flag:"" help:"Provider name for the session (matched against the backend list)"`
	Template string `flag:"" help:"Template name or id for the session"`
	LogFile  string `flag:"" optional:"" help:"Write logs to this file instead of discarding them"`
}

func (c *RecordCmd) Run(cfg config.Config) error {
	logOut := io.Discard
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = f.Close() }()
		logOut = f
	}
	log := logger.Setup(cfg, logOut)

	sink := tui.NewSink()
	services, err := bootstrap.Build(cfg, sink, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go services.Controller.Run(ctx)

	if c.Provider != "" {
		provider, err := resolveProvider(ctx, services, c.Provider)
		if err != nil {
			return err
		}
		if err := services.Controller.SelectProvider(provider); err != nil {
			return err
		}
	}
	if c.Template != "" {
		template, err := resolveTemplate(ctx, services, c.Template)
		if err != nil {
			return err
		}
		if err := services.Controller.SelectTemplate(template); err != nil {
			return err
		}
	}

	program := tea.NewProgram(tui.NewModel(ctx, services.Controller, sink), tea.WithAltScreen())
	_, err = program.Run()
	return err
}

// DevicesCmd lists capture devices.
type DevicesCmd struct{}

func (c *DevicesCmd) Run(cfg config.Config) error {
	devices, err := audio.ListDevices(context.Background())
	if err != nil {
		return err
	}
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, d.Name)
	}
	return nil
}

// ProvidersCmd lists backend providers.
type ProvidersCmd struct{}

func (c *ProvidersCmd) Run(cfg config.Config) error {
	log := logger.Setup(cfg, os.Stderr)
	api := scribe.NewAPIClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, log)
	providers, err := api.ListProviders(context.Background())
	if err != nil {
		return err
	}
	for _, p := range providers {
		if p.Specialty != "" {
			fmt.Printf("%s\t%s\t%s\n", p.ID, p.Name, p.Specialty)
			continue
		}
		fmt.Printf("%s\t%s\n", p.ID, p.Name)
	}
	return nil
}

// TemplatesCmd lists backend note templates.
type TemplatesCmd struct{}

func (c *TemplatesCmd) Run(cfg config.Config) error {
	log := logger.Setup(cfg, os.Stderr)
	api := scribe.NewAPIClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, log)
	templates, err := api.ListTemplates(context.Background())
	if err != nil {
		return err
	}
	for _, t := range templates {
		fmt.Printf("%s\t%s\n", t.ID, t.Name)
	}
	return nil
}

// CorrectCmd runs one correction round-trip from files on disk.
type CorrectCmd struct {
	NoteFile       string `flag:"" required:"" help:"File containing the note to correct"`
	TranscriptFile string `flag:"" optional:"" help:"File containing the session transcript"`
	Instruction    string `flag:"" required:"" help:"Free-text correction instruction"`
}

func (c *CorrectCmd) Run(cfg config.Config) error {
	log := logger.Setup(cfg, os.Stderr)
	api := scribe.NewAPIClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, log)

	note, err := os.ReadFile(c.NoteFile)
	if err != nil {
		return fmt.Errorf("failed to read note file: %w", err)
	}
	transcript := ""
	if c.TranscriptFile != "" {
		data, err := os.ReadFile(c.TranscriptFile)
		if err != nil {
			return fmt.Errorf("failed to read transcript file: %w", err)
		}
		transcript = string(data)
	}

	corrected, err := api.RequestCorrection(context.Background(), ports.CorrectionRequest{
		RecordingID: uuid.NewString(),
		Note:        string(note),
		Instruction: c.Instruction,
		Transcript:  transcript,
	})
	if err != nil {
		return err
	}
	fmt.Println(corrected)
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("scribe"),
		kong.Description("Clinical dictation client for the Boise Prosthodontics scribe backend"),
		kong.Bind(cfg),
	)
	ctx.FatalIfErrorf(ctx.Run(cfg))
}

func resolveProvider(ctx context.Context, services bootstrap.Services, query string) (domain.Provider, error) {
	providers, err := services.API.ListProviders(ctx)
	if err != nil {
		return domain.Provider{}, err
	}
	for _, p := range providers {
		if strings.EqualFold(p.Name, query) || p.ID == query {
			return p, nil
		}
	}
	return domain.Provider{}, fmt.Errorf("provider %q not found on backend", query)
}

func resolveTemplate(ctx context.Context, services bootstrap.Services, query string) (domain.Template, error) {
	templates, err := services.API.ListTemplates(ctx)
	if err != nil {
		return domain.Template{}, err
	}
	for _, t := range templates {
		if strings.EqualFold(t.Name, query) || t.ID == query {
			return t, nil
		}
	}
	return domain.Template{}, fmt.Errorf("template %q not found on backend", query)
}
