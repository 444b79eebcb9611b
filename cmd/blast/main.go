// Command blast runs a single blast from local files and prints the JSON
// result.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"weblast/internal/config"
	"weblast/internal/database"
	"weblast/internal/dispatch"
	"weblast/internal/logging"
	"weblast/internal/media"
	"weblast/internal/recipient"
	"weblast/internal/session"
	"weblast/internal/whatsapp"
)

func main() {
	var (
		templatesPath  = flag.String("templates", "", "path to the template text file")
		recipientsPath = flag.String("recipients", "", "path to the recipientData JSON file")
		envFile        = flag.String("env-file", "", "optional .env file to load before the environment")
	)
	flag.Parse()

	if *templatesPath == "" || *recipientsPath == "" {
		fmt.Fprintln(os.Stderr, "usage: blast --templates FILE --recipients FILE [--env-file FILE]")
		os.Exit(2)
	}

	var cfg *config.Config
	if *envFile != "" {
		cfg = config.LoadConfig(*envFile)
	} else {
		cfg = config.LoadConfig()
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)

	if err := run(cfg, *templatesPath, *recipientsPath); err != nil {
		log.Error().Err(err).Msg("Blast failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, templatesPath, recipientsPath string) error {
	templateText, err := os.ReadFile(templatesPath)
	if err != nil {
		return fmt.Errorf("read templates: %w", err)
	}
	recipientData, err := os.ReadFile(recipientsPath)
	if err != nil {
		return fmt.Errorf("read recipients: %w", err)
	}
	payload, err := recipient.ParsePayload(recipientData)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service := dispatch.NewService(dispatch.Config{
		RecipientDelay:  cfg.RecipientDelay,
		AttachmentDelay: cfg.AttachmentDelay,
		PairingTimeout:  cfg.PairingTimeout,
	},
		whatsapp.NewFactory(cfg, db),
		media.NewFetcher(cfg.MediaFetchTimeout, cfg.MediaMaxBytes),
		session.NewConsole(os.Stderr),
	)

	result, blastErr := service.Blast(ctx, dispatch.Request{Payload: payload, TemplateText: string(templateText)})
	if result != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
	return blastErr
}
