package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AtsumiFlex/Aura-sub002/internal/api"
	"github.com/AtsumiFlex/Aura-sub002/internal/auth"
	"github.com/AtsumiFlex/Aura-sub002/internal/config"
	"github.com/AtsumiFlex/Aura-sub002/internal/version"
)

func runCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect all configured shards and serve health and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(*configPath)
		},
	}
}

func discoverCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Print the gateway URL, recommended shards and identify limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithDefaults(*configPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return discover(ctx, cfg, os.Stdout)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "gateway "+version.String())
		},
	}
}

// discover prints both discovery endpoints as JSON.
func discover(ctx context.Context, cfg *config.GatewayConfig, out io.Writer) error {
	creds, err := auth.LoadCredentials(cfg.API.Token, cfg.API.TokenPath)
	if err != nil {
		return err
	}

	client := newAPIClient(cfg, creds, nil)

	gw, err := client.GetGateway(ctx)
	if err != nil {
		return err
	}
	bot, err := client.GetGatewayBot(ctx)
	if err != nil {
		return err
	}

	result := struct {
		GatewayURL        string                `json:"gateway_url"`
		BotURL            string                `json:"bot_url"`
		Shards            int                   `json:"shards"`
		SessionStartLimit api.SessionStartLimit `json:"session_start_limit"`
		ResetIn           string                `json:"reset_in"`
		Token             string                `json:"token"`
	}{
		GatewayURL:        gw.URL,
		BotURL:            bot.URL,
		Shards:            bot.Shards,
		SessionStartLimit: bot.SessionStartLimit,
		ResetIn:           bot.SessionStartLimit.ResetIn().String(),
		Token:             creds.Redacted(),
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
