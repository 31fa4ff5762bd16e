package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/greencharge/greencharge/internal/config"
	"github.com/greencharge/greencharge/internal/intensity"
	"github.com/greencharge/greencharge/internal/oracle"
	"github.com/greencharge/greencharge/internal/store"
	"github.com/greencharge/greencharge/internal/uiapi"
	"github.com/greencharge/greencharge/internal/vehicle"
)

func main() {
	var cfgFile string
	var port int

	rootCmd := &cobra.Command{
		Use:   "greenchargd",
		Short: "GreenCharge HTTP server with web dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			defer logger.Sync()
			log := logger.Sugar()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
				return err
			}
			st, err := store.NewStore(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer st.Close()

			extract := oracle.NewClient(oracle.Config{
				BaseURL: cfg.OllamaBaseURL,
				APIKey:  cfg.OllamaKey,
				Model:   cfg.OllamaModel,
			})
			slots := extract
			if cfg.OpenAIKey != "" {
				slots = oracle.NewClient(oracle.Config{
					APIKey: cfg.OpenAIKey,
					Model:  cfg.OpenAIModel,
				})
			}

			srv := uiapi.NewServer(st,
				cfg,
				intensity.NewClient(),
				vehicle.NewClient(cfg.EVAPIKey),
				extract,
				slots,
				log)

			addr := fmt.Sprintf(":%d", cfg.Port)
			log.Infow("dashboard server starting",
				"port", cfg.Port,
				"db", cfg.DBPath,
				"timezone", cfg.Timezone)

			return http.ListenAndServe(addr, srv.Handler())
		},
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.greencharge/config.yaml)")
	rootCmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP port")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
