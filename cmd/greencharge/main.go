package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/greencharge/greencharge/internal/config"
	"github.com/greencharge/greencharge/internal/engine"
	"github.com/greencharge/greencharge/internal/ics"
	"github.com/greencharge/greencharge/internal/intensity"
	"github.com/greencharge/greencharge/internal/oracle"
	"github.com/greencharge/greencharge/internal/store"
	"github.com/greencharge/greencharge/internal/timefmt"
	"github.com/greencharge/greencharge/internal/vehicle"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "greencharge",
		Short: "GreenCharge - Find low-carbon windows to charge your EV",
		Long: `GreenCharge recommends when to charge your electric vehicle by
combining the national grid's 48-hour carbon intensity forecast with
your vehicle's battery and charger specs.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.greencharge/config.yaml)")

	rootCmd.AddCommand(intensityCmd())
	rootCmd.AddCommand(vehicleCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(initCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func intensityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "intensity",
		Short: "Fetch the 48-hour carbon intensity forecast",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			client := intensity.NewClient()
			intervals, dropped, err := client.Forecast48h(ctx, timefmt.HalfHourFloor(time.Now()))
			if err != nil {
				return fmt.Errorf("fetching forecast: %w", err)
			}

			if dropped > 0 {
				fmt.Fprintf(os.Stderr, "Warning: dropped %d malformed forecast records\n", dropped)
			}
			fmt.Fprintf(os.Stderr, "Fetched %d half-hour intervals\n", len(intervals))

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(intervals)
		},
	}
}

func vehicleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vehicle [description]",
		Short: "Resolve an EV description to battery and charger specs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			extractor := oracle.NewClient(oracle.Config{
				BaseURL: cfg.OllamaBaseURL,
				APIKey:  cfg.OllamaKey,
				Model:   cfg.OllamaModel,
			})

			text := strings.Join(args, " ")
			make, model, err := extractor.ExtractMakeModel(ctx, text)
			if err != nil {
				return fmt.Errorf("interpreting %q: %w", text, err)
			}
			fmt.Fprintf(os.Stderr, "Resolved: %s %s\n", make, model)

			specs, err := lookupSpecs(ctx, cfg, extractor, make, model)
			if err != nil {
				return err
			}

			if hours := vehicle.ChargingHours(specs[0]); hours != nil {
				fmt.Fprintf(os.Stderr, "Estimated full charge: %.2f hours\n", *hours)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(specs)
		},
	}
	return cmd
}

func planCmd() *cobra.Command {
	var minHours float64
	var vehicleDesc string
	var calendar bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Recommend charging slots from the intensity forecast",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			var userHours *float64
			if cmd.Flags().Changed("hours") {
				userHours = &minHours
			} else {
				userHours = &cfg.DefaultMinHours
			}

			extractor := oracle.NewClient(oracle.Config{
				BaseURL: cfg.OllamaBaseURL,
				APIKey:  cfg.OllamaKey,
				Model:   cfg.OllamaModel,
			})

			var deviceHours *float64
			if vehicleDesc != "" {
				make, model, err := extractor.ExtractMakeModel(ctx, vehicleDesc)
				if err != nil {
					return fmt.Errorf("interpreting %q: %w", vehicleDesc, err)
				}
				specs, err := lookupSpecs(ctx, cfg, extractor, make, model)
				if err != nil {
					return err
				}
				deviceHours = vehicle.ChargingHours(specs[0])
				fmt.Fprintf(os.Stderr, "Vehicle: %s %s\n", make, model)
			}

			effectiveHours, err := engine.EffectiveHours(userHours, deviceHours)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Minimum charging window: %.2f hours\n", effectiveHours)

			client := intensity.NewClient()
			forecast, dropped, err := client.Forecast48h(ctx, timefmt.HalfHourFloor(time.Now()))
			if err != nil {
				return fmt.Errorf("fetching forecast: %w", err)
			}
			if dropped > 0 {
				fmt.Fprintf(os.Stderr, "Warning: dropped %d malformed forecast records\n", dropped)
			}

			proposals, err := slotsOracle(cfg).SuggestSlots(ctx, effectiveHours, forecast)
			if err != nil {
				return fmt.Errorf("proposing slots: %w", err)
			}

			accepted := engine.AcceptProposals(proposals, forecast, effectiveHours)
			if len(accepted) == 0 {
				fmt.Fprintln(os.Stderr, "No recommendation available for this forecast")
			}

			type slotOut struct {
				Start          string `json:"start"`
				End            string `json:"end"`
				StartDisplay   string `json:"start_display"`
				EndDisplay     string `json:"end_display"`
				Reason         string `json:"reason"`
				IntensityIndex string `json:"intensity_index"`
				CalendarURL    string `json:"google_calendar_url,omitempty"`
			}

			out := make([]slotOut, 0, len(accepted))
			for _, slot := range accepted {
				startISO := slot.Start.Format(timefmt.FeedTime)
				endISO := slot.End.Format(timefmt.FeedTime)
				row := slotOut{
					Start:          startISO,
					End:            endISO,
					StartDisplay:   timefmt.ToLocalDisplayWithDate(startISO, cfg.Location),
					EndDisplay:     timefmt.ToLocalDisplayWithDate(endISO, cfg.Location),
					Reason:         slot.Reason,
					IntensityIndex: string(slot.Index),
				}
				startCal := timefmt.CalendarTimestamp(startISO)
				endCal := timefmt.CalendarTimestamp(endISO)
				if startCal != "" && endCal != "" {
					row.CalendarURL = ics.GoogleCalendarURL(startCal, endCal,
						"EV Charging (Low carbon window)",
						"Best time to charge based on low carbon intensity",
						"Home")
				}
				out = append(out, row)

				if calendar && startCal != "" && endCal != "" {
					event := ics.NewEvent(startCal, endCal,
						"EV Charging (Low carbon window)",
						"Best time to charge based on low carbon intensity",
						"Home")
					name := fmt.Sprintf("charging-slot-%s.ics", startCal)
					if err := os.WriteFile(name, []byte(event.Encode()), 0644); err != nil {
						return fmt.Errorf("writing %s: %w", name, err)
					}
					fmt.Fprintf(os.Stderr, "Wrote %s\n", name)
				}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().Float64VarP(&minHours, "hours", "H", 4.0, "Minimum charging window in hours")
	cmd.Flags().StringVarP(&vehicleDesc, "vehicle", "v", "", "Vehicle description, e.g. 'tesla model 3'")
	cmd.Flags().BoolVar(&calendar, "calendar", false, "Write an .ics file per accepted slot")

	return cmd
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize GreenCharge with default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
				return err
			}

			st, err := store.NewStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			settings := &store.Settings{
				ID:              "default",
				Timezone:        cfg.Timezone,
				DefaultMinHours: cfg.DefaultMinHours,
			}
			if err := st.SaveSettings(settings); err != nil {
				return err
			}

			fmt.Println("✓ Initialized default settings")
			fmt.Printf("Database: %s\n", cfg.DBPath)
			fmt.Println("\nNext steps:")
			fmt.Println("  1. Put API keys in .env (OPENAI_API_KEY, OLLAMA_API_KEY, EV_API_KEY)")
			fmt.Println("  2. Check the forecast: greencharge intensity")
			fmt.Println("  3. Get a plan: greencharge plan --vehicle 'tesla model 3'")
			return nil
		},
	}
}

// lookupSpecs tries the vehicle API first and falls back to the oracle
// for vehicles the database does not cover.
func lookupSpecs(ctx context.Context, cfg *config.Config, fallback *oracle.Client, make, model string) ([]vehicle.Specs, error) {
	client := vehicle.NewClient(cfg.EVAPIKey)
	specs, err := client.Lookup(ctx, make, model)
	if err == nil {
		return specs, nil
	}
	if !errors.Is(err, vehicle.ErrNotFound) {
		return nil, fmt.Errorf("vehicle lookup: %w", err)
	}

	fmt.Fprintf(os.Stderr, "No API data for %s %s, asking the model for approximate specs\n", make, model)
	inferred, err := fallback.FallbackSpecs(ctx, make, model)
	if err != nil {
		return nil, fmt.Errorf("no data from API and could not infer specs: %w", err)
	}
	return []vehicle.Specs{*inferred}, nil
}

// slotsOracle prefers OpenAI for slot suggestions when a key is
// configured, otherwise reuses the Ollama endpoint.
func slotsOracle(cfg *config.Config) *oracle.Client {
	if cfg.OpenAIKey != "" {
		return oracle.NewClient(oracle.Config{
			APIKey: cfg.OpenAIKey,
			Model:  cfg.OpenAIModel,
		})
	}
	return oracle.NewClient(oracle.Config{
		BaseURL: cfg.OllamaBaseURL,
		APIKey:  cfg.OllamaKey,
		Model:   cfg.OllamaModel,
	})
}
