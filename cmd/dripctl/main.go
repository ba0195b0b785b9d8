package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unclebandit/dripline/internal/app"
	"github.com/unclebandit/dripline/internal/config"
	"github.com/unclebandit/dripline/internal/db"
	"github.com/unclebandit/dripline/internal/logging"
	"github.com/unclebandit/dripline/internal/model"
)

var (
	configPath string
	workspace  string
)

var rootCmd = &cobra.Command{
	Use:           "dripctl",
	Short:         "Operate dripline campaigns from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one processing tick",
	Long: `Run one processing tick. With --workspace only that workspace is
processed; otherwise every workspace with an active campaign is.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if workspace == "" {
				res, err := a.Engine.ProcessAll(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			}
			ws, err := workspaceID()
			if err != nil {
				return err
			}
			res, err := a.Engine.ProcessCampaigns(ctx, ws)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var launchCmd = &cobra.Command{
	Use:   "launch CAMPAIGN_ID",
	Short: "Activate a draft or paused campaign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := workspaceID()
		if err != nil {
			return err
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("campaign id %q: %w", args[0], err)
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			c, err := a.Campaigns.Launch(ctx, ws, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), c)
		})
	},
}

var enrollCmd = &cobra.Command{
	Use:   "enroll CAMPAIGN_ID CONTACT_ID...",
	Short: "Enroll contacts into a campaign",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := workspaceID()
		if err != nil {
			return err
		}
		ids, err := atoiAll(args)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			n, err := a.Campaigns.Enroll(ctx, ws, ids[0], ids[1:])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int{"campaign_id": ids[0], "requested": len(ids) - 1, "enrolled": n})
		})
	},
}

var replyCmd = &cobra.Command{
	Use:   "reply ADDRESS BODY",
	Short: "Feed an inbound reply through the reply handler",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := workspaceID()
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			ok, err := a.Engine.HandleReply(ctx, model.InboundReply{WorkspaceID: ws, Address: args[0], Body: args[1]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]bool{"processed": ok})
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()
		conn, err := db.Open(cmd.Context(), cfg.Database, logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := db.Migrate(cmd.Context(), conn); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("DRIPLINE_CONFIG"), "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", os.Getenv("DRIPLINE_WORKSPACE"), "workspace UUID")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(replyCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func withApp(cmd *cobra.Command, fn func(context.Context, *app.App) error) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func workspaceID() (uuid.UUID, error) {
	if workspace == "" {
		return uuid.Nil, fmt.Errorf("--workspace is required")
	}
	ws, err := uuid.Parse(workspace)
	if err != nil {
		return uuid.Nil, fmt.Errorf("workspace %q: %w", workspace, err)
	}
	return ws, nil
}

func atoiAll(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("%q is not an id: %w", a, err)
		}
		out[i] = n
	}
	return out, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
