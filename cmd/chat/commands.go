package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/viant/afs"

	"sales-agent/internal/agent"
	"sales-agent/internal/catalog"
	"sales-agent/internal/domain"
	"sales-agent/internal/session"
	"sales-agent/internal/usecase"
)

const sweepInterval = time.Minute

func newChatCmd(opts *options) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: `Start an interactive conversation with the agent.

Commands inside the session:
  /reset  - forget the conversation
  /quit   - leave`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			core, err := buildCore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = core.Close(context.Background()) }()

			sweeper, err := session.NewSweeper(core.Sessions, sweepInterval)
			if err != nil {
				return err
			}
			sweeper.Start()
			defer sweeper.Stop()

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			return runREPL(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), core.Turns, sessionID, opts.timeout)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (default: random)")
	return cmd
}

type turnRunner interface {
	Process(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
	ClearSession(ctx context.Context, sessionID string) (bool, error)
}

func runREPL(ctx context.Context, in io.Reader, out io.Writer, turns turnRunner, sessionID string, timeout time.Duration) error {
	fmt.Fprintf(out, "Sesión %s. Escribe /quit para salir.\n", sessionID)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			if _, err := turns.ClearSession(ctx, sessionID); err != nil {
				return err
			}
			fmt.Fprintln(out, "Conversación reiniciada.")
			continue
		}

		turnCtx, cancel := context.WithTimeout(ctx, timeout)
		res, err := turns.Process(turnCtx, usecase.TurnInput{Text: line, SessionID: sessionID})
		cancel()
		var ue *usecase.Error
		if errors.As(err, &ue) {
			fmt.Fprintf(out, "(%s)\n", ue.Reason)
			continue
		}
		if err != nil {
			return err
		}
		printReply(out, res.Reply)
	}
}

func newAskCmd(opts *options) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Send a single message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			core, err := buildCore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = core.Close(context.Background()) }()

			res, err := core.Turns.Process(ctx, usecase.TurnInput{Text: strings.Join(args, " "), SessionID: sessionID})
			if err != nil {
				return err
			}
			printReply(cmd.OutOrStdout(), res.Reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (default: random)")
	return cmd
}

func newSearchCmd(opts *options) *cobra.Command {
	var (
		makeName string
		model    string
		year     int
		maxPrice float64
		maxKm    int
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the catalog directly, without the reasoning backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			src, err := catalog.NewAFSSource(afs.New())
			if err != nil {
				return err
			}
			engine, err := catalog.New(src, cfg.CatalogURL,
				catalog.WithSuggestionCutoff(cfg.FuzzyCutoff),
				catalog.WithMaxSuggestions(cfg.MaxSuggestions),
			)
			if err != nil {
				return err
			}

			var c domain.SearchCriteria
			if makeName != "" {
				c.Make = &makeName
			}
			if model != "" {
				c.Model = &model
			}
			if cmd.Flags().Changed("year") {
				c.Year = &year
			}
			if cmd.Flags().Changed("max-price") {
				c.MaxPrice = &maxPrice
			}
			if cmd.Flags().Changed("max-km") {
				c.MaxKm = &maxKm
			}
			res, err := engine.Search(cmd.Context(), c)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printVehicles(out, res.Vehicles)
			fmt.Fprintf(out, "%d vehículo(s)\n", res.TotalCount)
			if res.TotalCount == 0 && makeName != "" {
				makes, err := engine.AvailableMakes(cmd.Context())
				if err != nil {
					return err
				}
				if s := engine.SuggestClosestMatch(makeName, makes); len(s) > 0 {
					fmt.Fprintf(out, "¿Quisiste decir: %s?\n", strings.Join(s, ", "))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&makeName, "make", "", "Make")
	cmd.Flags().StringVar(&model, "model", "", "Model")
	cmd.Flags().IntVar(&year, "year", 0, "Exact model year")
	cmd.Flags().Float64Var(&maxPrice, "max-price", 0, "Price ceiling in MXN")
	cmd.Flags().IntVar(&maxKm, "max-km", 0, "Mileage ceiling")
	return cmd
}

func newTranscriptCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "transcript <session-id>",
		Short: "Print the archived turns of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			archive, err := newArchive(cmd.Context(), cfg.StateTable)
			if err != nil {
				return err
			}
			turns, err := archive.Transcript(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			printTranscript(cmd.OutOrStdout(), turns)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Most recent turns to show")
	return cmd
}

func printReply(out io.Writer, reply domain.UserReply) {
	fmt.Fprintln(out, reply.Message)
	if len(reply.Vehicles) > 0 {
		printVehicles(out, reply.Vehicles)
	}
}

func printVehicles(out io.Writer, vehicles []domain.Vehicle) {
	if len(vehicles) == 0 {
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STOCK\tMARCA\tMODELO\tAÑO\tKM\tPRECIO")
	for _, v := range vehicles {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n", v.StockID, v.Make, v.Model, v.Year, v.Km, agent.FormatPrice(v.Price))
	}
	_ = tw.Flush()
}

func printTranscript(out io.Writer, turns []domain.TurnRecord) {
	if len(turns) == 0 {
		fmt.Fprintln(out, "Sin turnos archivados.")
		return
	}
	for _, t := range turns {
		status := "ok"
		if !t.Success {
			status = "error"
		}
		fmt.Fprintf(out, "[%s] %s (%s)\n  > %s\n  < %s\n", t.At.Format(time.RFC3339), t.Action, status, t.Question, t.Answer)
	}
}
