package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	cl "idleforge/internal/cli"
	"idleforge/internal/config"
	"idleforge/internal/effects"
	"idleforge/internal/syncq"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := ""

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	root := &cobra.Command{
		Use:          "idlectl",
		Short:        "Control an idleforge game server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(apiBase) != "" {
				return nil
			}
			profile, err := cl.LoadProfile()
			if err != nil {
				return err
			}
			apiBase = cfg.APIBaseURL
			if profile.APIBaseURL != "" && os.Getenv("IDLE_API_BASE_URL") == "" {
				apiBase = profile.APIBaseURL
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&apiBase, "api", "", "API base URL (default $IDLE_API_BASE_URL or saved profile)")

	root.AddCommand(
		newUseCmd(),
		newStateCmd(&apiBase),
		newGainCmd(&apiBase),
		newBuyCmd(&apiBase),
		newSkillCmd(&apiBase),
		newAchieveCmd(&apiBase),
		newUpgradeCmd(&apiBase),
		newPrestigeCmd(&apiBase),
		newEffectsCmd(&apiBase),
		newExplainCmd(&apiBase),
		newSaveCmd(&apiBase),
		newSchedulerCmd(&apiBase),
		newWatchCmd(&apiBase),
		newSyncCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func newUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use [URL]",
		Short: "Remember the API base URL for later commands",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if err := cl.ClearProfile(); err != nil {
					return err
				}
				printSuccess("Saved API URL cleared.")
				return nil
			}
			url := strings.TrimRight(strings.TrimSpace(args[0]), "/")
			ctx, cancel := commandContext(cmd)
			defer cancel()
			if err := cl.NewClient(url).Health(ctx); err != nil {
				printWarn(fmt.Sprintf("Server at %s is not answering yet: %v", url, err))
			}
			if err := cl.SaveProfile(cl.Profile{APIBaseURL: url}); err != nil {
				return err
			}
			printSuccess("Using " + url)
			return nil
		},
	}
}

func newStateCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "state",
		Short:   "Show resources, producers and progress",
		Aliases: []string{"dash"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			st, err := newClient(apiBase).State(ctx)
			if err != nil {
				return err
			}
			renderState(st)
			return nil
		},
	}
}

func newGainCmd(apiBase *string) *cobra.Command {
	times := 1
	cmd := &cobra.Command{
		Use:   "gain [RESOURCE]",
		Short: "Gather a resource by hand",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resource := "gold"
			if len(args) == 1 {
				resource = args[0]
			}
			if times < 1 {
				return fmt.Errorf("--times must be >= 1")
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			client := newClient(apiBase)
			var last string
			for i := 0; i < times; i++ {
				idem := uuid.NewString()
				res, err := client.Gain(ctx, resource, idem)
				if err != nil {
					return queueOnNetworkError(err, syncq.Command{
						Method:         http.MethodPost,
						Path:           "/v1/resources/" + url.PathEscape(resource) + "/gain",
						IdempotencyKey: idem,
					})
				}
				last = fmt.Sprintf("+%s %s (now %s)", formatDec(res.Gained), resource, formatDec(res.Amount))
			}
			printSuccess(last)
			return nil
		},
	}
	cmd.Flags().IntVarP(&times, "times", "n", 1, "how many gains to perform")
	return cmd
}

func newBuyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "buy [PRODUCER] [QTY]",
		Short: "Buy producers",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			client := newClient(apiBase)

			producer := ""
			if len(args) > 0 {
				producer = args[0]
			} else {
				st, err := client.State(ctx)
				if err != nil {
					return err
				}
				ids := make([]string, 0, len(st.Producers))
				for _, p := range st.Producers {
					ids = append(ids, p.ID)
				}
				if len(ids) == 0 {
					printInfo("No producers in this catalog.")
					return nil
				}
				producer, err = promptChoice("Producer", ids, ids[0])
				if err != nil {
					return err
				}
			}
			qty := int64(1)
			if len(args) > 1 {
				v, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil || v < 1 {
					return fmt.Errorf("quantity must be a whole number >= 1")
				}
				qty = v
			}

			idem := uuid.NewString()
			res, err := client.BuyProducer(ctx, producer, qty, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method:         http.MethodPost,
					Path:           "/v1/producers/" + url.PathEscape(producer) + "/buy",
					Body:           map[string]any{"quantity": qty},
					IdempotencyKey: idem,
				})
			}
			renderPurchase(res)
			return nil
		},
	}
}

func newSkillCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "skill SKILL",
		Short: "Level up a skill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			idem := uuid.NewString()
			res, err := newClient(apiBase).LevelSkill(ctx, args[0], idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method:         http.MethodPost,
					Path:           "/v1/skills/" + url.PathEscape(args[0]) + "/level",
					IdempotencyKey: idem,
				})
			}
			printSuccess(fmt.Sprintf("%s is now level %d (spent %s).", res.SkillID, res.Level, formatDec(res.Spent)))
			return nil
		},
	}
}

func newAchieveCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "achieve ACHIEVEMENT",
		Short: "Grant an achievement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			idem := uuid.NewString()
			unlocked, err := newClient(apiBase).UnlockAchievement(ctx, args[0], idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method:         http.MethodPost,
					Path:           "/v1/achievements/" + url.PathEscape(args[0]) + "/unlock",
					IdempotencyKey: idem,
				})
			}
			if !unlocked {
				printInfo(args[0] + " was already unlocked.")
				return nil
			}
			printSuccess("Unlocked " + args[0] + ".")
			return nil
		},
	}
}

func newUpgradeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade UPGRADE",
		Short: "Buy a market upgrade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			idem := uuid.NewString()
			if err := newClient(apiBase).BuyUpgrade(ctx, args[0], idem); err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method:         http.MethodPost,
					Path:           "/v1/upgrades/" + url.PathEscape(args[0]) + "/buy",
					IdempotencyKey: idem,
				})
			}
			printSuccess("Bought " + args[0] + ".")
			return nil
		},
	}
}

func newPrestigeCmd(apiBase *string) *cobra.Command {
	yes := false
	cmd := &cobra.Command{
		Use:   "prestige",
		Short: "Reset the run for prestige points",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			client := newClient(apiBase)

			st, err := client.State(ctx)
			if err != nil {
				return err
			}
			if !st.Prestige.Available.IsPositive() {
				printWarn("Nothing to claim yet.")
				return nil
			}
			if !yes {
				printWarn(fmt.Sprintf("Prestige now for %s points? Producers and non-permanent upgrades reset.", formatDec(st.Prestige.Available)))
				choice, err := promptChoice("Continue", []string{"yes", "no"}, "no")
				if err != nil {
					return err
				}
				if choice != "yes" {
					printInfo("Cancelled.")
					return nil
				}
			}
			res, err := client.Prestige(ctx, uuid.NewString())
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Prestige #%d: +%s points (total %s).", res.Count, formatDec(res.Gained), formatDec(res.Points)))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newEffectsCmd(apiBase *string) *cobra.Command {
	var system, target, kind string
	bucketOnly := false
	cmd := &cobra.Command{
		Use:   "effects",
		Short: "List effect sources, or aggregate a target with --system",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			client := newClient(apiBase)
			if system != "" {
				agg, err := client.Aggregate(ctx, system, target, effects.Kind(kind), bucketOnly)
				if err != nil {
					return err
				}
				accent.Printf("%s/%s %s = ", agg.System, agg.Target, agg.Kind)
				fmt.Println(agg.Value.String())
				return nil
			}
			sources, err := client.Effects(ctx)
			if err != nil {
				return err
			}
			renderEffects(sources)
			return nil
		},
	}
	cmd.Flags().StringVar(&system, "system", "", "target system to aggregate")
	cmd.Flags().StringVar(&target, "target", "", "target id (default all)")
	cmd.Flags().StringVar(&kind, "kind", "", "effect kind (default multiplicative)")
	cmd.Flags().BoolVar(&bucketOnly, "bucket-only", false, "skip the all-target overlay")
	return cmd
}

func newExplainCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "explain RESOURCE",
		Short: "Break a resource's production rate down by producer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			b, err := newClient(apiBase).Explain(ctx, args[0])
			if err != nil {
				return err
			}
			renderBreakdown(b)
			return nil
		},
	}
}

func newSaveCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Ask the server to save now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			rev, err := newClient(apiBase).Save(ctx)
			if err != nil {
				return err
			}
			printSuccess("Saved (revision " + rev + ").")
			return nil
		},
	}
}

func newSchedulerCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:       "scheduler start|stop",
		Short:     "Start or stop the server's tick scheduler",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"start", "stop"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			st, err := newClient(apiBase).Scheduler(ctx, args[0])
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Scheduler %s after %d ticks.", st.State, st.Ticks))
			return nil
		},
	}
}

func newWatchCmd(apiBase *string) *cobra.Command {
	every := time.Second
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live view of the game state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if every < 100*time.Millisecond {
				return fmt.Errorf("--every must be >= 100ms")
			}
			client := newClient(apiBase)
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				ctx, cancel := commandContext(cmd)
				defer cancel()
				st, err := client.State(ctx)
				if err != nil {
					return err
				}
				renderState(st)
				return nil
			}
			return runWatch(cmd.Context(), client, every)
		},
	}
	cmd.Flags().DurationVar(&every, "every", time.Second, "refresh period")
	return cmd
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay commands queued while the server was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			replayed, remaining, err := syncq.Replay(func(q syncq.Command) error {
				err := client.Do(ctx, q.Method, q.Path, q.Body, q.IdempotencyKey)
				if err != nil && !cl.IsDuplicate(err) {
					printWarn(fmt.Sprintf("Sync failed for %s %s: %v", q.Method, q.Path, err))
				}
				return err
			}, cl.IsDuplicate)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", replayed, len(remaining)))
			return nil
		},
	}
}

// queueOnNetworkError parks cmd for `idlectl sync` when the server could not
// be reached. API errors are returned as-is.
func queueOnNetworkError(err error, cmd syncq.Command) error {
	if !cl.IsOffline(err) {
		return err
	}
	if qerr := syncq.Push(cmd); qerr != nil {
		return fmt.Errorf("%w (queueing failed: %v)", err, qerr)
	}
	printWarn(fmt.Sprintf("Server unreachable, queued %s %s. Run `idlectl sync` once it is back.", cmd.Method, cmd.Path))
	return nil
}
