package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"idleforge/internal/effects"
	"idleforge/internal/game"
	"idleforge/internal/numeric"
	"idleforge/internal/production"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func formatDec(d decimal.Decimal) string {
	return numeric.Format(d)
}

func colorizeRate(d decimal.Decimal) string {
	text := "+" + formatDec(d) + "/s"
	switch {
	case d.IsPositive():
		return success.Sprint(text)
	case d.IsNegative():
		return danger.Sprint(formatDec(d) + "/s")
	default:
		return neutral.Sprint(text)
	}
}

func renderState(st game.StateView) {
	accent.Printf("\n== IDLEFORGE (%s, %d ticks, played %s) ==\n",
		st.Scheduler.State, st.Scheduler.Ticks, st.Scheduler.PlayTime.Truncate(time.Second))

	fmt.Println()
	accent.Println("Resources")
	fmt.Printf("%-12s %14s %14s %16s\n", "RESOURCE", "AMOUNT", "RATE", "TOTAL EARNED")
	for _, r := range st.Resources {
		if !r.Visible {
			continue
		}
		name := r.Name
		if !r.Unlocked {
			name += " (locked)"
		}
		fmt.Printf("%-12s %14s %14s %16s\n", truncate(name, 12), formatDec(r.Amount), colorizeRate(r.Rate), formatDec(r.TotalEarned))
	}

	fmt.Println()
	accent.Println("Producers")
	fmt.Printf("%-12s %-18s %-8s %6s %14s\n", "ID", "NAME", "YIELDS", "OWNED", "NEXT COST")
	for _, p := range st.Producers {
		fmt.Printf("%-12s %-18s %-8s %6d %14s\n", p.ID, truncate(p.Name, 18), p.Yields, p.Owned, formatDec(p.NextCost)+" "+p.CostResource)
	}

	fmt.Println()
	accent.Println("Skills")
	for _, s := range st.Skills {
		cost := "max"
		if s.Level < s.MaxLevel {
			cost = formatDec(s.NextCost) + " " + s.CostResource
		}
		fmt.Printf("%-12s %-18s %2d/%-2d  %s\n", s.ID, truncate(s.Name, 18), s.Level, s.MaxLevel, cost)
	}

	fmt.Println()
	accent.Println("Achievements")
	for _, a := range st.Achievements {
		mark := neutral.Sprint("[ ]")
		if a.Unlocked {
			mark = success.Sprint("[x]")
		}
		fmt.Printf("%s %-12s %s\n", mark, a.ID, a.Name)
	}

	fmt.Println()
	accent.Println("Market")
	for _, u := range st.Upgrades {
		state := formatDec(u.Cost) + " " + u.CostResource
		if u.Owned {
			state = success.Sprint("owned")
		}
		perm := ""
		if u.Permanent {
			perm = " (permanent)"
		}
		fmt.Printf("%-12s %-18s %s%s\n", u.ID, truncate(u.Name, 18), state, perm)
	}

	fmt.Println()
	fmt.Printf("Prestige: #%d, %s points, x%s production, %s claimable\n",
		st.Prestige.Count, formatDec(st.Prestige.Points), st.Prestige.Bonus.StringFixed(2), formatDec(st.Prestige.Available))
	fmt.Println()
}

func renderPurchase(res game.PurchaseResult) {
	printSuccess(fmt.Sprintf("Bought %d x %s for %s %s. Owned: %d.",
		res.Quantity, res.ProducerID, formatDec(res.Spent), res.CostResource, res.Owned))
	printInfo(fmt.Sprintf("Next one costs %s %s.", formatDec(res.NextCost), res.CostResource))
}

func renderEffects(sources []effects.SourceView) {
	if len(sources) == 0 {
		printInfo("No effect sources registered.")
		return
	}
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].System != sources[j].System {
			return sources[i].System < sources[j].System
		}
		return sources[i].Target < sources[j].Target
	})
	fmt.Printf("%-14s %-14s %-28s %-10s %-15s %10s\n", "MODULE", "SOURCE", "SYSTEM", "TARGET", "KIND", "VALUE")
	for _, s := range sources {
		value := s.Value
		if s.Error != "" {
			value = danger.Sprint("error")
		}
		fmt.Printf("%-14s %-14s %-28s %-10s %-15s %10s\n",
			truncate(s.Module, 14), truncate(s.Source, 14), truncate(s.System, 28), truncate(s.Target, 10), s.Kind, value)
	}
}

func renderBreakdown(b production.Breakdown) {
	accent.Printf("\n%s production\n", b.ResourceID)
	if len(b.Producers) == 0 {
		printInfo("Nothing produces this resource yet.")
	}
	for _, c := range b.Producers {
		fmt.Printf("  %-12s x%-5d base %-10s mult %-8s => %s\n",
			c.ProducerID, c.Owned, formatDec(c.BaseRate), c.Multiplier.StringFixed(3), colorizeRate(c.Rate))
	}
	fmt.Printf("  resource x%s, global x%s\n", b.ResourceMultiplier.StringFixed(3), b.GlobalMultiplier.StringFixed(3))
	fmt.Printf("  total %s\n\n", colorizeRate(b.Total))
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
