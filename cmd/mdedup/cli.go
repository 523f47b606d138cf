package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xxxsen/mdedup/internal/config"
	"github.com/xxxsen/mdedup/internal/dedup"
	"github.com/xxxsen/mdedup/internal/pkg/jwt"
	"github.com/xxxsen/mdedup/internal/service"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

func newBatchCmd(configPath *string) *cobra.Command {
	var (
		userID    string
		docIDs    []string
		threshold float64
		apply     bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "run a batch deduplication for one user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			run, err := a.dedup.BatchDeduplicate(ctx, userID, docIDs, threshold)
			if err != nil {
				return err
			}
			printBatch(run)
			if !apply || len(run.Plan.Removed) == 0 {
				return nil
			}
			res, err := a.dedup.ApplyRemoval(ctx, userID, run.RunID)
			if err != nil {
				return err
			}
			fmt.Printf("%s %d documents removed\n", red("applied"), res.Deleted)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owner of the documents")
	cmd.Flags().StringSliceVar(&docIDs, "ids", nil, "document ids to consider (default all)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "near-duplicate threshold (default from config)")
	cmd.Flags().BoolVar(&apply, "apply", false, "soft delete the duplicates after the run")
	return cmd
}

func newCheckCmd(configPath *string) *cobra.Command {
	var (
		userID    string
		file      string
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "check [text]",
		Short: "check a text against the documents of one user",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			text := ""
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
				text = string(data)
			case len(args) == 1:
				text = args[0]
			default:
				return fmt.Errorf("text or --file is required")
			}
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			matches, err := a.dedup.CheckDuplicate(cmd.Context(), userID, text, threshold)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Println(green("no duplicates found"))
				return nil
			}
			fmt.Printf("%s\n", bold("Matches:"))
			for _, m := range matches {
				fmt.Printf("  %s %s\n", yellow(fmt.Sprintf("%.3f", m.Score)), m.DocumentID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owner of the documents")
	cmd.Flags().StringVar(&file, "file", "", "read the text from a file")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "near-duplicate threshold (default from config)")
	return cmd
}

func newSimilarityCmd(configPath *string) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "similarity <doc-a> <doc-b>",
		Short: "explain the similarity of two documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			report, err := a.dedup.Similarity(cmd.Context(), userID, args[0], args[1])
			if err != nil {
				return err
			}
			printSimilarity(report)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owner of the documents")
	return cmd
}

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		userID   string
		scope    string
		ttlHours int
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "mint an API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			if *configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if ttlHours <= 0 {
				ttlHours = cfg.JWTTTLHours
			}
			token, err := jwt.GenerateToken(userID, scope, []byte(cfg.JWTSecret), time.Duration(ttlHours)*time.Hour)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user the token is issued for")
	cmd.Flags().StringVar(&scope, "scope", jwt.ScopeUser, "token scope: user or operator")
	cmd.Flags().IntVar(&ttlHours, "ttl-hours", 0, "token lifetime (default from config)")
	return cmd
}

func printBatch(run *service.BatchRun) {
	res := run.Result
	fmt.Printf("\n%s %s\n", bold("Run"), run.RunID)
	fmt.Printf("  total: %d  unique: %d  duplicates: %d\n", res.Total, res.Unique, res.Duplicates)
	if res.Partial {
		fmt.Printf("  %s\n", red("partial: run was cancelled, no groups"))
	}
	if res.Degraded {
		fmt.Printf("  %s\n", yellow("degraded: semantic tier was incomplete"))
	}
	for _, g := range res.Groups {
		fmt.Printf("  %s %s [%s]\n", green("keep"), g.CanonicalID, tierNames(g.Tiers))
		for _, id := range g.MemberIDs {
			if id == g.CanonicalID {
				continue
			}
			fmt.Printf("    %s %s\n", gray("drop"), id)
		}
	}
	fmt.Println()
}

func printSimilarity(r *dedup.SimilarityReport) {
	verdict := gray("distinct")
	if r.IsDuplicate {
		verdict = red("duplicate")
	}
	fmt.Printf("%s %s (tier %s, score %.3f)\n", bold("Verdict:"), verdict, r.Tier, r.Score)
	fmt.Printf("  exact:    %t\n", r.ExactMatch)
	if r.NearScore != nil {
		fmt.Printf("  near:     %.3f\n", *r.NearScore)
	}
	if r.SemanticScore != nil {
		fmt.Printf("  semantic: %.3f\n", *r.SemanticScore)
	} else if !r.SemanticAvailable {
		fmt.Printf("  semantic: %s\n", gray("unavailable"))
	}
}

func tierNames(tiers []dedup.Tier) string {
	names := make([]string, 0, len(tiers))
	for _, t := range tiers {
		names = append(names, string(t))
	}
	return strings.Join(names, ",")
}
