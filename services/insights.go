package services

import (
	"fmt"
	"sort"
	"strings"

	"dealscout/models"
	"dealscout/utils"
)

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate fills the profit statistics and price-status breakdown of r from
// the deals persisted during the tick.
func (s *InsightService) Generate(r *models.TickReport, deals []*models.EnrichedDeal) *models.TickReport {
	if r.ByStatus == nil {
		r.ByStatus = make(map[string]int)
	}

	var profitable []*models.EnrichedDeal
	for _, d := range deals {
		if d.PriceStatus != "" {
			r.ByStatus[d.PriceStatus]++
		}
		if d.EstimatedProfit != nil {
			profitable = append(profitable, d)
		}
	}

	if len(profitable) == 0 {
		return r
	}

	// Profit stats (only deals with a computed profit)
	r.MinProfit = *profitable[0].EstimatedProfit
	r.MaxProfit = *profitable[0].EstimatedProfit
	r.BestDeal = profitable[0]
	var total float64
	for _, d := range profitable {
		p := *d.EstimatedProfit
		total += p
		if p < r.MinProfit {
			r.MinProfit = p
		}
		if p > r.MaxProfit {
			r.MaxProfit = p
			r.BestDeal = d
		}
	}
	r.AverageProfit = round2(total / float64(len(profitable)))
	return r
}

// Log writes a one-line summary of the tick.
func (s *InsightService) Log(r *models.TickReport) {
	s.logger.WithFields(utils.Fields{
		"run_id":       r.RunID,
		"fetched":      r.Fetched,
		"skipped":      r.Skipped,
		"persisted":    r.Persisted,
		"needs_review": r.NeedsReview,
		"priced":       r.Priced,
		"no_data":      r.NoData,
		"notified":     r.Notified,
		"failed":       r.Failed,
		"duration":     r.FinishedAt.Sub(r.StartedAt).String(),
	}).Info("[insights] Tick complete")
}

// Print renders the report for terminal use (one-shot runs).
func (s *InsightService) Print(r *models.TickReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  📊 DEAL ENRICHMENT RUN %s\033[0m\n", r.RunID)
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Printf("\033[1;33m  Overview\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Listings fetched   : \033[1m%d\033[0m\n", r.Fetched)
	fmt.Printf("  Already known      : \033[1m%d\033[0m\n", r.Skipped)
	fmt.Printf("  Persisted          : \033[1m%d\033[0m\n", r.Persisted)
	fmt.Printf("  Needs condition    : \033[1m%d\033[0m\n", r.NeedsReview)
	fmt.Printf("  Priced / no data   : \033[1m%d / %d\033[0m\n", r.Priced, r.NoData)
	fmt.Printf("  Notified           : \033[1m%d\033[0m\n", r.Notified)
	fmt.Printf("  Failed             : \033[1m%d\033[0m\n", r.Failed)
	fmt.Println()

	// Profit Stats
	fmt.Printf("\033[1;33m  Estimated Profit\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if r.BestDeal != nil {
		fmt.Printf("  Average : \033[1;32m$%.2f\033[0m\n", r.AverageProfit)
		fmt.Printf("  Minimum : \033[1;32m$%.2f\033[0m\n", r.MinProfit)
		fmt.Printf("  Maximum : \033[1;32m$%.2f\033[0m\n", r.MaxProfit)
	} else {
		fmt.Printf("  No priced listings\n")
	}
	fmt.Println()

	// Best Deal
	if d := r.BestDeal; d != nil {
		fmt.Printf("\033[1;33m  Best Deal\033[0m\n")
		fmt.Printf("  %s\n", thin)
		fmt.Printf("  %s\n", truncate(d.Title, 50))
		if d.Location != "" {
			fmt.Printf("  Location : %s\n", d.Location)
		}
		if d.AskingPrice != nil && d.MarketValue != nil {
			fmt.Printf("  Asking   : $%.2f  Market: $%.2f\n", *d.AskingPrice, *d.MarketValue)
		}
		fmt.Printf("  Profit   : \033[1;32m$%.2f\033[0m\n", *d.EstimatedProfit)
		fmt.Printf("  %s\n", d.ListingURL)
		fmt.Println()
	}

	// Price status breakdown
	fmt.Printf("\033[1;33m  Price Status\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if len(r.ByStatus) == 0 {
		fmt.Printf("  No price data\n")
	} else {
		type statusCount struct {
			status string
			count  int
		}
		var counts []statusCount
		for st, cnt := range r.ByStatus {
			counts = append(counts, statusCount{st, cnt})
		}
		sort.Slice(counts, func(i, j int) bool {
			if counts[i].count != counts[j].count {
				return counts[i].count > counts[j].count
			}
			return counts[i].status < counts[j].status
		})
		for _, sc := range counts {
			bar := strings.Repeat("█", sc.count)
			fmt.Printf("  %-16s %s (%d)\n", sc.status, bar, sc.count)
		}
	}

	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
