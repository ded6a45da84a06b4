// Package report renders house statistics for the command line.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	"colorbet/models"
)

// HouseStats writes one row per round plus a totals line.
func HouseStats(w io.Writer, stats []models.HouseStat) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "no settled rounds yet")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("Round", "Winner", "Bets", "Staked", "Paid", "Profit", "Failed", "Pools")

	var staked, paid, profit models.Amount
	bets := 0
	for _, s := range stats {
		table.Append(
			fmt.Sprintf("%d", s.RoundNo),
			string(s.Winner),
			fmt.Sprintf("%d", s.BetCount),
			s.TotalStaked.String(),
			s.TotalPaid.String(),
			s.Profit.String(),
			fmt.Sprintf("%d", s.FailedBets),
			pools(s.Pools.Data()),
		)
		staked += s.TotalStaked
		paid += s.TotalPaid
		profit += s.Profit
		bets += s.BetCount
	}
	table.Append("TOTAL", "", fmt.Sprintf("%d", bets), staked.String(), paid.String(), profit.String(), "", "")
	table.Render()
}

func pools(p map[string]int64) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+models.Amount(p[k]).String())
	}
	return strings.Join(parts, " ")
}
