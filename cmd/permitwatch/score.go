package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"permitwatch/internal/permit"
)

var scoreOut string

var scoreCmd = &cobra.Command{
	Use:   "score <permits.csv>",
	Short: "Classify an existing permit CSV offline",
	Long: `score re-runs the debris-likelihood classifier over a previously
exported CSV without touching the portal. The permit-type column is located
by header name; dumpster_score, tier, and reason columns are appended and
rows are sorted by score descending.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return scoreCSV(args[0], scoreOut)
	},
}

func init() {
	scoreCmd.Flags().StringVarP(&scoreOut, "out", "o", "permits_scored.csv", "output CSV path")
	rootCmd.AddCommand(scoreCmd)
}

// typeColumn finds the permit-type column by normalized header comparison so
// "Permit Type", "PERMIT_TYPE" and "permit-type" all resolve.
func typeColumn(header []string) (int, error) {
	for i, h := range header {
		normalized := strings.ToUpper(strings.Join(strings.FieldsFunc(h, func(r rune) bool {
			return !('A' <= r && r <= 'Z') && !('a' <= r && r <= 'z')
		}), " "))
		if strings.Contains(normalized, "TYPE") || strings.Contains(normalized, "CATEGORY") {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no permit-type column in header %v", header)
}

func scoreCSV(inPath, outPath string) error {
	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", inPath, err)
	}
	defer in.Close()

	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("read %s: %w", inPath, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s is empty", inPath)
	}

	typeIdx, err := typeColumn(rows[0])
	if err != nil {
		return err
	}

	type scored struct {
		row []string
		c   permit.Classification
	}
	data := make([]scored, 0, len(rows)-1)
	for _, row := range rows[1:] {
		label := ""
		if typeIdx < len(row) {
			label = row[typeIdx]
		}
		data = append(data, scored{row: row, c: permit.Classify(label)})
	}
	sort.SliceStable(data, func(i, j int) bool { return data[i].c.Score > data[j].c.Score })

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(append(append([]string{}, rows[0]...), "dumpster_score", "dumpster_tier", "dumpster_reason")); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	tiers := map[string]int{}
	types := map[string]int{}
	for _, s := range data {
		row := append(append([]string{}, s.row...), strconv.Itoa(s.c.Score), s.c.Tier, s.c.Reason)
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
		tiers[s.c.Tier]++
		if typeIdx < len(s.row) {
			types[strings.TrimSpace(s.row[typeIdx])]++
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", outPath, err)
	}

	fmt.Printf("scored %d permits -> %s\n", len(data), outPath)
	for _, tier := range []string{"A", "B", "C", "D"} {
		fmt.Printf("  tier %s: %d\n", tier, tiers[tier])
	}
	printTopTypes(types)
	return nil
}

func printTopTypes(types map[string]int) {
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if types[names[i]] != types[names[j]] {
			return types[names[i]] > types[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > 10 {
		names = names[:10]
	}
	fmt.Println("top permit types:")
	for _, name := range names {
		fmt.Printf("  %4d  %s\n", types[name], name)
	}
}
