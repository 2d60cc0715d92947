package pm

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/hykilpikonna/ocpm/internal/fetcher"
)

// sizeUnits are the suffixes for humanSize, in 1024 steps.
var sizeUnits = []string{"B", "K", "M", "G", "T", "P", "E"}

// humanSize renders a byte count in human units.
func humanSize(n int64) string {
	value := float64(n)

	for _, unit := range sizeUnits {
		if value < 1024.0 {
			return fmt.Sprintf("%.1f %s", value, unit)
		}

		value /= 1024.0
	}

	return fmt.Sprintf("%.1f Z", value)
}

// printPlan writes the update plan and its total download size to stdout.
// Plain text only; colors and fancy tables are deliberately out of scope.
func printPlan(updates []fetcher.Update) {
	fmt.Printf("\nFound %d updates:\n\n", len(updates))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Kext\tCurrent\tLatest\tSize")

	var total int64

	for _, u := range updates {
		total += u.Release.Artifact.Size

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			u.Kext.Name, u.Kext.Version, u.Release.Tag, humanSize(u.Release.Artifact.Size))
	}

	_ = w.Flush()

	fmt.Printf("\nTotal download size: %s\n", humanSize(total))
}

// confirm asks the user to proceed unless confirmation is skipped.
// Anything but "y" declines.
func confirm(skip bool) bool {
	if skip {
		return true
	}

	fmt.Print("Ready to fly? [y/N] ")

	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}

	return strings.EqualFold(strings.TrimSpace(answer), "y")
}
