package propstat

import (
	"fmt"
	"io"
	"strings"
)

var reportRule = strings.Repeat("=", 37)

func formatBound(b Bound) string {
	if !b.Present {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", b.Value)
}

// WriteReport prints the human readable summary of r to w.
func WriteReport(w io.Writer, r Result) error {
	_, err := fmt.Fprintf(w, "%s\nLargest Property Size   : %s\nCheapest Property Price : %s\nExecution Time          : %.6f seconds\n%s\n",
		reportRule,
		formatBound(r.MaxSize),
		formatBound(r.MinPrice),
		r.Elapsed.Seconds(),
		reportRule,
	)
	return err
}
