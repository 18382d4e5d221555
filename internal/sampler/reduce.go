package sampler

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// SumColumns skips headerLines lines and sums the inCol and outCol fields of
// every remaining line. Lines that are too short or not numeric, such as a
// half-written last line, are ignored.
func SumColumns(r io.Reader, headerLines, inCol, outCol int) (Totals, error) {
	var totals Totals

	need := inCol
	if outCol > need {
		need = outCol
	}

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		if line <= headerLines {
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) <= need {
			continue
		}
		in, err := parseField(fields[inCol])
		if err != nil {
			continue
		}
		out, err := parseField(fields[outCol])
		if err != nil {
			continue
		}
		totals.In += in
		totals.Out += out
	}
	return totals, scanner.Err()
}

func parseField(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}
