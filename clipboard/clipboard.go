package clipboard

import (
	"errors"
	"fmt"
	"strings"

	cb "github.com/atotto/clipboard"

	"earthprint/analysis"
)

var ErrUnsupported = errors.New("no clipboard utility available")

// overridden in tests
var (
	writeAll = cb.WriteAll
	readAll  = cb.ReadAll
)

func Available() bool {
	return !cb.Unsupported
}

func Read() (string, error) {
	return readAll()
}

func Copy(text string) error {
	if !Available() {
		return ErrUnsupported
	}
	return writeAll(text)
}

// CopyResult puts a plain-text summary of res on the clipboard.
func CopyResult(res *analysis.Result) error {
	if res == nil {
		return errors.New("nothing to copy")
	}
	return Copy(Text(res))
}

// Text renders res without styling: transcription, one line per activity
// and the total.
func Text(res *analysis.Result) string {
	var b strings.Builder
	b.WriteString(res.Transcription)
	b.WriteString("\n\n")
	for _, e := range res.Emissions {
		fmt.Fprintf(&b, "%s: %s kg CO2e\n", e.Activity, analysis.FormatKg(e.Emission))
	}
	fmt.Fprintf(&b, "Total: %s kg CO2e\n", analysis.FormatKg(res.Total()))
	return b.String()
}
