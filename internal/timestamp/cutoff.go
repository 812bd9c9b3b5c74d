package timestamp

import (
	"fmt"
	"strings"
	"time"
)

var strftimeDirectives = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'p': "PM",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'f': "000000",
	'%': "%",
}

// ParseCutoff parses the end-of-range boundary. format may be a strftime
// pattern such as "%Y-%m-%d %H:%M" or a Go reference layout.
func ParseCutoff(value, format string) (time.Time, error) {
	layout, err := GoLayout(format)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(layout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cutoff %q with %q: %w", value, format, err)
	}
	return t, nil
}

// GoLayout converts a strftime pattern to a Go layout. Strings without a
// directive are returned unchanged.
func GoLayout(format string) (string, error) {
	if strings.TrimSpace(format) == "" {
		return "", fmt.Errorf("date format is required")
	}
	if !strings.Contains(format, "%") {
		return format, nil
	}
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			b.WriteByte(format[i])
			continue
		}
		if i+1 >= len(format) {
			return "", fmt.Errorf("date format %q ends with a bare %%", format)
		}
		i++
		repl, ok := strftimeDirectives[format[i]]
		if !ok {
			return "", fmt.Errorf("unsupported directive %%%c in date format %q", format[i], format)
		}
		b.WriteString(repl)
	}
	return b.String(), nil
}
