package version

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"faillog/internal/logger"
)

// UsageRecord is one deployed version and its usage count.
type UsageRecord struct {
	Version    string `json:"version"`
	UsageCount int    `json:"usage_count"`
}

type reportVersion struct {
	Major       *string `xml:"major"`
	Minor       *string `xml:"minor"`
	Maintenance *string `xml:"maintenance"`
	Build       *string `xml:"build"`
}

type reportRow struct {
	Version  *reportVersion `xml:"version"`
	SumInUse *string        `xml:"sum_in_use"`
	Nested   []reportRow    `xml:"report"`
}

// ParseReport extracts every //report row. Rows with a non-numeric count or version component are skipped;
// a later row for the same version replaces an earlier one.
func ParseReport(data []byte) ([]UsageRecord, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var rows []reportRow
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("version report: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "report" {
			continue
		}
		var row reportRow
		if err := dec.DecodeElement(&row, &start); err != nil {
			return nil, fmt.Errorf("version report: %w", err)
		}
		rows = flattenRows(rows, row)
	}

	index := make(map[string]int)
	var out []UsageRecord
	for _, row := range rows {
		rec, ok := row.record()
		if !ok {
			continue
		}
		logger.Tracef(8, "[version] report row version=%s count=%d", rec.Version, rec.UsageCount)
		if i, seen := index[rec.Version]; seen {
			out[i] = rec
			continue
		}
		index[rec.Version] = len(out)
		out = append(out, rec)
	}
	return out, nil
}

func flattenRows(dst []reportRow, row reportRow) []reportRow {
	dst = append(dst, row)
	for _, n := range row.Nested {
		dst = flattenRows(dst, n)
	}
	return dst
}

func (r reportRow) record() (UsageRecord, bool) {
	if r.Version == nil || r.SumInUse == nil {
		return UsageRecord{}, false
	}
	parts := []*string{r.Version.Major, r.Version.Minor, r.Version.Maintenance, r.Version.Build}
	text := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == nil {
			return UsageRecord{}, false
		}
		s := strings.TrimSpace(*p)
		if _, err := strconv.ParseInt(s, 10, 32); err != nil {
			return UsageRecord{}, false
		}
		text = append(text, s)
	}
	count, err := strconv.ParseInt(strings.TrimSpace(*r.SumInUse), 10, 32)
	if err != nil {
		return UsageRecord{}, false
	}
	return UsageRecord{Version: strings.Join(text, "."), UsageCount: int(count)}, true
}
