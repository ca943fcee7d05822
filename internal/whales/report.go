package whales

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DefaultTopN is the number of report rows kept when no limit is configured.
const DefaultTopN = 400

type reportRow struct {
	address  string
	totalPnL float64
}

// LoadReport reads a ranked whale report CSV and returns the set of the top N distinct valid
// addresses by total_pnl. The address column may be named "user", "address" or "wallet".
func LoadReport(path string, topN int, logger *zap.Logger) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open whale report: %w", err)
	}
	defer f.Close()

	set, err := ReadReport(f, topN, logger)
	if err != nil {
		return nil, fmt.Errorf("read whale report %s: %w", path, err)
	}

	return set, nil
}

// ReadReport parses the report from r. See LoadReport.
func ReadReport(r io.Reader, topN int, logger *zap.Logger) (*Set, error) {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	addrCol, pnlCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "user", "address", "wallet":
			if addrCol == -1 {
				addrCol = i
			}
		case "total_pnl":
			pnlCol = i
		}
	}
	if addrCol == -1 || pnlCol == -1 {
		return nil, errors.New("report must have an address column and a total_pnl column")
	}

	var rows []reportRow
	malformed := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if addrCol >= len(record) || pnlCol >= len(record) {
			malformed++
			continue
		}

		pnl, err := strconv.ParseFloat(strings.TrimSpace(record[pnlCol]), 64)
		if err != nil || math.IsNaN(pnl) {
			malformed++
			continue
		}
		rows = append(rows, reportRow{address: record[addrCol], totalPnL: pnl})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].totalPnL > rows[j].totalPnL
	})

	// An address keeps its best-ranked row. Invalid and repeated rows do not count toward topN.
	addresses := make([]string, 0, min(topN, len(rows)))
	seen := make(map[string]struct{}, len(rows))
	invalid := 0
	for _, row := range rows {
		if len(addresses) == topN {
			break
		}
		norm, ok := Normalize(row.address)
		if !ok {
			invalid++
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		addresses = append(addresses, norm)
	}

	set, _, err := New(addresses)
	if err != nil {
		return nil, err
	}

	logger.Info("whale-report-loaded",
		zap.Int("rows", len(rows)),
		zap.Int("whales", set.Len()),
		zap.Int("invalid-addresses", invalid),
		zap.Int("malformed-rows", malformed))

	return set, nil
}
