package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/quantleap/quantd/internal/domain"
)

// csvHeader is the required column order for bar ingest.
var csvHeader = []string{"date", "open", "high", "low", "close", "volume"}

// ParseCSV reads daily bars from a date,open,high,low,close,volume CSV.
// Dates use the 2006-01-02 layout. The header row is required; rows must
// already be in ascending date order.
func ParseCSV(r io.Reader) ([]domain.Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV header: %v", domain.ErrValidation, err)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	var bars []domain.Bar
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: CSV line %d: %v", domain.ErrValidation, line, err)
		}

		bar, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("%w: CSV line %d: %v", domain.ErrValidation, line, err)
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: CSV contains no bars", domain.ErrValidation)
	}
	return bars, nil
}

func validateHeader(header []string) error {
	if len(header) != len(csvHeader) {
		return fmt.Errorf("%w: CSV header has %d columns, want %d (%s)",
			domain.ErrValidation, len(header), len(csvHeader), strings.Join(csvHeader, ","))
	}
	for i, col := range header {
		if !strings.EqualFold(strings.TrimSpace(col), csvHeader[i]) {
			return fmt.Errorf("%w: CSV column %d is %q, want %q", domain.ErrValidation, i+1, col, csvHeader[i])
		}
	}
	return nil
}

func parseRecord(record []string) (domain.Bar, error) {
	if len(record) != len(csvHeader) {
		return domain.Bar{}, fmt.Errorf("row has %d columns, want %d", len(record), len(csvHeader))
	}

	date, err := time.Parse("2006-01-02", strings.TrimSpace(record[0]))
	if err != nil {
		return domain.Bar{}, fmt.Errorf("bad date %q: %v", record[0], err)
	}

	fields := make([]float64, 5)
	for i := 1; i < len(record); i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("bad %s %q: %v", csvHeader[i], record[i], err)
		}
		fields[i-1] = v
	}

	return domain.Bar{
		Date:   domain.Day(date),
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Close:  fields[3],
		Volume: fields[4],
	}, nil
}
