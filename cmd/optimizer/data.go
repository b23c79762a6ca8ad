package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yersiniasGhost/berlin-sub000/pkg/backtest"
)

// candleColumns are the fixed leading columns of a split CSV. Every further
// column is treated as a precomputed indicator series keyed by its header
// (e.g. "SMA_5m").
var candleColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// loadSplitCSV reads one historical data split from a CSV file. The split
// name is the file name without extension.
func loadSplitCSV(path string) (*backtest.DataSplit, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied data file
	if err != nil {
		return nil, fmt.Errorf("failed to open split file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	if len(header) < len(candleColumns) {
		return nil, fmt.Errorf("split %s needs at least columns %v", path, candleColumns)
	}
	for i, want := range candleColumns {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return nil, fmt.Errorf("split %s column %d is %q, want %q", path, i, header[i], want)
		}
	}
	seriesNames := header[len(candleColumns):]

	split := &backtest.DataSplit{
		Name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Series: make(map[string][]float64, len(seriesNames)),
	}

	line := 1
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		line++
		if len(record) != len(header) {
			return nil, fmt.Errorf("split %s line %d has %d fields, want %d", path, line, len(record), len(header))
		}

		candle, err := parseCandle(record)
		if err != nil {
			return nil, fmt.Errorf("split %s line %d: %w", path, line, err)
		}
		split.Candles = append(split.Candles, candle)

		for i, name := range seriesNames {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[len(candleColumns)+i]), 64)
			if err != nil {
				return nil, fmt.Errorf("split %s line %d series %s: %w", path, line, name, err)
			}
			split.Series[name] = append(split.Series[name], v)
		}
	}

	if err := split.Validate(); err != nil {
		return nil, err
	}
	return split, nil
}

func parseCandle(record []string) (backtest.Candle, error) {
	ts, err := parseTimestamp(strings.TrimSpace(record[0]))
	if err != nil {
		return backtest.Candle{}, err
	}

	values := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
		if err != nil {
			return backtest.Candle{}, fmt.Errorf("column %s: %w", candleColumns[i+1], err)
		}
		values[i] = v
	}

	return backtest.Candle{
		Timestamp: ts,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

// parseTimestamp accepts RFC 3339 or a Unix epoch in seconds or
// milliseconds.
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	epoch, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q is neither RFC 3339 nor epoch", s)
	}
	if epoch > 1e12 {
		return time.UnixMilli(epoch).UTC(), nil
	}
	return time.Unix(epoch, 0).UTC(), nil
}
