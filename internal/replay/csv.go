package replay

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lumra/lumra-backend/internal/location"
)

// ParseFixesFile reads a fix CSV with the header
// elderly_id,lat,lon,accuracy_meters,observed_at. accuracy_meters may be
// omitted or left blank.
func ParseFixesFile(path string) ([]location.Fix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseFixes(f)
}

func ParseFixes(in io.Reader) ([]location.Fix, error) {
	r := csv.NewReader(bufio.NewReader(in))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, errors.New("csv has no data rows")
	}

	header := records[0]
	// Handle BOM on first header cell
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"elderly_id", "lat", "lon", "observed_at"} {
		if _, ok := col[k]; !ok {
			return nil, fmt.Errorf("missing required column: %s", k)
		}
	}

	out := make([]location.Fix, 0, len(records)-1)
	for rowIdx := 1; rowIdx < len(records); rowIdx++ {
		rec := records[rowIdx]
		get := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		number := func(name string) (float64, error) {
			v, err := strconv.ParseFloat(get(name), 64)
			if err != nil {
				return 0, fmt.Errorf("row %d: %s: %w", rowIdx+1, name, err)
			}
			return v, nil
		}

		lat, err := number("lat")
		if err != nil {
			return nil, err
		}
		lon, err := number("lon")
		if err != nil {
			return nil, err
		}
		var accuracy float64
		if get("accuracy_meters") != "" {
			if accuracy, err = number("accuracy_meters"); err != nil {
				return nil, err
			}
		}
		at, err := time.Parse(time.RFC3339Nano, get("observed_at"))
		if err != nil {
			return nil, fmt.Errorf("row %d: observed_at: %w", rowIdx+1, err)
		}

		out = append(out, location.Fix{
			ElderlyID:      get("elderly_id"),
			Lat:            lat,
			Lon:            lon,
			AccuracyMeters: accuracy,
			ObservedAt:     at,
		})
	}
	return out, nil
}
