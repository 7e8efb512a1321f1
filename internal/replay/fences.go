package replay

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/lumra/lumra-backend/internal/geofence"
)

// FenceFile is the YAML layout of a replay fence set:
//
//	fences:
//	  - id: home
//	    elderly_id: e-1
//	    latitude: 12.9716
//	    longitude: 77.5946
//	    radius_meters: 100
type FenceFile struct {
	Fences []FenceSpec `yaml:"fences"`
}

type FenceSpec struct {
	ID           string  `yaml:"id"`
	ElderlyID    string  `yaml:"elderly_id"`
	Label        string  `yaml:"label"`
	Latitude     float64 `yaml:"latitude"`
	Longitude    float64 `yaml:"longitude"`
	RadiusMeters float64 `yaml:"radius_meters"`
}

// LoadFences reads and validates a fence file.
func LoadFences(path string) ([]geofence.Geofence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFences(data)
}

func ParseFences(data []byte) ([]geofence.Geofence, error) {
	var file FenceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse fences: %w", err)
	}
	if len(file.Fences) == 0 {
		return nil, fmt.Errorf("fence file has no fences")
	}

	now := time.Now().UTC()
	seen := map[string]bool{}
	out := make([]geofence.Geofence, 0, len(file.Fences))
	for i, fs := range file.Fences {
		id := strings.TrimSpace(fs.ID)
		if id == "" {
			return nil, fmt.Errorf("fence %d: id is required", i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("fence %d: duplicate id %q", i+1, id)
		}
		seen[id] = true
		if strings.TrimSpace(fs.ElderlyID) == "" {
			return nil, fmt.Errorf("fence %q: elderly_id is required", id)
		}

		fence := geofence.Geofence{
			ID:           id,
			ElderlyID:    strings.TrimSpace(fs.ElderlyID),
			Label:        fs.Label,
			Latitude:     fs.Latitude,
			Longitude:    fs.Longitude,
			RadiusMeters: fs.RadiusMeters,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := fence.Validate(); err != nil {
			return nil, fmt.Errorf("fence %q: %w", id, err)
		}
		out = append(out, fence)
	}
	return out, nil
}
