package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type weatherArgs struct {
	Location string `json:"location"`
	Unit     string `json:"unit"`
}

type weatherResult struct {
	Location    string `json:"location"`
	Temperature int    `json:"temperature"`
	Unit        string `json:"unit"`
	Conditions  string `json:"conditions"`
}

// NewWeatherTool returns a weather lookup that yields a deterministic value
// for a given location and unit. It stands in for a real forecast backend.
func NewWeatherTool() Definition {
	return Definition{
		Name:        "get_weather",
		Description: "Get the current weather for a location.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{
					"type":        "string",
					"description": "City name, e.g. Tokyo",
				},
				"unit": map[string]any{
					"type": "string",
					"enum": []string{"celsius", "fahrenheit"},
				},
			},
			"required": []string{"location"},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var parsed weatherArgs
			if err := json.Unmarshal(args, &parsed); err != nil {
				return nil, fmt.Errorf("failed to parse weather arguments: %w", err)
			}
			if parsed.Location == "" {
				return nil, fmt.Errorf("location is required")
			}

			unit := strings.ToLower(parsed.Unit)
			if unit == "" {
				unit = "celsius"
			}
			temperature := 23
			if unit == "fahrenheit" {
				temperature = 73
			}

			return weatherResult{
				Location:    parsed.Location,
				Temperature: temperature,
				Unit:        unit,
				Conditions:  "clear",
			}, nil
		},
	}
}
