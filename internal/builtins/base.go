// ABOUTME: Base pack of always-available local utility tools.
// ABOUTME: Registered at startup alongside MCP-discovered tools.

package builtins

import (
	"context"
	"time"

	"github.com/2389/toolgate/internal/registry"
)

// Register installs the given tool definitions. Existing names win: a
// built-in never displaces a tool that is already registered.
func Register(reg *registry.Registry, packs ...[]registry.Definition) {
	for _, pack := range packs {
		for _, def := range pack {
			reg.Register(def, false)
		}
	}
}

type currentTimeArgs struct {
	Timezone string `json:"timezone,omitempty"`
}

// BasePack returns the utility tools available to every agent.
func BasePack() []registry.Definition {
	return []registry.Definition{
		{
			Name:        "get_current_time",
			Description: "Get the current date and time, optionally in a specific timezone",
			Schema: map[string]any{
				"name":        "get_current_time",
				"description": "Get the current date and time, optionally in a specific timezone",
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"timezone": map[string]any{
							"type":        "string",
							"description": "IANA timezone name, e.g. America/New_York. Defaults to UTC.",
						},
					},
				},
			},
			Executor: registry.Typed(currentTime),
		},
	}
}

func currentTime(_ context.Context, args currentTimeArgs) (any, error) {
	loc := time.UTC
	if args.Timezone != "" {
		l, err := time.LoadLocation(args.Timezone)
		if err != nil {
			return nil, err
		}
		loc = l
	}
	now := time.Now().In(loc)
	return map[string]any{
		"timezone":  loc.String(),
		"datetime":  now.Format(time.RFC3339),
		"unix_time": now.Unix(),
	}, nil
}
