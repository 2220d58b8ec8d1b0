package app

import (
	"github.com/escape-llc/eink-billboard/internal/config"
	"github.com/escape-llc/eink-billboard/internal/schedule"
)

// DefaultTemplate is the built-in document tree for a fresh install: the
// three settings schemas with their defaults, a master schedule pointing
// at an always-on timed schedule, a demo playlist, and a startup task.
// HardReset materializes settings/<name>-settings.json from each
// schema's default block.
func DefaultTemplate() config.StaticTemplate {
	return config.StaticTemplate{
		{
			Moniker: "schemas/system",
			Content: map[string]any{
				"title": "System Settings",
				"type":  "object",
				"default": map[string]any{
					"timezoneName": "UTC",
					"locale":       "en-US",
				},
			},
		},
		{
			Moniker: "schemas/display",
			Content: map[string]any{
				"title": "Display Settings",
				"type":  "object",
				"default": map[string]any{
					"name":   "virtual",
					"width":  800,
					"height": 480,
				},
			},
		},
		{
			Moniker: "schemas/theme",
			Content: map[string]any{
				"title": "Theme Settings",
				"type":  "object",
				"default": map[string]any{
					"background": "#ffffff",
					"foreground": "#000000",
				},
			},
		},
		{
			Moniker: config.MasterScheduleMoniker,
			Content: map[string]any{
				"type":            schedule.TypeMaster,
				"defaultSchedule": "always",
			},
		},
		{
			Moniker: "schedules/always",
			Content: map[string]any{
				"type": schedule.TypeTimed,
				"id":   "always",
				"name": "Always On",
				"items": []any{
					map[string]any{
						"plugin_name":      "debug",
						"id":               "all-day",
						"title":            "All Day",
						"start_minutes":    0,
						"duration_minutes": 1440,
						"content":          map[string]any{"playlist": "demo"},
					},
				},
			},
		},
		{
			Moniker: "schedules/demo",
			Content: map[string]any{
				"type": schedule.TypePlaylist,
				"id":   "demo",
				"name": "Demo Loop",
				"items": []any{
					map[string]any{
						"plugin_name": "debug",
						"id":          "welcome",
						"title":       "Welcome",
						"content":     map[string]any{"text": "eink billboard"},
					},
				},
			},
		},
		{
			Moniker: "schedules/tasks",
			Content: map[string]any{
				"type": schedule.TypeTasks,
				"id":   "tasks",
				"name": "Timer Tasks",
				"items": []any{
					map[string]any{
						"id":      "boot-banner",
						"title":   "Boot Banner",
						"enabled": true,
						"task": map[string]any{
							"plugin_name":      "debug",
							"duration_minutes": 1,
							"content":          map[string]any{"text": "starting up"},
						},
						"trigger": map[string]any{"on_startup": true},
					},
				},
			},
		},
	}
}
