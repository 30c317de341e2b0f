// Package timezone is the built-in time zone conversion tool.
package timezone

import (
	"context"
	"fmt"
	"time"

	// Embedded zone database so conversions work on hosts without tzdata.
	_ "time/tzdata"

	"github.com/harun/toolhost/pkg/tool"
)

// Name is the registry name of the timezone tool.
const Name = "timezone"

// Layouts accepted for times without an explicit offset; they are read in
// the "from" zone.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

type timezoneTool struct {
	*tool.Static
	now func() time.Time
}

// New returns the timezone tool.
func New() tool.Tool {
	return newTool(time.Now)
}

func newTool(now func() time.Time) *timezoneTool {
	t := &timezoneTool{now: now}
	t.Static = &tool.Static{
		ToolName:        Name,
		ToolDescription: "Converts times between IANA time zones",
		ToolVersion:     "1.0.0",
		ToolMethods: []tool.Method{
			{
				Name:        "convert",
				Description: "Convert a time from one zone to another",
				Params: []tool.Param{
					{Name: "time", Type: tool.TypeString, Description: `RFC 3339 time, a local "2006-01-02 15:04" time, or "now"`, Required: true},
					{Name: "from", Type: tool.TypeString, Description: "Zone of a local time", Default: "UTC"},
					{Name: "to", Type: tool.TypeString, Description: "Target IANA zone, e.g. Asia/Jakarta", Required: true},
				},
				Handler: t.convert,
			},
			{
				Name:        "now",
				Description: "Current time in a zone",
				Params: []tool.Param{
					{Name: "timezone", Type: tool.TypeString, Description: "IANA zone", Default: "UTC"},
				},
				Handler: t.current,
			},
		},
		HealthFunc: func(ctx context.Context) (bool, error) {
			if _, err := time.LoadLocation("America/New_York"); err != nil {
				return false, fmt.Errorf("zone database unavailable: %w", err)
			}
			return true, nil
		},
	}
	return t
}

func (t *timezoneTool) convert(ctx context.Context, params map[string]any) (any, error) {
	raw, _ := params["time"].(string)
	fromName, _ := params["from"].(string)
	toName, _ := params["to"].(string)

	from, err := loadLocation(fromName)
	if err != nil {
		return nil, err
	}
	to, err := loadLocation(toName)
	if err != nil {
		return nil, err
	}

	instant, err := t.parse(raw, from)
	if err != nil {
		return nil, err
	}
	return describe(instant.In(to), toName), nil
}

func (t *timezoneTool) current(ctx context.Context, params map[string]any) (any, error) {
	name, _ := params["timezone"].(string)
	loc, err := loadLocation(name)
	if err != nil {
		return nil, err
	}
	return describe(t.now().In(loc), name), nil
}

func (t *timezoneTool) parse(raw string, from *time.Location) (time.Time, error) {
	if raw == "now" {
		return t.now(), nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed, nil
	}
	for _, layout := range localLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, from); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: expected RFC 3339, YYYY-MM-DD HH:MM[:SS] or now", raw)
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("timezone cannot be empty")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q", name)
	}
	return loc, nil
}

func describe(t time.Time, zone string) map[string]any {
	return map[string]any{
		"time":     t.Format(time.RFC3339),
		"timezone": zone,
		"offset":   t.Format("-07:00"),
	}
}
