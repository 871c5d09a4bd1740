package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/optimnow-labs/finops-assistant/internal/domain"
)

const renderTimeout = 30 * time.Second

// chartSpecSchema is the subset of Vega-Lite the renderer accepts. It keeps
// the generated spec honest before a subprocess ever sees it.
const chartSpecSchema = `{
  "type": "object",
  "required": ["mark", "data"],
  "properties": {
    "mark": {
      "oneOf": [
        {"type": "string", "enum": ["bar", "line", "arc", "area", "point"]},
        {"type": "object", "required": ["type"], "properties": {
          "type": {"type": "string", "enum": ["bar", "line", "arc", "area", "point"]}
        }}
      ]
    },
    "data": {
      "type": "object",
      "required": ["values"],
      "properties": {"values": {"type": "array", "minItems": 1}}
    },
    "encoding": {"type": "object"},
    "title": {"type": "string"},
    "width": {"type": ["integer", "string"]},
    "height": {"type": "integer"}
  }
}`

type chartPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type renderChartParams struct {
	ChartType string       `json:"chart_type" jsonschema:"description=One of bar line pie or area,enum=bar,enum=line,enum=pie,enum=area"`
	Title     string       `json:"title,omitempty" jsonschema:"description=Chart title"`
	XLabel    string       `json:"x_label,omitempty" jsonschema:"description=X axis label"`
	YLabel    string       `json:"y_label,omitempty" jsonschema:"description=Y axis label"`
	Points    []chartPoint `json:"points" jsonschema:"description=Data points as label/value pairs"`
}

// ChartRenderer turns a Vega-Lite spec into a PNG on disk.
type ChartRenderer interface {
	Render(ctx context.Context, spec []byte, outPath string) error
}

// VLConvertRenderer shells out to the vl-convert CLI.
type VLConvertRenderer struct {
	binaryPath string
	timeout    time.Duration
}

// NewVLConvertRenderer builds a renderer for the given vl-convert binary.
func NewVLConvertRenderer(binaryPath string) *VLConvertRenderer {
	return &VLConvertRenderer{binaryPath: binaryPath, timeout: renderTimeout}
}

func (r *VLConvertRenderer) Render(ctx context.Context, spec []byte, outPath string) error {
	specPath := outPath + ".vl.json"
	if err := os.WriteFile(specPath, spec, 0o644); err != nil {
		return fmt.Errorf("tools: write chart spec: %w", err)
	}
	defer os.Remove(specPath)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binaryPath, "vl2png", "--input", specPath, "--output", outPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tools: render chart: %w (stderr: %s)", err, stderr.String())
	}
	return nil
}

// ChartTools builds the chart rendering tool. outputDir receives the PNGs;
// the tool result carries the file path for the UI to serve.
func ChartTools(renderer ChartRenderer, outputDir string) []Tool {
	return []Tool{
		{
			Name:        "render_chart",
			Description: "Render a bar, line, pie or area chart from label/value data and return the path of the generated PNG.",
			InputSchema: SchemaFor(&renderChartParams{}),
			Origin:      domain.OriginLocal,
			Invoke: func(ctx context.Context, args map[string]any) (Result, error) {
				var p renderChartParams
				if err := DecodeArgs(args, &p); err != nil {
					return Errorf("invalid arguments: %v", err), nil
				}
				spec, err := buildChartSpec(p)
				if err != nil {
					return Errorf("chart spec rejected: %v", err), nil
				}

				if err := os.MkdirAll(outputDir, 0o755); err != nil {
					return Errorf("chart output dir: %v", err), nil
				}
				outPath := filepath.Join(outputDir, fmt.Sprintf("chart-%s.png", uuid.NewString()))
				if err := renderer.Render(ctx, spec, outPath); err != nil {
					return Errorf("chart render failed: %v", err), nil
				}
				return JSONResult(map[string]any{
					"path":  outPath,
					"title": p.Title,
				})
			},
		},
	}
}

// buildChartSpec translates the simple point list into a Vega-Lite spec and
// validates it against the accepted subset.
func buildChartSpec(p renderChartParams) ([]byte, error) {
	if len(p.Points) == 0 {
		return nil, fmt.Errorf("at least one data point is required")
	}

	values := make([]map[string]any, len(p.Points))
	temporal := true
	for i, pt := range p.Points {
		values[i] = map[string]any{"label": pt.Label, "value": pt.Value}
		if _, err := time.Parse("2006-01-02", pt.Label); err != nil {
			temporal = false
		}
	}

	labelType := "nominal"
	if temporal {
		labelType = "temporal"
	}

	spec := map[string]any{
		"data":   map[string]any{"values": values},
		"width":  640,
		"height": 360,
	}
	if p.Title != "" {
		spec["title"] = p.Title
	}

	xAxis := map[string]any{"field": "label", "type": labelType}
	yAxis := map[string]any{"field": "value", "type": "quantitative"}
	if p.XLabel != "" {
		xAxis["title"] = p.XLabel
	}
	if p.YLabel != "" {
		yAxis["title"] = p.YLabel
	}

	switch strings.ToLower(p.ChartType) {
	case "bar":
		spec["mark"] = "bar"
		spec["encoding"] = map[string]any{"x": xAxis, "y": yAxis}
	case "line":
		spec["mark"] = map[string]any{"type": "line", "point": true}
		spec["encoding"] = map[string]any{"x": xAxis, "y": yAxis}
	case "area":
		spec["mark"] = "area"
		spec["encoding"] = map[string]any{"x": xAxis, "y": yAxis}
	case "pie":
		spec["mark"] = "arc"
		spec["encoding"] = map[string]any{
			"theta": map[string]any{"field": "value", "type": "quantitative"},
			"color": map[string]any{"field": "label", "type": "nominal"},
		}
	default:
		return nil, fmt.Errorf("unsupported chart type %q", p.ChartType)
	}

	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("encode spec: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(chartSpecSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("validate spec: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid spec: %s", strings.Join(msgs, "; "))
	}
	return raw, nil
}
