package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/google/uuid"

	"github.com/optimnow-labs/finops-assistant/internal/domain"
)

const titanImageModelID = "amazon.titan-image-generator-v2:0"

// ImageInvoker is the Bedrock surface the image tool calls.
type ImageInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type generateImageParams struct {
	Prompt string `json:"prompt" jsonschema:"description=Text description of the image to generate"`
	Width  int    `json:"width,omitempty" jsonschema:"description=Image width in pixels; defaults to 1024"`
	Height int    `json:"height,omitempty" jsonschema:"description=Image height in pixels; defaults to 1024"`
}

type titanImageRequest struct {
	TaskType              string                `json:"taskType"`
	TextToImageParams     titanTextToImage      `json:"textToImageParams"`
	ImageGenerationConfig titanGenerationConfig `json:"imageGenerationConfig"`
}

type titanTextToImage struct {
	Text string `json:"text"`
}

type titanGenerationConfig struct {
	NumberOfImages int     `json:"numberOfImages"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	CfgScale       float64 `json:"cfgScale"`
}

type titanImageResponse struct {
	Images []string `json:"images"`
	Error  string   `json:"error,omitempty"`
}

// ImageTools builds the image generation tool over Bedrock. Generated PNGs
// land in outputDir and the tool result carries the file path.
func ImageTools(invoker ImageInvoker, outputDir string) []Tool {
	return []Tool{
		{
			Name:        "generate_image",
			Description: "Generate an illustrative image from a text prompt and return the path of the generated PNG.",
			InputSchema: SchemaFor(&generateImageParams{}),
			Origin:      domain.OriginLocal,
			Invoke: func(ctx context.Context, args map[string]any) (Result, error) {
				var p generateImageParams
				if err := DecodeArgs(args, &p); err != nil {
					return Errorf("invalid arguments: %v", err), nil
				}
				if p.Prompt == "" {
					return Errorf("prompt is required"), nil
				}
				if p.Width <= 0 {
					p.Width = 1024
				}
				if p.Height <= 0 {
					p.Height = 1024
				}

				body, err := json.Marshal(titanImageRequest{
					TaskType:          "TEXT_IMAGE",
					TextToImageParams: titanTextToImage{Text: p.Prompt},
					ImageGenerationConfig: titanGenerationConfig{
						NumberOfImages: 1,
						Width:          p.Width,
						Height:         p.Height,
						CfgScale:       8.0,
					},
				})
				if err != nil {
					return Result{}, fmt.Errorf("tools: encode image request: %w", err)
				}

				out, err := invoker.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
					ModelId:     aws.String(titanImageModelID),
					ContentType: aws.String("application/json"),
					Accept:      aws.String("application/json"),
					Body:        body,
				})
				if err != nil {
					return Errorf("image generation failed: %v", err), nil
				}

				var resp titanImageResponse
				if err := json.Unmarshal(out.Body, &resp); err != nil {
					return Errorf("image generation returned unreadable response: %v", err), nil
				}
				if resp.Error != "" {
					return Errorf("image generation failed: %s", resp.Error), nil
				}
				if len(resp.Images) == 0 {
					return Errorf("image generation returned no images"), nil
				}

				data, err := base64.StdEncoding.DecodeString(resp.Images[0])
				if err != nil {
					return Errorf("image generation returned undecodable image: %v", err), nil
				}

				if err := os.MkdirAll(outputDir, 0o755); err != nil {
					return Errorf("image output dir: %v", err), nil
				}
				outPath := filepath.Join(outputDir, fmt.Sprintf("image-%s.png", uuid.NewString()))
				if err := os.WriteFile(outPath, data, 0o644); err != nil {
					return Errorf("write image: %v", err), nil
				}
				return JSONResult(map[string]any{"path": outPath})
			},
		},
	}
}
