package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImageInvoker struct {
	in   *bedrockruntime.InvokeModelInput
	body []byte
	err  error
}

func (f *fakeImageInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

func TestGenerateImage(t *testing.T) {
	t.Parallel()
	pngBytes := []byte{0x89, 'P', 'N', 'G'}
	respBody, err := json.Marshal(map[string]any{
		"images": []string{base64.StdEncoding.EncodeToString(pngBytes)},
	})
	require.NoError(t, err)

	invoker := &fakeImageInvoker{body: respBody}
	dir := t.TempDir()
	tool := toolByName(t, ImageTools(invoker, dir), "generate_image")

	res, err := tool.Invoke(context.Background(), map[string]any{
		"prompt": "a cartoon cloud holding a wallet",
	})
	require.NoError(t, err)
	require.False(t, res.IsError, res.Text)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Text), &out))
	data, err := os.ReadFile(out["path"].(string))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)

	assert.Equal(t, titanImageModelID, *invoker.in.ModelId)
	var req titanImageRequest
	require.NoError(t, json.Unmarshal(invoker.in.Body, &req))
	assert.Equal(t, "TEXT_IMAGE", req.TaskType)
	assert.Equal(t, 1024, req.ImageGenerationConfig.Width, "default size applied")
}

func TestGenerateImage_RequiresPrompt(t *testing.T) {
	t.Parallel()
	tool := toolByName(t, ImageTools(&fakeImageInvoker{}, t.TempDir()), "generate_image")

	res, err := tool.Invoke(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Text, "prompt is required")
}

func TestGenerateImage_ModelErrorIsToolError(t *testing.T) {
	t.Parallel()
	respBody, _ := json.Marshal(map[string]any{"images": []string{}, "error": "content filtered"})
	tool := toolByName(t, ImageTools(&fakeImageInvoker{body: respBody}, t.TempDir()), "generate_image")

	res, err := tool.Invoke(context.Background(), map[string]any{"prompt": "x"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Text, "content filtered")
}
