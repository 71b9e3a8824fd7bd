// Package inference is the transport to the remote vision oracle.
//
// It speaks the OpenAI-compatible chat completions API with image content,
// which the xAI endpoint serves. Callers send one or more JPEG frames plus a
// prompt and get raw text back; interpreting that text is left to the caller.
//
// Example usage:
//
//	client, _ := inference.NewClient(
//	    inference.WithAPIKey(os.Getenv("XAI_API_KEY")),
//	    inference.WithVisionModel("grok-2-vision-1212"),
//	)
//	defer client.Close()
//
//	resp, _ := client.Vision(ctx, &inference.VisionRequest{
//	    Images: [][]byte{jpeg},
//	    Prompt: "How far is the nearest obstacle?",
//	})
package inference

import "context"

// Provider is the vision inference interface.
type Provider interface {
	// Vision analyzes one or more images with a text prompt.
	Vision(ctx context.Context, req *VisionRequest) (*VisionResponse, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// VisionRequest for image analysis.
type VisionRequest struct {
	// System is an optional system prompt.
	System string

	// Prompt describing what to analyze or ask about the images.
	Prompt string

	// Images are JPEG-encoded frames, sent in order.
	Images [][]byte

	// Model overrides the default vision model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness. Zero uses the provider default.
	Temperature float64

	// JSON asks the provider for a JSON object response.
	JSON bool
}

// VisionResponse from image analysis.
type VisionResponse struct {
	// Content is the raw text response.
	Content string

	// Usage tracks token consumption.
	Usage Usage

	// Model used for analysis.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption for billing and limits.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
