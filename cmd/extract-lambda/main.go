package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/oncotrack-ai/platform/cmd/mainconfig"
	appconfig "github.com/oncotrack-ai/platform/internal/config"
	"github.com/oncotrack-ai/platform/internal/extraction"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

// gateway is the slice of the extractor this lambda needs.
type gateway interface {
	ExtractFirstTimepoint(ctx context.Context, reportText string) extraction.Result
	ExtractFollowup(ctx context.Context, reportText string, previous []extraction.IdentitySummary) extraction.Result
}

type extractRequest struct {
	ReportText string                       `json:"report_text"`
	Previous   []extraction.IdentitySummary `json:"previous,omitempty"`
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		panic(err)
	}

	extractor := extraction.NewExtractor(
		extraction.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg)),
		extraction.Config{
			Model:       cfg.BedrockModelID,
			MaxRetries:  cfg.ExtractionMaxRetries,
			RetryDelay:  cfg.ExtractionRetryDelay,
			MaxTokens:   int32(cfg.ExtractionMaxTokens),
			Temperature: float32(cfg.Temperature),
		},
		nil,
		nil,
		logger,
	)

	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handle(ctx, extractor, evt)
	})
}

func handle(ctx context.Context, gw gateway, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	if path == "/health" || path == "/_health" {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK, Body: "ok"}, nil
	}

	if method != http.MethodPost {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusMethodNotAllowed}, nil
	}
	if path != "/extract" {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusNotFound}, nil
	}

	body, err := decodeBody(evt)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid body"}, nil
	}

	var req extractRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "invalid request"}, nil
	}
	if strings.TrimSpace(req.ReportText) == "" {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusBadRequest, Body: "report_text is required"}, nil
	}

	var result extraction.Result
	if len(req.Previous) > 0 {
		result = gw.ExtractFollowup(ctx, req.ReportText, req.Previous)
	} else {
		result = gw.ExtractFirstTimepoint(ctx, req.ReportText)
	}

	payload, err := json.Marshal(map[string]any{
		"success":    result.Success,
		"candidates": result.Candidates,
		"error":      result.ErrorMessage,
		"attempts":   result.Attempts,
		"cache_hit":  result.CacheHit,
	})
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusInternalServerError}, nil
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Body:       string(payload),
		Headers:    map[string]string{"content-type": "application/json"},
	}, nil
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	return base64.StdEncoding.DecodeString(evt.Body)
}
