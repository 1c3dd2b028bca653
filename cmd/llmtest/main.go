package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"

	"github.com/oncotrack-ai/platform/cmd/mainconfig"
	appconfig "github.com/oncotrack-ai/platform/internal/config"
	"github.com/oncotrack-ai/platform/internal/extraction"
)

const sampleReport = `CT CHEST WITH CONTRAST

FINDINGS: There is a 2.3 cm spiculated nodule in the right upper lobe,
unchanged in morphology. A 8 mm ground-glass opacity is seen in the left
lower lobe. No pleural effusion.

IMPRESSION: Right upper lobe nodule, recommend 3 month follow-up.`

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg := appconfig.Load()

	req := extraction.LLMRequest{
		System: []string{
			"You extract lesion measurements from radiology reports. Respond with JSON only.",
		},
		Messages: []extraction.ChatMessage{
			{Role: extraction.ChatRoleUser, Content: "Extract all lesions with sizes from this report:\n\n" + sampleReport},
		},
		MaxTokens:   1024,
		Temperature: 0,
	}

	rule := strings.Repeat("=", 60)
	fmt.Println(rule)
	fmt.Println("LLM Provider Test")
	fmt.Println(rule)

	tested := false

	if cfg.BedrockModelID != "" {
		tested = true
		fmt.Println("\n[1] Testing Bedrock...")
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			fmt.Printf("    failed to load AWS config: %v\n", err)
		} else {
			client := extraction.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
			bedrockReq := req
			bedrockReq.Model = cfg.BedrockModelID
			runProbe("Bedrock", client, ctx, bedrockReq)
		}
	}

	if cfg.GeminiAPIKey != "" {
		tested = true
		fmt.Println("\n[2] Testing Gemini...")
		client, err := extraction.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			fmt.Printf("    failed to create Gemini client: %v\n", err)
		} else {
			geminiReq := req
			geminiReq.Model = cfg.GeminiModelID
			runProbe("Gemini", client, ctx, geminiReq)
		}
	}

	if !tested {
		fmt.Println("\nNothing to test: set BEDROCK_MODEL_ID or GEMINI_API_KEY")
		os.Exit(1)
	}
}

func runProbe(name string, client extraction.LLMClient, ctx context.Context, req extraction.LLMRequest) {
	start := time.Now()
	resp, err := client.Complete(ctx, req)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		fmt.Printf("    %s error: %v\n", name, err)
		return
	}
	fmt.Printf("    %s response (%v, %d tokens):\n", name, elapsed, resp.Usage.TotalTokens)
	fmt.Println("    " + strings.ReplaceAll(resp.Text, "\n", "\n    "))
}
