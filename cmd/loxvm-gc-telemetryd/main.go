// Command loxvm-gc-telemetryd is the out-of-process GC telemetry sink:
// a JSON-RPC-over-stdio server that writes one DynamoDB item per
// collection cycle reported by internal/gc through internal/plugin.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

type request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type response struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// cycleReport mirrors internal/gc.CycleReport's JSON shape without
// importing the core module, keeping this plugin a standalone binary.
type cycleReport struct {
	ID             string `json:"ID"`
	CollectedOld   bool   `json:"CollectedOld"`
	BytesYoung     uint64 `json:"BytesYoung"`
	BytesOld       uint64 `json:"BytesOld"`
	ThresholdYoung uint64 `json:"ThresholdYoung"`
	ThresholdOld   uint64 `json:"ThresholdOld"`
	Freed          int    `json:"Freed"`
	Promoted       int    `json:"Promoted"`
}

var tableName = envOr("LOXVM_GC_TELEMETRY_TABLE", "loxvm-gc-cycles")

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadConfig prefers explicit static credentials (set by whoever
// launches the plugin) over the SDK's default chain, so this binary
// can run in a sandbox with no shared AWS credentials file.
func loadConfig(ctx context.Context) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{}
	accessKey := os.Getenv("LOXVM_GC_AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("LOXVM_GC_AWS_SECRET_ACCESS_KEY")
	if accessKey != "" && secretKey != "" {
		provider := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
		opts = append(opts, config.WithCredentialsProvider(provider))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

func main() {
	cfg, err := loadConfig(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "loxvm-gc-telemetryd: aws config: %v\n", err)
		os.Exit(1)
	}
	client := dynamodb.NewFromConfig(cfg)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	encoder := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			encoder.Encode(response{Error: fmt.Sprintf("parse error: %v", err)})
			continue
		}

		result, err := handle(client, req)
		resp := response{Result: result}
		if err != nil {
			resp.Error = err.Error()
		}
		if err := encoder.Encode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "loxvm-gc-telemetryd: encode response: %v\n", err)
		}
	}
}

func handle(client *dynamodb.Client, req request) (interface{}, error) {
	switch req.Method {
	case "record_cycle":
		return handleRecordCycle(client, req.Params)
	default:
		return nil, fmt.Errorf("unknown method: %s", req.Method)
	}
}

func handleRecordCycle(client *dynamodb.Client, params json.RawMessage) (interface{}, error) {
	var report cycleReport
	if err := json.Unmarshal(params, &report); err != nil {
		return nil, fmt.Errorf("invalid record_cycle payload: %w", err)
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}

	item, err := attributevalue.MarshalMap(report)
	if err != nil {
		return nil, fmt.Errorf("marshal cycle report: %w", err)
	}
	item["pk"] = &types.AttributeValueMemberS{Value: report.ID}

	_, err = client.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName: aws.String(tableName),
		Item:      item,
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("put item: %s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
		return nil, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}
