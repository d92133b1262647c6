package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
)

// isLambdaEnvironment detects if running in AWS Lambda
func isLambdaEnvironment() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// lambdaProxy serves the gin router for API Gateway and Function URL events.
type lambdaProxy struct {
	v1     *ginadapter.GinLambda
	v2     *ginadapter.GinLambdaV2
	logger *slog.Logger
}

func newLambdaProxy(router *gin.Engine, logger *slog.Logger) *lambdaProxy {
	return &lambdaProxy{
		v1:     ginadapter.New(router),
		v2:     ginadapter.NewV2(router),
		logger: logger,
	}
}

// Handle sniffs the payload format: v2 (Function URL, HTTP API) first, then
// v1 (REST API, ALB).
func (p *lambdaProxy) Handle(ctx context.Context, event json.RawMessage) (interface{}, error) {
	var reqV2 events.APIGatewayV2HTTPRequest
	if err := json.Unmarshal(event, &reqV2); err == nil && reqV2.RequestContext.HTTP.Method != "" {
		p.logger.Debug("lambda v2 request", "method", reqV2.RequestContext.HTTP.Method, "path", reqV2.RawPath)
		return p.v2.ProxyWithContext(ctx, reqV2)
	}

	var reqV1 events.APIGatewayProxyRequest
	if err := json.Unmarshal(event, &reqV1); err == nil && reqV1.HTTPMethod != "" {
		p.logger.Debug("lambda v1 request", "method", reqV1.HTTPMethod, "path", reqV1.Path)
		return p.v1.ProxyWithContext(ctx, reqV1)
	}

	p.logger.Warn("unsupported lambda event", "size", len(event))
	return events.APIGatewayV2HTTPResponse{
		StatusCode: 500,
		Body:       "Unsupported event type - this function expects API Gateway or Lambda Function URL events",
		Headers: map[string]string{
			"Content-Type": "text/plain",
		},
	}, fmt.Errorf("unsupported lambda event")
}
