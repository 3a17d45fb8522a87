package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/google/uuid"
	"github.com/lydakis/mcpbridge/internal/config"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// LambdaInvoker is the part of the Lambda API client the lambda backend
// uses. *lambda.Client satisfies it.
type LambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

func newLambda(srv config.ServerConfig, o options) *session {
	return &session{
		name:           srv.Name,
		kind:           KindLambda,
		connectTimeout: srv.ConnectTimeoutOrDefault(),
		closeGrace:     o.closeGrace,
		logger:         o.logger,
		newTransport: func() (transport.Interface, error) {
			return &lambdaTransport{
				functionName: srv.FunctionName,
				region:       srv.Region,
				invoker:      o.invoker,
			}, nil
		},
	}
}

// lambdaTransport carries each JSON-RPC message as one synchronous
// invocation of a function that runs an MCP server. The function's response
// payload is the JSON-RPC response.
type lambdaTransport struct {
	functionName string
	region       string

	mu        sync.RWMutex
	invoker   LambdaInvoker
	sessionID string
	closed    bool
}

var _ transport.Interface = (*lambdaTransport)(nil)

func (t *lambdaTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.invoker == nil {
		var opts []func(*awsconfig.LoadOptions) error
		if t.region != "" {
			opts = append(opts, awsconfig.WithRegion(t.region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return fmt.Errorf("loading AWS configuration: %w", err)
		}
		t.invoker = lambda.NewFromConfig(cfg)
	}
	t.sessionID = uuid.NewString()
	return nil
}

func (t *lambdaTransport) SendRequest(ctx context.Context, request transport.JSONRPCRequest) (*transport.JSONRPCResponse, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	out, err := t.invoke(ctx, payload)
	if err != nil {
		return nil, err
	}

	var resp transport.JSONRPCResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", t.functionName, err)
	}
	if resp.Result == nil && resp.Error == nil {
		return nil, fmt.Errorf("function %s returned no JSON-RPC response", t.functionName)
	}
	return &resp, nil
}

func (t *lambdaTransport) SendNotification(ctx context.Context, notification mcp.JSONRPCNotification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	_, err = t.invoke(ctx, payload)
	return err
}

func (t *lambdaTransport) invoke(ctx context.Context, payload []byte) ([]byte, error) {
	t.mu.RLock()
	invoker, closed := t.invoker, t.closed
	t.mu.RUnlock()

	if closed {
		return nil, transport.ErrTransportClosed
	}
	if invoker == nil {
		return nil, errors.New("lambda transport not started")
	}

	out, err := invoker.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(t.functionName),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		Payload:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("invoking %s: %w", t.functionName, err)
	}
	if out.FunctionError != nil {
		return nil, fmt.Errorf("function %s failed (%s): %s", t.functionName, aws.ToString(out.FunctionError), out.Payload)
	}
	return out.Payload, nil
}

// SetNotificationHandler is a no-op: a function cannot push messages back
// outside an invocation.
func (t *lambdaTransport) SetNotificationHandler(func(notification mcp.JSONRPCNotification)) {}

func (t *lambdaTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *lambdaTransport) GetSessionId() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessionID
}
