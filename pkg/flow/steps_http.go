package flow

import (
	"context"

	"github.com/devicelab-dev/botrunner/pkg/core"
	"github.com/devicelab-dev/botrunner/pkg/expr"
)

var makeRequestSchema = Schema{
	{"url", CharField(Required())},
	{"method", CharField(Default("GET"), Choices("GET", "PUT", "POST"))},
	{"body", MappingField()},
	{"headers", MappingField()},
}

type makeRequestAction struct{}

func (makeRequestAction) Schema() Schema { return makeRequestSchema }

func (makeRequestAction) Execute(ctx context.Context, rt Runtime, in *Input) (map[string]any, error) {
	url, err := in.String("url")
	if err != nil {
		return nil, err
	}
	method, err := in.String("method")
	if err != nil {
		return nil, err
	}
	body, err := in.Map("body")
	if err != nil {
		return nil, err
	}
	rawHeaders, err := in.Map("headers")
	if err != nil {
		return nil, err
	}

	req := &core.HTTPRequest{
		Method:  method,
		URL:     url,
		Headers: make(map[string]string, len(rawHeaders)),
	}
	if body != nil {
		req.Body = body
	}
	for k, v := range rawHeaders {
		req.Headers[k] = expr.Stringify(v)
	}

	resp, err := rt.HTTP().Send(ctx, req)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status_code": resp.StatusCode,
		"content":     resp.Content,
	}, nil
}
