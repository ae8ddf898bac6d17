package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/devicelab-dev/botrunner/pkg/core"
)

// DefaultElementWait is the wait_for_element timeout when seconds is omitted.
const DefaultElementWait = 10

var (
	navigateSchema = Schema{
		{"url", CharField(Required())},
	}
	waitSchema = Schema{
		{"seconds", IntegerField(Required())},
	}
	waitForElementSchema = Schema{
		{"seconds", IntegerField(Default(DefaultElementWait))},
		{"element", CharField(Required())},
	}
	clickSchema = Schema{
		{"element", CharField(Required())},
	}
	typeSchema = Schema{
		{"element", CharField(Required())},
		{"text", CharField(Required())},
		{"clear", BooleanField(Default(false))},
	}
	selectSchema = Schema{
		{"element", CharField(Required())},
		{"option", CharField(Required())},
	}
	storeXPathSchema = Schema{
		{"selector", CharField(Required())},
		{"select_first", BooleanField(Default(false))},
		{"variable", CharField(Required(), MaxLength(255))},
	}
	storePageURLSchema = Schema{}
)

// waitForElement blocks until locator is present, bounded by timeout.
func waitForElement(ctx context.Context, rt Runtime, locator string, timeout time.Duration) error {
	if err := rt.Driver().WaitUntilPresent(ctx, locator, timeout); err != nil {
		return core.ErrElementNotFound.
			WithMessage(fmt.Sprintf("could not find the element identified by %q within %s", locator, timeout)).
			WithCause(err)
	}
	return nil
}

type navigateAction struct{}

func (navigateAction) Schema() Schema { return navigateSchema }

func (navigateAction) Execute(_ context.Context, rt Runtime, in *Input) (map[string]any, error) {
	url, err := in.String("url")
	if err != nil {
		return nil, err
	}
	if err := rt.Driver().Navigate(url); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

type waitAction struct{}

func (waitAction) Schema() Schema { return waitSchema }

func (waitAction) Execute(ctx context.Context, rt Runtime, in *Input) (map[string]any, error) {
	seconds, err := in.Int("seconds")
	if err != nil {
		return nil, err
	}
	if err := rt.Sleep(ctx, time.Duration(seconds)*time.Second); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

type waitForElementAction struct{}

func (waitForElementAction) Schema() Schema { return waitForElementSchema }

func (waitForElementAction) Execute(ctx context.Context, rt Runtime, in *Input) (map[string]any, error) {
	seconds, err := in.Int("seconds")
	if err != nil {
		return nil, err
	}
	element, err := in.String("element")
	if err != nil {
		return nil, err
	}
	if err := waitForElement(ctx, rt, element, time.Duration(seconds)*time.Second); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

type clickAction struct{}

func (clickAction) Schema() Schema { return clickSchema }

func (clickAction) Execute(ctx context.Context, rt Runtime, in *Input) (map[string]any, error) {
	element, err := in.String("element")
	if err != nil {
		return nil, err
	}
	if err := waitForElement(ctx, rt, element, rt.ElementTimeout()); err != nil {
		return nil, err
	}
	if err := rt.Driver().Click(element); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

type typeAction struct{}

func (typeAction) Schema() Schema { return typeSchema }

func (typeAction) Execute(ctx context.Context, rt Runtime, in *Input) (map[string]any, error) {
	element, err := in.String("element")
	if err != nil {
		return nil, err
	}
	text, err := in.String("text")
	if err != nil {
		return nil, err
	}
	clearFirst, err := in.Bool("clear")
	if err != nil {
		return nil, err
	}
	if err := waitForElement(ctx, rt, element, rt.ElementTimeout()); err != nil {
		return nil, err
	}
	if err := rt.Driver().Type(element, text, clearFirst); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

type selectAction struct{}

func (selectAction) Schema() Schema { return selectSchema }

func (selectAction) Execute(ctx context.Context, rt Runtime, in *Input) (map[string]any, error) {
	element, err := in.String("element")
	if err != nil {
		return nil, err
	}
	option, err := in.String("option")
	if err != nil {
		return nil, err
	}
	if err := waitForElement(ctx, rt, element, rt.ElementTimeout()); err != nil {
		return nil, err
	}
	if err := rt.Driver().Select(element, option); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

type storeXPathAction struct{}

func (storeXPathAction) Schema() Schema { return storeXPathSchema }

func (storeXPathAction) Execute(_ context.Context, rt Runtime, in *Input) (map[string]any, error) {
	selector, err := in.String("selector")
	if err != nil {
		return nil, err
	}
	first, err := in.Bool("select_first")
	if err != nil {
		return nil, err
	}
	variable, err := in.String("variable")
	if err != nil {
		return nil, err
	}

	results, err := rt.Driver().EvaluateQuery(selector)
	if err != nil {
		return nil, err
	}

	var value any = results
	if first {
		value = nil
		if len(results) > 0 {
			value = results[0]
		}
	}
	return map[string]any{variable: value}, nil
}

type storePageURLAction struct{}

func (storePageURLAction) Schema() Schema { return storePageURLSchema }

func (storePageURLAction) Execute(_ context.Context, rt Runtime, _ *Input) (map[string]any, error) {
	url, err := rt.Driver().CurrentURL()
	if err != nil {
		return nil, err
	}
	return map[string]any{"url": url}, nil
}
