package rodpage

import (
	"context"

	"waenhancer/internal/page"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

type element struct {
	el *rod.Element
}

func wrapElements(els rod.Elements) []page.Element {
	out := make([]page.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &element{el: el})
	}
	return out
}

func (e *element) Attr(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *element) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *element) SetText(ctx context.Context, text string) error {
	_, err := e.el.Context(ctx).Eval(setText, text)
	return err
}

func (e *element) QueryAll(ctx context.Context, selector string) ([]page.Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapElements(els), nil
}
