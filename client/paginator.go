package client

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/go-querystring/query"

	"msgfetch/internal"
)

// PageMode selects how the paginator advances
type PageMode int

const (
	// CursorPages follows an opaque next-page cursor returned by the server.
	CursorPages PageMode = iota
	// OffsetPages sends an increasing item offset.
	OffsetPages
)

// PageRequest describes a paginated collection endpoint
type PageRequest struct {
	Path string
	// Params is a struct with `url` tags (or url.Values) sent on every page.
	Params any
	Mode   PageMode
	// CursorParam carries the cursor from the second page on. Defaults to "continuation".
	CursorParam string
	// OffsetParam carries the offset in OffsetPages mode. Defaults to "offset".
	OffsetParam string
	// PageSize lets offset mode stop on a short page. Zero means unknown.
	PageSize int
}

// Page is one decoded batch
type Page[T any] struct {
	Items []T
	Next  string
}

// PageDecoder turns a response body into a page
type PageDecoder[T any] func(body []byte) (Page[T], error)

// FetchAll collects every item of a paginated collection in server order
func FetchAll[T any](ctx context.Context, exec RequestExecutor, req PageRequest, decode PageDecoder[T]) ([]T, error) {
	var items []T
	for item, err := range Iterate(ctx, exec, req, decode) {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Iterate yields the items of a paginated collection one at a time. Pages
// are requested sequentially and only when the previous one is consumed.
// The first error is yielded once and ends the sequence.
func Iterate[T any](ctx context.Context, exec RequestExecutor, req PageRequest, decode PageDecoder[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		base, err := encodeParams(req.Params)
		if err != nil {
			yield(zero, internal.NewValidationError("params", err.Error()))
			return
		}

		cursorParam := req.CursorParam
		if cursorParam == "" {
			cursorParam = "continuation"
		}
		offsetParam := req.OffsetParam
		if offsetParam == "" {
			offsetParam = "offset"
		}

		seen := make(map[string]bool)
		cursor := ""
		offset := 0

		for page := 0; ; page++ {
			q := cloneValues(base)
			switch req.Mode {
			case CursorPages:
				if page > 0 {
					q.Set(cursorParam, cursor)
				}
			case OffsetPages:
				q.Set(offsetParam, strconv.Itoa(offset))
			}

			resp, err := exec.Execute(ctx, RequestSpec{Method: http.MethodGet, Path: req.Path, Query: q})
			if err != nil {
				yield(zero, err)
				return
			}

			batch, err := decode(resp.Body)
			if err != nil {
				var reqErr *internal.RequestError
				if !errors.As(err, &reqErr) {
					err = internal.NewProtocolError(req.Path, fmt.Sprintf("undecodable page %d", page+1), err)
				}
				yield(zero, err)
				return
			}

			for _, item := range batch.Items {
				if !yield(item, nil) {
					return
				}
			}

			if len(batch.Items) == 0 {
				return
			}

			switch req.Mode {
			case CursorPages:
				if batch.Next == "" {
					return
				}
				if seen[batch.Next] || batch.Next == cursor {
					yield(zero, internal.NewProtocolError(req.Path, "server repeated a page cursor", nil).
						WithContext("cursor", batch.Next).
						WithContext("page", page+1))
					return
				}
				seen[batch.Next] = true
				cursor = batch.Next
			case OffsetPages:
				if req.PageSize > 0 && len(batch.Items) < req.PageSize {
					return
				}
				offset += len(batch.Items)
			}
		}
	}
}

func encodeParams(params any) (url.Values, error) {
	switch p := params.(type) {
	case nil:
		return url.Values{}, nil
	case url.Values:
		return cloneValues(p), nil
	default:
		return query.Values(params)
	}
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for key, values := range v {
		out[key] = append([]string(nil), values...)
	}
	return out
}
