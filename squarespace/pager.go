package squarespace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/url"
)

// ErrPageLoop is returned when the server points back at a page already read.
var ErrPageLoop = errors.New("pagination revisits a page")

type pagination struct {
	HasNextPage    bool   `json:"hasNextPage"`
	NextPageCursor string `json:"nextPageCursor"`
	NextPageURL    string `json:"nextPageUrl"`
}

// Pages walks a cursor-paginated list endpoint lazily, yielding the items
// of one page at a time. Each range over the sequence starts again at the
// first page. A failed page yields its error and ends the walk.
func (c *Client) Pages(ctx context.Context, endpoint string, params url.Values, itemKey string) iter.Seq2[[]json.RawMessage, error] {
	return func(yield func([]json.RawMessage, error) bool) {
		next := c.baseURL + endpoint
		if len(params) > 0 {
			next += "?" + params.Encode()
		}

		seen := make(map[string]bool)
		for next != "" {
			if seen[next] {
				yield(nil, fmt.Errorf("%s: %w: %s", endpoint, ErrPageLoop, next))
				return
			}
			seen[next] = true

			body, err := c.get(ctx, next)
			if err != nil {
				yield(nil, err)
				return
			}

			items, page, err := decodePage(body, itemKey)
			if err != nil {
				yield(nil, fmt.Errorf("decode %s page: %w", endpoint, err))
				return
			}
			if !yield(items, nil) {
				return
			}

			next = ""
			if page.HasNextPage {
				next = page.NextPageURL
				if next == "" && page.NextPageCursor != "" {
					next = c.baseURL + endpoint + "?cursor=" + url.QueryEscape(page.NextPageCursor)
				}
			}
		}
	}
}

func decodePage(body []byte, itemKey string) ([]json.RawMessage, pagination, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, pagination{}, err
	}

	var page pagination
	if raw, ok := envelope["pagination"]; ok {
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, pagination{}, fmt.Errorf("pagination: %w", err)
		}
	}

	var items []json.RawMessage
	if raw, ok := envelope[itemKey]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, pagination{}, fmt.Errorf("%s: %w", itemKey, err)
		}
	}
	return items, page, nil
}
