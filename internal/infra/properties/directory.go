// Package properties resolves property contacts from the listings service
// over HTTP.
package properties

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	domain "propchat/internal/domain/properties"
)

const defaultTimeout = 3 * time.Second

// Doer is the subset of *fasthttp.Client used by the directory.
type Doer interface {
	DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error
}

// HTTPDirectory calls GET {BaseURL}/properties/{id}.
type HTTPDirectory struct {
	BaseURL string
	Timeout time.Duration
	Client  Doer
}

func NewHTTPDirectory(baseURL string, timeout time.Duration) *HTTPDirectory {
	return &HTTPDirectory{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Timeout: timeout,
		Client: &fasthttp.Client{
			Name:                "propchat",
			MaxConnsPerHost:     64,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

type propertyPayload struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ContactID string `json:"contactId"`
	HostID    string `json:"hostId"`
}

func (d *HTTPDirectory) Lookup(ctx context.Context, id string) (domain.Property, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Property{}, domain.ErrIDRequired
	}
	if err := ctx.Err(); err != nil {
		return domain.Property{}, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(d.BaseURL + "/properties/" + url.PathEscape(id))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	if err := d.Client.DoTimeout(req, resp, d.timeout(ctx)); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return domain.Property{}, fmt.Errorf("properties: lookup %s: %w", id, context.DeadlineExceeded)
		}
		return domain.Property{}, fmt.Errorf("properties: lookup %s: %w", id, err)
	}

	switch code := resp.StatusCode(); {
	case code == fasthttp.StatusNotFound:
		return domain.Property{}, domain.ErrNotFound
	case code != fasthttp.StatusOK:
		return domain.Property{}, fmt.Errorf("properties: lookup %s: unexpected status %d", id, code)
	}

	var payload propertyPayload
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return domain.Property{}, fmt.Errorf("properties: decode %s: %w", id, err)
	}
	p := domain.Property{ID: id, Title: payload.Title, ContactID: strings.TrimSpace(payload.ContactID)}
	if p.ContactID == "" {
		p.ContactID = strings.TrimSpace(payload.HostID)
	}
	if !p.HasContact() {
		return domain.Property{}, domain.ErrNoContact
	}
	return p, nil
}

// timeout honours the caller's deadline when it is tighter than the configured one.
func (d *HTTPDirectory) timeout(ctx context.Context) time.Duration {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	return timeout
}

var _ domain.Directory = (*HTTPDirectory)(nil)
