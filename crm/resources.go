package crm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"crm-workflow/domain"
)

var _ domain.CRM = (*Client)(nil)

// GetContact fetches a contact by id.
func (c *Client) GetContact(ctx context.Context, id int64) (*domain.Contact, error) {
	return getOne[domain.Contact](ctx, c, fmt.Sprintf("/v2/contacts/%d", id))
}

// UpdateContact sends a partial update of contact attributes.
func (c *Client) UpdateContact(ctx context.Context, id int64, attrs map[string]any) (*domain.Contact, error) {
	var env envelope[domain.Contact]
	req := request{method: http.MethodPut, path: fmt.Sprintf("/v2/contacts/%d", id), body: attrs}
	if _, err := c.do(ctx, req, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// ListDeals lists deals matching q.
func (c *Client) ListDeals(ctx context.Context, q domain.DealSearch) ([]domain.Deal, error) {
	query := url.Values{}
	if q.ContactID != 0 {
		query.Set("contact_id", strconv.FormatInt(q.ContactID, 10))
	}
	return listAll[domain.Deal](ctx, c, "/v2/deals", query)
}

// CreateDeal creates a deal and returns the stored record.
func (c *Client) CreateDeal(ctx context.Context, d domain.Deal) (*domain.Deal, error) {
	var env envelope[domain.Deal]
	if _, err := c.do(ctx, request{method: http.MethodPost, path: "/v2/deals", body: d}, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// GetUser fetches a user by id.
func (c *Client) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return getOne[domain.User](ctx, c, fmt.Sprintf("/v2/users/%d", id))
}

// ListUsers lists users matching q.
func (c *Client) ListUsers(ctx context.Context, q domain.UserSearch) ([]domain.User, error) {
	query := url.Values{}
	if q.Name != "" {
		query.Set("name", q.Name)
	}
	if q.Email != "" {
		query.Set("email", q.Email)
	}
	return listAll[domain.User](ctx, c, "/v2/users", query)
}

// ListStages lists pipeline stages matching q.
func (c *Client) ListStages(ctx context.Context, q domain.StageSearch) ([]domain.Stage, error) {
	query := url.Values{}
	if q.Active != nil {
		query.Set("active", strconv.FormatBool(*q.Active))
	}
	return listAll[domain.Stage](ctx, c, "/v2/stages", query)
}
