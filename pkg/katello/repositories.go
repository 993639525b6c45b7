package katello

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/avast/retry-go"
	"go.uber.org/zap"
)

// RepositoryRef identifies a repository either directly by id or by name
// within a product, optionally scoped to an organization.
type RepositoryRef struct {
	ID   string
	Name string

	ProductID   string
	ProductName string

	OrganizationID    string
	OrganizationName  string
	OrganizationLabel string
}

func (r RepositoryRef) hasProduct() bool {
	return r.ProductID != "" || r.ProductName != ""
}

func (r RepositoryRef) hasOrganization() bool {
	return r.OrganizationID != "" || r.OrganizationName != "" || r.OrganizationLabel != ""
}

// Validate checks the combination of identifying options.
func (r RepositoryRef) Validate() error {
	switch {
	case r.ID == "" && r.Name == "":
		return errors.New("either --id or --name is required")
	case r.ID != "" && r.hasProduct():
		return ErrIDWithProduct
	case r.ID == "" && !r.hasProduct():
		return errors.New("--product or --product-id is required with --name")
	case r.ProductName != "" && !r.hasOrganization():
		return errors.New("--organization, --organization-id or --organization-label is required with --product")
	}
	return nil
}

type record struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

type listResponse struct {
	Total    int      `json:"total"`
	Subtotal int      `json:"subtotal"`
	Results  []record `json:"results"`
}

// ResolveRepositoryID returns the repository id for ref.
//
// An explicit id is returned without contacting the server. Otherwise the
// organization, product and repository are looked up by name in turn.
func (c *Client) ResolveRepositoryID(ctx context.Context, ref RepositoryRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	if ref.ID != "" {
		return ref.ID, nil
	}

	productID := ref.ProductID
	if productID == "" {
		orgID, err := c.resolveOrganization(ctx, ref)
		if err != nil {
			return "", err
		}
		q := url.Values{"organization_id": {orgID}, "name": {ref.ProductName}}
		productID, err = c.lookupOne(ctx, "product", ref.ProductName, "/katello/api/products", q, byName(ref.ProductName))
		if err != nil {
			return "", err
		}
	}

	q := url.Values{"product_id": {productID}, "name": {ref.Name}}
	return c.lookupOne(ctx, "repository", ref.Name, "/katello/api/repositories", q, byName(ref.Name))
}

func (c *Client) resolveOrganization(ctx context.Context, ref RepositoryRef) (string, error) {
	switch {
	case ref.OrganizationID != "":
		return ref.OrganizationID, nil
	case ref.OrganizationLabel != "":
		q := url.Values{"search": {fmt.Sprintf("label=%q", ref.OrganizationLabel)}}
		return c.lookupOne(ctx, "organization", ref.OrganizationLabel, "/katello/api/organizations", q, func(r record) bool {
			return r.Label == ref.OrganizationLabel
		})
	default:
		q := url.Values{"search": {fmt.Sprintf("name=%q", ref.OrganizationName)}}
		return c.lookupOne(ctx, "organization", ref.OrganizationName, "/katello/api/organizations", q, byName(ref.OrganizationName))
	}
}

func byName(name string) func(record) bool {
	return func(r record) bool { return r.Name == name }
}

// lookupOne lists path with q and expects exactly one record accepted by
// keep. Server-side filters are fuzzy, so results are matched exactly here.
func (c *Client) lookupOne(ctx context.Context, kind, query, path string, q url.Values, keep func(record) bool) (string, error) {
	var list listResponse
	err := retry.Do(
		func() error {
			list = listResponse{}
			return c.do(ctx, http.MethodGet, path, nil, &list, withQuery(q))
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("Lookup failed, retrying",
				zap.String("kind", kind),
				zap.String("query", query),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
	if err != nil {
		return "", &LookupError{Kind: kind, Query: query, Err: err}
	}

	var matches []record
	for _, r := range list.Results {
		if keep(r) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return "", &LookupError{Kind: kind, Query: query, Err: ErrNotFound}
	case 1:
		return strconv.FormatInt(matches[0].ID, 10), nil
	default:
		return "", &LookupError{Kind: kind, Query: query, Err: fmt.Errorf("%w: %d results", ErrAmbiguous, len(matches))}
	}
}

// RepositoryUpdate holds the attributes changed by UpdateRepository.
// Nil fields are left untouched.
type RepositoryUpdate struct {
	Description *string `json:"description,omitempty"`
	URL         *string `json:"url,omitempty"`
	Unprotected *bool   `json:"unprotected,omitempty"`
}

// Empty reports whether no attribute is set.
func (u RepositoryUpdate) Empty() bool {
	return u.Description == nil && u.URL == nil && u.Unprotected == nil
}

// UpdateRepository changes repository attributes.
func (c *Client) UpdateRepository(ctx context.Context, repositoryID string, upd RepositoryUpdate) error {
	return c.do(ctx, http.MethodPut, "/katello/api/repositories/"+url.PathEscape(repositoryID), upd, nil)
}
