package recipients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// HTTPDirectory talks to the external user directory service. Connection
// errors, timeouts and 5xx responses come back wrapped in RetryableError;
// everything else is terminal.
type HTTPDirectory struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPDirectory(baseURL, token string, timeout time.Duration) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDirectory) Users(ctx context.Context, orgID string, adminsOnly bool, offset, limit int) ([]User, error) {
	q := url.Values{
		"org_id":      {orgID},
		"admins_only": {strconv.FormatBool(adminsOnly)},
		"offset":      {strconv.Itoa(offset)},
		"limit":       {strconv.Itoa(limit)},
	}
	return d.fetch(ctx, "/v1/users", q)
}

func (d *HTTPDirectory) GroupUsers(ctx context.Context, orgID string, adminsOnly bool, groupID uuid.UUID, offset, limit int) ([]User, error) {
	q := url.Values{
		"org_id":      {orgID},
		"admins_only": {strconv.FormatBool(adminsOnly)},
		"offset":      {strconv.Itoa(offset)},
		"limit":       {strconv.Itoa(limit)},
	}
	return d.fetch(ctx, "/v1/groups/"+groupID.String()+"/users", q)
}

func (d *HTTPDirectory) fetch(ctx context.Context, path string, query url.Values) ([]User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &RetryableError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return nil, &RetryableError{Err: fmt.Errorf("directory returned %s", resp.Status)}
	default:
		return nil, fmt.Errorf("directory returned %s", resp.Status)
	}

	var users []User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, fmt.Errorf("decode directory response: %w", err)
	}
	return users, nil
}
