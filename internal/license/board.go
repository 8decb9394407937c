package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrLicenseNotFound means the board has no record for the number/state.
var ErrLicenseNotFound = errors.New("license not found")

// HTTPBoard talks to the state licensing board's lookup API.
type HTTPBoard struct {
	baseURL string
	client  *http.Client
}

func NewHTTPBoard(baseURL string, timeout time.Duration) *HTTPBoard {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPBoard{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type boardResponse struct {
	Number             string   `json:"number"`
	Status             string   `json:"status"`
	ExpirationDate     string   `json:"expirationDate"`
	LicenseType        string   `json:"licenseType"`
	AuthorizedServices []string `json:"authorizedServices"`
	Certifications     []string `json:"certifications"`
	SuspensionReason   string   `json:"suspensionReason"`
	SuspendedAt        string   `json:"suspendedAt"`
	Found              bool     `json:"found"`
	Error              string   `json:"error"`
}

func (b *HTTPBoard) LookupLicense(ctx context.Context, number, state string) (*Record, error) {
	url := fmt.Sprintf("%s/licenses/%s/%s", b.baseURL, state, number)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build board request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("board lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrLicenseNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("board lookup: unexpected status %d", resp.StatusCode)
	}

	var body boardResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode board response: %w", err)
	}
	if !body.Found {
		return nil, ErrLicenseNotFound
	}
	if body.Error != "" {
		return nil, fmt.Errorf("board lookup: %s", body.Error)
	}

	rec := &Record{
		Number:             body.Number,
		State:              state,
		Type:               body.LicenseType,
		Status:             Status(body.Status),
		AuthorizedServices: body.AuthorizedServices,
		Certifications:     body.Certifications,
		SuspensionReason:   body.SuspensionReason,
	}

	if body.ExpirationDate != "" {
		exp, err := time.Parse(time.RFC3339, body.ExpirationDate)
		if err != nil {
			return nil, fmt.Errorf("parse expiration date %q: %w", body.ExpirationDate, err)
		}
		rec.ExpirationDate = exp
	}
	if body.SuspendedAt != "" {
		at, err := time.Parse(time.RFC3339, body.SuspendedAt)
		if err == nil {
			rec.SuspendedAt = &at
		}
	}

	return rec, nil
}
