// Package contact posts the contact form. No state machine: the
// caller turns the reported outcome into a toast.
package contact

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// Submit sends the form-encoded contact message and reports whether
// the server accepted it. A transport error is returned separately so
// the caller can distinguish "rejected" from "unreachable"; both end
// up as the same failure toast.
func Submit(ctx context.Context, client *http.Client, baseURL, name, email, message string) (bool, error) {
	if client == nil {
		client = http.DefaultClient
	}

	form := url.Values{
		"name":    {name},
		"email":   {email},
		"message": {message},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL+"/contact", strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, nil
	}

	var body struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, err
	}
	return body.Success, nil
}
