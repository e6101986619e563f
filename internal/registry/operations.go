package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

type apiRunner struct {
	ID     int64    `json:"id"`
	Name   string   `json:"name"`
	Status string   `json:"status"`
	Busy   bool     `json:"busy"`
	Labels []apiLbl `json:"labels"`
}

type apiLbl struct {
	Name string `json:"name"`
}

type runnersResponse struct {
	TotalCount int         `json:"total_count"`
	Runners    []apiRunner `json:"runners"`
}

// ListWorkers implements list_workers: all registrations in the
// configured scope, filtered to this controller's identity prefix
// (spec.md §4.1).
func (c *Client) ListWorkers(ctx context.Context) ([]RegistryWorker, error) {
	resp, err := c.do(ctx, "list_workers", http.MethodGet, fmt.Sprintf("/%s/actions/runners?per_page=100", c.scope), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed runnersResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &Error{Class: ErrorClassTransient, Op: "list_workers", Err: err}
	}

	workers := make([]RegistryWorker, 0, len(parsed.Runners))
	for _, r := range parsed.Runners {
		if !strings.HasPrefix(r.Name, c.prefix+"-") && r.Name != c.prefix {
			continue
		}
		labels := make([]string, 0, len(r.Labels))
		for _, l := range r.Labels {
			labels = append(labels, l.Name)
		}
		workers = append(workers, RegistryWorker{
			ID:     r.ID,
			Name:   r.Name,
			Status: r.Status,
			Busy:   r.Busy,
			Labels: labels,
		})
	}
	return workers, nil
}

type registrationTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// FetchRegistrationToken implements fetch_registration_token: a
// short-lived token a fresh worker uses to register (spec.md §4.1).
func (c *Client) FetchRegistrationToken(ctx context.Context) (RegistrationToken, error) {
	resp, err := c.do(ctx, "fetch_registration_token", http.MethodPost, fmt.Sprintf("/%s/actions/runners/registration-token", c.scope), nil)
	if err != nil {
		return RegistrationToken{}, err
	}
	defer resp.Body.Close()

	var parsed registrationTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return RegistrationToken{}, &Error{Class: ErrorClassTransient, Op: "fetch_registration_token", Err: err}
	}

	expires, err := parseTime(parsed.ExpiresAt)
	if err != nil {
		return RegistrationToken{}, &Error{Class: ErrorClassTransient, Op: "fetch_registration_token", Err: err}
	}

	return RegistrationToken{Token: parsed.Token, ExpiresAt: expires}, nil
}

// DeleteWorker implements delete_worker: removing a registration is
// idempotent, so a 404 is treated the same as a 204 (spec.md §4.1).
func (c *Client) DeleteWorker(ctx context.Context, id int64) error {
	resp, err := c.do(ctx, "delete_worker", http.MethodDelete, fmt.Sprintf("/%s/actions/runners/%d", c.scope, id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return &Error{Class: ErrorClassTransient, Op: "delete_worker", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return nil
}

type workflowRunsResponse struct {
	TotalCount int `json:"total_count"`
}

// ListPendingWork implements list_pending_work. At organization scope the
// underlying API has no cheap way to count queued jobs across every
// repository, so Queued is left nil and the policy falls back to
// utilization-only scaling (spec.md §4.1, §9 open question).
func (c *Client) ListPendingWork(ctx context.Context) (PendingWork, error) {
	inProgress, err := c.countRuns(ctx, "in_progress")
	if err != nil {
		return PendingWork{}, err
	}

	if c.isOrg {
		return PendingWork{Queued: nil, InProgress: inProgress}, nil
	}

	queued, err := c.countRuns(ctx, "queued")
	if err != nil {
		return PendingWork{}, err
	}
	return PendingWork{Queued: &queued, InProgress: inProgress}, nil
}

func (c *Client) countRuns(ctx context.Context, status string) (int, error) {
	resp, err := c.do(ctx, "list_pending_work", http.MethodGet, fmt.Sprintf("/%s/actions/runs?status=%s&per_page=1", c.scope, status), nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var parsed workflowRunsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, &Error{Class: ErrorClassTransient, Op: "list_pending_work", Err: err}
	}
	return parsed.TotalCount, nil
}
