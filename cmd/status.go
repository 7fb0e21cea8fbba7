package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	infraerrors "github.com/jonesrussell/north-cloud/timeline/infrastructure/errors"
	infrahttp "github.com/jonesrussell/north-cloud/timeline/infrastructure/http"
	"github.com/jonesrussell/north-cloud/timeline/infrastructure/jwt"
	"github.com/jonesrussell/north-cloud/timeline/internal/config"
	"github.com/jonesrussell/north-cloud/timeline/internal/export"
	"github.com/jonesrussell/north-cloud/timeline/internal/pipeline"
	"github.com/jonesrussell/north-cloud/timeline/internal/scheduler"
)

const (
	statusTimeout  = 10 * time.Second
	statusTokenTTL = time.Minute
	statusSubject  = "timeline-cli"
)

func newStatusCommand() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show curate and dedupe progress of a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if baseURL == "" {
				host := cfg.Server.Host
				if host == "" {
					host = "localhost"
				}
				baseURL = "http://" + host + ":" + strconv.Itoa(cfg.Server.Port)
			}

			var token string
			if cfg.Auth.JWTSecret != "" {
				token, err = jwt.Sign(cfg.Auth.JWTSecret, statusSubject, statusTokenTTL)
				if err != nil {
					return err
				}
			}

			client := &statusClient{baseURL: baseURL, token: token, http: infrahttp.NewTimeoutClient(statusTimeout)}
			statuses := make([]pipeline.JobStatus, 0, 2)
			for _, job := range []string{scheduler.JobCurate, scheduler.JobDedupe} {
				st, fetchErr := client.status(cmd.Context(), job)
				if fetchErr != nil {
					return fetchErr
				}
				statuses = append(statuses, st)
			}
			export.StatusTable(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "server base URL (defaults to the configured host and port)")
	return cmd
}

type statusClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *statusClient) status(ctx context.Context, job string) (pipeline.JobStatus, error) {
	var st pipeline.JobStatus

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/"+job+"/status", http.NoBody)
	if err != nil {
		return st, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return st, fmt.Errorf("failed to reach server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err = infraerrors.FromResponse(resp); err != nil {
		return st, fmt.Errorf("%s status: %w", job, err)
	}
	if err = json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("failed to decode %s status: %w", job, err)
	}
	return st, nil
}
