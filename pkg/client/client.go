package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/esDesler/smart-home-inventory-system/pkg/types"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("smart-home-inventory/client")

// ErrTransport covers every failure between the device and the server:
// connect, TLS, non-2xx responses and undecodable bodies. The uploader backs
// off and retries on it; readings stay in the outbox.
var ErrTransport = errors.New("transport failure")

//go:generate moq -rm -out client_mock.go . ReadingsClient

type ReadingsClient interface {
	PostReadingsBatch(ctx context.Context, batch types.ReadingsBatch) (*types.BatchResponse, error)
}

type Config struct {
	BaseURL        string
	APIToken       string
	CACertPath     string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

type readingsClient struct {
	url        string
	apiToken   string
	httpClient http.Client
}

func New(cfg Config) (ReadingsClient, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
	}

	if cfg.CACertPath != "" {
		pem, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("could not read ca certificate: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CACertPath)
		}

		transport.TLSClientConfig = &tls.Config{RootCAs: pool}
	}

	return &readingsClient{
		url:      strings.TrimSuffix(cfg.BaseURL, "/") + "/api/v1/readings/batch",
		apiToken: cfg.APIToken,
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   cfg.ReadTimeout,
		},
	}, nil
}

func (c *readingsClient) PostReadingsBatch(ctx context.Context, batch types.ReadingsBatch) (*types.BatchResponse, error) {
	var err error
	ctx, span := tracer.Start(ctx, "post-readings-batch")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	body, err := json.Marshal(batch)
	if err != nil {
		err = fmt.Errorf("failed to marshal batch: %w", err)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		err = fmt.Errorf("failed to create http request: %w", err)
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "inventory-agent/0.1.0")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrTransport, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		err = fmt.Errorf("%w: unexpected status code %d", ErrTransport, resp.StatusCode)
		return nil, err
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("%w: failed to read response body: %s", ErrTransport, err.Error())
		return nil, err
	}

	ack := &types.BatchResponse{}
	if len(respBody) > 0 {
		err = json.Unmarshal(respBody, ack)
		if err != nil {
			err = fmt.Errorf("%w: invalid response body: %s", ErrTransport, err.Error())
			return nil, err
		}
	}

	return ack, nil
}
