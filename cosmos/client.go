package cosmos

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
)

// ErrorKind classifies a per-document upsert failure.
type ErrorKind string

const (
	KindRateLimit ErrorKind = "RateLimit"
	KindTooLarge  ErrorKind = "TooLarge"
	KindConflict  ErrorKind = "Conflict"
	KindAuth      ErrorKind = "Auth"
	KindNetwork   ErrorKind = "Network"
	KindIDEmpty   ErrorKind = "IDEmpty"
)

// UpsertError is one document's failure inside a bulk upsert.
type UpsertError struct {
	// ID is the document id, when known.
	ID string
	// Kind classifies the failure.
	Kind ErrorKind
	// Message is the underlying error text.
	Message string
	// Retryable reports whether a retry of the same document can
	// succeed. Rate limits and network failures are retryable; payload
	// size and conflicts are terminal for the document.
	Retryable bool
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("upsert %q: %s: %s", e.ID, e.Kind, e.Message)
}

// Client is the upsert surface the sink depends on. The production
// implementation wraps the Azure SDK; tests substitute fakes.
type Client interface {
	// Upsert writes one serialized document under the given partition
	// key and returns the request-unit charge. Failures are returned as
	// *UpsertError.
	Upsert(ctx context.Context, doc []byte, partitionKey string) (float64, error)
}

type azClient struct {
	container *azcosmos.ContainerClient
}

// NewClient connects to a Cosmos container with key credentials. The
// SDK client retries rate-limit responses with backoff internally.
func NewClient(endpoint, key, database, container string) (Client, error) {
	cred, err := azcosmos.NewKeyCredential(key)
	if err != nil {
		return nil, fmt.Errorf("cosmos credential: %w", err)
	}

	client, err := azcosmos.NewClientWithKey(endpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("cosmos client: %w", err)
	}

	c, err := client.NewContainer(database, container)
	if err != nil {
		return nil, fmt.Errorf("cosmos container %s/%s: %w", database, container, err)
	}

	return &azClient{container: c}, nil
}

func (c *azClient) Upsert(ctx context.Context, doc []byte, partitionKey string) (float64, error) {
	resp, err := c.container.UpsertItem(ctx, azcosmos.NewPartitionKeyString(partitionKey), doc, nil)
	if err != nil {
		return 0, classify(err)
	}

	return float64(resp.RequestCharge), nil
}

// classify lifts an SDK error into an *UpsertError by status code.
func classify(err error) *UpsertError {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusTooManyRequests:
			return &UpsertError{Kind: KindRateLimit, Message: err.Error(), Retryable: true}
		case http.StatusRequestEntityTooLarge:
			return &UpsertError{Kind: KindTooLarge, Message: err.Error()}
		case http.StatusConflict, http.StatusPreconditionFailed:
			return &UpsertError{Kind: KindConflict, Message: err.Error()}
		case http.StatusUnauthorized, http.StatusForbidden:
			return &UpsertError{Kind: KindAuth, Message: err.Error()}
		}
	}

	return &UpsertError{Kind: KindNetwork, Message: err.Error(), Retryable: true}
}
