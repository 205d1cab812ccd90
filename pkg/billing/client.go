// Package billing inspects and detaches project billing accounts through the
// Cloud Billing API.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2/google"
	cloudbilling "google.golang.org/api/cloudbilling/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const projectPrefix = "projects/"

// Scopes required to read and detach project billing accounts.
var Scopes = []string{
	cloudbilling.CloudBillingScope,
	cloudbilling.CloudPlatformScope,
}

// ProjectName returns the fully qualified resource name for a project id.
func ProjectName(projectID string) string {
	if strings.HasPrefix(projectID, projectPrefix) {
		return projectID
	}
	return projectPrefix + projectID
}

// Client is the subset of the Cloud Billing API the killswitch uses.
type Client interface {
	// GetBillingInfo returns the billing association of a project resource.
	GetBillingInfo(ctx context.Context, projectName string) (*cloudbilling.ProjectBillingInfo, error)

	// UpdateBillingInfo replaces the billing association of a project resource.
	UpdateBillingInfo(ctx context.Context, projectName string, info *cloudbilling.ProjectBillingInfo) (*cloudbilling.ProjectBillingInfo, error)
}

// Service implements Client on top of the generated cloudbilling/v1 service.
type Service struct {
	svc *cloudbilling.APIService
}

// NewService creates a Client backed by the Cloud Billing REST API.
func NewService(ctx context.Context, opts ...option.ClientOption) (*Service, error) {
	svc, err := cloudbilling.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create cloudbilling service: %w", err)
	}
	return &Service{svc: svc}, nil
}

func (s *Service) GetBillingInfo(ctx context.Context, projectName string) (*cloudbilling.ProjectBillingInfo, error) {
	return s.svc.Projects.GetBillingInfo(projectName).Context(ctx).Do()
}

func (s *Service) UpdateBillingInfo(ctx context.Context, projectName string, info *cloudbilling.ProjectBillingInfo) (*cloudbilling.ProjectBillingInfo, error) {
	return s.svc.Projects.UpdateBillingInfo(projectName, info).Context(ctx).Do()
}

// Connector produces an authenticated Client. It is invoked only once an
// invocation knows it has to talk to the billing backend.
type Connector interface {
	Connect(ctx context.Context) (Client, error)
}

// DefaultConnector authenticates with Application Default Credentials.
type DefaultConnector struct {
	opts []option.ClientOption
}

// NewDefaultConnector creates a connector using Application Default Credentials.
// Extra options are appended after the credentials option.
func NewDefaultConnector(opts ...option.ClientOption) *DefaultConnector {
	return &DefaultConnector{opts: opts}
}

func (c *DefaultConnector) Connect(ctx context.Context) (Client, error) {
	creds, err := google.FindDefaultCredentials(ctx, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("find default credentials: %w", err)
	}

	opts := append([]option.ClientOption{option.WithCredentials(creds)}, c.opts...)
	return NewService(ctx, opts...)
}

// StaticConnector hands out a prebuilt client.
type StaticConnector struct {
	Client Client
}

func (c StaticConnector) Connect(_ context.Context) (Client, error) {
	if c.Client == nil {
		return nil, errors.New("no billing client configured")
	}
	return c.Client, nil
}

// StatusCode extracts the HTTP status of a Google API error, or 0.
func StatusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
