package aws

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/DrSkyle/wastewatch/pkg/engine/throttle"
	"github.com/DrSkyle/wastewatch/pkg/version"
)

// Client encapsulates AWS SDK usage, handling authentication, region resolution, and middleware injection.
type Client struct {
	Config aws.Config
	STS    *sts.Client
}

// SessionOptions configures NewClient.
type SessionOptions struct {
	Region   string
	Profile  string
	Endpoint string
	Throttle *throttle.Registry
	Logger   *slog.Logger
}

// NewClient initializes a new authenticated AWS client. Adapters never retry,
// so the SDK retryer is replaced with aws.NopRetryer.
func NewClient(ctx context.Context, o SessionOptions) (*Client, error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(o.Region),
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if o.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(o.Profile))
	}

	// Check for local endpoint overrides (used for mocking/testing).
	endpoint := o.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("AWS_ENDPOINT_URL")
	}
	if endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(endpoint))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	cfg.APIOptions = append(cfg.APIOptions, func(stack *middleware.Stack) error {
		return stack.Build.Add(middleware.BuildMiddlewareFunc("WastewatchUserAgent", func(ctx context.Context, input middleware.BuildInput, next middleware.BuildHandler) (
			middleware.BuildOutput, middleware.Metadata, error,
		) {
			if req, ok := input.Request.(*smithyhttp.Request); ok {
				ua := req.Header.Get("User-Agent")
				req.Header.Set("User-Agent", strings.TrimSpace(ua+" "+version.AppName+"/"+version.Current))
			}
			return next.HandleBuild(ctx, input)
		}), middleware.After)
	})

	cfg.APIOptions = append(cfg.APIOptions, func(stack *middleware.Stack) error {
		return stack.Initialize.Add(middleware.InitializeMiddlewareFunc("WastewatchCallLog", func(ctx context.Context, input middleware.InitializeInput, next middleware.InitializeHandler) (
			middleware.InitializeOutput, middleware.Metadata, error,
		) {
			logger.Debug("aws api call", "operation", middleware.GetOperationName(ctx))
			return next.HandleInitialize(ctx, input)
		}), middleware.Before)
	})

	if o.Throttle != nil {
		cfg.APIOptions = append(cfg.APIOptions, o.Throttle.Middleware())
	}

	return &Client{
		Config: cfg,
		STS:    sts.NewFromConfig(cfg),
	}, nil
}

// VerifyIdentity validates the session credentials and retrieves the canonical Account ID.
func (c *Client) VerifyIdentity(ctx context.Context) (string, error) {
	result, err := c.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", classify("sts.GetCallerIdentity", err, 0)
	}
	return aws.ToString(result.Account), nil
}

// GetConfigForRegion returns a regional configuration copy.
func (c *Client) GetConfigForRegion(region string) aws.Config {
	cfg := c.Config.Copy()
	cfg.Region = region
	return cfg
}

// ListProfiles attempts to resolve all configured AWS profiles on the host system.
func ListProfiles() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	var paths []string
	if cfgPath := os.Getenv("AWS_CONFIG_FILE"); cfgPath != "" {
		paths = append(paths, cfgPath)
	} else {
		paths = append(paths, filepath.Join(home, ".aws", "config"))
	}
	if credPath := os.Getenv("AWS_SHARED_CREDENTIALS_FILE"); credPath != "" {
		paths = append(paths, credPath)
	} else {
		paths = append(paths, filepath.Join(home, ".aws", "credentials"))
	}

	return profilesFrom(paths)
}

var profileLine = regexp.MustCompile(`^\[(?:profile\s+)?([^\]]+)\]`)

func profilesFrom(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var list []string
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			continue // Skip if file doesn't exist
		}
		for _, line := range strings.Split(string(content), "\n") {
			m := profileLine.FindStringSubmatch(strings.TrimSpace(line))
			if len(m) > 1 && !seen[m[1]] {
				seen[m[1]] = true
				list = append(list, m[1])
			}
		}
	}

	if len(list) == 0 {
		// Web identity (IRSA/EKS) or environment credentials.
		if os.Getenv("AWS_WEB_IDENTITY_TOKEN_FILE") != "" || os.Getenv("AWS_ACCESS_KEY_ID") != "" {
			return []string{"default"}, nil
		}
		return nil, fmt.Errorf("no profiles found in standard locations")
	}
	return list, nil
}
