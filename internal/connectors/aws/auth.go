// Package aws provides shared AWS configuration and authentication helpers.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// NewAWSConfig creates an aws.Config with the given region, optional profile,
// and optional cross-account role ARN.
func NewAWSConfig(ctx context.Context, region, profile, roleARN string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("aws auth: load config: %w", err)
	}

	if roleARN != "" {
		stsClient := sts.NewFromConfig(cfg)
		cfg.Credentials = stscreds.NewAssumeRoleProvider(stsClient, roleARN)
	}

	return cfg, nil
}

// Identity describes the account and principal the assistant operates as.
type Identity struct {
	AccountID string
	ARN       string
}

// CallerIdentity resolves the active credentials via STS. Used at startup
// and in the session status surface so users can see which account the
// assistant is pointed at.
func CallerIdentity(ctx context.Context, cfg aws.Config) (Identity, error) {
	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("aws auth: get caller identity: %w", err)
	}
	id := Identity{}
	if out.Account != nil {
		id.AccountID = *out.Account
	}
	if out.Arn != nil {
		id.ARN = *out.Arn
	}
	return id, nil
}
