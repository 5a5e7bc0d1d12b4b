// Package aws loads AWS configuration for the S3 feed source and the
// CloudWatch summary publisher.
package aws

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// SessionName is the STS role session name used for assumed roles.
const SessionName = "catalog-audit"

var roleARNRe = regexp.MustCompile(`^arn:aws:iam::\d{12}:role/.+$`)

// Options selects region and credentials.
type Options struct {
	Region  string
	Profile string
	// RoleARN is assumed when set, e.g. to read a supplier's feed bucket.
	RoleARN string
	// ExternalID is passed on AssumeRole when the trust policy requires one.
	ExternalID string
}

// ValidateRoleARN checks that the ARN looks like an IAM role ARN.
func ValidateRoleARN(arn string) error {
	if !roleARNRe.MatchString(arn) {
		return fmt.Errorf("invalid IAM role ARN: %q", arn)
	}
	return nil
}

// Load builds an aws.Config from o. Assumed-role credentials are cached and
// refreshed by the SDK.
func Load(ctx context.Context, o Options) (aws.Config, error) {
	if o.RoleARN == "" && o.ExternalID != "" {
		return aws.Config{}, fmt.Errorf("aws auth: external id given without a role")
	}
	if o.RoleARN != "" {
		if err := ValidateRoleARN(o.RoleARN); err != nil {
			return aws.Config{}, fmt.Errorf("aws auth: %w", err)
		}
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(o.Region)}
	if o.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(o.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("aws auth: load config: %w", err)
	}
	if o.RoleARN == "" {
		return cfg, nil
	}

	provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), o.RoleARN, func(ar *stscreds.AssumeRoleOptions) {
		ar.RoleSessionName = SessionName
		ar.Duration = time.Hour
		if o.ExternalID != "" {
			ar.ExternalID = aws.String(o.ExternalID)
		}
	})
	cfg.Credentials = aws.NewCredentialsCache(provider)
	return cfg, nil
}
