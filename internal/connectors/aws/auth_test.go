package aws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRoleARN(t *testing.T) {
	t.Parallel()
	tests := []struct {
		arn     string
		wantErr bool
	}{
		{"arn:aws:iam::123456789012:role/FeedReader", false},
		{"arn:aws:iam::123456789012:role/path/FeedReader", false},
		{"arn:aws:iam::12345:role/Short", true},           // too few digits
		{"arn:aws:iam::123456789012:user/NotARole", true}, // user, not role
		{"", true},
		{"not-an-arn", true},
	}

	for _, tt := range tests {
		t.Run(tt.arn, func(t *testing.T) {
			t.Parallel()
			err := ValidateRoleARN(tt.arn)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")

	cfg, err := Load(context.Background(), Options{Region: "eu-west-1"})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)

	assumed, err := Load(context.Background(), Options{
		Region:     "us-east-1",
		RoleARN:    "arn:aws:iam::123456789012:role/FeedReader",
		ExternalID: "supplier-42",
	})
	require.NoError(t, err)
	assert.NotNil(t, assumed.Credentials)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(context.Background(), Options{Region: "us-east-1", RoleARN: "arn:aws:iam::1:role/x"})
	assert.ErrorContains(t, err, "aws auth")

	_, err = Load(context.Background(), Options{Region: "us-east-1", ExternalID: "x"})
	assert.ErrorContains(t, err, "without a role")
}
