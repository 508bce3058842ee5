package tenant_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civium/matchd/pkg/tenant"
)

func TestKey_Validate(t *testing.T) {
	tests := []struct {
		name    string
		key     tenant.Key
		wantErr error
	}{
		{
			name: "valid public known",
			key:  tenant.Key{Category: tenant.CategoryPublic, ID: 1, Kind: tenant.KindKnown},
		},
		{
			name: "valid private unknown",
			key:  tenant.Key{Category: tenant.CategoryPrivate, ID: 42, Kind: tenant.KindUnknown},
		},
		{
			name: "zero tenant ID is allowed",
			key:  tenant.Key{Category: tenant.CategoryPublic, ID: 0, Kind: tenant.KindKnown},
		},
		{
			name:    "bad category",
			key:     tenant.Key{Category: "government", ID: 1, Kind: tenant.KindKnown},
			wantErr: tenant.ErrInvalidCategory,
		},
		{
			name:    "negative tenant ID",
			key:     tenant.Key{Category: tenant.CategoryPublic, ID: -1, Kind: tenant.KindKnown},
			wantErr: tenant.ErrInvalidTenantID,
		},
		{
			name:    "bad kind",
			key:     tenant.Key{Category: tenant.CategoryPublic, ID: 1, Kind: "suspects"},
			wantErr: tenant.ErrInvalidKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    tenant.Key
		wantErr error
	}{
		{
			name: "valid path",
			path: "public/7/known",
			want: tenant.Key{Category: tenant.CategoryPublic, ID: 7, Kind: tenant.KindKnown},
		},
		{
			name: "valid private unknown",
			path: "private/123/unknown",
			want: tenant.Key{Category: tenant.CategoryPrivate, ID: 123, Kind: tenant.KindUnknown},
		},
		{
			name:    "too few segments",
			path:    "public/7",
			wantErr: tenant.ErrInvalidPath,
		},
		{
			name:    "too many segments",
			path:    "public/7/known/extra",
			wantErr: tenant.ErrInvalidPath,
		},
		{
			name:    "non-integer tenant ID",
			path:    "public/seven/known",
			wantErr: tenant.ErrInvalidPath,
		},
		{
			name:    "bad category",
			path:    "internal/7/known",
			wantErr: tenant.ErrInvalidCategory,
		},
		{
			name:    "bad kind",
			path:    "public/7/pending",
			wantErr: tenant.ErrInvalidKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tenant.ParsePath(tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKey_PathRoundTrip(t *testing.T) {
	key, err := tenant.NewKey(tenant.CategoryPrivate, 42, tenant.KindUnknown)
	require.NoError(t, err)

	assert.Equal(t, "private/42/unknown", key.Path())
	assert.Equal(t, "private_42_unknown", key.String())

	parsed, err := tenant.ParsePath(key.Path())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)
}
