package scanning

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

func TestValidateCode(t *testing.T) {
	cases := []struct {
		code string
		kind CodeKind
		ok   bool
	}{
		{"012345678905", CodeUPCA, true},
		{"01234565", CodeUPCE, true},
		{"WIDGET-01", CodeSKU, true},
		{"box_7", CodeSKU, true},
		{"0123456789", CodeSKU, true},
		{"", "", false},
		{"bad code", "", false},
		{"sku/1", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			kind, err := ValidateCode(tc.code)
			if !tc.ok {
				require.ErrorIs(t, err, shared.ErrValidation)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.kind, kind)
		})
	}
}

func TestMatchesProduct(t *testing.T) {
	require.True(t, MatchesProduct("012345678905", "012345678905", "W-1"))
	require.True(t, MatchesProduct("w-1", "012345678905", "W-1"))
	require.False(t, MatchesProduct("012345678904", "012345678905", "W-1"))
	require.False(t, MatchesProduct("", "", ""))
}
