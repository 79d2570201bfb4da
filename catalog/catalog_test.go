package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiodial/paygate/types"
)

func TestLookup_HitAndMiss(t *testing.T) {
	c, err := New([]types.PricingEntry{
		{ResourceKey: "station.listen", USDPrice: decimal.RequireFromString("0.001"), PreferredToken: types.TokenRadio},
	})
	require.NoError(t, err)

	entry, ok := c.Lookup("station.listen")
	require.True(t, ok)
	assert.Equal(t, types.TokenRadio, entry.PreferredToken)
	assert.True(t, entry.USDPrice.Equal(decimal.RequireFromString("0.001")))

	_, ok = c.Lookup("station.delete")
	assert.False(t, ok)
}

func TestNew_DefaultsTokenToRadio(t *testing.T) {
	c, err := New([]types.PricingEntry{
		{ResourceKey: "track.skip", USDPrice: decimal.RequireFromString("0.0005")},
	})
	require.NoError(t, err)

	entry, ok := c.Lookup("track.skip")
	require.True(t, ok)
	assert.Equal(t, types.TokenRadio, entry.PreferredToken)
}

func TestNew_RejectsInvalidEntries(t *testing.T) {
	_, err := New([]types.PricingEntry{
		{ResourceKey: "", USDPrice: decimal.RequireFromString("1")},
	})
	assert.Error(t, err)

	_, err = New([]types.PricingEntry{
		{ResourceKey: "station.listen", USDPrice: decimal.Zero},
	})
	assert.Error(t, err)

	_, err = New([]types.PricingEntry{
		{ResourceKey: "station.listen", USDPrice: decimal.RequireFromString("-0.001")},
	})
	assert.Error(t, err)
}

func TestNew_RejectsUnknownToken(t *testing.T) {
	// A token outside the accepted set must fail at load time, not
	// surface later as an unpriceable resource.
	_, err := New([]types.PricingEntry{
		{ResourceKey: "station.listen", USDPrice: decimal.RequireFromString("0.001"), PreferredToken: types.Token("DOGE")},
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "DOGE")
}

func TestLoadFile_RejectsUnknownToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	data := `[{"resourceKey": "station.listen", "usdPrice": "0.001", "preferredToken": "DOGE"}]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestDefault_ContainsStationListen(t *testing.T) {
	entry, ok := Default().Lookup("station.listen")
	require.True(t, ok)
	assert.True(t, entry.USDPrice.Equal(decimal.RequireFromString("0.001")))
	assert.Equal(t, types.TokenRadio, entry.PreferredToken)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	data := `[
		{"resourceKey": "station.listen", "usdPrice": "0.002", "preferredToken": "RADIO"},
		{"resourceKey": "chat.pin", "usdPrice": "0.01", "preferredToken": "USDC"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)

	entry, ok := c.Lookup("chat.pin")
	require.True(t, ok)
	assert.Equal(t, types.TokenUSDC, entry.PreferredToken)
	assert.Len(t, c.Keys(), 2)
}

func TestLoadFile_MissingOrMalformed(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err = LoadFile(path)
	assert.Error(t, err)
}
