package whales

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-whalesim/pkg/types"
)

const (
	whaleA = "0x1111111111111111111111111111111111111111"
	whaleB = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"
	whaleC = "0x3333333333333333333333333333333333333333"
)

func TestNew(t *testing.T) {
	set, skipped, err := New([]string{whaleA, whaleB, "not-an-address", strings.ToUpper(whaleA[2:])})
	require.NoError(t, err)

	assert.Equal(t, 1, skipped)
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains(whaleA))
	assert.True(t, set.Contains(strings.ToLower(whaleB)))
	assert.True(t, set.Contains(strings.ToUpper(whaleB)))
	assert.False(t, set.Contains(whaleC))
	assert.False(t, set.Contains(""))
}

func TestNew_Empty(t *testing.T) {
	_, _, err := New([]string{"bogus"})
	assert.True(t, errors.Is(err, types.ErrEmptyWhaleSet))
}

func TestSet_Addresses(t *testing.T) {
	set, _, err := New([]string{whaleC, whaleA})
	require.NoError(t, err)
	assert.Equal(t, []string{whaleA, whaleC}, set.Addresses())
}

func TestSet_NilSafe(t *testing.T) {
	var set *Set
	assert.False(t, set.Contains(whaleA))
	assert.Equal(t, 0, set.Len())
	assert.Nil(t, set.Addresses())
}

func TestReadReport_TopN(t *testing.T) {
	report := strings.Join([]string{
		"user,market_group,total_pnl,trade_count",
		whaleA + ",sports,100,10",
		whaleB + ",politics,500,3",
		whaleA + ",crypto,400,2",
		whaleC + ",sports,5,1",
		"0xbad,sports,1000,1",
	}, "\n")

	set, err := ReadReport(strings.NewReader(report), 2, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, []string{whaleA, strings.ToLower(whaleB)}, set.Addresses())
}

func TestReadReport_TopNSkipsInvalidAndDuplicateRows(t *testing.T) {
	report := strings.Join([]string{
		"user,market_group,total_pnl,trade_count",
		"0xbad,sports,1000,1",
		whaleB + ",politics,500,3",
		"0x" + strings.ToUpper(whaleB[2:]) + ",crypto,450,2",
		whaleA + ",crypto,400,2",
		whaleA + ",sports,100,10",
		"not-an-address,sports,90,1",
		whaleC + ",sports,5,1",
		whaleC + ",sports,NaN,1",
	}, "\n")

	set, err := ReadReport(strings.NewReader(report), 3, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, []string{whaleA, whaleC, strings.ToLower(whaleB)}, set.Addresses())
}

func TestReadReport_AddressColumn(t *testing.T) {
	report := "address,total_pnl\n" + whaleC + ",1.5\n" + whaleA + ",oops\n"

	set, err := ReadReport(strings.NewReader(report), 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{whaleC}, set.Addresses())
}

func TestReadReport_MissingColumns(t *testing.T) {
	_, err := ReadReport(strings.NewReader("name,score\nx,1\n"), 10, zap.NewNop())
	assert.Error(t, err)
}

func TestLoadReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whale_report.csv")
	require.NoError(t, os.WriteFile(path, []byte("user,total_pnl\n"+whaleA+",1\n"), 0o600))

	set, err := LoadReport(path, 0, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, set.Contains(whaleA))

	_, err = LoadReport(filepath.Join(t.TempDir(), "missing.csv"), 0, zap.NewNop())
	assert.Error(t, err)
}
