package snapshot

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yimingwow/dlmmquote/pkg/pool/meteora"
	"github.com/yimingwow/dlmmquote/pkg/transferfee"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"lukechampine.com/uint128"
)

var (
	testPoolID = solana.MustPublicKeyFromBase58("5rCf1DM8LjKTw4YqhnoLcngyZYeNnQqztScTogYHAS6")
	testMintX  = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	testMintY  = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	sysvarOwner = solana.MustPublicKeyFromBase58("Sysvar1111111111111111111111111111111111111")
)

type dumpAccount struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Owner string `json:"owner"`
		Data  any    `json:"data"`
	} `json:"account"`
}

type dump struct {
	Pool     string        `json:"pool"`
	Accounts []dumpAccount `json:"accounts"`
}

func (d *dump) add(pubkey, owner solana.PublicKey, data any) {
	account := dumpAccount{Pubkey: pubkey.String()}
	account.Account.Owner = owner.String()
	account.Account.Data = data
	d.Accounts = append(d.Accounts, account)
}

func base64Data(t *testing.T, v any) []string {
	t.Helper()
	raw, err := bin.MarshalBorsh(v)
	require.NoError(t, err)
	return []string{base64.StdEncoding.EncodeToString(raw), "base64"}
}

func mintData(decimals uint8) []byte {
	data := make([]byte, 82)
	data[44] = decimals
	data[45] = 1
	return data
}

// newDump builds a dump of a pair with 1e12 Y in bin 0 and 1e12 X in bin 40000
// past the inline bitmap, plus its mints and the clock
func newDump(t *testing.T) *dump {
	pair := meteora.LbPair{
		Discriminator: meteora.LbPairDiscriminator,
		Parameters: meteora.StaticParameters{
			BaseFactor:               10000,
			FilterPeriod:             30,
			DecayPeriod:              600,
			ReductionFactor:          5000,
			MaxVolatilityAccumulator: 350000,
			MinBinID:                 meteora.MinBinID,
			MaxBinID:                 meteora.MaxBinID,
			ProtocolShare:            500,
		},
		BinStep:    1,
		TokenXMint: testMintX,
		TokenYMint: testMintY,
	}
	pair.Bitmap().Set(0, true)

	d := &dump{Pool: testPoolID.String()}
	d.add(testPoolID, meteora.MeteoraProgramID, base64Data(t, &pair))

	for _, fill := range []struct {
		binID            int32
		amountX, amountY uint64
	}{{0, 0, 1_000_000_000_000}, {40_000, 1_000_000_000_000, 0}} {
		idx := meteora.BinIDToBinArrayIndex(fill.binID)
		binArray := meteora.BinArray{Discriminator: meteora.BinArrayDiscriminator, Index: idx, LbPair: testPoolID}
		b, err := binArray.GetBinMut(fill.binID)
		require.NoError(t, err)
		b.AmountX, b.AmountY = fill.amountX, fill.amountY
		b.LiquiditySupply = uint128.From64(1_000_000)
		key, err := meteora.DeriveBinArrayPDA(testPoolID, idx)
		require.NoError(t, err)
		d.add(key, meteora.MeteoraProgramID, base64Data(t, &binArray))
	}

	ext := meteora.BinArrayBitmapExtension{Discriminator: meteora.BitmapExtensionDiscriminator, LbPair: testPoolID}
	require.NoError(t, ext.Set(meteora.BinIDToBinArrayIndex(40_000), true))
	extKey, err := meteora.DeriveBinArrayBitmapExtension(testPoolID)
	require.NoError(t, err)
	d.add(extKey, meteora.MeteoraProgramID, base64Data(t, &ext))

	d.add(testMintX, transferfee.TokenProgramID, base58.Encode(mintData(9)))
	d.add(testMintY, transferfee.TokenProgramID, []string{base64.StdEncoding.EncodeToString(mintData(6)), "base64"})

	clock := make([]byte, 40)
	binary.LittleEndian.PutUint64(clock[0:], 250_000_000)
	binary.LittleEndian.PutUint64(clock[16:], 600)
	binary.LittleEndian.PutUint64(clock[32:], 1_700_000_000)
	d.add(solana.SysVarClockPubkey, sysvarOwner, []string{base58.Encode(clock), "base58"})
	return d
}

func (d *dump) bytes(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	return raw
}

func TestLoad(t *testing.T) {
	pool, err := Load(newDump(t).bytes(t), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, testPoolID, pool.PoolId)
	assert.Equal(t, uint16(1), pool.Pair.BinStep)
	assert.Equal(t, []int64{0, 571}, pool.SortedBinArrayIndexes())
	require.NotNil(t, pool.BitmapExtension)
	assert.True(t, pool.BitmapExtension.IsSet(571))
	assert.Equal(t, uint64(600), pool.Clock.Epoch)
	assert.Equal(t, uint64(1_700_000_000), pool.Clock.UnixTimestamp)

	result, err := pool.QuoteExactIn(1_000_000, true, meteora.QuoteOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint64(999_900), result.AmountOut)

	result, err = pool.QuoteExactIn(1_000_000, false, meteora.QuoteOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(40_000), result.EndBinID)
	assert.Positive(t, result.AmountOut)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.json")
	require.NoError(t, os.WriteFile(path, newDump(t).bytes(t), 0o600))

	pool, err := LoadFile(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, testPoolID, pool.PoolId)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"), zap.NewNop())
	assert.Error(t, err)
}

func TestLoadSkipsForeignBinArrays(t *testing.T) {
	d := newDump(t)
	foreign := meteora.BinArray{Discriminator: meteora.BinArrayDiscriminator, Index: 7, LbPair: testMintX}
	d.add(solana.SystemProgramID, meteora.MeteoraProgramID, base64Data(t, &foreign))

	core, logs := observer.New(zapcore.DebugLevel)
	pool, err := Load(d.bytes(t), zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 571}, pool.SortedBinArrayIndexes())

	entries := logs.FilterMessage("skipping bin array of another pair").All()
	require.Len(t, entries, 1)
	assert.Equal(t, testMintX.String(), entries[0].ContextMap()["lb_pair"])
	assert.Equal(t, int64(7), entries[0].ContextMap()["index"])
}

func TestLoadRejectsIncompleteDumps(t *testing.T) {
	without := func(t *testing.T, pubkey solana.PublicKey) []byte {
		d := newDump(t)
		accounts := d.Accounts[:0]
		for _, account := range d.Accounts {
			if account.Pubkey != pubkey.String() {
				accounts = append(accounts, account)
			}
		}
		d.Accounts = accounts
		return d.bytes(t)
	}

	tests := []struct {
		name    string
		raw     func(t *testing.T) []byte
		wantErr error
	}{
		{"malformed json", func(*testing.T) []byte { return []byte(`{"pool":`) }, ErrInvalidDump},
		{"bad pool address", func(*testing.T) []byte { return []byte(`{"pool":"nope","accounts":[]}`) }, ErrInvalidDump},
		{"accounts not an array", func(*testing.T) []byte {
			return []byte(`{"pool":"` + testPoolID.String() + `","accounts":{}}`)
		}, ErrInvalidDump},
		{"missing pair", func(t *testing.T) []byte { return without(t, testPoolID) }, ErrInvalidDump},
		{"missing mint", func(t *testing.T) []byte { return without(t, testMintY) }, ErrInvalidDump},
		{"missing clock", func(t *testing.T) []byte { return without(t, solana.SysVarClockPubkey) }, ErrInvalidDump},
		{"unsupported encoding", func(t *testing.T) []byte {
			d := newDump(t)
			d.Accounts[len(d.Accounts)-1].Account.Data = []string{"AAAA", "base64+zstd"}
			return d.bytes(t)
		}, ErrInvalidDump},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.raw(t), zap.NewNop())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
