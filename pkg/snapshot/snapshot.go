// Package snapshot loads pool snapshots from JSON dumps of RPC account
// responses, so quotes can be reproduced offline.
//
// A dump looks like:
//
//	{
//	  "pool": "<lb pair address>",
//	  "accounts": [
//	    {"pubkey": "...", "account": {"owner": "...", "data": ["<payload>", "base64"]}}
//	  ]
//	}
//
// Account entries use the getMultipleAccounts / getProgramAccounts shape, with
// base64 or base58 encoded data.
package snapshot

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/tidwall/gjson"
	"github.com/yimingwow/dlmmquote/pkg/pool/meteora"
	"github.com/yimingwow/dlmmquote/pkg/sol"
	"github.com/yimingwow/dlmmquote/pkg/transferfee"
	"go.uber.org/zap"
)

// ErrInvalidDump flags a dump that cannot be turned into a snapshot
var ErrInvalidDump = errors.New("invalid snapshot dump")

// Account is one raw account from a dump
type Account struct {
	Pubkey solana.PublicKey
	Owner  solana.PublicKey
	Data   []byte
}

// LoadFile reads a dump from disk and builds the pool snapshot
func LoadFile(path string, logger *zap.Logger) (*meteora.MeteoraDlmmPool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	return Load(raw, logger)
}

// Load builds the pool snapshot from dump bytes
func Load(raw []byte, logger *zap.Logger) (*meteora.MeteoraDlmmPool, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: malformed json", ErrInvalidDump)
	}
	doc := gjson.ParseBytes(raw)

	poolID, err := solana.PublicKeyFromBase58(doc.Get("pool").String())
	if err != nil {
		return nil, fmt.Errorf("%w: pool address: %v", ErrInvalidDump, err)
	}
	accounts, err := ParseAccounts(doc.Get("accounts"))
	if err != nil {
		return nil, err
	}
	return Build(poolID, accounts, logger)
}

// ParseAccounts decodes the account entries of a dump
func ParseAccounts(entries gjson.Result) (map[solana.PublicKey]Account, error) {
	if !entries.IsArray() {
		return nil, fmt.Errorf("%w: accounts must be an array", ErrInvalidDump)
	}
	accounts := make(map[solana.PublicKey]Account)
	var parseErr error
	entries.ForEach(func(_, entry gjson.Result) bool {
		var account Account
		if account, parseErr = parseAccount(entry); parseErr != nil {
			return false
		}
		accounts[account.Pubkey] = account
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return accounts, nil
}

func parseAccount(entry gjson.Result) (Account, error) {
	pubkey, err := solana.PublicKeyFromBase58(entry.Get("pubkey").String())
	if err != nil {
		return Account{}, fmt.Errorf("%w: account pubkey: %v", ErrInvalidDump, err)
	}
	owner, err := solana.PublicKeyFromBase58(entry.Get("account.owner").String())
	if err != nil {
		return Account{}, fmt.Errorf("%w: owner of %s: %v", ErrInvalidDump, pubkey, err)
	}
	data, err := decodeData(entry.Get("account.data"))
	if err != nil {
		return Account{}, fmt.Errorf("%w: data of %s: %v", ErrInvalidDump, pubkey, err)
	}
	return Account{Pubkey: pubkey, Owner: owner, Data: data}, nil
}

// decodeData accepts ["payload", "encoding"] pairs and bare base58 strings
func decodeData(data gjson.Result) ([]byte, error) {
	payload, encoding := data.String(), "base58"
	if data.IsArray() {
		payload, encoding = data.Get("0").String(), data.Get("1").String()
	}
	switch encoding {
	case "base64":
		return base64.StdEncoding.DecodeString(payload)
	case "base58":
		return base58.Decode(payload)
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// Build assembles a pool snapshot from raw accounts. The pair, both mints and
// the clock sysvar are required; the bitmap extension is optional. Accounts
// owned by the DLMM program with bin array size are bin arrays; those of other
// pairs are skipped.
func Build(poolID solana.PublicKey, accounts map[solana.PublicKey]Account, logger *zap.Logger) (*meteora.MeteoraDlmmPool, error) {
	pairAccount, ok := accounts[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: pair account %s missing", ErrInvalidDump, poolID)
	}
	pool, err := meteora.NewMeteoraDlmmPool(poolID, pairAccount.Data)
	if err != nil {
		return nil, err
	}

	if ext, ok := accounts[pool.BitmapExtensionKey]; ok {
		if err := pool.SetBitmapExtension(ext.Data); err != nil {
			return nil, err
		}
	}

	registry := transferfee.NewRegistry()
	for _, mint := range []solana.PublicKey{pool.Pair.TokenXMint, pool.Pair.TokenYMint} {
		account, ok := accounts[mint]
		if !ok {
			return nil, fmt.Errorf("%w: mint account %s missing", ErrInvalidDump, mint)
		}
		if _, err := registry.AddAccount(mint, account.Owner, account.Data); err != nil {
			return nil, err
		}
	}
	pool.TransferFees = registry

	clockAccount, ok := accounts[solana.SysVarClockPubkey]
	if !ok {
		return nil, fmt.Errorf("%w: clock sysvar missing", ErrInvalidDump)
	}
	clock, err := sol.ParseClock(clockAccount.Data)
	if err != nil {
		return nil, err
	}
	pool.Clock = *clock

	for _, account := range accounts {
		if !account.Owner.Equals(meteora.MeteoraProgramID) || len(account.Data) != meteora.BinArrayAccountSize {
			continue
		}
		binArray, err := meteora.ParseBinArray(account.Data)
		if err != nil {
			return nil, err
		}
		if !binArray.LbPair.Equals(poolID) {
			logger.Debug("skipping bin array of another pair",
				zap.String("account", account.Pubkey.String()),
				zap.String("lb_pair", binArray.LbPair.String()),
				zap.Int64("index", binArray.Index))
			continue
		}
		pool.AddBinArray(binArray)
	}
	return pool, nil
}
