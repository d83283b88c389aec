package sol

import (
	"context"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	// ClockAccountDataSize represents the expected size of the clock account data in bytes
	ClockAccountDataSize = 40
)

// Clock represents the Solana network's clock information
type Clock struct {
	Slot                uint64
	EpochStartTime      uint64
	Epoch               uint64
	LeaderScheduleEpoch uint64
	UnixTimestamp       uint64
}

// ParseClock decodes the clock sysvar account data
func ParseClock(data []byte) (*Clock, error) {
	if len(data) != ClockAccountDataSize {
		return nil, fmt.Errorf("invalid clock account data length: expected %d bytes, got %d", ClockAccountDataSize, len(data))
	}
	clock := &Clock{}
	if err := bin.NewBinDecoder(data).Decode(clock); err != nil {
		return nil, fmt.Errorf("failed to decode clock: %w", err)
	}
	return clock, nil
}

// GetClock retrieves the current clock information from the Solana network
func (c *Client) GetClock(ctx context.Context) (*Clock, error) {
	resp, err := c.GetAccountInfoWithOpts(ctx, solana.SysVarClockPubkey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch clock account: %w", err)
	}
	if resp.Value == nil {
		return nil, errors.New("clock account not found in the network")
	}
	return ParseClock(resp.Value.Data.GetBinary())
}
