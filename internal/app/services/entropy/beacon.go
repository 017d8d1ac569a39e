package entropy

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/drawpool-labs/jackpot-engine/pkg/logger"
)

// BeaconSource draws from a public randomness beacon. Every call fetches the
// beacon's current round and expands its value into a byte stream, so the
// numbers a round produces can be re-derived by anyone holding the beacon
// output.
type BeaconSource struct {
	client    *http.Client
	endpoint  *url.URL
	valuePath string
	log       *logger.Logger
}

var _ Source = (*BeaconSource)(nil)

// NewBeaconSource constructs a source reading from the given beacon URL.
// valuePath is the gjson path of the hex-encoded randomness field in the
// beacon response; it defaults to "randomness".
func NewBeaconSource(client *http.Client, endpoint, valuePath string, log *logger.Logger) (*BeaconSource, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("beacon endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse beacon endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	valuePath = strings.TrimSpace(valuePath)
	if valuePath == "" {
		valuePath = "randomness"
	}
	if log == nil {
		log = logger.NewDefault("entropy-beacon")
	}
	return &BeaconSource{
		client:    client,
		endpoint:  parsed,
		valuePath: valuePath,
		log:       log,
	}, nil
}

func (s *BeaconSource) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build beacon request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("beacon request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("beacon status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read beacon response: %w", err)
	}

	value := gjson.GetBytes(body, s.valuePath)
	if !value.Exists() {
		return nil, fmt.Errorf("beacon response missing %s", s.valuePath)
	}
	seed, err := hex.DecodeString(value.String())
	if err != nil {
		return nil, fmt.Errorf("decode beacon value: %w", err)
	}
	if len(seed) < 16 {
		return nil, fmt.Errorf("beacon value too short: %d bytes", len(seed))
	}

	round := gjson.GetBytes(body, "round")
	s.log.Debugf("fetched beacon round %d (%d bytes)", round.Int(), len(seed))
	return seed, nil
}

// expandSeed yields a deterministic byte stream from a beacon value. Blocks
// are SHA-256(seed || tag || counter); the tag keeps number and bonus draws
// on independent streams of the same round.
func expandSeed(seed []byte, tag string) func() (byte, error) {
	var (
		counter uint64
		buf     []byte
		off     int
	)
	return func() (byte, error) {
		if off == len(buf) {
			h := sha256.New()
			h.Write(seed)
			h.Write([]byte(tag))
			var ctr [8]byte
			binary.BigEndian.PutUint64(ctr[:], counter)
			h.Write(ctr[:])
			buf = h.Sum(nil)
			off = 0
			counter++
		}
		b := buf[off]
		off++
		return b, nil
	}
}

// Draw returns count distinct values in [1, max] derived from the beacon's
// current round.
func (s *BeaconSource) Draw(ctx context.Context, count, max int) ([]int, error) {
	if err := validateDraw(count, max); err != nil {
		return nil, err
	}
	seed, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return drawDistinct(ctx, expandSeed(seed, "numbers"), count, max)
}

// DrawBonus returns a single value in [1, max] derived from the beacon's
// current round.
func (s *BeaconSource) DrawBonus(ctx context.Context, max int) (int, error) {
	if err := validateDraw(1, max); err != nil {
		return 0, err
	}
	seed, err := s.fetch(ctx)
	if err != nil {
		return 0, err
	}
	out, err := drawDistinct(ctx, expandSeed(seed, "bonus"), 1, max)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}
