package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jmerrifield20/debenture/internal/bond"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultIPCAURL is the Banco Central SGS endpoint for series 433 (IPCA,
// monthly percent change).
const DefaultIPCAURL = "https://api.bcb.gov.br/dados/serie/bcdata.sgs.433/dados"

const sgsDateLayout = "02/01/2006"

var (
	hundred = decimal.NewFromInt(100)
	scale   = decimal.NewFromInt(bond.IndexScale)
)

// Point is one published monthly index change, in percent.
type Point struct {
	Month time.Time
	Value decimal.Decimal
}

// sgsPoint is the wire format of one SGS series observation.
type sgsPoint struct {
	Data  string `json:"data"`
	Valor string `json:"valor"`
}

// IPCAConfig configures an IPCA oracle.
type IPCAConfig struct {
	BaseURL  string
	BaseDate time.Time     // accumulation starts at this month
	CacheTTL time.Duration // 0 disables caching
	Timeout  time.Duration

	// OAuth, when non-nil, authenticates requests with the client-credentials
	// grant (for gateways fronting the public series).
	OAuth *clientcredentials.Config
}

// IPCA is an IndexOracle backed by the monthly IPCA series.
//
// Accumulated compounds every monthly change from BaseDate through the
// current month. Factor compounds the months in [month(from), month(to)).
type IPCA struct {
	baseURL  string
	baseDate time.Time
	http     *http.Client
	cache    *seriesCache
	now      func() time.Time
	logger   *zap.Logger
}

// NewIPCA creates an IPCA oracle.
func NewIPCA(cfg IPCAConfig, logger *zap.Logger) *IPCA {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultIPCAURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.OAuth != nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		client = cfg.OAuth.Client(ctx)
		client.Timeout = cfg.Timeout
	}

	return &IPCA{
		baseURL:  cfg.BaseURL,
		baseDate: monthStart(cfg.BaseDate),
		http:     client,
		cache:    newSeriesCache(cfg.CacheTTL),
		now:      time.Now,
		logger:   logger,
	}
}

// Accumulated implements bond.IndexOracle.
func (o *IPCA) Accumulated(ctx context.Context) (int64, error) {
	points, err := o.series(ctx, o.baseDate, o.now())
	if err != nil {
		return 0, err
	}
	return compound(points), nil
}

// Factor implements bond.IndexOracle. A range inside a single month yields
// the neutral factor.
func (o *IPCA) Factor(ctx context.Context, from, to time.Time) (int64, error) {
	start, end := monthStart(from), monthStart(to)
	if !end.After(start) {
		return bond.IndexScale, nil
	}
	points, err := o.series(ctx, start, end.AddDate(0, 0, -1))
	if err != nil {
		return 0, err
	}
	in := points[:0:0]
	for _, p := range points {
		if !p.Month.Before(start) && p.Month.Before(end) {
			in = append(in, p)
		}
	}
	return compound(in), nil
}

// Info implements Reporter. The series counts as updated when the latest
// publication is for the previous month or later.
func (o *IPCA) Info(ctx context.Context) (*Info, error) {
	now := o.now()
	points, err := o.series(ctx, o.baseDate, now)
	if err != nil {
		return nil, err
	}
	info := &Info{Accumulated: compound(points), Monthly: decimal.Zero}
	if n := len(points); n > 0 {
		last := points[n-1]
		info.Monthly = last.Value
		info.LastUpdate = last.Month
		info.IsUpdated = !last.Month.Before(monthStart(now).AddDate(0, -1, 0))
	}
	return info, nil
}

// StartCacheEviction starts a background goroutine that periodically evicts
// expired series downloads. Cancel ctx to stop it.
func (o *IPCA) StartCacheEviction(ctx context.Context, interval time.Duration) {
	if interval == 0 {
		interval = time.Hour
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := o.cache.evict(); n > 0 {
					o.logger.Debug("index cache eviction", zap.Int("evicted", n))
				}
			}
		}
	}()
}

// series returns the observations published for months in [from, to].
func (o *IPCA) series(ctx context.Context, from, to time.Time) ([]Point, error) {
	key := from.Format(sgsDateLayout) + "|" + to.Format(sgsDateLayout)
	if points, ok := o.cache.get(key); ok {
		return points, nil
	}

	u, err := url.Parse(o.baseURL)
	if err != nil {
		return nil, fmt.Errorf("build series URL: %w", err)
	}
	q := u.Query()
	q.Set("formato", "json")
	q.Set("dataInicial", from.Format(sgsDateLayout))
	q.Set("dataFinal", to.Format(sgsDateLayout))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build series request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("series request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("index source returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read series response: %w", err)
	}

	var raw []sgsPoint
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode series response: %w", err)
	}

	points := make([]Point, 0, len(raw))
	for _, r := range raw {
		month, err := time.ParseInLocation(sgsDateLayout, r.Data, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse observation date %q: %w", r.Data, err)
		}
		value, err := decimal.NewFromString(r.Valor)
		if err != nil {
			return nil, fmt.Errorf("parse observation value %q: %w", r.Valor, err)
		}
		points = append(points, Point{Month: monthStart(month), Value: value})
	}

	o.cache.set(key, points)
	o.logger.Debug("index series fetched",
		zap.String("from", from.Format(sgsDateLayout)),
		zap.String("to", to.Format(sgsDateLayout)),
		zap.Int("points", len(points)),
	)
	return points, nil
}

// compound multiplies (1 + v/100) over points and returns the result scaled
// by bond.IndexScale, truncated.
func compound(points []Point) int64 {
	acc := decimal.NewFromInt(1)
	for _, p := range points {
		acc = acc.Mul(decimal.NewFromInt(1).Add(p.Value.Div(hundred)))
	}
	return acc.Mul(scale).IntPart()
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
