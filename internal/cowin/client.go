package cowin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	logx "github.com/abhijithasokan/cowin-slot-availability-telegram-bot/pkg/logx"
)

// ErrUnavailable marks an upstream failure: non-2xx status, timeout, or a
// body that does not decode. Callers skip the affected segment for the cycle.
var ErrUnavailable = errors.New("cowin: upstream unavailable")

const (
	pinCalendarPath      = "/api/v2/appointment/sessions/public/calendarByPin"
	districtCalendarPath = "/api/v2/appointment/sessions/public/calendarByDistrict"
)

// CoWIN's CDN rejects requests without browser-like headers.
var requestHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64; rv:86.0) Gecko/20100101 Firefox/86.0",
	"Accept":          "application/json, text/html;q=0.9, */*;q=0.8",
	"Accept-Language": "en-US,en;q=0.5",
	"Cache-Control":   "no-cache",
	"Pragma":          "no-cache",
}

type ClientOptions struct {
	BaseURL         string
	Timeout         time.Duration
	CacheTTL        time.Duration
	CacheMaxEntries int
	RatePerSec      int
	Log             logx.Logger
}

// Client is a cached, rate-limited reader of the CoWIN calendar endpoints.
// One instance lives for the whole process run and is shared by the bot's
// on-demand queries and the broadcast cycle.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	cache   *ttlCache
	log     logx.Logger
}

func NewClient(opt ClientOptions) *Client {
	if opt.Timeout <= 0 {
		opt.Timeout = 15 * time.Second
	}
	if opt.CacheTTL <= 0 {
		opt.CacheTTL = 120 * time.Second
	}
	if opt.CacheMaxEntries <= 0 {
		opt.CacheMaxEntries = 1024
	}
	rps := opt.RatePerSec
	if rps <= 0 {
		rps = 2
	}
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		baseURL: opt.BaseURL,
		http:    &http.Client{Timeout: opt.Timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		cache:   newTTLCache(opt.CacheTTL, opt.CacheMaxEntries),
		log:     log.With(logx.String("comp", "cowin.client")),
	}
}

func cacheKey(areaType AreaType, areaCode, dateStr string) string {
	return string(areaType) + "|" + areaCode + "|" + dateStr
}

// Fetch returns the raw centers for an area and calendar day, serving from
// cache within the TTL. Failures evict the key and return ErrUnavailable;
// a failure is never cached.
//
// A successful district fetch also back-fills pincode-keyed entries grouped
// by the centers' pincode field, so pincode segments covered by the same
// district skip their upstream call within the TTL.
func (c *Client) Fetch(ctx context.Context, areaCode string, date time.Time, areaType AreaType) ([]RawCenter, error) {
	dateStr := date.Format(DateFormat)
	key := cacheKey(areaType, areaCode, dateStr)

	if centers, ok := c.cache.Get(key); ok {
		return centers, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	centers, err := c.fetchCalendar(ctx, areaCode, dateStr, areaType)
	if err != nil {
		c.cache.Evict(key)
		return nil, err
	}

	c.cache.Put(key, centers)
	if areaType == AreaDistrict {
		c.backfillPincodes(centers, dateStr)
	}
	return centers, nil
}

func (c *Client) fetchCalendar(ctx context.Context, areaCode, dateStr string, areaType AreaType) ([]RawCenter, error) {
	u, err := c.calendarURL(areaCode, dateStr, areaType)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range requestHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("calendar fetch failed", logx.String("area", areaCode), logx.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little for connection reuse; the body content is not useful.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		c.log.Warn("calendar fetch non-success status",
			logx.String("area", areaCode), logx.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body calendarResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.log.Warn("calendar body decode failed", logx.String("area", areaCode), logx.Err(err))
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	return body.Centers, nil
}

func (c *Client) calendarURL(areaCode, dateStr string, areaType AreaType) (string, error) {
	q := url.Values{}
	q.Set("date", dateStr)
	switch areaType {
	case AreaPincode:
		q.Set("pincode", areaCode)
		return c.baseURL + pinCalendarPath + "?" + q.Encode(), nil
	case AreaDistrict:
		q.Set("district_id", areaCode)
		return c.baseURL + districtCalendarPath + "?" + q.Encode(), nil
	default:
		return "", fmt.Errorf("cowin: unknown area type %q", areaType)
	}
}

func (c *Client) backfillPincodes(centers []RawCenter, dateStr string) {
	byPin := make(map[int][]RawCenter)
	for _, ct := range centers {
		if ct.Pincode <= 0 {
			continue
		}
		byPin[ct.Pincode] = append(byPin[ct.Pincode], ct)
	}
	for pin, group := range byPin {
		c.cache.Put(cacheKey(AreaPincode, strconv.Itoa(pin), dateStr), group)
	}
	if len(byPin) > 0 {
		c.log.Debug("backfilled pincode cache entries from district response",
			logx.Int("pincodes", len(byPin)))
	}
}
