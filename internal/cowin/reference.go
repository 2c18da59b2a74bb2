package cowin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	logx "github.com/abhijithasokan/cowin-slot-availability-telegram-bot/pkg/logx"
)

const (
	statesPath    = "/api/v2/admin/location/states"
	districtsPath = "/api/v2/admin/location/districts/"

	// Static hierarchy data changes rarely; cache for a full day.
	referenceTTL = 24 * time.Hour
)

type statesResponse struct {
	States []State `json:"states"`
}

type districtsResponse struct {
	Districts []District `json:"districts"`
}

// Reference serves the state/district hierarchy with two-tier staleness
// tolerance: a day-long in-memory cache backed by on-disk snapshots. When the
// live fetch fails, the last snapshot is served instead of failing the cycle.
type Reference struct {
	baseURL string
	http    *http.Client
	dir     string
	log     logx.Logger

	mu          sync.Mutex
	states      []State
	statesAt    time.Time
	districts   map[int][]District
	districtsAt map[int]time.Time
	names       map[int]string // district id -> name

	now func() time.Time
}

func NewReference(baseURL, dir string, timeout time.Duration, log logx.Logger) *Reference {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Reference{
		baseURL:     baseURL,
		http:        &http.Client{Timeout: timeout},
		dir:         dir,
		log:         log.With(logx.String("comp", "cowin.reference")),
		districts:   make(map[int][]District),
		districtsAt: make(map[int]time.Time),
		names:       make(map[int]string),
		now:         time.Now,
	}
	r.loadNamesFromDisk()
	return r
}

// States returns the state list, serving the in-memory copy within the TTL,
// then the live endpoint, then the on-disk snapshot.
func (r *Reference) States(ctx context.Context) ([]State, error) {
	r.mu.Lock()
	if len(r.states) > 0 && r.now().Sub(r.statesAt) < referenceTTL {
		out := r.states
		r.mu.Unlock()
		return out, nil
	}
	r.mu.Unlock()

	var body statesResponse
	err := r.getJSON(ctx, r.baseURL+statesPath, &body)
	if err == nil && len(body.States) > 0 {
		r.mu.Lock()
		r.states = body.States
		r.statesAt = r.now()
		r.mu.Unlock()
		r.writeSnapshot("states.json", body)
		return body.States, nil
	}

	// Degraded: serve the last snapshot rather than fail the caller.
	var disk statesResponse
	if derr := r.readSnapshot("states.json", &disk); derr == nil && len(disk.States) > 0 {
		r.log.Warn("live states fetch failed; serving disk snapshot", logx.Err(err))
		r.mu.Lock()
		r.states = disk.States
		r.mu.Unlock()
		return disk.States, nil
	}
	if err == nil {
		err = errors.New("empty states response")
	}
	return nil, fmt.Errorf("cowin: states unavailable: %w", err)
}

// Districts returns the district list for a state, with the same two-tier
// fallback as States.
func (r *Reference) Districts(ctx context.Context, stateID int) ([]District, error) {
	r.mu.Lock()
	if ds, ok := r.districts[stateID]; ok && r.now().Sub(r.districtsAt[stateID]) < referenceTTL {
		r.mu.Unlock()
		return ds, nil
	}
	r.mu.Unlock()

	file := fmt.Sprintf("districts_%d.json", stateID)

	var body districtsResponse
	err := r.getJSON(ctx, r.baseURL+districtsPath+strconv.Itoa(stateID), &body)
	if err == nil && len(body.Districts) > 0 {
		r.storeDistricts(stateID, body.Districts)
		r.writeSnapshot(file, body)
		return body.Districts, nil
	}

	var disk districtsResponse
	if derr := r.readSnapshot(file, &disk); derr == nil && len(disk.Districts) > 0 {
		r.log.Warn("live districts fetch failed; serving disk snapshot",
			logx.Int("state_id", stateID), logx.Err(err))
		r.storeDistricts(stateID, disk.Districts)
		return disk.Districts, nil
	}
	if err == nil {
		err = errors.New("empty districts response")
	}
	return nil, fmt.Errorf("cowin: districts unavailable for state %d: %w", stateID, err)
}

// DistrictName resolves a district code to its display name, if known.
func (r *Reference) DistrictName(code string) (string, bool) {
	id, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.names[id]
	return name, ok
}

func (r *Reference) storeDistricts(stateID int, ds []District) {
	r.mu.Lock()
	r.districts[stateID] = ds
	r.districtsAt[stateID] = r.now()
	for _, d := range ds {
		r.names[d.DistrictID] = d.DistrictName
	}
	r.mu.Unlock()
}

func (r *Reference) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	for k, v := range requestHeaders {
		req.Header.Set(k, v)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (r *Reference) writeSnapshot(name string, v any) {
	if strings.TrimSpace(r.dir) == "" {
		return
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		r.log.Warn("reference snapshot dir create failed", logx.Err(err))
		return
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(r.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		r.log.Warn("reference snapshot write failed", logx.String("path", path), logx.Err(err))
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		r.log.Warn("reference snapshot rename failed", logx.String("path", path), logx.Err(err))
	}
}

func (r *Reference) readSnapshot(name string, v any) error {
	if strings.TrimSpace(r.dir) == "" {
		return os.ErrNotExist
	}
	b, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// loadNamesFromDisk warms the district name map from any snapshots left by a
// previous run, so message rendering can name districts before the first
// live fetch.
func (r *Reference) loadNamesFromDisk() {
	if strings.TrimSpace(r.dir) == "" {
		return
	}
	matches, err := filepath.Glob(filepath.Join(r.dir, "districts_*.json"))
	if err != nil {
		return
	}
	for _, path := range matches {
		b, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var body districtsResponse
		if err := json.Unmarshal(b, &body); err != nil {
			continue
		}
		r.mu.Lock()
		for _, d := range body.Districts {
			r.names[d.DistrictID] = d.DistrictName
		}
		r.mu.Unlock()
	}
}
