package broadcast

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/cowin"
	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/store"
	logx "github.com/abhijithasokan/cowin-slot-availability-telegram-bot/pkg/logx"
)

// Fetcher is the upstream connector surface the cycle needs. Its cache must
// be safe for concurrent use; segment workers share one instance.
type Fetcher interface {
	Fetch(ctx context.Context, areaCode string, date time.Time, areaType cowin.AreaType) ([]cowin.RawCenter, error)
}

// Storage is the persistence surface the cycle needs.
type Storage interface {
	ActiveSubscribers(ctx context.Context) ([]store.Subscriber, error)
	AreaUpdates(ctx context.Context) (map[store.AreaKey]store.AreaUpdate, error)
	CommitCycle(ctx context.Context, updates []store.AreaUpdate, delivered []int64, at time.Time) error
}

type Config struct {
	Workers     int
	MinCapacity int
	RatePerSec  int // telegram sends per second across all workers
	TopCenters  int
	MaxLen      int
	Engine      Engine
}

// Service runs one externally-triggered broadcast cycle at a time.
type Service struct {
	cfg     Config
	fetcher Fetcher
	storage Storage
	sender  Sender
	builder Builder
	engine  Engine
	limiter *rate.Limiter
	log     logx.Logger

	now func() time.Time
}

func New(cfg Config, fetcher Fetcher, storage Storage, sender Sender, districtName func(string) (string, bool), log logx.Logger) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MinCapacity <= 0 {
		cfg.MinCapacity = 1
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 20
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		fetcher: fetcher,
		storage: storage,
		sender:  sender,
		builder: Builder{TopCenters: cfg.TopCenters, MaxLen: cfg.MaxLen, DistrictName: districtName},
		engine:  cfg.Engine,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log.With(logx.String("comp", "broadcast")),
	}
}

// areaJob is one upstream query's worth of work: every eligibility segment
// sharing an (area type, area code) pair.
type areaJob struct {
	areaType cowin.AreaType
	areaCode string
	byAge    map[int][]int64
}

// cycleResult stages the state to commit once every segment is done.
// Accounting increments are commutative, so append order doesn't matter.
type cycleResult struct {
	mu        sync.Mutex
	updates   []store.AreaUpdate
	delivered []int64
	notified  int
	skipped   int
}

func (r *cycleResult) stage(rec store.AreaUpdate, delivered []int64) {
	r.mu.Lock()
	r.updates = append(r.updates, rec)
	r.delivered = append(r.delivered, delivered...)
	r.notified++
	r.mu.Unlock()
}

func (r *cycleResult) skip() {
	r.mu.Lock()
	r.skipped++
	r.mu.Unlock()
}

// RunCycle processes every active segment once: fetch, filter, threshold,
// build, dispatch, then a single state commit. Errors in one segment never
// abort another; the only returned errors are store-level.
func (s *Service) RunCycle(ctx context.Context) error {
	start := s.clock()()

	subs, err := s.storage.ActiveSubscribers(ctx)
	if err != nil {
		return err
	}
	records, err := s.storage.AreaUpdates(ctx)
	if err != nil {
		return err
	}

	segs := Segment(subs)
	jobs := flattenJobs(segs)
	if len(jobs) == 0 {
		s.log.Debug("no active segments")
		return nil
	}

	s.log.Info("cycle started",
		logx.Int("subscribers", len(subs)), logx.Int("areas", len(jobs)))

	res := &cycleResult{}
	workers := s.cfg.Workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	queue := make(chan areaJob)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				s.processArea(ctx, job, start, records, res)
			}
		}()
	}
	for _, job := range jobs {
		queue <- job
	}
	close(queue)
	wg.Wait()

	if err := s.storage.CommitCycle(ctx, res.updates, res.delivered, s.clock()()); err != nil {
		return err
	}

	s.log.Info("cycle finished",
		logx.Int("notified_segments", res.notified),
		logx.Int("skipped_segments", res.skipped),
		logx.Int("deliveries", len(res.delivered)),
		logx.Duration("took", s.clock()().Sub(start)))
	return nil
}

// processArea runs every eligibility segment for one area. Each AreaUpdate
// key belongs to exactly one job, so a record is only ever staged by the one
// worker holding its area.
func (s *Service) processArea(ctx context.Context, job areaJob, date time.Time, records map[store.AreaKey]store.AreaUpdate, res *cycleResult) {
	centers, err := s.fetcher.Fetch(ctx, job.areaCode, date, job.areaType)
	if err != nil {
		s.log.Warn("upstream unavailable; skipping area this cycle",
			logx.String("area_type", string(job.areaType)),
			logx.String("area", job.areaCode), logx.Err(err))
		res.skip()
		return
	}

	for _, age := range sortedAges(job.byAge) {
		key := store.AreaKey{AreaType: job.areaType, AreaCode: job.areaCode, MinAge: age}

		facilities, err := cowin.FilterFacilities(centers, age, s.cfg.MinCapacity)
		if err != nil {
			// Fail loud on a malformed snapshot; a partially-trusted parse
			// would poison the threshold baselines.
			s.log.Warn("snapshot parse failed; skipping segment",
				logx.String("area", job.areaCode), logx.Int("min_age", age), logx.Err(err))
			res.skip()
			continue
		}

		slots := cowin.SlotCount(facilities)
		if slots == 0 {
			// An empty segment never clobbers a non-empty baseline.
			res.skip()
			continue
		}

		var rec *store.AreaUpdate
		if r, ok := records[key]; ok {
			rc := r
			rec = &rc
		}
		if !s.engine.ShouldNotify(rec, slots, len(facilities), s.clock()()) {
			s.log.Debug("change below threshold",
				logx.String("area", job.areaCode), logx.Int("min_age", age),
				logx.Int("slots", slots), logx.Int("centers", len(facilities)))
			res.skip()
			continue
		}

		summary := s.builder.Summary(slots, len(facilities), key)
		chunks := s.builder.Build(summary, facilities)

		users := job.byAge[age]
		delivered := s.dispatch(ctx, chunks, users)

		s.log.Info("segment notified",
			logx.String("area_type", string(job.areaType)),
			logx.String("area", job.areaCode), logx.Int("min_age", age),
			logx.Int("slots", slots), logx.Int("centers", len(facilities)),
			logx.Int("delivered", len(delivered)), logx.Int("targets", len(users)))

		if len(delivered) == 0 && len(users) > 0 {
			// Nothing got through; leave the record so the segment retries
			// next cycle instead of believing the update was delivered.
			continue
		}
		res.stage(store.AreaUpdate{
			Key:     key,
			Summary: store.EncodeSummary(slots, len(facilities)),
			SentAt:  s.clock()(),
		}, delivered)
	}
}

// flattenJobs orders district areas before pincode areas so the connector's
// back-filled pincode entries can serve pincode jobs later in the same cycle.
func flattenJobs(segs Segments) []areaJob {
	var jobs []areaJob
	for _, areaType := range []cowin.AreaType{cowin.AreaDistrict, cowin.AreaPincode} {
		byArea := segs[areaType]
		codes := make([]string, 0, len(byArea))
		for code := range byArea {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			jobs = append(jobs, areaJob{areaType: areaType, areaCode: code, byAge: byArea[code]})
		}
	}
	return jobs
}

func sortedAges(byAge map[int][]int64) []int {
	ages := make([]int, 0, len(byAge))
	for age := range byAge {
		ages = append(ages, age)
	}
	sort.Ints(ages)
	return ages
}

func (s *Service) clock() func() time.Time {
	if s.now != nil {
		return s.now
	}
	return time.Now
}
