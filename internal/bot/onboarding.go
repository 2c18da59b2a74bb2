package bot

import (
	"strings"
	"sync"

	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/cowin"
)

// The onboarding conversation is a linear form:
//
//	area type -> pincode | (state -> district) -> age -> done
//
// State lives in memory only; an interrupted conversation restarts with
// /start. Completed subscribers live in the store.
type step int

const (
	stepAreaType step = iota
	stepPincode
	stepState
	stepDistrict
	stepAge
)

type onboarding struct {
	step     step
	areaType cowin.AreaType
	areaCode string

	// district flow
	stateID   int
	districts []cowin.District
}

// sessionStore is a mutex-guarded map of in-flight onboarding conversations
// keyed by chat id.
type sessionStore struct {
	mu sync.Mutex
	m  map[int64]*onboarding
}

func newSessionStore() *sessionStore {
	return &sessionStore{m: make(map[int64]*onboarding)}
}

func (s *sessionStore) get(chatID int64) (*onboarding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.m[chatID]
	return o, ok
}

func (s *sessionStore) put(chatID int64, o *onboarding) {
	s.mu.Lock()
	s.m[chatID] = o
	s.mu.Unlock()
}

func (s *sessionStore) drop(chatID int64) {
	s.mu.Lock()
	delete(s.m, chatID)
	s.mu.Unlock()
}

func validPincode(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	// Indian pincodes never start with 0.
	return s[0] != '0'
}
