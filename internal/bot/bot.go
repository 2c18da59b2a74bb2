// Package bot implements the conversational surface: onboarding, pause and
// resume, and on-demand availability queries.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/broadcast"
	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/cowin"
	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/store"
	"github.com/abhijithasokan/cowin-slot-availability-telegram-bot/internal/transport/telegram"
	logx "github.com/abhijithasokan/cowin-slot-availability-telegram-bot/pkg/logx"
)

const requestTimeout = 15 * time.Second

type Service struct {
	adapter  *telegram.Adapter
	st       *store.Store
	client   *cowin.Client
	ref      *cowin.Reference
	builder  broadcast.Builder
	sessions *sessionStore
	log      logx.Logger

	minCapacity int
}

func New(adapter *telegram.Adapter, st *store.Store, client *cowin.Client, ref *cowin.Reference, minCapacity int, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if minCapacity <= 0 {
		minCapacity = 1
	}
	return &Service{
		adapter:     adapter,
		st:          st,
		client:      client,
		ref:         ref,
		builder:     broadcast.Builder{MaxLen: telegram.MaxMessageLength, DistrictName: ref.DistrictName},
		sessions:    newSessionStore(),
		log:         log.With(logx.String("comp", "bot")),
		minCapacity: minCapacity,
	}
}

// Register installs all command and text handlers on the telebot instance.
func (s *Service) Register() {
	b := s.adapter.Bot()
	b.Handle("/start", s.handleStart)
	b.Handle("/update", s.handleUpdate)
	b.Handle("/help", s.handleHelp)
	b.Handle("/stop_receiving_updates", s.handleStop)
	b.Handle("/resume_updates", s.handleResume)
	b.Handle("/get_latest", s.handleLatest)
	b.Handle(tele.OnText, s.handleText)
}

func (s *Service) handleStart(c tele.Context) error {
	if err := c.Send(msgWelcome); err != nil {
		return err
	}
	return s.beginOnboarding(c)
}

func (s *Service) handleUpdate(c tele.Context) error {
	return s.beginOnboarding(c)
}

func (s *Service) beginOnboarding(c tele.Context) error {
	s.sessions.put(c.Chat().ID, &onboarding{step: stepAreaType})
	return c.Send(msgAskAreaType, choiceKeyboard(choicePincode, choiceDistrict))
}

func (s *Service) handleHelp(c tele.Context) error {
	return c.Send(msgHelp)
}

func (s *Service) handleStop(c tele.Context) error {
	return s.setSubscribed(c, false, msgStopped)
}

func (s *Service) handleResume(c tele.Context) error {
	return s.setSubscribed(c, true, msgResumed)
}

func (s *Service) setSubscribed(c tele.Context, subscribed bool, reply string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	err := s.st.SetSubscribed(ctx, c.Chat().ID, subscribed)
	if errors.Is(err, store.ErrNotFound) {
		return c.Send(msgNotOnboarded)
	}
	if err != nil {
		s.log.Error("subscription toggle failed", logx.Int64("user_id", c.Chat().ID), logx.Err(err))
		return c.Send("Something went wrong, please try again")
	}
	return c.Send(reply)
}

// handleLatest fetches and renders the caller's current filtered list.
func (s *Service) handleLatest(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	sub, err := s.st.GetSubscriber(ctx, c.Chat().ID)
	if errors.Is(err, store.ErrNotFound) {
		return c.Send(msgNotOnboarded)
	}
	if err != nil {
		return err
	}

	centers, err := s.client.Fetch(ctx, sub.AreaCode, time.Now(), sub.AreaType)
	if err != nil {
		return c.Send(msgFetchFailed)
	}
	facilities, err := cowin.FilterFacilities(centers, sub.MinAge, s.minCapacity)
	if err != nil {
		s.log.Warn("snapshot parse failed on /get_latest",
			logx.String("area", sub.AreaCode), logx.Err(err))
		return c.Send(msgFetchFailed)
	}
	if len(facilities) == 0 {
		return c.Send(msgNoSlots)
	}

	key := store.AreaKey{AreaType: sub.AreaType, AreaCode: sub.AreaCode, MinAge: sub.MinAge}
	summary := s.builder.Summary(cowin.SlotCount(facilities), len(facilities), key)
	for _, chunk := range s.builder.Build(summary, facilities) {
		if err := c.Send(chunk); err != nil {
			return err
		}
	}
	return nil
}

// handleText advances an in-flight onboarding conversation, if any.
func (s *Service) handleText(c tele.Context) error {
	chatID := c.Chat().ID
	pending, ok := s.sessions.get(chatID)
	if !ok {
		return c.Send(msgHelp)
	}

	text := strings.TrimSpace(c.Text())
	switch pending.step {
	case stepAreaType:
		return s.stepAreaType(c, pending, text)
	case stepPincode:
		return s.stepPincode(c, pending, text)
	case stepState:
		return s.stepState(c, pending, text)
	case stepDistrict:
		return s.stepDistrict(c, pending, text)
	case stepAge:
		return s.stepAge(c, pending, text)
	default:
		s.sessions.drop(chatID)
		return c.Send(msgHelp)
	}
}

func (s *Service) stepAreaType(c tele.Context, pending *onboarding, text string) error {
	switch {
	case strings.EqualFold(text, choicePincode):
		pending.areaType = cowin.AreaPincode
		pending.step = stepPincode
		return c.Send(msgAskPincode, removeKeyboard())
	case strings.EqualFold(text, choiceDistrict):
		pending.areaType = cowin.AreaDistrict
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		states, err := s.ref.States(ctx)
		if err != nil {
			s.log.Warn("states unavailable during onboarding", logx.Err(err))
			return c.Send(msgFetchFailed)
		}
		pending.step = stepState
		labels := make([]string, 0, len(states))
		for _, st := range states {
			labels = append(labels, st.StateName)
		}
		return c.Send(msgAskState, choiceKeyboard(labels...))
	default:
		return c.Send(msgAskAreaType, choiceKeyboard(choicePincode, choiceDistrict))
	}
}

func (s *Service) stepPincode(c tele.Context, pending *onboarding, text string) error {
	if !validPincode(text) {
		return c.Send(msgBadPincode)
	}
	pending.areaCode = text
	return s.askAge(c, pending)
}

func (s *Service) stepState(c tele.Context, pending *onboarding, text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	states, err := s.ref.States(ctx)
	if err != nil {
		return c.Send(msgFetchFailed)
	}
	var stateID int
	for _, st := range states {
		if strings.EqualFold(st.StateName, text) {
			stateID = st.StateID
			break
		}
	}
	if stateID == 0 {
		return c.Send(msgBadState)
	}

	districts, err := s.ref.Districts(ctx, stateID)
	if err != nil {
		s.log.Warn("districts unavailable during onboarding",
			logx.Int("state_id", stateID), logx.Err(err))
		return c.Send(msgFetchFailed)
	}
	pending.stateID = stateID
	pending.districts = districts
	pending.step = stepDistrict

	labels := make([]string, 0, len(districts))
	for _, d := range districts {
		labels = append(labels, d.DistrictName)
	}
	return c.Send(msgAskDistrict, choiceKeyboard(labels...))
}

func (s *Service) stepDistrict(c tele.Context, pending *onboarding, text string) error {
	for _, d := range pending.districts {
		if strings.EqualFold(d.DistrictName, text) {
			pending.areaCode = strconv.Itoa(d.DistrictID)
			return s.askAge(c, pending)
		}
	}
	return c.Send(msgBadDistrict)
}

func (s *Service) askAge(c tele.Context, pending *onboarding) error {
	pending.step = stepAge
	return c.Send(msgAskAge, choiceKeyboard(ageChoiceOrder...))
}

func (s *Service) stepAge(c tele.Context, pending *onboarding, text string) error {
	minAge, ok := ageChoices[text]
	if !ok {
		return c.Send(msgBadAge, choiceKeyboard(ageChoiceOrder...))
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	sender := c.Sender()
	sub := store.Subscriber{
		UserID:     c.Chat().ID,
		Subscribed: true,
		AreaType:   pending.areaType,
		AreaCode:   pending.areaCode,
		MinAge:     minAge,
	}
	if sender != nil {
		sub.Username = sender.Username
		sub.FullName = strings.TrimSpace(sender.FirstName + " " + sender.LastName)
	}
	if err := s.st.UpsertSubscriber(ctx, sub); err != nil {
		s.log.Error("subscriber upsert failed", logx.Int64("user_id", sub.UserID), logx.Err(err))
		return c.Send("Something went wrong, please try again")
	}
	s.sessions.drop(c.Chat().ID)

	s.log.Info("subscriber onboarded",
		logx.Int64("user_id", sub.UserID),
		logx.String("area_type", string(sub.AreaType)),
		logx.String("area", sub.AreaCode), logx.Int("min_age", minAge))

	confirm := fmt.Sprintf("Will notify you when slots are available in %s for %s age group",
		sub.AreaCode, text)
	if err := c.Send(confirm, removeKeyboard()); err != nil {
		return err
	}
	return c.Send("Press /get_latest to see the current availability")
}

func choiceKeyboard(labels ...string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	const perRow = 2
	var rows []tele.Row
	for i := 0; i < len(labels); i += perRow {
		end := i + perRow
		if end > len(labels) {
			end = len(labels)
		}
		btns := make([]tele.Btn, 0, perRow)
		for _, l := range labels[i:end] {
			btns = append(btns, markup.Text(l))
		}
		rows = append(rows, markup.Row(btns...))
	}
	markup.Reply(rows...)
	return markup
}

func removeKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}
