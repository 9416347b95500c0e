// Package tracker implements the per-user auction collections: bids,
// watchlist and future cards.
package tracker

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "auction-tracker/internal/errors"
	"auction-tracker/internal/expiry"
	"auction-tracker/internal/logging"
	"auction-tracker/internal/models"
	"auction-tracker/internal/store"
)

// Scheduler is notified whenever a watchlist item is created or its end
// time changes.
type Scheduler interface {
	Schedule(ctx context.Context, userID string, item *models.WatchlistItem) error
	Unschedule(ctx context.Context, userID, itemID string) error
}

// Service performs user-data operations, one item at a time.
type Service struct {
	store     store.DataStore
	scheduler Scheduler
	logger    zerolog.Logger
	now       func() time.Time
	newID     func() string
}

// New creates a Service.
func New(ds store.DataStore, scheduler Scheduler, logger zerolog.Logger) *Service {
	return &Service{
		store:     ds,
		scheduler: scheduler,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// WatchInput describes a new watchlist item. When EndTime is set it is used
// as-is; otherwise a positive HoursLeft opens a window of that many hours
// starting now. LegacyHours stores a bare countdown instead, the way older
// clients recorded it; such items have no end time and are only moved by
// the countdown poller. With none of them the item has no end time.
type WatchInput struct {
	CardName        string
	Seller          string
	Price           *decimal.Decimal
	Description     string
	Race            string
	Rarity          int
	HasBids         bool
	ActivelyBidding bool
	HoursLeft       float64
	LegacyHours     float64
	EndTime         time.Time
}

// WatchUpdate changes selected fields of a watchlist item. Nil fields are
// left unchanged.
type WatchUpdate struct {
	CardName        *string
	Seller          *string
	Price           *decimal.Decimal
	Description     *string
	Race            *string
	Rarity          *int
	HasBids         *bool
	ActivelyBidding *bool
	HoursLeft       *float64
}

// BidInput describes a new current bid.
type BidInput struct {
	CardName    string
	Seller      string
	GoldAmount  *decimal.Decimal
	HoursLeft   float64
	LegacyHours float64
	EndTime     time.Time
	Outbid      bool
	PlanToRebid bool
}

// BidUpdate changes selected fields of a bid.
type BidUpdate struct {
	GoldAmount  *decimal.Decimal
	Outbid      *bool
	PlanToRebid *bool
	HoursLeft   *float64
}

// ItemStatus is a watchlist item with its remaining time resolved.
type ItemStatus struct {
	Item      models.WatchlistItem `json:"item"`
	Remaining expiry.Remaining     `json:"remaining"`
	Urgency   expiry.Urgency       `json:"urgency"`
	Label     string               `json:"label"`
	Progress  float64              `json:"progress"`
}

// RegisterUser creates or updates the account record that notifications
// are addressed to.
func (s *Service) RegisterUser(ctx context.Context, userID, email string) (*models.User, error) {
	userID = strings.TrimSpace(userID)
	email = strings.TrimSpace(email)

	if userID == "" {
		return nil, apperrors.NewValidationError("user_id", userID, "must not be empty")
	}
	if email != "" && !strings.Contains(email, "@") {
		return nil, apperrors.NewValidationError("email", email, "must be an email address")
	}

	user := &models.User{ID: userID, Email: email}
	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, err
	}

	log := logging.WithUser(s.logger, userID)
	log.Info().Str("email", logging.MaskEmail(email)).Msg("User registered")
	return user, nil
}

// UserData returns every collection owned by userID. Unknown users get
// empty collections.
func (s *Service) UserData(ctx context.Context, userID string) (*models.UserData, error) {
	return s.store.GetUserData(ctx, userID)
}

// ============================================================================
// Watchlist
// ============================================================================

// AddWatchItem stores a new watchlist item and schedules its
// auction-ended notification.
func (s *Service) AddWatchItem(ctx context.Context, userID string, in WatchInput) (*models.WatchlistItem, error) {
	if err := validateCardName(in.CardName); err != nil {
		return nil, err
	}
	race, err := validateRace(in.Race)
	if err != nil {
		return nil, err
	}
	if err := validateRarity(in.Rarity); err != nil {
		return nil, err
	}
	timing, err := s.inputTiming(in.HoursLeft, in.LegacyHours, in.EndTime)
	if err != nil {
		return nil, err
	}

	item := &models.WatchlistItem{
		ID:              s.newID(),
		CardName:        strings.TrimSpace(in.CardName),
		Seller:          strings.TrimSpace(in.Seller),
		Price:           in.Price,
		Description:     in.Description,
		Race:            race,
		Rarity:          in.Rarity,
		HasBids:         in.HasBids,
		ActivelyBidding: in.ActivelyBidding,
		Timing:          timing,
		CreatedAt:       s.now().UTC(),
	}

	if err := s.createWatchItem(ctx, userID, item); err != nil {
		return nil, err
	}
	return item, nil
}

// createWatchItem persists a new item and fires the creation hook.
func (s *Service) createWatchItem(ctx context.Context, userID string, item *models.WatchlistItem) error {
	if err := s.store.SaveWatchItem(ctx, userID, item); err != nil {
		return err
	}
	log := logging.WithItem(s.logger, userID, item.ID)
	log.Debug().Str("card", item.CardName).Msg("Watch item added")

	if err := s.scheduler.Schedule(ctx, userID, item); err != nil {
		return apperrors.Wrapf(err, "item %s saved", item.ID)
	}
	return nil
}

// UpdateWatchItem applies upd to an existing item. Changing HoursLeft opens
// a new window from now and reschedules a still-pending notification; a
// HoursLeft of zero clears the end time and cancels it.
func (s *Service) UpdateWatchItem(ctx context.Context, userID, itemID string, upd WatchUpdate) (*models.WatchlistItem, error) {
	item, err := s.store.GetWatchItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	if upd.CardName != nil {
		if err := validateCardName(*upd.CardName); err != nil {
			return nil, err
		}
		item.CardName = strings.TrimSpace(*upd.CardName)
	}
	if upd.Seller != nil {
		item.Seller = strings.TrimSpace(*upd.Seller)
	}
	if upd.Price != nil {
		item.Price = upd.Price
	}
	if upd.Description != nil {
		item.Description = *upd.Description
	}
	if upd.Race != nil {
		race, err := validateRace(*upd.Race)
		if err != nil {
			return nil, err
		}
		item.Race = race
	}
	if upd.Rarity != nil {
		if err := validateRarity(*upd.Rarity); err != nil {
			return nil, err
		}
		item.Rarity = *upd.Rarity
	}
	if upd.HasBids != nil {
		item.HasBids = *upd.HasBids
	}
	if upd.ActivelyBidding != nil {
		item.ActivelyBidding = *upd.ActivelyBidding
	}

	retimed := false
	if upd.HoursLeft != nil {
		timing, err := s.timingFor(*upd.HoursLeft, time.Time{})
		if err != nil {
			return nil, err
		}
		item.Timing = timing
		retimed = true
	}

	if err := s.store.SaveWatchItem(ctx, userID, item); err != nil {
		return nil, err
	}

	switch {
	case retimed && !item.HasEndTime():
		if err := s.scheduler.Unschedule(ctx, userID, item.ID); err != nil {
			return nil, apperrors.Wrapf(err, "item %s saved", item.ID)
		}
	case retimed || upd.CardName != nil:
		if err := s.scheduler.Schedule(ctx, userID, item); err != nil {
			return nil, apperrors.Wrapf(err, "item %s saved", item.ID)
		}
	}
	return item, nil
}

// ImportWatchlist replaces the whole watchlist with items, in order. Items
// without an id get one. Every imported item with an end time is
// (re)scheduled and pending records of items without one are cancelled.
// Items dropped by the import keep their records, as with DeleteWatchItem.
func (s *Service) ImportWatchlist(ctx context.Context, userID string, items []models.WatchlistItem) ([]models.WatchlistItem, error) {
	seen := make(map[string]bool, len(items))
	now := s.now().UTC()

	for i := range items {
		item := &items[i]
		if err := validateCardName(item.CardName); err != nil {
			return nil, apperrors.Wrapf(err, "item %d", i)
		}
		race, err := validateRace(string(item.Race))
		if err != nil {
			return nil, apperrors.Wrapf(err, "item %d", i)
		}
		if err := validateRarity(item.Rarity); err != nil {
			return nil, apperrors.Wrapf(err, "item %d", i)
		}
		if err := validateTiming(item.Timing); err != nil {
			return nil, apperrors.Wrapf(err, "item %d", i)
		}

		if item.ID == "" {
			item.ID = s.newID()
		}
		if seen[item.ID] {
			return nil, apperrors.Wrapf(apperrors.NewValidationError("id", item.ID, "must be unique"), "item %d", i)
		}
		seen[item.ID] = true

		item.CardName = strings.TrimSpace(item.CardName)
		item.Seller = strings.TrimSpace(item.Seller)
		item.Race = race
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
	}

	if err := s.store.ReplaceWatchlist(ctx, userID, items); err != nil {
		return nil, err
	}

	for i := range items {
		item := &items[i]
		var err error
		if item.HasEndTime() {
			err = s.scheduler.Schedule(ctx, userID, item)
		} else {
			err = s.scheduler.Unschedule(ctx, userID, item.ID)
		}
		if err != nil {
			return nil, apperrors.Wrapf(err, "watchlist imported")
		}
	}

	log := logging.WithUser(s.logger, userID)
	log.Info().Int("items", len(items)).Msg("Watchlist imported")
	return items, nil
}

// DeleteWatchItem removes an item from the watchlist. Its notification
// record, if any, is kept.
func (s *Service) DeleteWatchItem(ctx context.Context, userID, itemID string) error {
	return s.store.DeleteWatchItem(ctx, userID, itemID)
}

// MoveWatchToBids turns a watched item into a current bid with the given
// amount, or the item's price when amount is nil. The bid keeps the item's
// id and timing.
func (s *Service) MoveWatchToBids(ctx context.Context, userID, itemID string, amount *decimal.Decimal) (*models.CurrentBid, error) {
	item, err := s.store.GetWatchItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		amount = item.Price
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	bid := &models.CurrentBid{
		ID:         item.ID,
		CardName:   item.CardName,
		BidTime:    now,
		Timing:     item.Timing,
		Seller:     item.Seller,
		GoldAmount: amount,
		CreatedAt:  now,
	}

	// Save first so a failed delete leaves a duplicate rather than a loss.
	if err := s.store.SaveBid(ctx, userID, bid); err != nil {
		return nil, err
	}
	if err := s.store.DeleteWatchItem(ctx, userID, itemID); err != nil {
		return nil, apperrors.Wrapf(err, "bid %s created", bid.ID)
	}

	log := logging.WithItem(s.logger, userID, itemID)
	log.Info().Msg("Watch item moved to bids")
	return bid, nil
}

// WatchStatus resolves the remaining time of every watchlist item.
func (s *Service) WatchStatus(ctx context.Context, userID string) ([]ItemStatus, error) {
	items, err := s.store.GetWatchlist(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]ItemStatus, 0, len(items))
	for i := range items {
		r := expiry.ResolveItem(&items[i], now)
		out = append(out, ItemStatus{
			Item:      items[i],
			Remaining: r,
			Urgency:   expiry.Classify(r),
			Label:     expiry.Format(r.Hours),
			Progress:  expiry.Progress(r),
		})
	}
	return out, nil
}

// ============================================================================
// Current bids
// ============================================================================

// AddBid stores a new current bid.
func (s *Service) AddBid(ctx context.Context, userID string, in BidInput) (*models.CurrentBid, error) {
	if err := validateCardName(in.CardName); err != nil {
		return nil, err
	}
	if err := validateAmount(in.GoldAmount); err != nil {
		return nil, err
	}
	timing, err := s.inputTiming(in.HoursLeft, in.LegacyHours, in.EndTime)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	bid := &models.CurrentBid{
		ID:          s.newID(),
		CardName:    strings.TrimSpace(in.CardName),
		BidTime:     now,
		Timing:      timing,
		Seller:      strings.TrimSpace(in.Seller),
		GoldAmount:  in.GoldAmount,
		Outbid:      in.Outbid,
		PlanToRebid: in.PlanToRebid,
		CreatedAt:   now,
	}
	if err := s.store.SaveBid(ctx, userID, bid); err != nil {
		return nil, err
	}
	return bid, nil
}

// UpdateBid applies upd to an existing bid.
func (s *Service) UpdateBid(ctx context.Context, userID, bidID string, upd BidUpdate) (*models.CurrentBid, error) {
	bid, err := s.store.GetBid(ctx, userID, bidID)
	if err != nil {
		return nil, err
	}

	if upd.GoldAmount != nil {
		if err := validateAmount(upd.GoldAmount); err != nil {
			return nil, err
		}
		bid.GoldAmount = upd.GoldAmount
	}
	if upd.Outbid != nil {
		bid.Outbid = *upd.Outbid
	}
	if upd.PlanToRebid != nil {
		bid.PlanToRebid = *upd.PlanToRebid
	}
	if upd.HoursLeft != nil {
		timing, err := s.timingFor(*upd.HoursLeft, time.Time{})
		if err != nil {
			return nil, err
		}
		bid.Timing = timing
	}

	if err := s.store.SaveBid(ctx, userID, bid); err != nil {
		return nil, err
	}
	return bid, nil
}

// DeleteBid removes a bid.
func (s *Service) DeleteBid(ctx context.Context, userID, bidID string) error {
	return s.store.DeleteBid(ctx, userID, bidID)
}

// ============================================================================
// Future cards
// ============================================================================

// AddFutureCard records a card the user wants to watch once it is listed.
func (s *Service) AddFutureCard(ctx context.Context, userID, name string) (*models.FutureCard, error) {
	if err := validateCardName(name); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)

	card := &models.FutureCard{
		ID:        s.newID(),
		Name:      name,
		DateAdded: s.now().UTC(),
	}
	if err := s.store.SaveFutureCard(ctx, userID, card); err != nil {
		return nil, err
	}
	return card, nil
}

// DeleteFutureCard removes a future card.
func (s *Service) DeleteFutureCard(ctx context.Context, userID, cardID string) error {
	return s.store.DeleteFutureCard(ctx, userID, cardID)
}

// MoveFutureToWatchlist turns a future card into a watchlist item. The new
// item has no end time until one is set with UpdateWatchItem.
func (s *Service) MoveFutureToWatchlist(ctx context.Context, userID, cardID string) (*models.WatchlistItem, error) {
	card, err := s.store.GetFutureCard(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}

	item := &models.WatchlistItem{
		ID:        s.newID(),
		CardName:  card.Name,
		Timing:    models.RelativeCountdown(0),
		CreatedAt: s.now().UTC(),
	}
	if err := s.createWatchItem(ctx, userID, item); err != nil {
		return nil, err
	}
	if err := s.store.DeleteFutureCard(ctx, userID, cardID); err != nil {
		return nil, apperrors.Wrapf(err, "watch item %s created", item.ID)
	}
	return item, nil
}

// ============================================================================
// Validation
// ============================================================================

// inputTiming resolves the timing of a new item. A legacy countdown cannot
// be combined with the other two forms.
func (s *Service) inputTiming(hoursLeft, legacyHours float64, endTime time.Time) (models.Timing, error) {
	if legacyHours == 0 {
		return s.timingFor(hoursLeft, endTime)
	}
	if hoursLeft != 0 || !endTime.IsZero() {
		return models.Timing{}, apperrors.NewValidationError("legacy_hours", legacyHours, "cannot be combined with hours_left or end_time")
	}
	if invalidHours(legacyHours) {
		return models.Timing{}, apperrors.NewValidationError("legacy_hours", legacyHours, "must be a non-negative number")
	}
	return models.RelativeCountdown(models.ParseTimeLeft(models.FormatTimeLeft(legacyHours))), nil
}

func (s *Service) timingFor(hoursLeft float64, endTime time.Time) (models.Timing, error) {
	if invalidHours(hoursLeft) {
		return models.Timing{}, apperrors.NewValidationError("hours_left", hoursLeft, "must be a non-negative number")
	}

	now := s.now()
	switch {
	case !endTime.IsZero():
		duration := hoursLeft
		if duration == 0 {
			duration = math.Max(endTime.Sub(now).Hours(), 0)
		}
		return models.AbsoluteWindow(endTime, duration), nil
	case hoursLeft > 0:
		return models.WindowFrom(now, hoursLeft), nil
	default:
		return models.RelativeCountdown(0), nil
	}
}

func validateTiming(t models.Timing) error {
	switch t.Kind {
	case models.TimingAbsolute:
		if t.EndTime.IsZero() {
			return apperrors.NewValidationError("end_time", t.EndTime, "must be set for an absolute window")
		}
		if invalidHours(t.DurationHours) {
			return apperrors.NewValidationError("duration_hours", t.DurationHours, "must be a non-negative number")
		}
	case models.TimingRelative:
		if invalidHours(t.HoursLeft) {
			return apperrors.NewValidationError("hours_left", t.HoursLeft, "must be a non-negative number")
		}
	default:
		return apperrors.NewValidationError("timing", string(t.Kind), "unknown timing kind")
	}
	return nil
}

func invalidHours(h float64) bool {
	return math.IsNaN(h) || math.IsInf(h, 0) || h < 0
}

// validateCardName rejects blank names and line breaks. Card names end up
// in mail subjects.
func validateCardName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.NewValidationError("card_name", name, "must not be empty")
	}
	if strings.ContainsAny(name, "\r\n") {
		return apperrors.NewValidationError("card_name", name, "must be a single line")
	}
	return nil
}

func validateRace(s string) (models.Race, error) {
	race, ok := models.ParseRace(s)
	if !ok {
		return "", apperrors.NewValidationError("race", s, "must be one of Human, Elf, Orc, Undead")
	}
	return race, nil
}

func validateRarity(r int) error {
	if r != 0 && (r < models.MinRarity || r > models.MaxRarity) {
		return apperrors.NewValidationError("rarity", r, "must be between 1 and 7")
	}
	return nil
}

func validateAmount(d *decimal.Decimal) error {
	if d != nil && d.IsNegative() {
		return apperrors.NewValidationError("amount", d.String(), "must not be negative")
	}
	return nil
}
