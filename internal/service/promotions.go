package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/errs"
	"kasirinaja/checkout/internal/xid"
)

type PromotionRequest struct {
	Name         string               `json:"name"`
	Type         domain.PromotionType `json:"type"`
	Conditions   json.RawMessage      `json:"conditions"`
	CustomerType domain.CustomerType  `json:"customer_type"`
	Schedule     domain.Schedule      `json:"schedule"`
	Priority     int                  `json:"priority"`
}

func (s *Service) ListPromotions(ctx context.Context) ([]domain.Promotion, error) {
	return s.repo.ListPromotions(ctx)
}

// CreatePromotion validates req and stores it as an active promotion.
func (s *Service) CreatePromotion(ctx context.Context, req PromotionRequest) (domain.Promotion, error) {
	promo, err := s.buildPromotion(req)
	if err != nil {
		return domain.Promotion{}, errs.Mark(err, errs.ErrInvalidPromotion)
	}

	saved, err := s.repo.CreatePromotion(ctx, promo)
	if err != nil {
		return domain.Promotion{}, errs.Wrap(err, "create promotion")
	}

	s.logger.WithFields(logrus.Fields{
		"promotion_id": saved.ID,
		"type":         saved.Type,
	}).Info("promotion created")
	return *saved, nil
}

func (s *Service) SetPromotionActive(ctx context.Context, id string, active bool) (domain.Promotion, error) {
	saved, err := s.repo.SetPromotionActive(ctx, id, active)
	if err != nil {
		return domain.Promotion{}, err
	}
	s.logger.WithFields(logrus.Fields{
		"promotion_id": id,
		"active":       active,
	}).Info("promotion toggled")
	return *saved, nil
}

func (s *Service) buildPromotion(req PromotionRequest) (domain.Promotion, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Promotion{}, errs.New("name is required")
	}
	if !req.Type.Valid() {
		return domain.Promotion{}, errs.Newf("unknown promotion type %q", req.Type)
	}

	conditions, err := domain.DecodeConditions(req.Type, req.Conditions)
	if err != nil {
		return domain.Promotion{}, errs.Wrap(err, "conditions")
	}
	if err := validateConditions(conditions); err != nil {
		return domain.Promotion{}, err
	}

	customer := domain.CustomerType(strings.ToLower(strings.TrimSpace(string(req.CustomerType))))
	if customer == "" {
		customer = domain.CustomerAll
	}
	if !customer.Valid() {
		return domain.Promotion{}, errs.Newf("unknown customer type %q", req.CustomerType)
	}

	schedule := req.Schedule
	if schedule.Type == "" {
		schedule.Type = domain.ScheduleAlways
	}
	if err := validateSchedule(schedule); err != nil {
		return domain.Promotion{}, err
	}

	return domain.Promotion{
		ID:           xid.New("promo"),
		Name:         name,
		Type:         req.Type,
		Conditions:   conditions,
		Active:       true,
		CustomerType: customer,
		Schedule:     schedule,
		Priority:     req.Priority,
		CreatedAt:    s.clock.Now().UTC(),
	}, nil
}

func validateConditions(c domain.Conditions) error {
	switch c := c.(type) {
	case domain.SpendAmount:
		if c.MinAmount.IsNegative() {
			return errs.New("min_amount must not be negative")
		}
		return validateValue(c.DiscountType, c.Value)
	case domain.CartPercentage:
		if c.MinAmount != nil && c.MinAmount.IsNegative() {
			return errs.New("min_amount must not be negative")
		}
		return validateValue(domain.DiscountPercentage, c.Value)
	case domain.CartFixed:
		if c.MinAmount != nil && c.MinAmount.IsNegative() {
			return errs.New("min_amount must not be negative")
		}
		return validateValue(domain.DiscountFixed, c.Value)
	case domain.ProductDiscount:
		return validateValue(c.DiscountType, c.Value)
	case domain.BundlePrice:
		if c.BundlePrice.IsNegative() {
			return errs.New("bundle_price must not be negative")
		}
	}
	return nil
}

func validateValue(kind domain.DiscountType, value decimal.Decimal) error {
	if !value.IsPositive() {
		return errs.New("value must be positive")
	}
	if kind == domain.DiscountPercentage && value.GreaterThan(hundred) {
		return errs.Newf("percentage %s is above 100", value)
	}
	return nil
}

func validateSchedule(sc domain.Schedule) error {
	switch sc.Type {
	case domain.ScheduleAlways:
	case domain.ScheduleSpecificDates:
		if len(sc.Dates) == 0 {
			return errs.New("specific_dates schedule needs at least one date")
		}
		for _, d := range sc.Dates {
			if !validDate(d) {
				return errs.Newf("date %q is not YYYY-MM-DD", d)
			}
		}
	case domain.ScheduleRecurringDays:
		if len(sc.Weekdays) == 0 {
			return errs.New("recurring_days schedule needs at least one weekday")
		}
		for _, d := range sc.Weekdays {
			if d < 0 || d > 6 {
				return errs.Newf("weekday %d is outside 0..6", d)
			}
		}
	case domain.ScheduleDateRange:
		if !validDate(sc.DateStart) || !validDate(sc.DateEnd) {
			return errs.Newf("date range %q..%q is not YYYY-MM-DD", sc.DateStart, sc.DateEnd)
		}
		if sc.DateStart > sc.DateEnd {
			return errs.Newf("date range starts after it ends (%s > %s)", sc.DateStart, sc.DateEnd)
		}
	default:
		return errs.Newf("unknown schedule type %q", sc.Type)
	}

	if (sc.TimeStart == "") != (sc.TimeEnd == "") {
		return errs.New("time_start and time_end must be set together")
	}
	if sc.TimeStart != "" && (!validClock(sc.TimeStart) || !validClock(sc.TimeEnd)) {
		return errs.Newf("time window %q..%q is not HH:MM", sc.TimeStart, sc.TimeEnd)
	}
	return nil
}

func validDate(s string) bool {
	if len(s) != len("2006-01-02") {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func validClock(s string) bool {
	if len(s) != len("15:04") {
		return false
	}
	_, err := time.Parse("15:04", s)
	return err == nil
}
